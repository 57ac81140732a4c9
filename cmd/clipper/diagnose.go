package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"viral-clipper/config"
	"viral-clipper/internal/appdirs"
	"viral-clipper/internal/deps"
	"viral-clipper/log"
)

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "version: %s\ncommit: %s\ndate: %s\n", version, commit, date)
}

func printDiagnose(w io.Writer) {
	fmt.Fprintf(w, "runtime: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(w, "version: %s\n", version)
	fmt.Fprintf(w, "commit: %s\n", commit)
	fmt.Fprintf(w, "date: %s\n", date)

	if wd, err := os.Getwd(); err == nil {
		fmt.Fprintf(w, "working_dir: %s\n", wd)
	} else {
		fmt.Fprintf(w, "working_dir: <error: %v>\n", err)
	}

	if exePath, err := os.Executable(); err == nil {
		fmt.Fprintf(w, "executable: %s\n", exePath)
	} else {
		fmt.Fprintf(w, "executable: <error: %v>\n", err)
	}

	if dirs, err := appdirs.Resolve(); err == nil {
		printPath(w, "config", dirs.ConfigFile)
		printPath(w, "output", dirs.OutputDir)
		printPath(w, "cache", dirs.CacheDir)
		printPath(w, "work", dirs.WorkDir)
	} else {
		fmt.Fprintf(w, "path.dirs: <error: %v>\n", err)
	}

	if logDir, err := log.ResolveLogDir(); err == nil {
		printPath(w, "effective_log_dir", logDir)
	} else {
		fmt.Fprintf(w, "path.effective_log_dir: <error: %v>\n", err)
	}
	if logFile, err := log.ResolveLogFilePath(); err == nil {
		printPath(w, "log_file", logFile)
	}

	fmt.Fprintf(w, "transcribe.primary: %s\n", config.Conf.Transcribe.Primary)
	fmt.Fprintf(w, "llm.model: %s\n", config.Conf.Llm.Model)
	states := deps.WithVersions(context.Background(), deps.ResolveDependencyInventory(config.Conf))
	fmt.Fprintln(w, deps.FormatDependencyReport(states))
}

func printPath(w io.Writer, name, value string) {
	absPath, err := filepath.Abs(value)
	if err != nil {
		fmt.Fprintf(w, "path.%s: %s (abs_error=%v)\n", name, value, err)
		return
	}

	if _, err = os.Stat(absPath); err == nil {
		fmt.Fprintf(w, "path.%s: %s (exists)\n", name, absPath)
		return
	}
	if os.IsNotExist(err) {
		fmt.Fprintf(w, "path.%s: %s (missing)\n", name, absPath)
		return
	}

	fmt.Fprintf(w, "path.%s: %s (error=%v)\n", name, absPath, err)
}
