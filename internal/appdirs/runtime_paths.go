package appdirs

import (
	"path/filepath"
	"strings"
)

const (
	RunRootName = "runs"
	dbFileName  = "clipper.db"
)

// RunDirFor is the scratch directory owned by a single pipeline run.
func RunDirFor(paths Paths, runID string) string {
	return filepath.Join(normalizeWorkDir(paths), RunRootName, runID)
}

// ResultPathFor is where a finished analysis is written when persisted to disk.
func ResultPathFor(paths Paths, jobID string) string {
	return filepath.Join(normalizeOutputDir(paths.OutputDir), jobID+".json")
}

func DBPathFor(paths Paths) string {
	return filepath.Join(normalizeCacheDir(paths.CacheDir), dbFileName)
}

func normalizeOutputDir(outputDir string) string {
	cleaned := strings.TrimSpace(outputDir)
	if cleaned == "" {
		return "."
	}
	return filepath.Clean(cleaned)
}

func normalizeCacheDir(cacheDir string) string {
	cleaned := strings.TrimSpace(cacheDir)
	if cleaned == "" {
		return "cache"
	}
	return filepath.Clean(cleaned)
}

func normalizeWorkDir(paths Paths) string {
	cleaned := strings.TrimSpace(paths.WorkDir)
	if cleaned == "" {
		return filepath.Join(normalizeCacheDir(paths.CacheDir), "work")
	}
	return filepath.Clean(cleaned)
}
