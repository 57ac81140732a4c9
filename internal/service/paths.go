package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"viral-clipper/internal/appdirs"
	apperrors "viral-clipper/pkg/errors"
)

var appDirsResolver = appdirs.Resolve

func resolveRunRoot() (string, error) {
	dirs, err := appDirsResolver()
	if err != nil {
		return "", err
	}
	return filepath.Dir(appdirs.RunDirFor(dirs, "run")), nil
}

// ResolveResultPath is where the result of job jobID is written.
func ResolveResultPath(jobID string) (string, error) {
	if strings.TrimSpace(jobID) == "" {
		return "", fmt.Errorf("job id is empty")
	}
	dirs, err := appDirsResolver()
	if err != nil {
		return "", err
	}
	return appdirs.ResultPathFor(dirs, jobID), nil
}

// WriteResult writes v as indented JSON, creating parent directories.
func WriteResult(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apperrors.Wrap(apperrors.CodeFileWriteError, "encode result", err)
	}
	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.WrapWithDetail(apperrors.CodeFileWriteError, "create result directory", path, err)
	}
	if err = os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return apperrors.WrapWithDetail(apperrors.CodeFileWriteError, "write result", path, err)
	}
	return nil
}
