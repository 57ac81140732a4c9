package handler

import (
	"os"
	"path/filepath"
	"strings"

	"viral-clipper/internal/appdirs"
)

var appDirsResolver = appdirs.Resolve

// resolveResultFile returns the result file of jobID. An existing file wins;
// otherwise the preferred location is returned. Ids that could escape the
// output directory are refused.
func resolveResultFile(jobID string) (string, bool) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" || hasParentTraversal(jobID) || strings.ContainsAny(jobID, `/\`) {
		return "", false
	}

	var fallback string
	for _, root := range outputRootCandidates() {
		candidate := filepath.Clean(filepath.Join(root, jobID+".json"))
		if !isPathWithinRoot(root, candidate) {
			continue
		}
		if fallback == "" {
			fallback = candidate
		}
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}

	if fallback == "" {
		return "", false
	}
	return fallback, true
}

func outputRootCandidates() []string {
	candidates := make([]string, 0, 2)
	if dirs, err := appDirsResolver(); err == nil {
		candidates = append(candidates, filepath.Dir(appdirs.ResultPathFor(dirs, "x")))
	}
	candidates = append(candidates, "output")
	return uniquePaths(candidates...)
}

func uniquePaths(values ...string) []string {
	seen := make(map[string]struct{}, len(values))
	paths := make([]string, 0, len(values))
	for _, value := range values {
		cleaned := strings.TrimSpace(value)
		if cleaned == "" {
			continue
		}
		cleaned = filepath.Clean(cleaned)
		if _, exists := seen[cleaned]; exists {
			continue
		}
		seen[cleaned] = struct{}{}
		paths = append(paths, cleaned)
	}
	return paths
}

func isPathWithinRoot(root, candidate string) bool {
	root = filepath.Clean(root)
	candidate = filepath.Clean(candidate)

	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func hasParentTraversal(path string) bool {
	normalized := strings.ReplaceAll(path, "\\", "/")
	for _, part := range strings.Split(normalized, "/") {
		if part == ".." {
			return true
		}
	}
	return false
}
