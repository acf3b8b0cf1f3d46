package fix

import (
	"path"
	"sort"
	"strings"
)

// ScopeViolations returns the edited paths that escape the workspace
// prefix, sorted. An empty workspace path permits everything. Paths that
// climb out of the repository root are violations regardless of prefix.
func ScopeViolations(editPaths []string, workspacePath string) []string {
	prefix := strings.Trim(strings.ReplaceAll(workspacePath, "\\", "/"), "/")

	var violations []string
	for _, p := range editPaths {
		clean := path.Clean(strings.ReplaceAll(p, "\\", "/"))
		if clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
			violations = append(violations, p)
			continue
		}
		if prefix == "" {
			continue
		}
		if clean != prefix && !strings.HasPrefix(clean, prefix+"/") {
			violations = append(violations, p)
		}
	}
	sort.Strings(violations)
	return violations
}
