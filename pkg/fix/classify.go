// Package fix implements the fix orchestrator: issue classification,
// workload batching, per-batch challenger loops, workspace-scope
// enforcement, and the single atomic commit.
package fix

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/turbowrap/turbowrap/pkg/config"
	"github.com/turbowrap/turbowrap/pkg/models"
)

// Classify assigns an issue to the backend or frontend fix track by glob
// matching its file path. Frontend globs are checked first so overlapping
// pattern sets still split the stacks; anything unmatched defaults to
// backend.
func Classify(issue *models.Issue, cfg *config.FixConfig) models.BatchScope {
	file := strings.ToLower(path.Clean(strings.ReplaceAll(issue.File, "\\", "/")))
	if matchesAny(cfg.FrontendGlobs, file) {
		return models.BatchScopeFrontend
	}
	if matchesAny(cfg.BackendGlobs, file) {
		return models.BatchScopeBackend
	}
	return models.BatchScopeBackend
}

func matchesAny(globs []string, file string) bool {
	for _, g := range globs {
		if ok, err := doublestar.Match(g, file); err == nil && ok {
			return true
		}
	}
	return false
}
