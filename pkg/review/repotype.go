// Package review implements the review orchestrator: repository typing,
// reviewer selection, parallel challenger loops, and final report assembly.
package review

import (
	"path/filepath"
	"strings"

	"github.com/turbowrap/turbowrap/pkg/models"
)

// backendExts and frontendExts drive the file-extension census behind repo
// typing. Extensions outside both sets do not vote.
var backendExts = map[string]bool{
	".go": true, ".py": true, ".rb": true, ".java": true, ".kt": true,
	".rs": true, ".c": true, ".cc": true, ".cpp": true, ".h": true,
	".cs": true, ".php": true, ".ex": true, ".exs": true, ".scala": true,
	".sql": true, ".proto": true,
}

var frontendExts = map[string]bool{
	".js": true, ".jsx": true, ".ts": true, ".tsx": true, ".vue": true,
	".svelte": true, ".html": true, ".css": true, ".scss": true, ".less": true,
}

// DetectRepoType classifies a repository from its file paths: backend if
// only backend-ish extensions appear, frontend if only frontend-ish,
// fullstack if both, other if neither.
func DetectRepoType(files []string) models.RepoType {
	var hasBackend, hasFrontend bool
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f))
		if backendExts[ext] {
			hasBackend = true
		}
		if frontendExts[ext] {
			hasFrontend = true
		}
		if hasBackend && hasFrontend {
			break
		}
	}
	switch {
	case hasBackend && hasFrontend:
		return models.RepoTypeFullstack
	case hasBackend:
		return models.RepoTypeBackend
	case hasFrontend:
		return models.RepoTypeFrontend
	default:
		return models.RepoTypeOther
	}
}
