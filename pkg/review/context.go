package review

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/turbowrap/turbowrap/pkg/models"
)

// Context budget caps. Beyond these the context carries paths only.
const (
	maxContextFiles      = 2000
	maxFileExcerptBytes  = 16 * 1024
	maxTotalExcerptBytes = 256 * 1024
)

// skipDirs are never descended into during the repository walk.
var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, "dist": true,
	"build": true, ".idea": true, ".vscode": true, "__pycache__": true,
}

// RepoContext is the materialized view of the code under review that gets
// embedded into reviewer prompts.
type RepoContext struct {
	RootDir       string
	WorkspacePath string
	Files         []string // relative paths, sorted
	Excerpts      string   // concatenated file excerpts within budget
}

// MaterializeContext builds the repository context for a review source.
// Sources other than a directory or an explicit file list are resolved to a
// directory by the caller before reaching the orchestrator.
func MaterializeContext(source models.ReviewSource, workspacePath string) (*RepoContext, error) {
	switch {
	case source.Dir != "":
		return contextFromDir(source.Dir, workspacePath)
	case len(source.Files) > 0:
		return contextFromFiles(source.Files, workspacePath)
	default:
		return nil, fmt.Errorf("review source must name a directory or files")
	}
}

func contextFromDir(root, workspacePath string) (*RepoContext, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if workspacePath != "" && !strings.HasPrefix(rel, strings.TrimSuffix(workspacePath, "/")+"/") && rel != workspacePath {
			return nil
		}
		files = append(files, rel)
		if len(files) >= maxContextFiles {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk repository %s: %w", root, err)
	}
	sort.Strings(files)

	ctx := &RepoContext{RootDir: root, WorkspacePath: workspacePath, Files: files}
	ctx.Excerpts = buildExcerpts(root, files)
	return ctx, nil
}

func contextFromFiles(paths []string, workspacePath string) (*RepoContext, error) {
	files := make([]string, 0, len(paths))
	for _, p := range paths {
		files = append(files, filepath.ToSlash(p))
	}
	sort.Strings(files)

	ctx := &RepoContext{WorkspacePath: workspacePath, Files: files}
	ctx.Excerpts = buildExcerpts("", files)
	return ctx, nil
}

// buildExcerpts concatenates file contents under the per-file and total
// byte budgets. Unreadable files contribute their path only.
func buildExcerpts(root string, files []string) string {
	var sb strings.Builder
	total := 0
	for _, rel := range files {
		if total >= maxTotalExcerptBytes {
			break
		}
		path := rel
		if root != "" {
			path = filepath.Join(root, rel)
		}
		blob, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if len(blob) > maxFileExcerptBytes {
			blob = blob[:maxFileExcerptBytes]
		}
		if total+len(blob) > maxTotalExcerptBytes {
			blob = blob[:maxTotalExcerptBytes-total]
		}
		fmt.Fprintf(&sb, "== %s ==\n%s\n\n", rel, blob)
		total += len(blob)
	}
	return sb.String()
}

// PromptContext renders the context block for prompts: the file tree plus
// the excerpt budget's worth of content.
func (c *RepoContext) PromptContext() string {
	var sb strings.Builder
	sb.WriteString("Files:\n")
	for _, f := range c.Files {
		sb.WriteString("  ")
		sb.WriteString(f)
		sb.WriteByte('\n')
	}
	if c.Excerpts != "" {
		sb.WriteString("\nContents:\n")
		sb.WriteString(c.Excerpts)
	}
	return sb.String()
}
