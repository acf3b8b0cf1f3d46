// Package git defines the GitAdapter capability consumed by the fix
// orchestrator and its git-CLI implementation.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrUnavailable indicates git could not run or the directory is not a
// repository.
var ErrUnavailable = errors.New("git unavailable")

// ErrConflict indicates a branch-level conflict, e.g. the branch already
// exists. Callers recover by checking the existing branch out.
var ErrConflict = errors.New("git conflict")

// Adapter is the capability the fix orchestrator consumes. All operations
// are synchronous.
type Adapter interface {
	CreateOrCheckoutBranch(ctx context.Context, name string) error
	ApplyEdits(ctx context.Context, edits map[string]string) error
	CommitAll(ctx context.Context, message string) (string, error)
	Revert(ctx context.Context) error
	Push(ctx context.Context, branch string) error
	CurrentBranch(ctx context.Context) (string, error)
	ListBranches(ctx context.Context) ([]string, error)
}

// CLIAdapter shells out to the git binary in a fixed repository directory.
type CLIAdapter struct {
	dir string
}

// NewCLIAdapter creates an adapter rooted at the repository directory.
func NewCLIAdapter(dir string) *CLIAdapter {
	return &CLIAdapter{dir: dir}
}

// CreateOrCheckoutBranch creates the branch, or checks it out when it
// already exists. The existing-branch path is the documented conflict
// recovery, reported by a nil error.
func (g *CLIAdapter) CreateOrCheckoutBranch(ctx context.Context, name string) error {
	if _, err := g.run(ctx, "checkout", "-b", name); err == nil {
		return nil
	}
	branches, err := g.ListBranches(ctx)
	if err != nil {
		return err
	}
	for _, b := range branches {
		if b == name {
			_, err := g.run(ctx, "checkout", name)
			return err
		}
	}
	return fmt.Errorf("%w: cannot create branch %q", ErrConflict, name)
}

// ApplyEdits writes full file contents into the working tree. Paths are
// relative to the repository root; parent directories are created.
func (g *CLIAdapter) ApplyEdits(_ context.Context, edits map[string]string) error {
	for rel, content := range edits {
		path := filepath.Join(g.dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", rel, err)
		}
	}
	return nil
}

// CommitAll stages everything and commits, returning the commit hash.
func (g *CLIAdapter) CommitAll(ctx context.Context, message string) (string, error) {
	if _, err := g.run(ctx, "add", "-A"); err != nil {
		return "", err
	}
	if _, err := g.run(ctx, "commit", "-m", message); err != nil {
		return "", err
	}
	out, err := g.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Revert discards every uncommitted change, tracked and untracked.
func (g *CLIAdapter) Revert(ctx context.Context) error {
	if _, err := g.run(ctx, "reset", "--hard", "HEAD"); err != nil {
		return err
	}
	_, err := g.run(ctx, "clean", "-fd")
	return err
}

// Push publishes the branch to origin.
func (g *CLIAdapter) Push(ctx context.Context, branch string) error {
	_, err := g.run(ctx, "push", "-u", "origin", branch)
	return err
}

// CurrentBranch returns the checked-out branch name.
func (g *CLIAdapter) CurrentBranch(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// ListBranches returns all local branch names.
func (g *CLIAdapter) ListBranches(ctx context.Context) ([]string, error) {
	out, err := g.run(ctx, "branch", "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	var branches []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			branches = append(branches, line)
		}
	}
	return branches, nil
}

func (g *CLIAdapter) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return "", fmt.Errorf("git %s: %v: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
