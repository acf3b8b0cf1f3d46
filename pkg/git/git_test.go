package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initRepo creates a real git repository with one commit so HEAD exists.
func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}

	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("seed\n"), 0o644))
	run("add", "-A")
	run("commit", "-m", "initial")
	return dir
}

func TestApplyEditsAndCommit(t *testing.T) {
	dir := initRepo(t)
	g := NewCLIAdapter(dir)
	ctx := context.Background()

	require.NoError(t, g.ApplyEdits(ctx, map[string]string{
		"pkg/fixed.go":    "package pkg\n",
		"deep/new/file.go": "package new\n",
	}))

	commitID, err := g.CommitAll(ctx, "apply review fixes")
	require.NoError(t, err)
	assert.Len(t, commitID, 40, "full commit hash")

	blob, err := os.ReadFile(filepath.Join(dir, "deep", "new", "file.go"))
	require.NoError(t, err)
	assert.Equal(t, "package new\n", string(blob))
}

func TestCreateOrCheckoutBranch(t *testing.T) {
	dir := initRepo(t)
	g := NewCLIAdapter(dir)
	ctx := context.Background()

	require.NoError(t, g.CreateOrCheckoutBranch(ctx, "turbowrap/fix-1"))
	branch, err := g.CurrentBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "turbowrap/fix-1", branch)

	// Idempotent: the branch already exists, so it is checked out again.
	require.NoError(t, g.CreateOrCheckoutBranch(ctx, "main"))
	require.NoError(t, g.CreateOrCheckoutBranch(ctx, "turbowrap/fix-1"))
	branch, err = g.CurrentBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "turbowrap/fix-1", branch)

	branches, err := g.ListBranches(ctx)
	require.NoError(t, err)
	assert.Contains(t, branches, "main")
	assert.Contains(t, branches, "turbowrap/fix-1")
}

func TestRevertDiscardsEverything(t *testing.T) {
	dir := initRepo(t)
	g := NewCLIAdapter(dir)
	ctx := context.Background()

	// A tracked modification and an untracked file.
	require.NoError(t, g.ApplyEdits(ctx, map[string]string{
		"README.md":   "tampered\n",
		"sneaky/x.go": "package sneaky\n",
	}))
	require.NoError(t, g.Revert(ctx))

	blob, err := os.ReadFile(filepath.Join(dir, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "seed\n", string(blob))

	_, err = os.Stat(filepath.Join(dir, "sneaky"))
	assert.True(t, os.IsNotExist(err), "untracked files are cleaned")
}

func TestCommitAllNothingToCommit(t *testing.T) {
	dir := initRepo(t)
	g := NewCLIAdapter(dir)

	_, err := g.CommitAll(context.Background(), "empty")
	assert.Error(t, err, "committing a clean tree fails")
}

func TestRunInNonRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	g := NewCLIAdapter(t.TempDir())
	_, err := g.CurrentBranch(context.Background())
	assert.Error(t, err)
}
