package fix

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turbowrap/turbowrap/pkg/artifact"
	"github.com/turbowrap/turbowrap/pkg/config"
	"github.com/turbowrap/turbowrap/pkg/git"
	"github.com/turbowrap/turbowrap/pkg/llm"
	"github.com/turbowrap/turbowrap/pkg/loop"
	"github.com/turbowrap/turbowrap/pkg/models"
	"github.com/turbowrap/turbowrap/pkg/store"
)

// queuedInvoker replays outputs per backend kind.
type queuedInvoker struct {
	primary    []string
	challenger []string
	pi, ci     int
}

func (q *queuedInvoker) Invoke(_ context.Context, backend models.InvocationBackend, _, _ string, _ llm.Options, _ llm.StreamSink) (*llm.Result, error) {
	var out string
	if backend == models.BackendPrimary {
		if q.pi >= len(q.primary) {
			out = `{"edits": [], "notes": "exhausted"}`
		} else {
			out = q.primary[q.pi]
			q.pi++
		}
	} else {
		if q.ci >= len(q.challenger) {
			out = `{"satisfaction_score": 0, "feedback": "exhausted"}`
		} else {
			out = q.challenger[q.ci]
			q.ci++
		}
	}
	return &llm.Result{Output: out, Duration: time.Millisecond}, nil
}

// fakeGit records adapter calls in memory.
type fakeGit struct {
	branch   string
	applied  map[string]string
	commits  int
	reverted bool
	pushed   bool
}

func (g *fakeGit) CreateOrCheckoutBranch(_ context.Context, name string) error {
	g.branch = name
	return nil
}

func (g *fakeGit) ApplyEdits(_ context.Context, edits map[string]string) error {
	if g.applied == nil {
		g.applied = map[string]string{}
	}
	for k, v := range edits {
		g.applied[k] = v
	}
	return nil
}

func (g *fakeGit) CommitAll(context.Context, string) (string, error) {
	g.commits++
	return "abc1234", nil
}

func (g *fakeGit) Revert(context.Context) error {
	g.reverted = true
	g.applied = map[string]string{}
	return nil
}

func (g *fakeGit) Push(context.Context, string) error {
	g.pushed = true
	return nil
}

func (g *fakeGit) CurrentBranch(context.Context) (string, error) { return g.branch, nil }
func (g *fakeGit) ListBranches(context.Context) ([]string, error) {
	return []string{g.branch}, nil
}

func editsOutput(t *testing.T, edits map[string]string) string {
	t.Helper()
	type edit struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	payload := struct {
		Edits []edit `json:"edits"`
		Notes string `json:"notes"`
	}{Notes: "fixed"}
	for p, c := range edits {
		payload.Edits = append(payload.Edits, edit{Path: p, Content: c})
	}
	blob, err := json.Marshal(payload)
	require.NoError(t, err)
	return string(blob)
}

func newFixOrchestrator(inv llm.Invoker, fg *fakeGit) (*Orchestrator, *store.MemoryStore) {
	st := store.NewMemoryStore()
	recorder := artifact.NewRecorder(inv, artifact.NewMemorySink())
	engine := loop.NewEngine(recorder, st, nil)
	o := NewOrchestrator(config.Default(), engine, st, func(string) git.Adapter { return fg })
	return o, st
}

func TestFixSingleCommitOnSuccess(t *testing.T) {
	fg := &fakeGit{}
	inv := &queuedInvoker{
		primary:    []string{editsOutput(t, map[string]string{"pkg/a.go": "package a\n"})},
		challenger: []string{`{"satisfaction_score": 96, "feedback": "clean"}`},
	}
	o, st := newFixOrchestrator(inv, fg)

	report, err := o.Fix(context.Background(), &models.FixRequest{
		TaskID:       "task-1",
		RepositoryID: "/repo",
		Issues:       []models.Issue{workloadIssue("pkg/a.go", 2, 1)},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, fg.commits, "exactly one commit per fix request")
	assert.Equal(t, "abc1234", report.CommitID)
	assert.Equal(t, "turbowrap/fix-task-1", report.Branch)
	assert.False(t, fg.reverted)
	assert.False(t, fg.pushed)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, models.FixOutcomeFixed, report.Issues[0].Outcome)

	saved, err := st.GetFixReport(context.Background(), report.ID)
	require.NoError(t, err)
	assert.Equal(t, report.CommitID, saved.CommitID)
}

func TestFixScopeViolationRevertsEverything(t *testing.T) {
	fg := &fakeGit{}
	inv := &queuedInvoker{
		primary: []string{editsOutput(t, map[string]string{
			"packages/api/handler.go": "fixed",
			"packages/web/x.ts":       "sneaky",
		})},
		challenger: []string{`{"satisfaction_score": 97, "feedback": "ok"}`},
	}
	o, _ := newFixOrchestrator(inv, fg)

	report, err := o.Fix(context.Background(), &models.FixRequest{
		TaskID:        "task-2",
		RepositoryID:  "/repo",
		WorkspacePath: "packages/api",
		Issues:        []models.Issue{workloadIssue("packages/api/handler.go", 2, 1)},
	})
	require.NoError(t, err)

	assert.True(t, fg.reverted, "working tree reverted")
	assert.Equal(t, 0, fg.commits, "no commit after a scope violation")
	assert.Empty(t, report.CommitID)
	assert.Equal(t, FailureScopeViolation, report.FailureKind)
	for _, r := range report.Issues {
		assert.Equal(t, models.FixOutcomeFailed, r.Outcome)
	}
}

func TestFixFailedBatchDoesNotBlockOthers(t *testing.T) {
	fg := &fakeGit{}
	// First batch stagnates below acceptance (scores 10,10,10 under fix
	// params), second batch is accepted. Batches run in workload order:
	// the 16-point issue first, then the small one.
	inv := &queuedInvoker{
		primary: []string{
			editsOutput(t, map[string]string{"big/refactor.go": "v1"}),
			editsOutput(t, map[string]string{"big/refactor.go": "v2"}),
			editsOutput(t, map[string]string{"big/refactor.go": "v3"}),
			editsOutput(t, map[string]string{"small/tweak.go": "done"}),
		},
		challenger: []string{
			`{"satisfaction_score": 10, "feedback": "wrong"}`,
			`{"satisfaction_score": 10, "feedback": "still wrong"}`,
			`{"satisfaction_score": 10, "feedback": "no"}`,
			`{"satisfaction_score": 98, "feedback": "good"}`,
		},
	}
	o, _ := newFixOrchestrator(inv, fg)

	report, err := o.Fix(context.Background(), &models.FixRequest{
		TaskID:       "task-3",
		RepositoryID: "/repo",
		Issues: []models.Issue{
			workloadIssue("big/refactor.go", 4, 4),
			workloadIssue("small/tweak.go", 1, 1),
		},
	})
	require.NoError(t, err)

	require.Len(t, report.Batches, 2)
	assert.False(t, report.Batches[0].Applied)
	assert.True(t, report.Batches[1].Applied)
	assert.Equal(t, 1, fg.commits)
	assert.NotEmpty(t, report.CommitID)

	outcomes := map[string]models.FixOutcome{}
	for _, r := range report.Issues {
		outcomes[r.Issue.File] = r.Outcome
	}
	assert.Equal(t, models.FixOutcomeFailed, outcomes["big/refactor.go"])
	assert.Equal(t, models.FixOutcomeFixed, outcomes["small/tweak.go"])
}

func TestFixPushWhenRequested(t *testing.T) {
	fg := &fakeGit{}
	inv := &queuedInvoker{
		primary:    []string{editsOutput(t, map[string]string{"pkg/a.go": "fixed"})},
		challenger: []string{`{"satisfaction_score": 99, "feedback": "ok"}`},
	}
	o, _ := newFixOrchestrator(inv, fg)

	report, err := o.Fix(context.Background(), &models.FixRequest{
		TaskID:       "task-4",
		RepositoryID: "/repo",
		Push:         true,
		Issues:       []models.Issue{workloadIssue("pkg/a.go", 1, 1)},
	})
	require.NoError(t, err)
	assert.True(t, fg.pushed)
	assert.True(t, report.Pushed)
}
