package e2e

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turbowrap/turbowrap/pkg/models"
)

func TestReviewPipeline(t *testing.T) {
	inv := NewScriptedInvoker()

	// Backend repo: four specialist reviewers run in parallel. Two flag the
	// same credential issue; the other two come back clean.
	sharedIssue := Issue("internal/auth.go", 42, "critical", "security", "credentials in source")
	inv.AddRouted("reviewer_be_security", ScriptEntry{Output: IssuesPayload(sharedIssue)})
	inv.AddRouted("reviewer_be_quality", ScriptEntry{Output: IssuesPayload(
		sharedIssue,
		Issue("internal/auth.go", 90, "medium", "quality", "duplicated token parsing"),
	)})
	inv.AddRouted("reviewer_be_architecture", ScriptEntry{Output: IssuesPayload()})
	inv.AddRouted("reviewer_be_performance", ScriptEntry{Output: IssuesPayload()})
	for i := 0; i < 4; i++ {
		inv.AddRouted("challenger", ScriptEntry{Output: Eval(80, "thorough enough")})
	}
	inv.AddRouted("evaluator", ScriptEntry{Output: "The credential leak dominates; fix it before anything else."})

	app := NewTestApp(t, inv)
	repo := app.SeedRepo(map[string]string{
		"internal/auth.go": "package auth\n\nconst token = \"hunter2\"\n",
		"go.mod":           "module example.com/svc\n",
	})

	taskID := app.SubmitReview(&models.ReviewRequest{
		Source: models.ReviewSource{Dir: repo},
	})
	task := app.WaitForTask(taskID, 5*time.Second)
	require.Equal(t, models.TaskStateCompleted, task.State, task.ErrorMessage)

	report := app.FinalReportForTask(taskID)
	assert.Equal(t, models.RepoTypeBackend, report.RepoType)
	assert.Len(t, report.Reviewers, 4)
	assert.False(t, report.Partial)
	assert.NotEmpty(t, report.Assessment)

	// The shared finding deduplicates into one issue flagged by both
	// reviewers, with a consensus priority boost: 40 × 1.5 + 5.
	require.Len(t, report.Issues, 2)
	top := report.Issues[0]
	assert.Equal(t, models.SeverityCritical, top.Severity)
	assert.Len(t, top.FlaggedBy, 2)
	assert.Equal(t, 65, top.Priority)

	assert.Equal(t, models.RecommendationRequestChanges, report.Recommendation)
	assert.InDelta(t, 7.5, report.OverallScore, 0.001, "2.0 off for the critical, 0.5 for the medium")
}

func TestReviewRefinementLoop(t *testing.T) {
	inv := NewScriptedInvoker()

	// Single general reviewer: the challenger rejects the first pass, the
	// refined second pass clears the threshold.
	inv.AddRouted("reviewer_general", ScriptEntry{Output: IssuesPayload()})
	inv.AddRouted("reviewer_general", ScriptEntry{Output: IssuesPayload(
		Issue("notes.txt", 1, "low", "documentation", "missing context"),
	)})
	inv.AddRouted("challenger", ScriptEntry{Output: Eval(20, "you missed the documentation gap")})
	inv.AddRouted("challenger", ScriptEntry{Output: Eval(75, "acceptable now")})
	inv.AddRouted("evaluator", ScriptEntry{Output: "Minor findings only."})

	app := NewTestApp(t, inv)
	repo := app.SeedRepo(map[string]string{"notes.txt": "remember the thing\n"})

	taskID := app.SubmitReview(&models.ReviewRequest{Source: models.ReviewSource{Dir: repo}})
	task := app.WaitForTask(taskID, 5*time.Second)
	require.Equal(t, models.TaskStateCompleted, task.State, task.ErrorMessage)

	report := app.FinalReportForTask(taskID)
	require.Len(t, report.Reviewers, 1)
	assert.Equal(t, 2, report.Reviewers[0].Iterations)
	assert.Equal(t, models.ConvergenceThresholdMet, report.Reviewers[0].Status)
	assert.Equal(t, []int{20, 75}, report.Reviewers[0].ScoreHistory)
	require.Len(t, report.Issues, 1)

	// The refinement prompt must carry the challenger's feedback forward.
	var sawFeedback bool
	for _, p := range inv.CapturedPrompts() {
		if containsAll(p, "you missed the documentation gap", "Your previous review") {
			sawFeedback = true
		}
	}
	assert.True(t, sawFeedback, "refinement prompt carries challenger feedback")
}

func TestReviewLoopRunsExposedOverAPI(t *testing.T) {
	inv := NewScriptedInvoker()
	inv.AddRouted("reviewer_general", ScriptEntry{Output: IssuesPayload()})
	inv.AddRouted("challenger", ScriptEntry{Output: Eval(90, "fine")})

	app := NewTestApp(t, inv)
	repo := app.SeedRepo(map[string]string{"README.md": "docs\n"})

	taskID := app.SubmitReview(&models.ReviewRequest{Source: models.ReviewSource{Dir: repo}})
	app.WaitForTask(taskID, 5*time.Second)

	var resp struct {
		Runs []models.LoopRun `json:"runs"`
	}
	status := app.GetJSON("/api/v1/tasks/"+taskID+"/runs", &resp)
	require.Equal(t, 200, status)
	require.Len(t, resp.Runs, 1)
	assert.Equal(t, models.ConvergenceThresholdMet, resp.Runs[0].Status)
	assert.Len(t, resp.Runs[0].Invocations, 2, "one primary and one challenger call")
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
