package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turbowrap/turbowrap/pkg/models"
)

func TestTaskRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	task := &models.Task{ID: "t1", Kind: models.TaskKindReview, State: models.TaskStatePending, Priority: 60}
	require.NoError(t, s.SaveTask(ctx, task))

	got, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskKindReview, got.Kind)
	assert.Equal(t, 60, got.Priority)

	_, err = s.GetTask(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTaskCopiesIsolateCaller(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	task := &models.Task{ID: "t1", State: models.TaskStatePending}
	require.NoError(t, s.SaveTask(ctx, task))

	// Mutating the original after save must not leak into the store.
	task.State = models.TaskStateFailed
	got, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatePending, got.State)

	// Mutating a read copy must not leak either.
	got.State = models.TaskStateCompleted
	again, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatePending, again.State)
}

func TestListTasksFiltersByState(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SaveTask(ctx, &models.Task{ID: "a", State: models.TaskStatePending}))
	require.NoError(t, s.SaveTask(ctx, &models.Task{ID: "b", State: models.TaskStateProcessing}))
	require.NoError(t, s.SaveTask(ctx, &models.Task{ID: "c", State: models.TaskStateFailed}))

	all, err := s.ListTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	active, err := s.ListTasks(ctx, models.TaskStatePending, models.TaskStateProcessing)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestSaveLoopRunReplacesByID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	run := &models.LoopRun{ID: "r1", TaskID: "t1", Iterations: 1, History: []int{20}}
	require.NoError(t, s.SaveLoopRun(ctx, run))

	run.Iterations = 3
	run.History = []int{20, 35, 55}
	require.NoError(t, s.SaveLoopRun(ctx, run))

	runs, err := s.ListLoopRuns(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, runs, 1, "same run ID replaces, never duplicates")
	assert.Equal(t, 3, runs[0].Iterations)
	assert.Equal(t, []int{20, 35, 55}, runs[0].History)
}

func TestLoopRunHistoryIsolated(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	history := []int{10, 20}
	require.NoError(t, s.SaveLoopRun(ctx, &models.LoopRun{ID: "r1", TaskID: "t1", History: history}))
	history[0] = 99

	runs, err := s.ListLoopRuns(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, []int{10, 20}, runs[0].History)
}

func TestCheckpointIssuesIsolated(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	cp := &models.Checkpoint{
		TaskID:   "t1",
		Reviewer: "r1",
		Issues:   []models.Issue{{File: "a.go", Message: "original"}},
	}
	require.NoError(t, s.SaveCheckpoint(ctx, cp))
	cp.Issues[0].Message = "mutated"

	loaded, err := s.LoadCheckpoints(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "original", loaded["r1"].Issues[0].Message)
}

func TestFinalReportRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	report := &models.FinalReport{
		ID:             "rep1",
		TaskID:         "t1",
		OverallScore:   8.0,
		Recommendation: models.RecommendationRequestChanges,
		Issues:         []models.Issue{{File: "a.go", Severity: models.SeverityCritical}},
	}
	require.NoError(t, s.SaveFinalReport(ctx, report))

	got, err := s.GetFinalReport(ctx, "rep1")
	require.NoError(t, err)
	assert.InDelta(t, 8.0, got.OverallScore, 0.001)
	require.Len(t, got.Issues, 1)

	_, err = s.GetFinalReport(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFixReportRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SaveFixReport(ctx, &models.FixReport{ID: "f1", TaskID: "t1", CommitID: "abc"}))

	got, err := s.GetFixReport(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "abc", got.CommitID)

	_, err = s.GetFixReport(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
