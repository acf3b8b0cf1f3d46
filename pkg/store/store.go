// Package store defines the persistence port for tasks, loop runs,
// checkpoints, and reports, plus the in-memory implementation used by tests
// and single-process runs. The Postgres adapter lives in store/postgres.
package store

import (
	"context"
	"errors"

	"github.com/turbowrap/turbowrap/pkg/models"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrUnavailable indicates the store could not serve the request.
var ErrUnavailable = errors.New("store unavailable")

// Store persists the orchestration core's durable state. Reads may run
// concurrently; writes affecting one task are serialized by the caller
// (single-writer per task).
type Store interface {
	// Tasks.
	SaveTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, states ...models.TaskState) ([]*models.Task, error)

	// Loop runs, kept as history.
	SaveLoopRun(ctx context.Context, run *models.LoopRun) error
	ListLoopRuns(ctx context.Context, taskID string) ([]*models.LoopRun, error)

	// Checkpoints, keyed by (task, reviewer).
	SaveCheckpoint(ctx context.Context, cp *models.Checkpoint) error
	LoadCheckpoints(ctx context.Context, taskID string) (map[string]*models.Checkpoint, error)
	ClearCheckpoints(ctx context.Context, taskID string) error

	// Reports. Clients know their task id from submission, so reports are
	// retrievable both by report id and by the owning task.
	SaveFinalReport(ctx context.Context, report *models.FinalReport) error
	GetFinalReport(ctx context.Context, id string) (*models.FinalReport, error)
	GetFinalReportByTask(ctx context.Context, taskID string) (*models.FinalReport, error)
	SaveFixReport(ctx context.Context, report *models.FixReport) error
	GetFixReport(ctx context.Context, id string) (*models.FixReport, error)
	GetFixReportByTask(ctx context.Context, taskID string) (*models.FixReport, error)
}
