package queue

import (
	"context"
	"errors"
	"time"

	"github.com/turbowrap/turbowrap/pkg/models"
)

// Sentinel errors for queue operations.
var (
	// ErrPoolStopped is returned when submitting to a stopped pool.
	ErrPoolStopped = errors.New("worker pool stopped")

	// ErrTaskNotFound is returned when a task id is unknown to the pool.
	ErrTaskNotFound = errors.New("task not found")

	// ErrUnknownTaskKind is returned by the executor for unroutable tasks.
	ErrUnknownTaskKind = errors.New("unknown task kind")
)

// TaskExecutor runs one dequeued task to completion. The context carries the
// task's cancellation; implementations must return promptly when it is
// canceled. A nil error means the task completed and its results are durable.
type TaskExecutor interface {
	Execute(ctx context.Context, task *models.Task) error
}

// WorkerHealth is a point-in-time snapshot of one worker.
type WorkerHealth struct {
	ID            int        `json:"id"`
	Busy          bool       `json:"busy"`
	CurrentTaskID string     `json:"current_task_id,omitempty"`
	LastActive    *time.Time `json:"last_active,omitempty"`
}

// PoolHealth is a point-in-time snapshot of the pool.
type PoolHealth struct {
	Running     bool           `json:"running"`
	QueueDepth  int            `json:"queue_depth"`
	Processing  int            `json:"processing"`
	Workers     []WorkerHealth `json:"workers"`
	ZombieScans int64          `json:"zombie_scans"`
}
