// Package service wires queued tasks to the review and fix orchestrators
// and provides the task-creation entry points used by the API layer.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/turbowrap/turbowrap/pkg/fix"
	"github.com/turbowrap/turbowrap/pkg/models"
	"github.com/turbowrap/turbowrap/pkg/queue"
	"github.com/turbowrap/turbowrap/pkg/review"
)

// defaultTaskPriority places API-submitted tasks mid-range so operational
// requeues can outrank or yield to them.
const defaultTaskPriority = 50

// Executor routes dequeued tasks by kind.
type Executor struct {
	reviews *review.Orchestrator
	fixes   *fix.Orchestrator
	logger  *slog.Logger
}

// NewExecutor creates the task executor.
func NewExecutor(reviews *review.Orchestrator, fixes *fix.Orchestrator) *Executor {
	return &Executor{
		reviews: reviews,
		fixes:   fixes,
		logger:  slog.With("component", "executor"),
	}
}

// Execute implements queue.TaskExecutor.
func (e *Executor) Execute(ctx context.Context, task *models.Task) error {
	switch task.Kind {
	case models.TaskKindReview:
		var req models.ReviewRequest
		if err := json.Unmarshal(task.Payload, &req); err != nil {
			return fmt.Errorf("decode review payload: %w", err)
		}
		_, err := e.reviews.Review(ctx, task.ID, &req)
		return err
	case models.TaskKindFix:
		var req models.FixRequest
		if err := json.Unmarshal(task.Payload, &req); err != nil {
			return fmt.Errorf("decode fix payload: %w", err)
		}
		req.TaskID = task.ID
		report, err := e.fixes.Fix(ctx, &req)
		if err != nil {
			return err
		}
		if report.FailureKind != "" {
			return fmt.Errorf("fix failed: %s", report.FailureKind)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", queue.ErrUnknownTaskKind, task.Kind)
	}
}

// NewReviewTask builds a pending review task from a request envelope.
func NewReviewTask(req *models.ReviewRequest) (*models.Task, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode review payload: %w", err)
	}
	return &models.Task{
		ID:         uuid.New().String(),
		Kind:       models.TaskKindReview,
		Payload:    payload,
		Priority:   defaultTaskPriority,
		State:      models.TaskStatePending,
		EnqueuedAt: time.Now(),
	}, nil
}

// NewFixTask builds a pending fix task. The repository id doubles as the
// per-repository serialization key in the queue.
func NewFixTask(req *models.FixRequest) (*models.Task, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode fix payload: %w", err)
	}
	id := req.TaskID
	if id == "" {
		id = uuid.New().String()
	}
	return &models.Task{
		ID:           id,
		Kind:         models.TaskKindFix,
		Payload:      payload,
		RepositoryID: req.RepositoryID,
		Priority:     defaultTaskPriority,
		State:        models.TaskStatePending,
		EnqueuedAt:   time.Now(),
	}, nil
}
