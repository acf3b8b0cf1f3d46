// Package checkpoint persists per-reviewer progress so an interrupted review
// can resume without repeating finished reviewers.
package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/turbowrap/turbowrap/pkg/models"
	"github.com/turbowrap/turbowrap/pkg/store"
)

// Manager saves and restores reviewer checkpoints through the store.
type Manager struct {
	store  store.Store
	logger *slog.Logger
}

// NewManager creates a checkpoint manager.
func NewManager(st store.Store) *Manager {
	return &Manager{store: st, logger: slog.With("component", "checkpoint")}
}

// Save persists one reviewer checkpoint. A completed checkpoint is final: a
// later save for the same reviewer that is not completed is rejected, so a
// crashed retry can never downgrade finished work.
func (m *Manager) Save(ctx context.Context, cp *models.Checkpoint) error {
	existing, err := m.store.LoadCheckpoints(ctx, cp.TaskID)
	if err != nil {
		return fmt.Errorf("load checkpoints for task %s: %w", cp.TaskID, err)
	}
	if prev, ok := existing[cp.Reviewer]; ok && prev.Completed && !cp.Completed {
		m.logger.Warn("Ignoring checkpoint downgrade for completed reviewer",
			"task_id", cp.TaskID, "reviewer", cp.Reviewer)
		return nil
	}

	cp.SavedAt = time.Now()
	if err := m.store.SaveCheckpoint(ctx, cp); err != nil {
		return fmt.Errorf("save checkpoint %s/%s: %w", cp.TaskID, cp.Reviewer, err)
	}
	m.logger.Debug("Checkpoint saved",
		"task_id", cp.TaskID, "reviewer", cp.Reviewer, "completed", cp.Completed, "issues", len(cp.Issues))
	return nil
}

// Load returns all checkpoints for a task, keyed by reviewer role. The map
// is empty, not nil, when the task has none.
func (m *Manager) Load(ctx context.Context, taskID string) (map[string]*models.Checkpoint, error) {
	cps, err := m.store.LoadCheckpoints(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoints for task %s: %w", taskID, err)
	}
	return cps, nil
}

// Clear removes all checkpoints for a task after its report is durable.
func (m *Manager) Clear(ctx context.Context, taskID string) error {
	if err := m.store.ClearCheckpoints(ctx, taskID); err != nil {
		return fmt.Errorf("clear checkpoints for task %s: %w", taskID, err)
	}
	m.logger.Debug("Checkpoints cleared", "task_id", taskID)
	return nil
}
