package models

import "time"

// Checkpoint is a per-reviewer completion snapshot. Written exactly once per
// reviewer per task, at the moment the reviewer's loop reaches a terminal
// convergence status. Presence means "skip this reviewer on resume and
// restore its issues verbatim". There is no partial-iteration checkpointing.
type Checkpoint struct {
	TaskID     string            `json:"task_id"`
	Reviewer   string            `json:"reviewer"`
	Completed  bool              `json:"completed"`
	Issues     []Issue           `json:"issues"`
	Score      int               `json:"score"`
	Iterations int               `json:"iterations"`
	Status     ConvergenceStatus `json:"status"`
	SavedAt    time.Time         `json:"saved_at"`
}
