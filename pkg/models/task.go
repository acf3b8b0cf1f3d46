package models

import (
	"encoding/json"
	"time"
)

// Task is a unit of work on the queue. Lifecycle: pending → in_queue →
// processing → completed/failed. A processing task whose start time is older
// than the configured zombie age is subject to requeue or terminal failure.
type Task struct {
	ID                  string          `json:"id"`
	Kind                TaskKind        `json:"kind"`
	Payload             json.RawMessage `json:"payload,omitempty"`
	RepositoryID        string          `json:"repository_id,omitempty"`
	Priority            int             `json:"priority"`
	State               TaskState       `json:"state"`
	EnqueuedAt          time.Time       `json:"enqueued_at"`
	ProcessingStartedAt *time.Time      `json:"processing_started_at,omitempty"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
	Attempts            int             `json:"attempts"`
	ErrorMessage        string          `json:"error_message,omitempty"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	if t.ProcessingStartedAt != nil {
		v := *t.ProcessingStartedAt
		c.ProcessingStartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	c.Payload = append(json.RawMessage(nil), t.Payload...)
	return &c
}
