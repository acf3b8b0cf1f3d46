package models

import "time"

// InvocationBackend identifies which LLM backend an invocation targets.
type InvocationBackend string

const (
	BackendPrimary    InvocationBackend = "primary"
	BackendChallenger InvocationBackend = "challenger"
)

// Invocation records a single call to one LLM backend. Immutable after
// completion; raw blobs live in the artifact sink, referenced by pointer.
type Invocation struct {
	ID            string            `json:"id"`
	RunID         string            `json:"run_id"`
	Backend       InvocationBackend `json:"backend"`
	Role          string            `json:"role"`
	Prompt        string            `json:"-"`
	Output        string            `json:"-"`
	Thinking      string            `json:"-"`
	PromptRef     string            `json:"prompt_ref,omitempty"`
	OutputRef     string            `json:"output_ref,omitempty"`
	ThinkingRef   string            `json:"thinking_ref,omitempty"`
	Duration      time.Duration     `json:"duration_ns"`
	TokenEstimate int               `json:"token_estimate"`
	StartedAt     time.Time         `json:"started_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// Complete marks the invocation finished. Artifacts must already be written.
func (inv *Invocation) Complete(at time.Time) {
	t := at
	inv.CompletedAt = &t
	inv.Duration = at.Sub(inv.StartedAt)
}

// LoopRun is one end-to-end challenger loop for a single reviewer or one fix
// batch. It owns its invocations; terminal when Status is anything but
// running.
type LoopRun struct {
	ID          string            `json:"id"`
	TaskID      string            `json:"task_id"`
	Scope       string            `json:"scope"` // reviewer name or batch id
	Iterations  int               `json:"iterations"`
	Invocations []Invocation      `json:"invocations,omitempty"`
	Score       int               `json:"score"`
	History     []int             `json:"history"`
	Status      ConvergenceStatus `json:"status"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}
