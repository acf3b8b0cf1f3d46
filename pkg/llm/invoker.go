package llm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/turbowrap/turbowrap/pkg/models"
)

// Chunk is a streamed fragment of backend output.
type Chunk struct {
	Content    string
	IsThinking bool
}

// StreamSink receives chunks as they arrive. May be nil when the caller does
// not care about progress. Implementations must be safe for use from the
// invoker's goroutine.
type StreamSink func(Chunk)

// Options tunes one invocation.
type Options struct {
	// Model overrides the backend's configured model when non-empty.
	Model string

	// ThinkingBudgetTokens is the extended-thinking budget hint.
	ThinkingBudgetTokens int

	// Timeout bounds the invocation. Zero means the invoker's default.
	Timeout time.Duration

	// Structured hints that the role expects a JSON payload; the invoker
	// attempts extraction and repair on the raw output.
	Structured bool
}

// Result is the outcome of one invocation. Output is always the raw textual
// output unchanged; Structured is set only when extraction succeeded.
type Result struct {
	Output        string
	Thinking      string
	Structured    json.RawMessage
	Duration      time.Duration
	TokenEstimate int
}

// Invoker is the uniform capability for calling an LLM backend. backend
// selects primary or challenger; role is a free-form identifier such as
// "reviewer_be_architecture", "fixer", or "fix_challenger".
//
// Implementations stream chunks to sink as they arrive and must return the
// raw output unchanged so the parser can do its repair work. Errors carry an
// ErrorKind: timeout, unavailable, invalid output, or canceled.
type Invoker interface {
	Invoke(ctx context.Context, backend models.InvocationBackend, role, prompt string, opts Options, sink StreamSink) (*Result, error)
}

// estimateTokens is a rough chars/4 heuristic used when the backend reports
// no usage.
func estimateTokens(prompt, output string) int {
	return (len(prompt) + len(output)) / 4
}
