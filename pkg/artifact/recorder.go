package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/turbowrap/turbowrap/pkg/llm"
	"github.com/turbowrap/turbowrap/pkg/models"
)

// putRetries and putBackoff implement the best-effort retry policy for sink
// writes before surfacing unavailability.
const (
	putRetries = 3
	putBackoff = 200 * time.Millisecond
)

// Recorder wraps an Invoker and persists prompt, output, and thinking blobs
// per invocation. Artifacts are written to the sink BEFORE the invocation is
// marked complete, so a crash mid-flight leaves either nothing or complete
// artifacts.
type Recorder struct {
	inner llm.Invoker
	sink  Sink
}

// NewRecorder creates a recording invoker.
func NewRecorder(inner llm.Invoker, sink Sink) *Recorder {
	return &Recorder{inner: inner, sink: sink}
}

// Record runs one invocation and returns its full record. On invocation
// failure the error is stored on the returned Invocation and also returned,
// so the loop engine can keep a durable trace of failed iterations.
func (r *Recorder) Record(ctx context.Context, runID string, backend models.InvocationBackend, role, prompt string, opts llm.Options, sink llm.StreamSink) (*models.Invocation, error) {
	inv := &models.Invocation{
		ID:        uuid.New().String(),
		RunID:     runID,
		Backend:   backend,
		Role:      role,
		Prompt:    prompt,
		StartedAt: time.Now(),
	}

	promptRef, err := r.put(ctx, fmt.Sprintf("%s/%s/prompt", runID, inv.ID), []byte(prompt))
	if err != nil {
		inv.Error = err.Error()
		return inv, err
	}
	inv.PromptRef = string(promptRef)

	result, invokeErr := r.inner.Invoke(ctx, backend, role, prompt, opts, sink)
	if invokeErr != nil {
		inv.Error = invokeErr.Error()
		// Preserve whatever raw output the backend produced before failing.
		if lerr, ok := invokeErr.(*llm.Error); ok && lerr.Raw != "" {
			if ref, perr := r.put(ctx, fmt.Sprintf("%s/%s/output", runID, inv.ID), []byte(lerr.Raw)); perr == nil {
				inv.OutputRef = string(ref)
				inv.Output = lerr.Raw
			}
		}
		return inv, invokeErr
	}

	inv.Output = result.Output
	inv.Thinking = result.Thinking
	inv.TokenEstimate = result.TokenEstimate

	outputRef, err := r.put(ctx, fmt.Sprintf("%s/%s/output", runID, inv.ID), []byte(result.Output))
	if err != nil {
		inv.Error = err.Error()
		return inv, err
	}
	inv.OutputRef = string(outputRef)

	if result.Thinking != "" {
		thinkingRef, err := r.put(ctx, fmt.Sprintf("%s/%s/thinking", runID, inv.ID), []byte(result.Thinking))
		if err != nil {
			inv.Error = err.Error()
			return inv, err
		}
		inv.ThinkingRef = string(thinkingRef)
	}

	// All artifacts durable: now, and only now, the invocation completes.
	inv.Complete(time.Now())
	return inv, nil
}

// Structured exposes the wrapped invoker for callers that need raw access.
func (r *Recorder) Invoker() llm.Invoker {
	return r.inner
}

// put writes one blob with short-backoff retries.
func (r *Recorder) put(ctx context.Context, key string, blob []byte) (Pointer, error) {
	var lastErr error
	for attempt := 0; attempt < putRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(putBackoff):
			}
		}
		ptr, err := r.sink.Put(ctx, key, blob)
		if err == nil {
			return ptr, nil
		}
		lastErr = err
		slog.Warn("Artifact write failed, retrying", "key", key, "attempt", attempt+1, "error", err)
	}
	return "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}
