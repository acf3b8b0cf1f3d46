package artifact

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turbowrap/turbowrap/pkg/llm"
	"github.com/turbowrap/turbowrap/pkg/models"
)

type fixedInvoker struct {
	result *llm.Result
	err    error
}

func (f *fixedInvoker) Invoke(context.Context, models.InvocationBackend, string, string, llm.Options, llm.StreamSink) (*llm.Result, error) {
	return f.result, f.err
}

// flakySink fails the first n puts, then delegates to a MemorySink.
type flakySink struct {
	*MemorySink
	failures int
}

func (s *flakySink) Put(ctx context.Context, key string, blob []byte) (Pointer, error) {
	if s.failures > 0 {
		s.failures--
		return "", errors.New("transient write failure")
	}
	return s.MemorySink.Put(ctx, key, blob)
}

func TestRecordStoresAllArtifacts(t *testing.T) {
	sink := NewMemorySink()
	r := NewRecorder(&fixedInvoker{result: &llm.Result{
		Output:   "the answer",
		Thinking: "the reasoning",
		Duration: time.Millisecond,
	}}, sink)

	inv, err := r.Record(context.Background(), "run-1", models.BackendPrimary, "reviewer_general", "the prompt", llm.Options{}, nil)
	require.NoError(t, err)
	require.NotNil(t, inv)
	require.NotNil(t, inv.CompletedAt)
	assert.Equal(t, "the answer", inv.Output)

	ctx := context.Background()
	for ref, want := range map[string]string{
		inv.PromptRef:   "the prompt",
		inv.OutputRef:   "the answer",
		inv.ThinkingRef: "the reasoning",
	} {
		require.NotEmpty(t, ref)
		blob, err := sink.Get(ctx, Pointer(ref))
		require.NoError(t, err)
		assert.Equal(t, want, string(blob))
	}
}

func TestRecordInvokerFailureReturnsInvocation(t *testing.T) {
	r := NewRecorder(&fixedInvoker{err: &llm.Error{
		Kind: llm.ErrKindInvalidOutput,
		Raw:  "half a reply",
		Err:  errors.New("bad output"),
	}}, NewMemorySink())

	inv, err := r.Record(context.Background(), "run-1", models.BackendChallenger, "challenger", "p", llm.Options{}, nil)
	require.Error(t, err)
	require.NotNil(t, inv, "failed invocations still produce a durable record")
	assert.NotEmpty(t, inv.Error)
	assert.Nil(t, inv.CompletedAt)
	assert.Equal(t, "half a reply", inv.Output, "raw output survives the failure")
	assert.NotEmpty(t, inv.OutputRef)
}

func TestRecordRetriesTransientSinkFailures(t *testing.T) {
	sink := &flakySink{MemorySink: NewMemorySink(), failures: 2}
	r := NewRecorder(&fixedInvoker{result: &llm.Result{Output: "ok"}}, sink)

	inv, err := r.Record(context.Background(), "run-1", models.BackendPrimary, "fixer", "p", llm.Options{}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, inv.PromptRef)
}

func TestRecordSinkExhaustionSurfacesUnavailable(t *testing.T) {
	sink := &flakySink{MemorySink: NewMemorySink(), failures: 100}
	r := NewRecorder(&fixedInvoker{result: &llm.Result{Output: "ok"}}, sink)

	inv, err := r.Record(context.Background(), "run-1", models.BackendPrimary, "fixer", "p", llm.Options{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	require.NotNil(t, inv)
	assert.Nil(t, inv.CompletedAt, "invocation never completes without durable artifacts")
}
