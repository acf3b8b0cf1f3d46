package loop

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turbowrap/turbowrap/pkg/artifact"
	"github.com/turbowrap/turbowrap/pkg/config"
	"github.com/turbowrap/turbowrap/pkg/llm"
	"github.com/turbowrap/turbowrap/pkg/models"
	"github.com/turbowrap/turbowrap/pkg/store"
)

// scriptedInvoker replays canned responses per backend, in order.
type scriptedInvoker struct {
	primary    []scriptedResponse
	challenger []scriptedResponse
	pi, ci     int
}

type scriptedResponse struct {
	output string
	err    error
}

func (s *scriptedInvoker) Invoke(ctx context.Context, backend models.InvocationBackend, role, prompt string, opts llm.Options, sink llm.StreamSink) (*llm.Result, error) {
	if ctx.Err() != nil {
		return nil, &llm.Error{Kind: llm.ErrKindCanceled, Err: ctx.Err()}
	}
	var resp scriptedResponse
	switch backend {
	case models.BackendPrimary:
		if s.pi >= len(s.primary) {
			return nil, &llm.Error{Kind: llm.ErrKindUnavailable, Err: errors.New("primary script exhausted")}
		}
		resp = s.primary[s.pi]
		s.pi++
	default:
		if s.ci >= len(s.challenger) {
			return nil, &llm.Error{Kind: llm.ErrKindUnavailable, Err: errors.New("challenger script exhausted")}
		}
		resp = s.challenger[s.ci]
		s.ci++
	}
	if resp.err != nil {
		return nil, resp.err
	}
	return &llm.Result{Output: resp.output, Duration: time.Millisecond}, nil
}

func evalOutput(score int) string {
	return fmt.Sprintf(`{"satisfaction_score": %d, "feedback": "tighten it", "missed_issues": [], "challenges": []}`, score)
}

func repeat(resp scriptedResponse, n int) []scriptedResponse {
	out := make([]scriptedResponse, n)
	for i := range out {
		out[i] = resp
	}
	return out
}

func testSpec() Spec {
	return Spec{
		TaskID:         "task-1",
		Scope:          "reviewer_be_security",
		PrimaryRole:    "reviewer_be_security",
		ChallengerRole: "challenger",
		Prompts: Prompts{
			Initial: func() string { return "initial" },
			Refine: func(prev string, eval *ChallengerEval) string {
				return "refine: " + prev
			},
			Challenge: func(output string) string { return "challenge: " + output },
		},
	}
}

func testParams() Params {
	return ParamsFromConfig(*config.DefaultChallengerConfig())
}

func newTestEngine(inv llm.Invoker) (*Engine, *store.MemoryStore) {
	st := store.NewMemoryStore()
	recorder := artifact.NewRecorder(inv, artifact.NewMemorySink())
	return NewEngine(recorder, st, nil), st
}

func TestThresholdMetFirstIteration(t *testing.T) {
	inv := &scriptedInvoker{
		primary:    []scriptedResponse{{output: "result-1"}},
		challenger: []scriptedResponse{{output: evalOutput(55)}},
	}
	engine, st := newTestEngine(inv)

	result, err := engine.Run(context.Background(), testSpec(), testParams())
	require.NoError(t, err)
	assert.Equal(t, models.ConvergenceThresholdMet, result.Status)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, []int{55}, result.History)
	assert.Equal(t, "result-1", result.FinalOutput)

	runs, err := st.ListLoopRuns(context.Background(), "task-1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.ConvergenceThresholdMet, runs[0].Status)
	assert.Len(t, runs[0].Invocations, 2)
}

func TestForcedAcceptanceAtSoftCap(t *testing.T) {
	// Scores climb but stay below 50; at iteration 5 (soft cap) the score 45
	// clears the forced acceptance bar of 40.
	inv := &scriptedInvoker{
		primary: repeat(scriptedResponse{output: "result"}, 5),
		challenger: []scriptedResponse{
			{output: evalOutput(10)}, {output: evalOutput(20)}, {output: evalOutput(30)},
			{output: evalOutput(38)}, {output: evalOutput(45)},
		},
	}
	engine, _ := newTestEngine(inv)

	result, err := engine.Run(context.Background(), testSpec(), testParams())
	require.NoError(t, err)
	assert.Equal(t, models.ConvergenceForcedAcceptance, result.Status)
	assert.Equal(t, 5, result.Iterations)
}

func TestMaxIterationsBelowForcedAcceptance(t *testing.T) {
	inv := &scriptedInvoker{
		primary: repeat(scriptedResponse{output: "result"}, 5),
		challenger: []scriptedResponse{
			{output: evalOutput(5)}, {output: evalOutput(12)}, {output: evalOutput(20)},
			{output: evalOutput(28)}, {output: evalOutput(35)},
		},
	}
	engine, _ := newTestEngine(inv)

	result, err := engine.Run(context.Background(), testSpec(), testParams())
	require.NoError(t, err)
	assert.Equal(t, models.ConvergenceMaxIterations, result.Status)
	assert.Equal(t, 5, result.Iterations)
}

func TestStagnationExit(t *testing.T) {
	// Scores 30, 31, 32, 32: after iteration 4 the window {31,32,32} moves
	// by 1 < 2, so the loop stagnates at iteration 4.
	inv := &scriptedInvoker{
		primary: repeat(scriptedResponse{output: "result"}, 4),
		challenger: []scriptedResponse{
			{output: evalOutput(30)}, {output: evalOutput(31)},
			{output: evalOutput(32)}, {output: evalOutput(32)},
		},
	}
	engine, _ := newTestEngine(inv)

	result, err := engine.Run(context.Background(), testSpec(), testParams())
	require.NoError(t, err)
	assert.Equal(t, models.ConvergenceStagnated, result.Status)
	assert.Equal(t, 4, result.Iterations)
	assert.Equal(t, []int{30, 31, 32, 32}, result.History)
}

func TestHardCapClampsMisconfiguredMaxIterations(t *testing.T) {
	// maxIterations 50 with distinct climbing scores so neither threshold,
	// stagnation, nor soft cap fires before the hard cap.
	var evals []scriptedResponse
	for i := 0; i < 20; i++ {
		evals = append(evals, scriptedResponse{output: evalOutput(i * 2)})
	}
	inv := &scriptedInvoker{
		primary:    repeat(scriptedResponse{output: "result"}, 20),
		challenger: evals,
	}
	engine, _ := newTestEngine(inv)

	params := ParamsFromConfig(config.LoopConfig{
		SatisfactionThreshold:     50,
		MaxIterations:             50,
		AbsoluteMaxIterations:     50,
		MinImprovementThreshold:   2,
		StagnationWindow:          3,
		ForcedAcceptanceThreshold: 40,
	})
	require.Equal(t, 10, params.AbsoluteMaxIterations)

	result, err := engine.Run(context.Background(), testSpec(), params)
	require.NoError(t, err)
	assert.Equal(t, models.ConvergenceMaxIterations, result.Status)
	assert.LessOrEqual(t, result.Iterations, 10)
}

func TestChallengerFailureScoresZeroAndContinues(t *testing.T) {
	inv := &scriptedInvoker{
		primary: repeat(scriptedResponse{output: "result"}, 2),
		challenger: []scriptedResponse{
			{err: &llm.Error{Kind: llm.ErrKindUnavailable, Err: errors.New("down")}},
			{output: evalOutput(60)},
		},
	}
	engine, _ := newTestEngine(inv)

	result, err := engine.Run(context.Background(), testSpec(), testParams())
	require.NoError(t, err)
	assert.Equal(t, models.ConvergenceThresholdMet, result.Status)
	assert.Equal(t, []int{0, 60}, result.History)
}

func TestUnparseableEvaluationScoresZero(t *testing.T) {
	inv := &scriptedInvoker{
		primary: repeat(scriptedResponse{output: "result"}, 2),
		challenger: []scriptedResponse{
			{output: "I refuse to emit JSON today."},
			{output: evalOutput(75)},
		},
	}
	engine, _ := newTestEngine(inv)

	result, err := engine.Run(context.Background(), testSpec(), testParams())
	require.NoError(t, err)
	assert.Equal(t, models.ConvergenceThresholdMet, result.Status)
	assert.Equal(t, []int{0, 75}, result.History)
}

func TestPrimaryFailureTerminatesAsFailed(t *testing.T) {
	inv := &scriptedInvoker{
		primary: []scriptedResponse{
			{err: &llm.Error{Kind: llm.ErrKindTimeout, Err: errors.New("deadline")}},
		},
	}
	engine, st := newTestEngine(inv)

	result, err := engine.Run(context.Background(), testSpec(), testParams())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPrimaryFailed)
	assert.Equal(t, models.ConvergenceFailed, result.Status)

	runs, listErr := st.ListLoopRuns(context.Background(), "task-1")
	require.NoError(t, listErr)
	require.Len(t, runs, 1)
	assert.Equal(t, models.ConvergenceFailed, runs[0].Status)
}

func TestCancellationPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inv := &scriptedInvoker{
		primary:    repeat(scriptedResponse{output: "result"}, 3),
		challenger: repeat(scriptedResponse{output: evalOutput(10)}, 3),
	}
	engine, _ := newTestEngine(inv)

	result, err := engine.Run(ctx, testSpec(), testParams())
	require.Error(t, err)
	assert.True(t, llm.IsCanceled(err))
	assert.Equal(t, models.ConvergenceFailed, result.Status)
}

func TestScoreClampedToRange(t *testing.T) {
	inv := &scriptedInvoker{
		primary:    []scriptedResponse{{output: "result"}},
		challenger: []scriptedResponse{{output: evalOutput(150)}},
	}
	engine, _ := newTestEngine(inv)

	result, err := engine.Run(context.Background(), testSpec(), testParams())
	require.NoError(t, err)
	assert.Equal(t, 100, result.Run.Score)
}
