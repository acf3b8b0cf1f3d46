// Package loop implements the challenger loop: a primary backend produces or
// refines a result, a challenger backend scores it, and the loop iterates
// until the score satisfies the threshold or a stop rule fires.
package loop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/turbowrap/turbowrap/pkg/artifact"
	"github.com/turbowrap/turbowrap/pkg/config"
	"github.com/turbowrap/turbowrap/pkg/llm"
	"github.com/turbowrap/turbowrap/pkg/metrics"
	"github.com/turbowrap/turbowrap/pkg/models"
	"github.com/turbowrap/turbowrap/pkg/store"
)

// ErrPrimaryFailed wraps a primary-backend failure that terminated a loop.
var ErrPrimaryFailed = errors.New("primary invocation failed")

// ChallengerEval is the structured verdict the challenger must return.
type ChallengerEval struct {
	SatisfactionScore int      `json:"satisfaction_score"`
	Feedback          string   `json:"feedback"`
	MissedIssues      []string `json:"missed_issues"`
	Challenges        []string `json:"challenges"`
}

// Params are the stop rules for one loop, derived from config.
type Params struct {
	SatisfactionThreshold     int
	MaxIterations             int
	AbsoluteMaxIterations     int
	MinImprovementThreshold   int
	StagnationWindow          int
	ForcedAcceptanceThreshold int
}

// ParamsFromConfig maps a validated LoopConfig onto engine parameters. The
// absolute cap is clamped once more here so a hand-built config cannot run
// away either.
func ParamsFromConfig(lc config.LoopConfig) Params {
	abs := lc.AbsoluteMaxIterations
	if abs <= 0 || abs > config.AbsoluteMaxIterationsCap {
		abs = config.AbsoluteMaxIterationsCap
	}
	return Params{
		SatisfactionThreshold:     lc.SatisfactionThreshold,
		MaxIterations:             lc.MaxIterations,
		AbsoluteMaxIterations:     abs,
		MinImprovementThreshold:   lc.MinImprovementThreshold,
		StagnationWindow:          lc.StagnationWindow,
		ForcedAcceptanceThreshold: lc.ForcedAcceptanceThreshold,
	}
}

// Prompts supplies the three prompt builders a loop needs.
type Prompts struct {
	// Initial builds the iteration-1 primary prompt.
	Initial func() string
	// Refine builds later primary prompts from the previous output and the
	// challenger's feedback on it.
	Refine func(prevOutput string, eval *ChallengerEval) string
	// Challenge builds the challenger prompt from the primary's output.
	Challenge func(primaryOutput string) string
}

// Spec identifies one loop run and its invocation plumbing.
type Spec struct {
	TaskID         string
	Scope          string // e.g. "reviewer_be_security" or "fix_batch_2"
	PrimaryRole    string
	ChallengerRole string
	Prompts        Prompts
	PrimaryOpts    llm.Options
	ChallengerOpts llm.Options
	Stream         llm.StreamSink // may be nil
}

// Result is what a finished loop hands back to its orchestrator.
type Result struct {
	Status      models.ConvergenceStatus
	FinalOutput string
	LastEval    *ChallengerEval
	History     []int
	Iterations  int
	Run         *models.LoopRun
}

// Engine runs challenger loops. All invocations go through the artifact
// recorder so each iteration is durable before the next one starts.
type Engine struct {
	recorder *artifact.Recorder
	store    store.Store
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewEngine creates a loop engine. The metrics argument may be nil.
func NewEngine(recorder *artifact.Recorder, st store.Store, m *metrics.Metrics) *Engine {
	return &Engine{
		recorder: recorder,
		store:    st,
		metrics:  m,
		logger:   slog.With("component", "loop_engine"),
	}
}

// Run executes one challenger loop to a terminal convergence status.
//
// Failure policy: a primary failure terminates the loop as Failed and the
// error propagates. A challenger failure (including unparseable evaluations)
// scores the iteration 0 and the loop continues; the primary's work is not
// discarded because the judge stumbled. Cancellation propagates immediately.
func (e *Engine) Run(ctx context.Context, spec Spec, params Params) (*Result, error) {
	run := &models.LoopRun{
		ID:        uuid.New().String(),
		TaskID:    spec.TaskID,
		Scope:     spec.Scope,
		Status:    models.ConvergenceRunning,
		StartedAt: time.Now(),
	}
	logger := e.logger.With("run_id", run.ID, "scope", spec.Scope)

	var (
		lastOutput string
		lastEval   *ChallengerEval
	)

	for {
		run.Iterations++
		iteration := run.Iterations
		if iteration > params.AbsoluteMaxIterations {
			// Safety net; the in-loop exits below normally fire first.
			run.Iterations = params.AbsoluteMaxIterations
			return e.finish(ctx, run, models.ConvergenceMaxIterations, lastOutput, lastEval, nil)
		}
		e.metrics.LoopIteration(spec.Scope)

		var prompt string
		if iteration == 1 {
			prompt = spec.Prompts.Initial()
		} else {
			prompt = spec.Prompts.Refine(lastOutput, lastEval)
		}

		inv, err := e.recorder.Record(ctx, run.ID, models.BackendPrimary, spec.PrimaryRole, prompt, spec.PrimaryOpts, spec.Stream)
		run.Invocations = append(run.Invocations, *inv)
		if err != nil {
			if llm.IsCanceled(err) || ctx.Err() != nil {
				return e.finish(ctx, run, models.ConvergenceFailed, lastOutput, lastEval, err)
			}
			logger.Error("Primary invocation failed", "iteration", iteration, "error", err)
			return e.finish(ctx, run, models.ConvergenceFailed, lastOutput, lastEval,
				fmt.Errorf("%w: iteration %d: %v", ErrPrimaryFailed, iteration, err))
		}
		lastOutput = inv.Output

		score, eval, challengerErr := e.challenge(ctx, run, spec, lastOutput)
		if challengerErr != nil {
			if llm.IsCanceled(challengerErr) || ctx.Err() != nil {
				return e.finish(ctx, run, models.ConvergenceFailed, lastOutput, lastEval, challengerErr)
			}
			logger.Warn("Challenger failed, scoring iteration 0", "iteration", iteration, "error", challengerErr)
			score, eval = 0, nil
		}
		if eval != nil {
			lastEval = eval
		}

		run.History = append(run.History, score)
		run.Score = score
		e.persist(ctx, run, logger)
		logger.Info("Iteration scored", "iteration", iteration, "score", score)

		// Convergence tests, strictly in this order.
		if score >= params.SatisfactionThreshold {
			return e.finish(ctx, run, models.ConvergenceThresholdMet, lastOutput, lastEval, nil)
		}
		if iteration >= params.MaxIterations {
			if score >= params.ForcedAcceptanceThreshold {
				return e.finish(ctx, run, models.ConvergenceForcedAcceptance, lastOutput, lastEval, nil)
			}
			return e.finish(ctx, run, models.ConvergenceMaxIterations, lastOutput, lastEval, nil)
		}
		if stagnated(run.History, params.StagnationWindow, params.MinImprovementThreshold) {
			return e.finish(ctx, run, models.ConvergenceStagnated, lastOutput, lastEval, nil)
		}
	}
}

// challenge runs the challenger invocation and parses its evaluation.
func (e *Engine) challenge(ctx context.Context, run *models.LoopRun, spec Spec, primaryOutput string) (int, *ChallengerEval, error) {
	prompt := spec.Prompts.Challenge(primaryOutput)
	inv, err := e.recorder.Record(ctx, run.ID, models.BackendChallenger, spec.ChallengerRole, prompt, spec.ChallengerOpts, spec.Stream)
	run.Invocations = append(run.Invocations, *inv)
	if err != nil {
		return 0, nil, err
	}

	raw, err := llm.ExtractJSON(inv.Output)
	if err != nil {
		return 0, nil, err
	}
	var eval ChallengerEval
	if err := json.Unmarshal(raw, &eval); err != nil {
		return 0, nil, &llm.Error{Kind: llm.ErrKindInvalidOutput, Raw: inv.Output, Err: err}
	}

	if eval.SatisfactionScore < 0 {
		eval.SatisfactionScore = 0
	}
	if eval.SatisfactionScore > 100 {
		eval.SatisfactionScore = 100
	}
	return eval.SatisfactionScore, &eval, nil
}

// finish stamps the terminal status, persists the run, and assembles the
// result. On a Failed run the error is returned alongside the run so the
// caller keeps the durable trace.
func (e *Engine) finish(ctx context.Context, run *models.LoopRun, status models.ConvergenceStatus, finalOutput string, lastEval *ChallengerEval, cause error) (*Result, error) {
	now := time.Now()
	run.Status = status
	run.CompletedAt = &now
	e.persist(ctx, run, e.logger.With("run_id", run.ID))
	e.metrics.LoopFinished(run.Scope, string(status), run.Score)

	e.logger.Info("Loop finished",
		"run_id", run.ID, "scope", run.Scope, "status", status,
		"iterations", run.Iterations, "score", run.Score)

	result := &Result{
		Status:      status,
		FinalOutput: finalOutput,
		LastEval:    lastEval,
		History:     append([]int(nil), run.History...),
		Iterations:  run.Iterations,
		Run:         run,
	}
	return result, cause
}

// persist saves the run, tolerating a dead task context so a canceled loop
// still leaves its trace.
func (e *Engine) persist(ctx context.Context, run *models.LoopRun, logger *slog.Logger) {
	saveCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		saveCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
	}
	if err := e.store.SaveLoopRun(saveCtx, run); err != nil {
		logger.Error("Failed to persist loop run", "error", err)
	}
}

// stagnated reports whether the last window of scores moved less than the
// improvement threshold.
func stagnated(history []int, window, minImprovement int) bool {
	if window < 2 || len(history) < window {
		return false
	}
	recent := history[len(history)-window:]
	lo, hi := recent[0], recent[0]
	for _, s := range recent[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	return hi-lo < minImprovement
}
