package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/turbowrap/turbowrap/pkg/aggregate"
	"github.com/turbowrap/turbowrap/pkg/artifact"
	"github.com/turbowrap/turbowrap/pkg/checkpoint"
	"github.com/turbowrap/turbowrap/pkg/config"
	"github.com/turbowrap/turbowrap/pkg/llm"
	"github.com/turbowrap/turbowrap/pkg/loop"
	"github.com/turbowrap/turbowrap/pkg/models"
	"github.com/turbowrap/turbowrap/pkg/prompt"
	"github.com/turbowrap/turbowrap/pkg/store"
)

// reviewerOutcome collects one reviewer's terminal state before aggregation.
type reviewerOutcome struct {
	role           prompt.Role
	issues         []models.Issue
	score          int
	history        []int
	iterations     int
	status         models.ConvergenceStatus
	fromCheckpoint bool
	err            error
}

// Orchestrator runs reviews end to end: context materialization, repo
// typing, reviewer fan-out through the challenger loop, aggregation, and
// final report assembly.
type Orchestrator struct {
	cfg         *config.Config
	engine      *loop.Engine
	recorder    *artifact.Recorder
	checkpoints *checkpoint.Manager
	store       store.Store
	prompts     *prompt.Builder
	logger      *slog.Logger
}

// NewOrchestrator creates a review orchestrator.
func NewOrchestrator(cfg *config.Config, engine *loop.Engine, recorder *artifact.Recorder, cpm *checkpoint.Manager, st store.Store) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		engine:      engine,
		recorder:    recorder,
		checkpoints: cpm,
		store:       st,
		prompts:     prompt.NewBuilder(),
		logger:      slog.With("component", "review_orchestrator"),
	}
}

// Review runs one review request to a durable FinalReport. A reviewer
// failure (non-cancel) marks the report partial and the review proceeds with
// the remaining reviewers; cancellation aborts everything.
func (o *Orchestrator) Review(ctx context.Context, taskID string, req *models.ReviewRequest) (*models.FinalReport, error) {
	if o.cfg.Timeouts.Request > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeouts.Request)
		defer cancel()
	}
	logger := o.logger.With("task_id", taskID)

	repoCtx, err := MaterializeContext(req.Source, req.WorkspacePath)
	if err != nil {
		return nil, fmt.Errorf("materialize review context: %w", err)
	}
	repoType := DetectRepoType(repoCtx.Files)
	roles := SelectReviewers(repoType, req.Options.IncludeFunctional)
	logger.Info("Review planned", "repo_type", repoType, "reviewers", len(roles), "files", len(repoCtx.Files))

	saved, err := o.checkpoints.Load(ctx, taskID)
	if err != nil {
		return nil, err
	}

	outcomes := o.runReviewers(ctx, taskID, req, repoCtx, repoType, roles, saved)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	report := o.assemble(taskID, req, repoType, roles, outcomes)
	o.appendAssessment(ctx, report)

	if err := o.store.SaveFinalReport(ctx, report); err != nil {
		return nil, fmt.Errorf("persist final report: %w", err)
	}
	// Checkpoints have served their purpose once the report is durable.
	if err := o.checkpoints.Clear(ctx, taskID); err != nil {
		logger.Warn("Failed to clear checkpoints", "error", err)
	}
	logger.Info("Review completed",
		"report_id", report.ID, "issues", len(report.Issues),
		"score", report.OverallScore, "recommendation", report.Recommendation,
		"partial", report.Partial)
	return report, nil
}

// runReviewers fans reviewers out up to the configured concurrency limit.
// Checkpointed reviewers are restored without re-invocation.
func (o *Orchestrator) runReviewers(ctx context.Context, taskID string, req *models.ReviewRequest, repoCtx *RepoContext, repoType models.RepoType, roles []prompt.Role, saved map[string]*models.Checkpoint) []reviewerOutcome {
	outcomes := make([]reviewerOutcome, len(roles))

	limit := o.cfg.Concurrency.MaxReviewersInFlight
	if limit < 1 {
		limit = 1
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i, role := range roles {
		if cp, ok := saved[string(role)]; ok && cp.Completed {
			outcomes[i] = reviewerOutcome{
				role:           role,
				issues:         models.CloneIssues(cp.Issues),
				score:          cp.Score,
				iterations:     cp.Iterations,
				status:         cp.Status,
				fromCheckpoint: true,
			}
			o.logger.Info("Reviewer restored from checkpoint", "task_id", taskID, "reviewer", role)
			continue
		}

		wg.Add(1)
		go func(i int, role prompt.Role) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				outcomes[i] = reviewerOutcome{role: role, status: models.ConvergenceFailed, err: ctx.Err()}
				return
			}
			outcomes[i] = o.runReviewer(ctx, taskID, req, repoCtx, repoType, role)
		}(i, role)
	}
	wg.Wait()
	return outcomes
}

// runReviewer executes one reviewer's challenger loop and checkpoints the
// terminal result.
func (o *Orchestrator) runReviewer(ctx context.Context, taskID string, req *models.ReviewRequest, repoCtx *RepoContext, repoType models.RepoType, role prompt.Role) reviewerOutcome {
	if o.cfg.Timeouts.Reviewer > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeouts.Reviewer)
		defer cancel()
	}

	outcome := reviewerOutcome{role: role}

	var result *loop.Result
	var err error
	if req.Options.ChallengerEnabled != nil && !*req.Options.ChallengerEnabled {
		result, err = o.singleShot(ctx, taskID, repoCtx, repoType, role)
	} else {
		result, err = o.challengerLoop(ctx, taskID, req, repoCtx, repoType, role)
	}
	if result != nil {
		outcome.score = result.Run.Score
		outcome.history = result.History
		outcome.iterations = result.Iterations
		outcome.status = result.Status
	}
	if err != nil {
		outcome.err = err
		if outcome.status == "" {
			outcome.status = models.ConvergenceFailed
		}
		o.logger.Error("Reviewer failed", "task_id", taskID, "reviewer", role, "error", err)
		return outcome
	}

	issues, parseErr := ParseIssues(result.FinalOutput, string(role))
	if parseErr != nil {
		outcome.err = parseErr
		outcome.status = models.ConvergenceFailed
		o.logger.Error("Reviewer output unparseable", "task_id", taskID, "reviewer", role, "error", parseErr)
		return outcome
	}
	outcome.issues = issues

	cp := &models.Checkpoint{
		TaskID:     taskID,
		Reviewer:   string(role),
		Completed:  true,
		Issues:     models.CloneIssues(issues),
		Score:      outcome.score,
		Iterations: outcome.iterations,
		Status:     outcome.status,
	}
	if err := o.checkpoints.Save(ctx, cp); err != nil {
		o.logger.Warn("Failed to save reviewer checkpoint", "task_id", taskID, "reviewer", role, "error", err)
	}
	return outcome
}

func (o *Orchestrator) challengerLoop(ctx context.Context, taskID string, req *models.ReviewRequest, repoCtx *RepoContext, repoType models.RepoType, role prompt.Role) (*loop.Result, error) {
	params := loop.ParamsFromConfig(o.cfg.ReviewLoop(req.Options.SatisfactionThreshold, req.Options.MaxIterations))
	spec := loop.Spec{
		TaskID:         taskID,
		Scope:          string(role),
		PrimaryRole:    string(role),
		ChallengerRole: string(prompt.RoleChallenger),
		Prompts: loop.Prompts{
			Initial: func() string {
				return o.prompts.ReviewerInitial(role, string(repoType), repoCtx.PromptContext(), req.WorkspacePath)
			},
			Refine: func(prev string, eval *loop.ChallengerEval) string {
				var feedback string
				var missed, challenges []string
				if eval != nil {
					feedback = eval.Feedback
					missed = eval.MissedIssues
					challenges = eval.Challenges
				}
				return o.prompts.ReviewerRefine(role, prev, feedback, missed, challenges)
			},
			Challenge: func(output string) string {
				return o.prompts.ReviewChallenge(role, output)
			},
		},
		PrimaryOpts:    o.primaryOpts(),
		ChallengerOpts: o.challengerOpts(),
	}
	return o.engine.Run(ctx, spec, params)
}

// singleShot runs the primary once with no challenger, for requests that
// disable validation. The result is accepted as-is.
func (o *Orchestrator) singleShot(ctx context.Context, taskID string, repoCtx *RepoContext, repoType models.RepoType, role prompt.Role) (*loop.Result, error) {
	runID := uuid.New().String()
	promptText := o.prompts.ReviewerInitial(role, string(repoType), repoCtx.PromptContext(), "")
	inv, err := o.recorder.Record(ctx, runID, models.BackendPrimary, string(role), promptText, o.primaryOpts(), nil)

	now := time.Now()
	run := &models.LoopRun{
		ID:          runID,
		TaskID:      taskID,
		Scope:       string(role),
		Iterations:  1,
		Invocations: []models.Invocation{*inv},
		StartedAt:   inv.StartedAt,
		CompletedAt: &now,
	}
	if err != nil {
		run.Status = models.ConvergenceFailed
	} else {
		run.Status = models.ConvergenceThresholdMet
	}
	if saveErr := o.store.SaveLoopRun(ctx, run); saveErr != nil {
		o.logger.Error("Failed to persist loop run", "run_id", runID, "error", saveErr)
	}
	if err != nil {
		return &loop.Result{Status: run.Status, Iterations: 1, Run: run}, err
	}
	return &loop.Result{
		Status:      run.Status,
		FinalOutput: inv.Output,
		Iterations:  1,
		Run:         run,
	}, nil
}

// assemble builds the final report from reviewer outcomes.
func (o *Orchestrator) assemble(taskID string, req *models.ReviewRequest, repoType models.RepoType, roles []prompt.Role, outcomes []reviewerOutcome) *models.FinalReport {
	var all []models.Issue
	summaries := make([]models.ReviewerSummary, 0, len(roles))
	partial := false

	for _, oc := range outcomes {
		summary := models.ReviewerSummary{
			Reviewer:       string(oc.role),
			Status:         oc.status,
			Score:          oc.score,
			ScoreHistory:   oc.history,
			Iterations:     oc.iterations,
			IssueCount:     len(oc.issues),
			FromCheckpoint: oc.fromCheckpoint,
		}
		if oc.err != nil {
			summary.Error = oc.err.Error()
			partial = true
		}
		summaries = append(summaries, summary)
		all = append(all, oc.issues...)
	}

	issues := aggregate.Run(all)
	report := &models.FinalReport{
		ID:             uuid.New().String(),
		TaskID:         taskID,
		Timestamp:      time.Now(),
		Repository:     repositoryLabel(req),
		RepoType:       repoType,
		Reviewers:      summaries,
		Issues:         issues,
		SeverityCounts: aggregate.SeverityCounts(issues),
		OverallScore:   aggregate.OverallScore(issues),
		Recommendation: aggregate.Recommend(issues),
		NextSteps:      nextSteps(issues),
		Partial:        partial,
	}
	return report
}

// appendAssessment runs the single-shot evaluator over the aggregated
// report. Failures only cost the assessment text.
func (o *Orchestrator) appendAssessment(ctx context.Context, report *models.FinalReport) {
	if len(report.Issues) == 0 || ctx.Err() != nil {
		return
	}
	blob, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return
	}
	inv, err := o.recorder.Record(ctx, report.ID, models.BackendPrimary, string(prompt.RoleEvaluator), o.prompts.Evaluate(string(blob)), o.primaryOpts(), nil)
	if err != nil {
		o.logger.Warn("Evaluator failed, report ships without assessment", "report_id", report.ID, "error", err)
		return
	}
	report.Assessment = inv.Output
}

// nextSteps derives concrete follow-ups from the issue mix.
func nextSteps(issues []models.Issue) []string {
	counts := aggregate.SeverityCounts(issues)
	var steps []string
	if counts[models.SeverityCritical] > 0 {
		steps = append(steps, fmt.Sprintf("Resolve the %d critical issue(s) before merging.", counts[models.SeverityCritical]))
	}
	if counts[models.SeverityHigh] > 0 {
		steps = append(steps, fmt.Sprintf("Address the %d high-severity issue(s).", counts[models.SeverityHigh]))
	}
	byCategory := make(map[models.Category]int)
	for i := range issues {
		byCategory[issues[i].Category]++
	}
	if byCategory[models.CategoryTesting] > 0 {
		steps = append(steps, "Close the flagged test coverage gaps.")
	}
	if byCategory[models.CategorySecurity] > 0 {
		steps = append(steps, "Schedule a focused security pass over the flagged areas.")
	}
	return steps
}

func repositoryLabel(req *models.ReviewRequest) string {
	switch {
	case req.Source.Dir != "":
		return req.Source.Dir
	case req.Source.PRURL != "":
		return req.Source.PRURL
	case req.Source.Commit != "":
		return req.Source.Commit
	default:
		return fmt.Sprintf("%d files", len(req.Source.Files))
	}
}

func (o *Orchestrator) primaryOpts() llm.Options {
	return llm.Options{
		Model:                o.cfg.Backends.Primary.Model,
		ThinkingBudgetTokens: o.cfg.Thinking.BudgetTokens,
		Timeout:              o.cfg.Timeouts.Invocation,
		Structured:           true,
	}
}

func (o *Orchestrator) challengerOpts() llm.Options {
	return llm.Options{
		Model:      o.cfg.Backends.Challenger.Model,
		Timeout:    o.cfg.Timeouts.Invocation,
		Structured: true,
	}
}
