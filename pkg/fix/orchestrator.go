package fix

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/turbowrap/turbowrap/pkg/config"
	"github.com/turbowrap/turbowrap/pkg/git"
	"github.com/turbowrap/turbowrap/pkg/llm"
	"github.com/turbowrap/turbowrap/pkg/loop"
	"github.com/turbowrap/turbowrap/pkg/models"
	"github.com/turbowrap/turbowrap/pkg/prompt"
	"github.com/turbowrap/turbowrap/pkg/store"
)

// Failure kinds reported on FixReport.
const (
	FailureScopeViolation = "workspace_scope_violation"
	FailureGit            = "git_failure"
	FailureCanceled       = "canceled"
)

// maxBatchContextBytes caps the per-batch file excerpt context.
const maxBatchContextBytes = 128 * 1024

// GitFactory builds a git adapter for a repository directory. Injected so
// tests can substitute a fake.
type GitFactory func(dir string) git.Adapter

// Orchestrator runs fix requests: batching, per-batch challenger loops,
// scope enforcement, and the single atomic commit.
type Orchestrator struct {
	cfg     *config.Config
	engine  *loop.Engine
	store   store.Store
	prompts *prompt.Builder
	gitFor  GitFactory
	logger  *slog.Logger
}

// NewOrchestrator creates a fix orchestrator. A nil factory defaults to the
// git CLI adapter.
func NewOrchestrator(cfg *config.Config, engine *loop.Engine, st store.Store, gitFor GitFactory) *Orchestrator {
	if gitFor == nil {
		gitFor = func(dir string) git.Adapter { return git.NewCLIAdapter(dir) }
	}
	return &Orchestrator{
		cfg:     cfg,
		engine:  engine,
		store:   st,
		prompts: prompt.NewBuilder(),
		gitFor:  gitFor,
		logger:  slog.With("component", "fix_orchestrator"),
	}
}

// fixEdits is the structured payload the fixer must return.
type fixEdits struct {
	Edits []struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	} `json:"edits"`
	Notes string `json:"notes"`
}

// Fix runs one fix request to a durable FixReport. Either exactly one
// commit is created or the working tree is left unchanged.
func (o *Orchestrator) Fix(ctx context.Context, req *models.FixRequest) (*models.FixReport, error) {
	if o.cfg.Timeouts.Request > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeouts.Request)
		defer cancel()
	}
	logger := o.logger.With("task_id", req.TaskID, "repository", req.RepositoryID)

	report := &models.FixReport{
		ID:           uuid.New().String(),
		TaskID:       req.TaskID,
		RepositoryID: req.RepositoryID,
		Timestamp:    time.Now(),
	}

	batches := BuildBatches(req.Issues, o.cfg.Fix)
	logger.Info("Fix planned", "issues", len(req.Issues), "batches", len(batches))

	repo := o.gitFor(req.RepositoryID)
	branch := fmt.Sprintf("turbowrap/fix-%s", req.TaskID)
	if err := repo.CreateOrCheckoutBranch(ctx, branch); err != nil {
		report.FailureKind = FailureGit
		report.Error = err.Error()
		o.markAll(report, req.Issues, models.FixOutcomeFailed)
		return o.persist(ctx, report, err)
	}
	report.Branch = branch

	// Batches run serially: backend before frontend, and never two batches
	// mutating the tree at once.
	appliedPaths := make([]string, 0)
	applied := false
	for _, batch := range batches {
		if ctx.Err() != nil {
			o.markBatch(report, &batch, models.FixOutcomeSkipped, batch.ID)
			report.Batches = append(report.Batches, models.BatchResult{
				BatchID: batch.ID, Scope: batch.Scope, Status: models.ConvergenceFailed,
				Error: "canceled before start",
			})
			continue
		}
		result := o.runBatch(ctx, req, repo, &batch)
		report.Batches = append(report.Batches, result.batch)
		if result.applied {
			applied = true
			appliedPaths = append(appliedPaths, result.paths...)
			o.markBatch(report, &batch, models.FixOutcomeFixed, batch.ID)
		} else {
			o.markBatch(report, &batch, models.FixOutcomeFailed, batch.ID)
		}
	}

	// Workspace-scope validation covers every touched file; one violation
	// reverts everything.
	if violations := ScopeViolations(appliedPaths, req.WorkspacePath); len(violations) > 0 {
		logger.Warn("Workspace scope violated, reverting", "violations", violations)
		if err := repo.Revert(ctx); err != nil {
			logger.Error("Revert after scope violation failed", "error", err)
		}
		report.FailureKind = FailureScopeViolation
		report.Error = fmt.Sprintf("edits outside workspace %q: %s", req.WorkspacePath, strings.Join(violations, ", "))
		o.markAll(report, req.Issues, models.FixOutcomeFailed)
		return o.persist(ctx, report, nil)
	}

	if ctx.Err() != nil {
		// Cancellation mid-request: no partial commit survives.
		if applied {
			if err := repo.Revert(ctx); err != nil {
				logger.Error("Revert after cancellation failed", "error", err)
			}
		}
		report.FailureKind = FailureCanceled
		report.Error = ctx.Err().Error()
		return o.persist(ctx, report, ctx.Err())
	}

	if applied {
		commitID, err := repo.CommitAll(ctx, commitMessage(report))
		if err != nil {
			if revErr := repo.Revert(ctx); revErr != nil {
				logger.Error("Revert after commit failure failed", "error", revErr)
			}
			report.FailureKind = FailureGit
			report.Error = err.Error()
			o.markAll(report, req.Issues, models.FixOutcomeFailed)
			return o.persist(ctx, report, err)
		}
		report.CommitID = commitID
		logger.Info("Fix committed", "commit", commitID, "branch", branch)

		if req.Push {
			if err := repo.Push(ctx, branch); err != nil {
				// The commit stands; only publication failed.
				logger.Error("Push failed", "branch", branch, "error", err)
				report.Error = fmt.Sprintf("push failed: %v", err)
			} else {
				report.Pushed = true
			}
		}
	}

	return o.persist(ctx, report, nil)
}

// batchRun is the outcome of one batch's challenger loop.
type batchRun struct {
	batch   models.BatchResult
	applied bool
	paths   []string
}

// runBatch drives one batch through the fix challenger loop and applies its
// edits on acceptance. Acceptance is strict for fixes: only ThresholdMet and
// ForcedAcceptance apply; a stagnated or capped loop leaves the tree alone.
func (o *Orchestrator) runBatch(ctx context.Context, req *models.FixRequest, repo git.Adapter, batch *models.IssueBatch) batchRun {
	out := batchRun{batch: models.BatchResult{BatchID: batch.ID, Scope: batch.Scope}}

	repoContext := o.batchContext(req.RepositoryID, batch)
	spec := loop.Spec{
		TaskID:         req.TaskID,
		Scope:          batch.ID,
		PrimaryRole:    string(prompt.RoleFixer),
		ChallengerRole: string(prompt.RoleFixChallenger),
		Prompts: loop.Prompts{
			Initial: func() string {
				return o.prompts.FixerInitial(batch, repoContext, req.WorkspacePath)
			},
			Refine: func(prev string, eval *loop.ChallengerEval) string {
				var feedback string
				var challenges []string
				if eval != nil {
					feedback = eval.Feedback
					challenges = eval.Challenges
				}
				return o.prompts.FixerRefine(batch, prev, feedback, challenges)
			},
			Challenge: func(output string) string {
				return o.prompts.FixChallenge(batch, output)
			},
		},
		PrimaryOpts: llm.Options{
			Model:                o.cfg.Backends.Primary.Model,
			ThinkingBudgetTokens: o.cfg.Thinking.BudgetTokens,
			Timeout:              o.cfg.Timeouts.Invocation,
			Structured:           true,
		},
		ChallengerOpts: llm.Options{
			Model:      o.cfg.Backends.Challenger.Model,
			Timeout:    o.cfg.Timeouts.Invocation,
			Structured: true,
		},
	}

	result, err := o.engine.Run(ctx, spec, loop.ParamsFromConfig(o.cfg.FixLoop()))
	if result != nil {
		out.batch.Status = result.Status
		out.batch.Score = result.Run.Score
		out.batch.Iterations = result.Iterations
	}
	if err != nil {
		out.batch.Error = err.Error()
		return out
	}
	if result.Status != models.ConvergenceThresholdMet && result.Status != models.ConvergenceForcedAcceptance {
		out.batch.Error = fmt.Sprintf("loop ended %s below acceptance", result.Status)
		return out
	}

	edits, err := parseEdits(result.FinalOutput)
	if err != nil {
		out.batch.Error = err.Error()
		return out
	}
	if len(edits) == 0 {
		out.batch.Error = "accepted result contained no edits"
		return out
	}

	if err := repo.ApplyEdits(ctx, edits); err != nil {
		out.batch.Error = err.Error()
		return out
	}
	for p := range edits {
		out.paths = append(out.paths, p)
	}
	out.applied = true
	out.batch.Applied = true
	o.logger.Info("Batch applied", "batch", batch.ID, "files", len(edits), "score", out.batch.Score)
	return out
}

// parseEdits recovers the edit map from the fixer's raw output.
func parseEdits(output string) (map[string]string, error) {
	raw, err := llm.ExtractJSON(output)
	if err != nil {
		return nil, err
	}
	var payload fixEdits
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &llm.Error{Kind: llm.ErrKindInvalidOutput, Raw: output, Err: err}
	}
	edits := make(map[string]string, len(payload.Edits))
	for _, e := range payload.Edits {
		if e.Path == "" {
			continue
		}
		edits[strings.ReplaceAll(e.Path, "\\", "/")] = e.Content
	}
	return edits, nil
}

// batchContext reads the files the batch's issues point at, within budget.
func (o *Orchestrator) batchContext(repoDir string, batch *models.IssueBatch) string {
	var sb strings.Builder
	total := 0
	seen := map[string]bool{}
	for i := range batch.Issues {
		rel := batch.Issues[i].File
		if rel == "" || seen[rel] || total >= maxBatchContextBytes {
			continue
		}
		seen[rel] = true
		blob, err := os.ReadFile(filepath.Join(repoDir, filepath.FromSlash(rel)))
		if err != nil {
			continue
		}
		if total+len(blob) > maxBatchContextBytes {
			blob = blob[:maxBatchContextBytes-total]
		}
		fmt.Fprintf(&sb, "== %s ==\n%s\n\n", rel, blob)
		total += len(blob)
	}
	return sb.String()
}

// markBatch sets the outcome for every issue of a batch, appending the
// per-issue rows on first sight.
func (o *Orchestrator) markBatch(report *models.FixReport, batch *models.IssueBatch, outcome models.FixOutcome, batchID string) {
	for i := range batch.Issues {
		report.Issues = append(report.Issues, models.IssueResult{
			Issue:   batch.Issues[i].Clone(),
			BatchID: batchID,
			Outcome: outcome,
		})
	}
}

// markAll overwrites every issue outcome, used on request-level failures.
func (o *Orchestrator) markAll(report *models.FixReport, issues []models.Issue, outcome models.FixOutcome) {
	report.Issues = report.Issues[:0]
	for i := range issues {
		report.Issues = append(report.Issues, models.IssueResult{
			Issue:   issues[i].Clone(),
			Outcome: outcome,
		})
	}
}

func (o *Orchestrator) persist(ctx context.Context, report *models.FixReport, cause error) (*models.FixReport, error) {
	saveCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		saveCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
	}
	if err := o.store.SaveFixReport(saveCtx, report); err != nil {
		o.logger.Error("Failed to persist fix report", "report_id", report.ID, "error", err)
		if cause == nil {
			cause = err
		}
	}
	return report, cause
}

func commitMessage(report *models.FixReport) string {
	fixed := 0
	for _, r := range report.Issues {
		if r.Outcome == models.FixOutcomeFixed {
			fixed++
		}
	}
	return fmt.Sprintf("fix: resolve %d reviewed issue(s)\n\nAutomated fix for task %s.", fixed, report.TaskID)
}
