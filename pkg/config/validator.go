package config

import (
	"fmt"
	"log/slog"
)

// Validate checks the merged configuration for out-of-range values and
// clamps the hard iteration cap. Returns the first error found.
func Validate(cfg *Config) error {
	if err := validateLoop("challenger", cfg.Challenger); err != nil {
		return err
	}
	if err := validateLoop("fix_challenger", cfg.FixChallenger); err != nil {
		return err
	}

	if cfg.Thinking.BudgetTokens < 0 {
		return NewValidationError("thinking", "budget_tokens", ErrInvalidValue)
	}

	q := cfg.Queue
	if q.WorkerCount < 1 {
		return NewValidationError("queue", "worker_count", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if q.ZombieAge <= 0 {
		return NewValidationError("queue", "zombie_age", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if q.MaxAttempts < 1 {
		return NewValidationError("queue", "max_attempts", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}

	if cfg.Concurrency.MaxReviewersInFlight < 1 {
		return NewValidationError("concurrency", "max_reviewers_in_flight", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}

	f := cfg.Fix
	if f.MaxIssuesPerBatch < 1 {
		return NewValidationError("fix", "max_issues_per_batch", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if f.MaxWorkloadPoints < 1 {
		return NewValidationError("fix", "max_workload_points", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if f.DefaultEffort < 1 || f.DefaultEffort > 5 {
		return NewValidationError("fix", "default_effort", fmt.Errorf("%w: must be in [1,5]", ErrInvalidValue))
	}
	if f.DefaultFiles < 1 {
		return NewValidationError("fix", "default_files", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}

	if cfg.Timeouts.Invocation <= 0 {
		return NewValidationError("timeouts", "invocation", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}

	b := cfg.Backends
	if b == nil || b.Primary == nil || b.Primary.Command == "" {
		return NewValidationError("backends", "primary.command", ErrInvalidValue)
	}
	if b.Challenger == nil || b.Challenger.Command == "" {
		return NewValidationError("backends", "challenger.command", ErrInvalidValue)
	}

	return nil
}

// validateLoop checks one loop section and clamps the absolute cap.
func validateLoop(section string, loop *LoopConfig) error {
	if loop.SatisfactionThreshold < 0 || loop.SatisfactionThreshold > 100 {
		return NewValidationError(section, "satisfaction_threshold", fmt.Errorf("%w: must be in [0,100]", ErrInvalidValue))
	}
	if loop.ForcedAcceptanceThreshold < 0 || loop.ForcedAcceptanceThreshold > 100 {
		return NewValidationError(section, "forced_acceptance_threshold", fmt.Errorf("%w: must be in [0,100]", ErrInvalidValue))
	}
	if loop.MaxIterations < 1 {
		return NewValidationError(section, "max_iterations", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if loop.StagnationWindow < 2 {
		return NewValidationError(section, "stagnation_window", fmt.Errorf("%w: must be at least 2", ErrInvalidValue))
	}
	if loop.MinImprovementThreshold < 0 {
		return NewValidationError(section, "min_improvement_threshold", fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}

	// The hard cap is a safety limit, not a tunable: silently clamp rather
	// than reject, so a misconfigured value can never raise the ceiling.
	if loop.AbsoluteMaxIterations < 1 || loop.AbsoluteMaxIterations > AbsoluteMaxIterationsCap {
		slog.Warn("Clamping absolute_max_iterations to hard cap",
			"section", section,
			"configured", loop.AbsoluteMaxIterations,
			"cap", AbsoluteMaxIterationsCap)
		loop.AbsoluteMaxIterations = AbsoluteMaxIterationsCap
	}

	return nil
}
