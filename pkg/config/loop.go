package config

// AbsoluteMaxIterationsCap is the hard safety cap on loop iterations.
// Never exceeded regardless of configuration.
const AbsoluteMaxIterationsCap = 10

// LoopConfig holds challenger loop parameters for one loop kind.
type LoopConfig struct {
	// SatisfactionThreshold is the challenger score at or above which the
	// loop exits with threshold_met.
	SatisfactionThreshold int `yaml:"satisfaction_threshold"`

	// MaxIterations is the soft iteration cap. When reached, the loop exits
	// with forced_acceptance (score above ForcedAcceptanceThreshold) or
	// max_iterations_reached.
	MaxIterations int `yaml:"max_iterations"`

	// AbsoluteMaxIterations is the hard cap. Clamped to
	// AbsoluteMaxIterationsCap during validation.
	AbsoluteMaxIterations int `yaml:"absolute_max_iterations"`

	// MinImprovementThreshold is the stagnation sensitivity in percentage
	// points: a score window narrower than this counts as stagnated.
	MinImprovementThreshold int `yaml:"min_improvement_threshold"`

	// StagnationWindow is the number of trailing iterations compared.
	StagnationWindow int `yaml:"stagnation_window"`

	// ForcedAcceptanceThreshold accepts a below-threshold result when the
	// soft cap is hit but the score is at or above this value.
	ForcedAcceptanceThreshold int `yaml:"forced_acceptance_threshold"`
}

// DefaultChallengerConfig returns the built-in review loop defaults.
func DefaultChallengerConfig() *LoopConfig {
	return &LoopConfig{
		SatisfactionThreshold:     50,
		MaxIterations:             5,
		AbsoluteMaxIterations:     AbsoluteMaxIterationsCap,
		MinImprovementThreshold:   2,
		StagnationWindow:          3,
		ForcedAcceptanceThreshold: 40,
	}
}

// DefaultFixChallengerConfig returns the built-in fix loop defaults.
// Fixes demand a much higher bar and fewer iterations than reviews.
func DefaultFixChallengerConfig() *LoopConfig {
	return &LoopConfig{
		SatisfactionThreshold:     95,
		MaxIterations:             3,
		AbsoluteMaxIterations:     AbsoluteMaxIterationsCap,
		MinImprovementThreshold:   2,
		StagnationWindow:          3,
		ForcedAcceptanceThreshold: 40,
	}
}

// ThinkingConfig holds the extended-thinking budget hint.
type ThinkingConfig struct {
	BudgetTokens int `yaml:"budget_tokens"`
}

// DefaultThinkingConfig returns the built-in thinking defaults.
func DefaultThinkingConfig() *ThinkingConfig {
	return &ThinkingConfig{BudgetTokens: 8000}
}

// ConcurrencyConfig limits parallel work inside one request.
type ConcurrencyConfig struct {
	// MaxReviewersInFlight bounds parallel reviewer loops per review.
	MaxReviewersInFlight int `yaml:"max_reviewers_in_flight"`
}

// DefaultConcurrencyConfig returns the built-in concurrency defaults.
func DefaultConcurrencyConfig() *ConcurrencyConfig {
	return &ConcurrencyConfig{MaxReviewersInFlight: 4}
}
