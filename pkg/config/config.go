// Package config loads, merges, and validates TurboWrap configuration.
package config

// Config is the umbrella configuration object returned by Initialize and
// threaded through the orchestrators.
type Config struct {
	configDir string

	// Challenger loop parameters for review and fix loops.
	Challenger    *LoopConfig `yaml:"challenger"`
	FixChallenger *LoopConfig `yaml:"fix_challenger"`

	// Extended-thinking budget hint passed to LLM backends.
	Thinking *ThinkingConfig `yaml:"thinking"`

	// Task queue and worker pool.
	Queue *QueueConfig `yaml:"queue"`

	// Concurrency limits.
	Concurrency *ConcurrencyConfig `yaml:"concurrency"`

	// Fix batching and classification.
	Fix *FixConfig `yaml:"fix"`

	// Invocation and request timeouts.
	Timeouts *TimeoutsConfig `yaml:"timeouts"`

	// LLM backend commands (primary and challenger).
	Backends *BackendsConfig `yaml:"backends"`
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// ReviewLoop returns the challenger loop parameters for review loops,
// with per-request overrides applied when non-nil.
func (c *Config) ReviewLoop(threshold, maxIterations *int) LoopConfig {
	loop := *c.Challenger
	if threshold != nil {
		loop.SatisfactionThreshold = *threshold
	}
	if maxIterations != nil {
		loop.MaxIterations = *maxIterations
	}
	return loop
}

// FixLoop returns the challenger loop parameters for fix loops.
func (c *Config) FixLoop() LoopConfig {
	return *c.FixChallenger
}

// Default returns a fully-populated configuration with built-in defaults.
// Used by tests and as the base for YAML merging.
func Default() *Config {
	return &Config{
		Challenger:    DefaultChallengerConfig(),
		FixChallenger: DefaultFixChallengerConfig(),
		Thinking:      DefaultThinkingConfig(),
		Queue:         DefaultQueueConfig(),
		Concurrency:   DefaultConcurrencyConfig(),
		Fix:           DefaultFixConfig(),
		Timeouts:      DefaultTimeoutsConfig(),
		Backends:      DefaultBackendsConfig(),
	}
}
