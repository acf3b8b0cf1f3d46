package config

import "time"

// BackendConfig describes how to invoke one LLM backend CLI.
type BackendConfig struct {
	// Command is the executable to run (e.g. "claude", "gemini").
	Command string `yaml:"command"`

	// Args are fixed arguments prepended to every invocation.
	Args []string `yaml:"args"`

	// Model is the model identifier passed to the CLI.
	Model string `yaml:"model"`
}

// BackendsConfig pairs the primary (reviewer/fixer) backend with the
// challenger (validator) backend.
type BackendsConfig struct {
	Primary    *BackendConfig `yaml:"primary"`
	Challenger *BackendConfig `yaml:"challenger"`
}

// DefaultBackendsConfig returns the built-in backend defaults.
func DefaultBackendsConfig() *BackendsConfig {
	return &BackendsConfig{
		Primary: &BackendConfig{
			Command: "claude",
			Args:    []string{"-p", "--output-format", "text"},
			Model:   "claude-sonnet-4-5",
		},
		Challenger: &BackendConfig{
			Command: "gemini",
			Args:    []string{"-p"},
			Model:   "gemini-2.5-pro",
		},
	}
}

// TimeoutsConfig bounds invocation, reviewer, and request durations.
type TimeoutsConfig struct {
	// Invocation is the per-LLM-call timeout. Surfaces as a timeout
	// invocation error.
	Invocation time.Duration `yaml:"invocation"`

	// Reviewer bounds one reviewer's whole loop; expiry cancels the loop.
	Reviewer time.Duration `yaml:"reviewer"`

	// Request bounds a whole review or fix. Zero means unbounded.
	Request time.Duration `yaml:"request"`
}

// DefaultTimeoutsConfig returns the built-in timeout defaults.
func DefaultTimeoutsConfig() *TimeoutsConfig {
	return &TimeoutsConfig{
		Invocation: 120 * time.Second,
		Reviewer:   300 * time.Second,
		Request:    0,
	}
}
