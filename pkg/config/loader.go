package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// configFileName is the single YAML file read from the config directory.
const configFileName = "turbowrap.yaml"

// Initialize loads, merges, and validates configuration from configDir.
// A missing turbowrap.yaml is not an error: built-in defaults apply.
//
// Steps performed:
//  1. Read turbowrap.yaml (optional)
//  2. Expand environment variables ({{.VAR}} syntax)
//  3. Parse YAML into a Config overlay
//  4. Merge overlay onto built-in defaults (non-zero values override)
//  5. Validate the merged configuration
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg := Default()
	cfg.configDir = configDir

	overlay, err := loadYAML(filepath.Join(configDir, configFileName))
	if err != nil {
		return nil, NewLoadError(configFileName, err)
	}

	if overlay != nil {
		if err := mergeConfig(cfg, overlay); err != nil {
			return nil, fmt.Errorf("failed to merge configuration: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	log.Info("Configuration initialized",
		"review_threshold", cfg.Challenger.SatisfactionThreshold,
		"fix_threshold", cfg.FixChallenger.SatisfactionThreshold,
		"workers", cfg.Queue.WorkerCount)
	return cfg, nil
}

// loadYAML reads and parses one config file. Returns (nil, nil) when the
// file does not exist.
func loadYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("No config file found, using built-in defaults", "path", path)
			return nil, nil
		}
		return nil, err
	}

	data = ExpandEnv(data)

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return &overlay, nil
}

// mergeConfig merges non-zero overlay values onto the defaults, section by
// section so a partially-specified section keeps the remaining defaults.
func mergeConfig(base, overlay *Config) error {
	sections := []struct {
		name string
		dst  any
		src  any
	}{
		{"challenger", base.Challenger, overlay.Challenger},
		{"fix_challenger", base.FixChallenger, overlay.FixChallenger},
		{"thinking", base.Thinking, overlay.Thinking},
		{"queue", base.Queue, overlay.Queue},
		{"concurrency", base.Concurrency, overlay.Concurrency},
		{"fix", base.Fix, overlay.Fix},
		{"timeouts", base.Timeouts, overlay.Timeouts},
		{"backends", base.Backends, overlay.Backends},
	}

	for _, s := range sections {
		if isNil(s.src) {
			continue
		}
		if err := mergo.Merge(s.dst, s.src, mergo.WithOverride); err != nil {
			return fmt.Errorf("failed to merge %s config: %w", s.name, err)
		}
	}
	return nil
}

func isNil(v any) bool {
	switch t := v.(type) {
	case *LoopConfig:
		return t == nil
	case *ThinkingConfig:
		return t == nil
	case *QueueConfig:
		return t == nil
	case *ConcurrencyConfig:
		return t == nil
	case *FixConfig:
		return t == nil
	case *TimeoutsConfig:
		return t == nil
	case *BackendsConfig:
		return t == nil
	default:
		return v == nil
	}
}
