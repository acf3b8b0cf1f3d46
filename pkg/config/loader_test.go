package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte(yaml), 0o644))
	return dir
}

func TestInitializeWithoutConfigFile(t *testing.T) {
	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Challenger.SatisfactionThreshold)
	assert.Equal(t, 5, cfg.Challenger.MaxIterations)
	assert.Equal(t, 95, cfg.FixChallenger.SatisfactionThreshold)
	assert.Equal(t, 3, cfg.FixChallenger.MaxIterations)
	assert.Equal(t, AbsoluteMaxIterationsCap, cfg.Challenger.AbsoluteMaxIterations)
	assert.Equal(t, "claude", cfg.Backends.Primary.Command)
	assert.Equal(t, "gemini", cfg.Backends.Challenger.Command)
}

func TestInitializePartialOverlayKeepsDefaults(t *testing.T) {
	dir := writeConfig(t, `
challenger:
  satisfaction_threshold: 70
queue:
  worker_count: 8
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 70, cfg.Challenger.SatisfactionThreshold)
	assert.Equal(t, 5, cfg.Challenger.MaxIterations, "unspecified field keeps its default")
	assert.Equal(t, 8, cfg.Queue.WorkerCount)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts, "unspecified queue field keeps its default")
	assert.Equal(t, 95, cfg.FixChallenger.SatisfactionThreshold, "untouched section keeps its defaults")
}

func TestInitializeClampsAbsoluteMaxIterations(t *testing.T) {
	dir := writeConfig(t, `
challenger:
  absolute_max_iterations: 50
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, AbsoluteMaxIterationsCap, cfg.Challenger.AbsoluteMaxIterations,
		"the hard cap cannot be raised through configuration")
}

func TestInitializeRejectsOutOfRangeThreshold(t *testing.T) {
	dir := writeConfig(t, `
challenger:
  satisfaction_threshold: 150
`)

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestInitializeRejectsMalformedYAML(t *testing.T) {
	dir := writeConfig(t, "challenger: [not: a: mapping\n")

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
}

func TestInitializeExpandsEnvironment(t *testing.T) {
	t.Setenv("TW_PRIMARY_MODEL", "claude-test-model")
	dir := writeConfig(t, `
backends:
  primary:
    command: claude
    model: "{{.TW_PRIMARY_MODEL}}"
  challenger:
    command: gemini
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "claude-test-model", cfg.Backends.Primary.Model)
}

func TestExpandEnvMissingVariable(t *testing.T) {
	out := ExpandEnv([]byte(`value: "{{.TW_DEFINITELY_UNSET_VAR}}"`))
	assert.Equal(t, `value: ""`, string(out))
}

func TestExpandEnvLeavesLiteralDollarsAlone(t *testing.T) {
	in := []byte(`pattern: "^\\$[0-9]+$"`)
	assert.Equal(t, in, ExpandEnv(in))
}

func TestExpandEnvMalformedTemplatePassesThrough(t *testing.T) {
	in := []byte(`broken: "{{.unterminated"`)
	assert.Equal(t, in, ExpandEnv(in))
}
