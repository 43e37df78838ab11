package evolve

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/gepa-go/pkg/errors"
)

func TestValidateFillsDefaults(t *testing.T) {
	cfg := &EngineConfig{
		SeedInstruction: "do the task",
		MaxRollouts:     50,
	}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1.0, cfg.TargetPassRate)
	assert.Equal(t, 3, cfg.StagnationGenerations)
	assert.Equal(t, 2, cfg.ChildrenPerGeneration)
	assert.Equal(t, 1, cfg.ParentsPerGeneration)
	assert.Equal(t, 4, cfg.EvaluationConcurrency)
	assert.Equal(t, 2*time.Minute, cfg.ScenarioTimeout)
	assert.Equal(t, 0, cfg.MaxGenerations)
}

func TestValidateRejectsMissingFields(t *testing.T) {
	cases := []struct {
		name  string
		cfg   *EngineConfig
		field string
	}{
		{"no seed", &EngineConfig{MaxRollouts: 10}, "SeedInstruction"},
		{"no rollouts", &EngineConfig{SeedInstruction: "x"}, "MaxRollouts"},
		{"negative rollouts", &EngineConfig{SeedInstruction: "x", MaxRollouts: -5}, "MaxRollouts"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.InvalidConfiguration))

			var appErr *errors.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tc.field, appErr.Fields()["field"])
		})
	}
}

func TestValidateRejectsOutOfRangeTarget(t *testing.T) {
	cfg := &EngineConfig{
		SeedInstruction: "x",
		MaxRollouts:     10,
		TargetPassRate:  1.5,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.InvalidConfiguration))
}

func TestLoadEngineConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
seed_instruction: "summarize the input"
max_rollouts: 200
target_pass_rate: 0.9
children_per_generation: 3
protected_markers:
  - "{{context}}"
`), 0o644))

	cfg, err := LoadEngineConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "summarize the input", cfg.SeedInstruction)
	assert.Equal(t, 200, cfg.MaxRollouts)
	assert.Equal(t, 0.9, cfg.TargetPassRate)
	assert.Equal(t, 3, cfg.ChildrenPerGeneration)
	assert.Equal(t, []string{"{{context}}"}, cfg.ProtectedMarkers)
	// Unset knobs pick up defaults during validation.
	assert.Equal(t, 3, cfg.StagnationGenerations)
}

func TestLoadEngineConfigErrors(t *testing.T) {
	_, err := LoadEngineConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.InvalidConfiguration))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("seed_instruction: [not: a: string"), 0o644))
	_, err = LoadEngineConfig(path)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.InvalidConfiguration))
}
