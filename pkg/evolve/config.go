package evolve

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/XiaoConstantine/gepa-go/pkg/errors"
)

// EngineConfig is the caller-supplied run configuration.
type EngineConfig struct {
	// SeedInstruction is the instruction text the search starts from.
	SeedInstruction string `yaml:"seed_instruction" validate:"required"`

	// MaxRollouts is the hard ceiling on scenario executions for the run.
	MaxRollouts int `yaml:"max_rollouts" validate:"required,gt=0"`

	// TargetPassRate stops the run once any candidate reaches it. Default 1.0.
	TargetPassRate float64 `yaml:"target_pass_rate" validate:"gte=0,lte=1"`

	// StagnationGenerations stops the run after this many consecutive
	// generations without frontier improvement. Default 3.
	StagnationGenerations int `yaml:"stagnation_generations" validate:"gte=1"`

	// ChildrenPerGeneration is how many mutations each selected parent
	// contributes per generation. Default 2.
	ChildrenPerGeneration int `yaml:"children_per_generation" validate:"gte=1"`

	// ParentsPerGeneration is how many parents the selector picks. Default 1.
	ParentsPerGeneration int `yaml:"parents_per_generation" validate:"gte=1"`

	// EvaluationConcurrency bounds concurrent scenario executions. Default 4.
	EvaluationConcurrency int `yaml:"evaluation_concurrency" validate:"gte=1"`

	// ScenarioTimeout bounds each individual scenario execution. A timed-out
	// execution is a failing result and still consumes budget. Default 2m.
	ScenarioTimeout time.Duration `yaml:"scenario_timeout"`

	// MaxGenerations optionally caps the loop regardless of other stopping
	// conditions. Zero means uncapped.
	MaxGenerations int `yaml:"max_generations" validate:"gte=0"`

	// ProtectedMarkers lists substrings mutations must preserve verbatim.
	ProtectedMarkers []string `yaml:"protected_markers"`
}

// DefaultEngineConfig returns a config with every optional knob at its
// default. SeedInstruction and MaxRollouts must still be supplied.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		TargetPassRate:        1.0,
		StagnationGenerations: 3,
		ChildrenPerGeneration: 2,
		ParentsPerGeneration:  1,
		EvaluationConcurrency: 4,
		ScenarioTimeout:       2 * time.Minute,
	}
}

// fillDefaults merges defaults into unset optional fields, the way the
// caller would expect from a partially specified config.
func (c *EngineConfig) fillDefaults() {
	defaults := DefaultEngineConfig()
	if c.TargetPassRate <= 0 {
		c.TargetPassRate = defaults.TargetPassRate
	}
	if c.StagnationGenerations <= 0 {
		c.StagnationGenerations = defaults.StagnationGenerations
	}
	if c.ChildrenPerGeneration <= 0 {
		c.ChildrenPerGeneration = defaults.ChildrenPerGeneration
	}
	if c.ParentsPerGeneration <= 0 {
		c.ParentsPerGeneration = defaults.ParentsPerGeneration
	}
	if c.EvaluationConcurrency <= 0 {
		c.EvaluationConcurrency = defaults.EvaluationConcurrency
	}
	if c.ScenarioTimeout <= 0 {
		c.ScenarioTimeout = defaults.ScenarioTimeout
	}
}

// Validate fills defaults and checks the config, returning
// InvalidConfiguration on the first violation.
func (c *EngineConfig) Validate() error {
	c.fillDefaults()

	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			first := errs[0]
			return errors.WithFields(
				errors.New(errors.InvalidConfiguration, "invalid engine configuration"),
				errors.Fields{
					"field":      first.Field(),
					"constraint": first.Tag(),
				})
		}
		return errors.Wrap(err, errors.InvalidConfiguration, "invalid engine configuration")
	}

	return nil
}

// LoadEngineConfig reads a YAML config file and validates it.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidConfiguration, "failed to read config file"),
			errors.Fields{"path": path})
	}

	cfg := &EngineConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidConfiguration, "failed to parse config file"),
			errors.Fields{"path": path})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
