// Package suite loads scenario suites from YAML files, compiling each
// scenario's declarative checker rule into a core.Checker.
package suite

import (
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/XiaoConstantine/gepa-go/pkg/core"
	"github.com/XiaoConstantine/gepa-go/pkg/errors"
)

// File is the YAML document shape:
//
//	scenarios:
//	  - id: greeting
//	    input: "Say hello to the user."
//	    check:
//	      kind: contains
//	      value: "hello"
type File struct {
	Scenarios []ScenarioSpec `yaml:"scenarios"`
}

// ScenarioSpec declares one scenario.
type ScenarioSpec struct {
	ID    string    `yaml:"id"`
	Input string    `yaml:"input"`
	Check CheckSpec `yaml:"check"`
}

// CheckSpec declares a pass/fail rule over the trace output. Kinds:
// "equals", "contains" (case-insensitive), "regex". A passing check scores
// 1.0 and a failing one 0.0; "contains" with multiple values scores the
// fraction matched and passes only on all of them.
type CheckSpec struct {
	Kind   string   `yaml:"kind"`
	Value  string   `yaml:"value,omitempty"`
	Values []string `yaml:"values,omitempty"`
}

// Load reads and compiles a scenario suite from a YAML file.
func Load(path string) (*core.Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidSuite, "failed to read suite file"),
			errors.Fields{"path": path})
	}
	return Parse(data)
}

// Parse compiles a scenario suite from YAML bytes.
func Parse(data []byte) (*core.Suite, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, errors.InvalidSuite, "failed to parse suite file")
	}

	scenarios := make([]core.Scenario, 0, len(file.Scenarios))
	for _, spec := range file.Scenarios {
		check, err := compileCheck(spec)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, core.Scenario{
			ID:    spec.ID,
			Input: spec.Input,
			Check: check,
		})
	}

	return core.NewSuite(scenarios)
}

func compileCheck(spec ScenarioSpec) (core.Checker, error) {
	values := spec.Check.Values
	if spec.Check.Value != "" {
		values = append([]string{spec.Check.Value}, values...)
	}

	switch spec.Check.Kind {
	case "equals":
		if len(values) != 1 {
			return nil, checkErr(spec.ID, "equals requires exactly one value")
		}
		want := values[0]
		return func(trace *core.Trace) (bool, float64) {
			if strings.TrimSpace(trace.Output) == want {
				return true, 1.0
			}
			return false, 0.0
		}, nil

	case "contains":
		if len(values) == 0 {
			return nil, checkErr(spec.ID, "contains requires at least one value")
		}
		needles := make([]string, len(values))
		for i, v := range values {
			needles[i] = strings.ToLower(v)
		}
		return func(trace *core.Trace) (bool, float64) {
			haystack := strings.ToLower(trace.Output)
			matched := 0
			for _, needle := range needles {
				if strings.Contains(haystack, needle) {
					matched++
				}
			}
			score := float64(matched) / float64(len(needles))
			return matched == len(needles), score
		}, nil

	case "regex":
		if len(values) != 1 {
			return nil, checkErr(spec.ID, "regex requires exactly one value")
		}
		re, err := regexp.Compile(values[0])
		if err != nil {
			return nil, errors.WithFields(
				errors.Wrap(err, errors.InvalidSuite, "invalid regex checker"),
				errors.Fields{"scenario_id": spec.ID})
		}
		return func(trace *core.Trace) (bool, float64) {
			if re.MatchString(trace.Output) {
				return true, 1.0
			}
			return false, 0.0
		}, nil

	default:
		return nil, checkErr(spec.ID, "unknown checker kind: "+spec.Check.Kind)
	}
}

func checkErr(scenarioID, message string) error {
	return errors.WithFields(
		errors.New(errors.InvalidSuite, message),
		errors.Fields{"scenario_id": scenarioID})
}
