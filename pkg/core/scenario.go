package core

import (
	"github.com/XiaoConstantine/gepa-go/pkg/errors"
)

// Checker decides pass/fail and a bounded score from an agent execution trace.
// Score is expected in [0.0, 1.0].
type Checker func(trace *Trace) (passed bool, score float64)

// Scenario is a single labeled test case in the suite.
type Scenario struct {
	ID    string
	Input string
	Check Checker
}

// Suite is an immutable, ordered collection of scenarios used to score
// candidates. Mutating the suite mid-run would invalidate cross-generation
// score comparisons, so there are no setters.
type Suite struct {
	scenarios []Scenario
	index     map[string]int
}

// NewSuite validates and freezes a scenario collection.
func NewSuite(scenarios []Scenario) (*Suite, error) {
	if len(scenarios) == 0 {
		return nil, errors.New(errors.InvalidSuite, "scenario suite must contain at least one scenario")
	}

	index := make(map[string]int, len(scenarios))
	for i, sc := range scenarios {
		if sc.ID == "" {
			return nil, errors.WithFields(
				errors.New(errors.InvalidSuite, "scenario has empty id"),
				errors.Fields{"position": i})
		}
		if _, dup := index[sc.ID]; dup {
			return nil, errors.WithFields(
				errors.New(errors.InvalidSuite, "duplicate scenario id"),
				errors.Fields{"scenario_id": sc.ID})
		}
		if sc.Check == nil {
			return nil, errors.WithFields(
				errors.New(errors.InvalidSuite, "scenario has no checker"),
				errors.Fields{"scenario_id": sc.ID})
		}
		index[sc.ID] = i
	}

	frozen := make([]Scenario, len(scenarios))
	copy(frozen, scenarios)

	return &Suite{scenarios: frozen, index: index}, nil
}

// Len returns the number of scenarios in the suite.
func (s *Suite) Len() int {
	return len(s.scenarios)
}

// IDs returns scenario ids in suite order.
func (s *Suite) IDs() []string {
	ids := make([]string, len(s.scenarios))
	for i, sc := range s.scenarios {
		ids[i] = sc.ID
	}
	return ids
}

// Get returns the scenario with the given id.
func (s *Suite) Get(id string) (Scenario, bool) {
	i, ok := s.index[id]
	if !ok {
		return Scenario{}, false
	}
	return s.scenarios[i], true
}

// Scenarios returns a copy of the suite in order.
func (s *Suite) Scenarios() []Scenario {
	out := make([]Scenario, len(s.scenarios))
	copy(out, s.scenarios)
	return out
}
