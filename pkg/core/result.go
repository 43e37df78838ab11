package core

import (
	"math"
	"time"
)

// TraceStep records one observable action the agent took during a scenario
// execution, e.g. a tool call. The engine never interprets steps; they exist
// for checkers and for failure diagnosis.
type TraceStep struct {
	Name   string `json:"name"`
	Input  string `json:"input,omitempty"`
	Output string `json:"output,omitempty"`
}

// Trace is the opaque record of what an agent execution did for one scenario.
type Trace struct {
	ScenarioID string        `json:"scenario_id"`
	Input      string        `json:"input"`
	Output     string        `json:"output"`
	Steps      []TraceStep   `json:"steps,omitempty"`
	ExecError  string        `json:"exec_error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// EvaluationResult is the outcome of running one candidate against one
// scenario. At most one result exists per (candidate, scenario) pair;
// re-evaluation overwrites.
type EvaluationResult struct {
	CandidateID string    `json:"candidate_id"`
	ScenarioID  string    `json:"scenario_id"`
	Passed      bool      `json:"passed"`
	Score       float64   `json:"score"`
	Trace       *Trace    `json:"trace,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// ScoreVector aggregates a candidate's evaluation results into one value per
// objective. It is derived, never stored, and recomputable from results alone.
type ScoreVector struct {
	PassRate  float64 `json:"pass_rate"`
	MeanScore float64 `json:"mean_score"`
	WorstCase float64 `json:"worst_case_score"`
}

const scoreEpsilon = 1e-9

// ComputeScoreVector aggregates results over a suite of suiteSize scenarios.
// Scenarios without a recorded result count as failed with score 0, so a
// partially evaluated candidate never outranks a fully evaluated one on
// missing data alone.
func ComputeScoreVector(results []EvaluationResult, suiteSize int) ScoreVector {
	if suiteSize <= 0 {
		return ScoreVector{}
	}

	passed := 0
	total := 0.0
	worst := math.Inf(1)
	for _, r := range results {
		if r.Passed {
			passed++
		}
		total += r.Score
		if r.Score < worst {
			worst = r.Score
		}
	}
	if len(results) < suiteSize {
		worst = 0.0
	}
	if math.IsInf(worst, 1) {
		worst = 0.0
	}

	return ScoreVector{
		PassRate:  float64(passed) / float64(suiteSize),
		MeanScore: total / float64(suiteSize),
		WorstCase: worst,
	}
}

// Objectives returns the vector in a fixed order for dominance comparison.
func (v ScoreVector) Objectives() []float64 {
	return []float64{v.PassRate, v.MeanScore, v.WorstCase}
}

// Dominates reports whether v is >= o on every objective and strictly
// greater on at least one.
func (v ScoreVector) Dominates(o ScoreVector) bool {
	a, b := v.Objectives(), o.Objectives()

	allGreaterOrEqual := true
	atLeastOneGreater := false
	for i := range a {
		if a[i] < b[i]-scoreEpsilon {
			allGreaterOrEqual = false
			break
		}
		if a[i] > b[i]+scoreEpsilon {
			atLeastOneGreater = true
		}
	}

	return allGreaterOrEqual && atLeastOneGreater
}

// Equal reports whether two vectors match within epsilon on every objective.
func (v ScoreVector) Equal(o ScoreVector) bool {
	a, b := v.Objectives(), o.Objectives()
	for i := range a {
		if math.Abs(a[i]-b[i]) > scoreEpsilon {
			return false
		}
	}
	return true
}
