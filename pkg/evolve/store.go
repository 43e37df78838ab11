package evolve

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/XiaoConstantine/gepa-go/pkg/core"
	"github.com/XiaoConstantine/gepa-go/pkg/errors"
)

// Store holds every candidate and evaluation result produced during one
// optimization run. Records are append-only: candidates are never deleted
// and results are only ever overwritten for the same (candidate, scenario)
// pair, which keeps full lineage and score history queryable for the final
// report.
//
// All state is owned by a single writer goroutine reached via a channel, so
// concurrent evaluation tasks never share mutable memory.
type Store struct {
	ops  chan func()
	quit chan struct{}

	// Owned by the writer goroutine.
	candidates map[string]*core.Candidate
	order      []string
	results    map[string]map[string]core.EvaluationResult
}

// NewStore creates and starts an empty population store.
func NewStore() *Store {
	s := &Store{
		ops:        make(chan func()),
		quit:       make(chan struct{}),
		candidates: make(map[string]*core.Candidate),
		results:    make(map[string]map[string]core.EvaluationResult),
	}
	go s.loop()
	return s
}

func (s *Store) loop() {
	for {
		select {
		case op := <-s.ops:
			op()
		case <-s.quit:
			return
		}
	}
}

// do runs fn inside the writer goroutine and waits for it to complete.
func (s *Store) do(fn func()) error {
	done := make(chan struct{})
	select {
	case s.ops <- func() {
		fn()
		close(done)
	}:
		<-done
		return nil
	case <-s.quit:
		return errors.New(errors.StoreClosed, "population store is closed")
	}
}

// Close stops the writer goroutine. Any operation after Close fails with
// StoreClosed, which the orchestrator treats as unrecoverable.
func (s *Store) Close() {
	select {
	case <-s.quit:
	default:
		close(s.quit)
	}
}

// AddSeed records the root candidate at generation zero.
func (s *Store) AddSeed(instruction string) (*core.Candidate, error) {
	cand := &core.Candidate{
		ID:          uuid.New().String(),
		Instruction: instruction,
		ParentIDs:   nil,
		Generation:  0,
		Reason:      core.ReasonSeed,
		CreatedAt:   time.Now(),
	}
	if err := s.do(func() {
		s.candidates[cand.ID] = cand
		s.order = append(s.order, cand.ID)
	}); err != nil {
		return nil, err
	}
	return cand, nil
}

// AddChild records a mutation of parent with the given instruction text.
func (s *Store) AddChild(parent *core.Candidate, instruction string) (*core.Candidate, error) {
	cand := &core.Candidate{
		ID:          uuid.New().String(),
		Instruction: instruction,
		ParentIDs:   []string{parent.ID},
		Generation:  parent.Generation + 1,
		Reason:      core.ReasonMutation,
		CreatedAt:   time.Now(),
	}
	if err := s.do(func() {
		s.candidates[cand.ID] = cand
		s.order = append(s.order, cand.ID)
	}); err != nil {
		return nil, err
	}
	return cand, nil
}

// PutResult records an evaluation result, overwriting any previous result
// for the same (candidate, scenario) pair.
func (s *Store) PutResult(result core.EvaluationResult) error {
	return s.do(func() {
		byScenario, ok := s.results[result.CandidateID]
		if !ok {
			byScenario = make(map[string]core.EvaluationResult)
			s.results[result.CandidateID] = byScenario
		}
		byScenario[result.ScenarioID] = result
	})
}

// Candidate returns the candidate with the given id.
func (s *Store) Candidate(id string) (*core.Candidate, bool) {
	var (
		cand *core.Candidate
		ok   bool
	)
	if err := s.do(func() {
		cand, ok = s.candidates[id]
	}); err != nil {
		return nil, false
	}
	return cand, ok
}

// Candidates returns all candidates in creation order.
func (s *Store) Candidates() []*core.Candidate {
	var out []*core.Candidate
	_ = s.do(func() {
		out = make([]*core.Candidate, 0, len(s.order))
		for _, id := range s.order {
			out = append(out, s.candidates[id])
		}
	})
	return out
}

// Results returns all recorded results for a candidate, ordered by scenario id.
func (s *Store) Results(candidateID string) []core.EvaluationResult {
	var out []core.EvaluationResult
	_ = s.do(func() {
		for _, r := range s.results[candidateID] {
			out = append(out, r)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ScenarioID < out[j].ScenarioID })
	return out
}

// HasResult reports whether a result exists for the pair.
func (s *Store) HasResult(candidateID, scenarioID string) bool {
	var ok bool
	_ = s.do(func() {
		_, ok = s.results[candidateID][scenarioID]
	})
	return ok
}

// ResultCount returns how many scenarios have recorded results for the
// candidate. Used by the selector to rank more-tested candidates above
// less-tested ones at equal score.
func (s *Store) ResultCount(candidateID string) int {
	var n int
	_ = s.do(func() {
		n = len(s.results[candidateID])
	})
	return n
}

// FailingResults returns the candidate's results where passed is false,
// ordered by scenario id.
func (s *Store) FailingResults(candidateID string) []core.EvaluationResult {
	var out []core.EvaluationResult
	_ = s.do(func() {
		for _, r := range s.results[candidateID] {
			if !r.Passed {
				out = append(out, r)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ScenarioID < out[j].ScenarioID })
	return out
}

// ScoreVector recomputes the candidate's aggregate objectives from its
// recorded results over a suite of suiteSize scenarios.
func (s *Store) ScoreVector(candidateID string, suiteSize int) core.ScoreVector {
	return core.ComputeScoreVector(s.Results(candidateID), suiteSize)
}

// Lineage walks parent links from the given candidate back to the seed and
// returns the chain in seed-first order.
func (s *Store) Lineage(candidateID string) []*core.Candidate {
	var chain []*core.Candidate
	_ = s.do(func() {
		id := candidateID
		for {
			cand, ok := s.candidates[id]
			if !ok {
				break
			}
			chain = append(chain, cand)
			if len(cand.ParentIDs) == 0 {
				break
			}
			id = cand.ParentIDs[0]
		}
	})
	// Reverse to seed-first order.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}
