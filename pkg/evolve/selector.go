package evolve

import (
	"sort"

	"github.com/XiaoConstantine/gepa-go/pkg/core"
)

// Selector computes Pareto frontiers over the population and picks parents
// for the next generation. The frontier is always recomputed on demand from
// the store, never cached, so it can't go stale.
type Selector struct {
	store     *Store
	suiteSize int
}

// NewSelector creates a selector over the given store.
func NewSelector(store *Store, suiteSize int) *Selector {
	return &Selector{store: store, suiteSize: suiteSize}
}

// ranked pairs a candidate with its derived score vector and test coverage.
type ranked struct {
	candidate *core.Candidate
	vector    core.ScoreVector
	evals     int
	position  int // creation order, as a deterministic final tie-break
}

func (s *Selector) snapshot() []ranked {
	candidates := s.store.Candidates()
	out := make([]ranked, 0, len(candidates))
	for i, cand := range candidates {
		out = append(out, ranked{
			candidate: cand,
			vector:    s.store.ScoreVector(cand.ID, s.suiteSize),
			evals:     s.store.ResultCount(cand.ID),
			position:  i,
		})
	}
	return out
}

// frontierOf returns the non-dominated members of the given set.
func frontierOf(set []ranked) []ranked {
	var front []ranked
	for i, a := range set {
		dominated := false
		for j, b := range set {
			if i == j {
				continue
			}
			if b.vector.Dominates(a.vector) {
				dominated = true
				break
			}
		}
		if !dominated {
			front = append(front, a)
		}
	}
	return front
}

// sortTier orders frontier members deterministically: lower generation first,
// then more total evaluation results, then creation order.
func sortTier(tier []ranked) {
	sort.Slice(tier, func(i, j int) bool {
		if tier[i].candidate.Generation != tier[j].candidate.Generation {
			return tier[i].candidate.Generation < tier[j].candidate.Generation
		}
		if tier[i].evals != tier[j].evals {
			return tier[i].evals > tier[j].evals
		}
		return tier[i].position < tier[j].position
	})
}

// Frontier returns the current Pareto frontier: candidates not dominated by
// any other candidate in the store.
func (s *Selector) Frontier() []*core.Candidate {
	front := frontierOf(s.snapshot())
	sortTier(front)
	out := make([]*core.Candidate, len(front))
	for i, r := range front {
		out[i] = r.candidate
	}
	return out
}

// SelectParents chooses up to k parents. The frontier is taken first; if it
// has fewer than k members, the next tier (the frontier of what remains once
// the current frontier is removed) backfills, recursively, until k are
// selected or the population is exhausted.
func (s *Selector) SelectParents(k int) []*core.Candidate {
	if k <= 0 {
		return nil
	}

	remaining := s.snapshot()
	selected := make([]*core.Candidate, 0, k)

	for len(selected) < k && len(remaining) > 0 {
		tier := frontierOf(remaining)
		sortTier(tier)

		for _, r := range tier {
			if len(selected) == k {
				break
			}
			selected = append(selected, r.candidate)
		}

		// Peel this tier off and continue with the dominated remainder.
		inTier := make(map[string]bool, len(tier))
		for _, r := range tier {
			inTier[r.candidate.ID] = true
		}
		next := remaining[:0]
		for _, r := range remaining {
			if !inTier[r.candidate.ID] {
				next = append(next, r)
			}
		}
		remaining = next
	}

	return selected
}

// Best returns the frontier candidate ranked highest on the primary
// objective (pass rate), breaking ties by mean score, then worst case, then
// test coverage. Returns nil for an empty population.
func (s *Selector) Best() (*core.Candidate, core.ScoreVector) {
	front := frontierOf(s.snapshot())
	if len(front) == 0 {
		return nil, core.ScoreVector{}
	}

	sort.Slice(front, func(i, j int) bool {
		a, b := front[i].vector, front[j].vector
		if a.PassRate != b.PassRate {
			return a.PassRate > b.PassRate
		}
		if a.MeanScore != b.MeanScore {
			return a.MeanScore > b.MeanScore
		}
		if a.WorstCase != b.WorstCase {
			return a.WorstCase > b.WorstCase
		}
		if front[i].evals != front[j].evals {
			return front[i].evals > front[j].evals
		}
		return front[i].position < front[j].position
	})

	return front[0].candidate, front[0].vector
}
