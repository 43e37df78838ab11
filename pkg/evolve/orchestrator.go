package evolve

import (
	"context"

	"github.com/XiaoConstantine/gepa-go/pkg/core"
	"github.com/XiaoConstantine/gepa-go/pkg/errors"
	"github.com/XiaoConstantine/gepa-go/pkg/logging"
)

// State is the orchestrator's lifecycle state. Converged, Stagnated,
// Exhausted and Failed are terminal; Stagnated is deliberately distinct from
// Exhausted so callers can tell "no more ideas" from "no more budget".
type State string

const (
	StateInit       State = "INIT"
	StateSeeding    State = "SEEDING"
	StateGenerating State = "GENERATING"
	StateConverged  State = "CONVERGED"
	StateStagnated  State = "STAGNATED"
	StateExhausted  State = "EXHAUSTED"
	StateFailed     State = "FAILED"
)

// LineageStep is one link in the best candidate's ancestry: the instruction
// at that step and the diagnosis that produced it (nil for the seed).
type LineageStep struct {
	CandidateID string          `json:"candidate_id"`
	Generation  int             `json:"generation"`
	Instruction string          `json:"instruction"`
	Diagnosis   *core.Diagnosis `json:"diagnosis,omitempty"`
}

// RunResult is returned to the caller at the end of a run. The terminal
// state always distinguishes convergence, stagnation, budget exhaustion and
// outright failure; Exhausted and Stagnated still carry the best candidate
// found so far.
type RunResult struct {
	State            State            `json:"state"`
	BestCandidateID  string           `json:"best_candidate_id"`
	BestInstruction  string           `json:"best_instruction"`
	Scores           core.ScoreVector `json:"scores"`
	Lineage          []LineageStep    `json:"lineage"`
	RolloutsConsumed int              `json:"rollouts_consumed"`
	Generations      int              `json:"generations"`
}

// Engine drives the generation loop: select parents, reflect on their
// failures, evolve children, evaluate, record, re-check stopping conditions.
type Engine struct {
	cfg   *EngineConfig
	suite *core.Suite

	store     *Store
	budget    *Budget
	evaluator *Evaluator
	reflector *Reflector
	evolver   *Evolver
	selector  *Selector

	state       State
	generations int
	failure     error

	// diagnoses maps each child to the diagnosis that produced it, for the
	// final lineage report.
	diagnoses map[string]*core.Diagnosis
}

// Option customizes engine construction.
type Option func(*engineOptions)

type engineOptions struct {
	reflectionLLM core.LLM
}

// WithReflectionLLM uses a separate (typically stronger) model for failure
// diagnosis than for mutation.
func WithReflectionLLM(llm core.LLM) Option {
	return func(o *engineOptions) {
		o.reflectionLLM = llm
	}
}

// NewEngine validates the configuration and wires the search components.
func NewEngine(cfg *EngineConfig, suite *core.Suite, runner core.AgentRunner, llm core.LLM, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New(errors.InvalidConfiguration, "engine config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if suite == nil {
		return nil, errors.New(errors.InvalidConfiguration, "scenario suite is required")
	}
	if runner == nil {
		return nil, errors.New(errors.InvalidConfiguration, "agent runner is required")
	}
	if llm == nil {
		return nil, errors.New(errors.InvalidConfiguration, "generation LLM is required")
	}

	options := &engineOptions{}
	for _, opt := range opts {
		opt(options)
	}
	reflectionLLM := options.reflectionLLM
	if reflectionLLM == nil {
		reflectionLLM = llm
	}

	store := NewStore()
	budget := NewBudget(cfg.MaxRollouts)

	return &Engine{
		cfg:       cfg,
		suite:     suite,
		store:     store,
		budget:    budget,
		evaluator: NewEvaluator(runner, suite, store, budget, cfg.EvaluationConcurrency, cfg.ScenarioTimeout),
		reflector: NewReflector(reflectionLLM),
		evolver:   NewEvolver(llm, store, cfg.ProtectedMarkers),
		selector:  NewSelector(store, suite.Len()),
		state:     StateInit,
		diagnoses: make(map[string]*core.Diagnosis),
	}, nil
}

// State returns the orchestrator's current state.
func (e *Engine) State() State {
	return e.state
}

// Store exposes the population store for post-run inspection or export.
func (e *Engine) Store() *Store {
	return e.store
}

// Budget exposes the rollout budget manager.
func (e *Engine) Budget() *Budget {
	return e.budget
}

// Close releases the population store. The store's lifetime equals one run;
// export it before closing if the history should outlive the engine.
func (e *Engine) Close() {
	e.store.Close()
}

// Run executes the optimization until a stopping condition fires and returns
// the best candidate found, its score vector, full lineage, rollouts
// consumed and the terminal state.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	logger := logging.GetLogger()

	// SEEDING: record and fully evaluate the starting instruction.
	e.state = StateSeeding
	seed, err := e.store.AddSeed(e.cfg.SeedInstruction)
	if err != nil {
		return e.fail(err)
	}

	logger.Info(ctx, "seeding: evaluating seed candidate %s against %d scenarios, budget=%d",
		seed.ID, e.suite.Len(), e.cfg.MaxRollouts)

	seedBatch, err := e.evaluator.Evaluate(ctx, seed, nil)
	if err != nil {
		return e.fail(err)
	}

	if e.targetReached() {
		logger.Info(ctx, "seed already meets target pass rate, converged with zero generations")
		return e.finalize(StateConverged)
	}
	if seedBatch.Truncated || e.budget.State() == BudgetExhausted {
		return e.finalize(StateExhausted)
	}

	// GENERATING: the evolutionary loop.
	e.state = StateGenerating
	previousFrontier := e.frontierVectors()
	stagnant := 0

	for {
		if err := errors.CheckContext(ctx, "optimization run"); err != nil {
			return e.fail(err)
		}

		e.generations++
		exhaustedMidGeneration := e.runGeneration(ctx)

		// Stopping conditions, re-checked after every generation. A met
		// target wins over exhaustion when both fire at once.
		if e.targetReached() {
			return e.finalize(StateConverged)
		}
		if exhaustedMidGeneration || e.budget.State() == BudgetExhausted {
			return e.finalize(StateExhausted)
		}
		if e.state == StateFailed {
			return e.fail(e.failure)
		}

		frontier := e.frontierVectors()
		if frontierImproved(previousFrontier, frontier) {
			stagnant = 0
		} else {
			stagnant++
		}
		previousFrontier = frontier

		if stagnant >= e.cfg.StagnationGenerations {
			logger.Info(ctx, "frontier unchanged for %d generations, stopping", stagnant)
			return e.finalize(StateStagnated)
		}
		if e.cfg.MaxGenerations > 0 && e.generations >= e.cfg.MaxGenerations {
			return e.finalize(StateStagnated)
		}
	}
}

// runGeneration performs one select/reflect/evolve/evaluate cycle. It
// reports whether the rollout budget ran out mid-generation. One parent's
// failure never aborts the generation: dead-end parents are skipped and the
// loop proceeds with whatever children other parents produced.
func (e *Engine) runGeneration(ctx context.Context) (exhausted bool) {
	logger := logging.GetLogger()

	parents := e.selector.SelectParents(e.cfg.ParentsPerGeneration)
	logger.Info(ctx, "generation %d: selected %d parent(s), budget remaining=%d",
		e.generations, len(parents), e.budget.Remaining())

	for _, parent := range parents {
		failing := e.store.FailingResults(parent.ID)
		if len(failing) == 0 {
			continue
		}

		diagnosis, err := e.reflector.Reflect(ctx, parent, failing)
		if err != nil {
			logger.Warn(ctx, "reflection dead end for parent %s: %v", parent.ID, err)
			continue
		}

		children, err := e.evolver.Evolve(ctx, parent, diagnosis, e.cfg.ChildrenPerGeneration)
		if err != nil {
			if errors.HasCode(err, errors.StoreClosed) {
				e.state = StateFailed
				e.failure = err
				return false
			}
			logger.Warn(ctx, "evolution dead end for parent %s: %v", parent.ID, err)
			continue
		}

		for _, child := range children {
			e.diagnoses[child.ID] = diagnosis

			// No new rollouts once the budget is gone; in-flight work has
			// already been allowed to finish inside the evaluator.
			if e.budget.State() == BudgetExhausted {
				return true
			}

			batch, err := e.evaluator.Evaluate(ctx, child, nil)
			if err != nil {
				e.state = StateFailed
				e.failure = err
				return false
			}
			if batch.Truncated {
				return true
			}
		}
	}

	return false
}

// targetReached reports whether any candidate meets the target pass rate.
func (e *Engine) targetReached() bool {
	best, vector := e.selector.Best()
	if best == nil {
		return false
	}
	return vector.PassRate >= e.cfg.TargetPassRate-1e-9
}

func (e *Engine) frontierVectors() []core.ScoreVector {
	frontier := e.selector.Frontier()
	vectors := make([]core.ScoreVector, len(frontier))
	for i, cand := range frontier {
		vectors[i] = e.store.ScoreVector(cand.ID, e.suite.Len())
	}
	return vectors
}

// frontierImproved reports whether the new frontier contains a score vector
// absent from the previous frontier's vector set.
func frontierImproved(previous, current []core.ScoreVector) bool {
	for _, v := range current {
		seen := false
		for _, p := range previous {
			if v.Equal(p) {
				seen = true
				break
			}
		}
		if !seen {
			return true
		}
	}
	return false
}

// finalize builds the run report for a non-failed terminal state.
func (e *Engine) finalize(state State) (*RunResult, error) {
	e.state = state

	best, vector := e.selector.Best()
	if best == nil {
		return e.fail(errors.New(errors.Unknown, "no candidate recorded at run end"))
	}

	chain := e.store.Lineage(best.ID)
	lineage := make([]LineageStep, 0, len(chain))
	for _, cand := range chain {
		lineage = append(lineage, LineageStep{
			CandidateID: cand.ID,
			Generation:  cand.Generation,
			Instruction: cand.Instruction,
			Diagnosis:   e.diagnoses[cand.ID],
		})
	}

	return &RunResult{
		State:            state,
		BestCandidateID:  best.ID,
		BestInstruction:  best.Instruction,
		Scores:           vector,
		Lineage:          lineage,
		RolloutsConsumed: e.budget.Consumed(),
		Generations:      e.generations,
	}, nil
}

// fail returns a diagnostic error along with enough state for external
// diagnosis: the last consistent generation and the rollouts consumed.
func (e *Engine) fail(err error) (*RunResult, error) {
	e.state = StateFailed
	result := &RunResult{
		State:            StateFailed,
		RolloutsConsumed: e.budget.Consumed(),
		Generations:      e.generations,
	}
	return result, errors.WithFields(err, errors.Fields{
		"last_generation": e.generations,
		"rollouts":        e.budget.Consumed(),
	})
}
