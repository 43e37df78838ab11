package evolve

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/XiaoConstantine/gepa-go/pkg/core"
	"github.com/XiaoConstantine/gepa-go/pkg/errors"
	"github.com/XiaoConstantine/gepa-go/pkg/logging"
)

// Batch is the outcome of evaluating one candidate against a scenario
// subset. Truncated is set when the rollout budget ran out before every
// requested scenario could be reserved; the results that did complete are
// always returned.
type Batch struct {
	Results   []core.EvaluationResult
	Truncated bool
}

// Evaluator scores candidates against the scenario suite by delegating each
// scenario to the external agent runner. Execution failures and timeouts are
// recorded as failing results, never surfaced as errors: one flaky scenario
// must not abort the batch.
type Evaluator struct {
	runner      core.AgentRunner
	suite       *core.Suite
	store       *Store
	budget      *Budget
	concurrency int
	timeout     time.Duration
}

// NewEvaluator wires an evaluator to its collaborators.
func NewEvaluator(runner core.AgentRunner, suite *core.Suite, store *Store, budget *Budget, concurrency int, timeout time.Duration) *Evaluator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Evaluator{
		runner:      runner,
		suite:       suite,
		store:       store,
		budget:      budget,
		concurrency: concurrency,
		timeout:     timeout,
	}
}

// Evaluate runs the candidate against the given scenario ids (the full suite
// when ids is nil), reserving one budget unit per scenario before it starts.
// Scenarios whose reservation fails are skipped and the batch is flagged
// truncated; in-flight executions always finish.
func (e *Evaluator) Evaluate(ctx context.Context, candidate *core.Candidate, scenarioIDs []string) (*Batch, error) {
	return e.run(ctx, candidate, scenarioIDs, false)
}

// Reevaluate overwrites existing results for the given pairs without a new
// budget reservation. Pairs with no prior result still reserve budget.
func (e *Evaluator) Reevaluate(ctx context.Context, candidate *core.Candidate, scenarioIDs []string) (*Batch, error) {
	return e.run(ctx, candidate, scenarioIDs, true)
}

func (e *Evaluator) run(ctx context.Context, candidate *core.Candidate, scenarioIDs []string, overwrite bool) (*Batch, error) {
	logger := logging.GetLogger()

	if scenarioIDs == nil {
		scenarioIDs = e.suite.IDs()
	}
	if len(scenarioIDs) == 0 {
		return nil, errors.New(errors.InvalidInput, "scenario subset must not be empty")
	}

	scenarios := make([]core.Scenario, 0, len(scenarioIDs))
	for _, id := range scenarioIDs {
		sc, ok := e.suite.Get(id)
		if !ok {
			return nil, errors.WithFields(
				errors.New(errors.InvalidInput, "unknown scenario id"),
				errors.Fields{"scenario_id": id})
		}
		scenarios = append(scenarios, sc)
	}

	batch := &Batch{}
	var (
		mu       sync.Mutex
		storeErr error
	)

	p := pool.New().WithMaxGoroutines(e.concurrency)

	launched := 0
	for _, sc := range scenarios {
		// A pair being overwritten keeps its original reservation; fresh
		// pairs always reserve before the rollout starts.
		needsReservation := true
		if overwrite && e.store.HasResult(candidate.ID, sc.ID) {
			needsReservation = false
		}
		if needsReservation && !e.budget.Reserve(1) {
			batch.Truncated = true
			logger.Warn(ctx, "rollout budget exhausted, truncating evaluation: candidate=%s, remaining_scenarios=%d",
				candidate.ID, len(scenarios)-launched)
			break
		}
		launched++

		sc := sc
		p.Go(func() {
			result := e.runScenario(ctx, candidate, sc)

			err := e.store.PutResult(result)

			mu.Lock()
			if err != nil && storeErr == nil {
				storeErr = err
			}
			batch.Results = append(batch.Results, result)
			mu.Unlock()
		})
	}

	// The batch is not complete until every reserved scenario has finished.
	p.Wait()

	if storeErr != nil {
		return batch, storeErr
	}
	return batch, nil
}

// runScenario executes one rollout and applies the scenario's checker. A
// runner error or timeout becomes a failing result with the failure noted in
// the trace.
func (e *Evaluator) runScenario(ctx context.Context, candidate *core.Candidate, sc core.Scenario) core.EvaluationResult {
	runCtx := ctx
	cancel := func() {}
	if e.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	defer cancel()

	start := time.Now()
	trace, err := e.execute(runCtx, candidate.Instruction, sc.Input)
	elapsed := time.Since(start)

	if err != nil {
		return core.EvaluationResult{
			CandidateID: candidate.ID,
			ScenarioID:  sc.ID,
			Passed:      false,
			Score:       0.0,
			Trace: &core.Trace{
				ScenarioID: sc.ID,
				Input:      sc.Input,
				ExecError:  err.Error(),
				Duration:   elapsed,
			},
			RecordedAt: time.Now(),
		}
	}

	if trace == nil {
		trace = &core.Trace{}
	}
	trace.ScenarioID = sc.ID
	if trace.Input == "" {
		trace.Input = sc.Input
	}
	trace.Duration = elapsed

	passed, score := sc.Check(trace)

	return core.EvaluationResult{
		CandidateID: candidate.ID,
		ScenarioID:  sc.ID,
		Passed:      passed,
		Score:       score,
		Trace:       trace,
		RecordedAt:  time.Now(),
	}
}

// execute invokes the runner in its own goroutine so a runner that ignores
// context cancellation still can't hold the batch past the scenario timeout.
func (e *Evaluator) execute(ctx context.Context, instruction, input string) (*core.Trace, error) {
	type outcome struct {
		trace *core.Trace
		err   error
	}

	ch := make(chan outcome, 1)
	go func() {
		trace, err := e.runner.Execute(ctx, instruction, input)
		ch <- outcome{trace: trace, err: err}
	}()

	select {
	case out := <-ch:
		return out.trace, out.err
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), errors.Timeout, "scenario execution timed out")
	}
}
