package evolve

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/gepa-go/internal/testutil"
	"github.com/XiaoConstantine/gepa-go/pkg/core"
	"github.com/XiaoConstantine/gepa-go/pkg/errors"
)

func newTestHarness(t *testing.T, runner core.AgentRunner, suiteSize, maxRollouts int) (*Evaluator, *Store, *Budget, *core.Suite) {
	t.Helper()
	suite := testutil.PassingSuite(suiteSize)
	store := NewStore()
	t.Cleanup(store.Close)
	budget := NewBudget(maxRollouts)
	eval := NewEvaluator(runner, suite, store, budget, 2, time.Second)
	return eval, store, budget, suite
}

func TestEvaluateFullSuiteByDefault(t *testing.T) {
	runner := testutil.NewScriptedRunner(map[string]string{
		"input-s00": "ok",
		"input-s01": "ok",
		"input-s02": "nope",
	})
	eval, store, budget, _ := newTestHarness(t, runner, 3, 10)

	cand, err := store.AddSeed("seed")
	require.NoError(t, err)

	batch, err := eval.Evaluate(context.Background(), cand, nil)
	require.NoError(t, err)
	assert.False(t, batch.Truncated)
	assert.Len(t, batch.Results, 3)
	assert.Equal(t, 3, runner.CallCount())
	assert.Equal(t, 3, budget.Consumed())

	v := store.ScoreVector(cand.ID, 3)
	assert.InDelta(t, 2.0/3.0, v.PassRate, 1e-9)
}

func TestEvaluateRejectsBadSubsets(t *testing.T) {
	runner := testutil.NewScriptedRunner(nil)
	eval, store, _, _ := newTestHarness(t, runner, 2, 10)

	cand, err := store.AddSeed("seed")
	require.NoError(t, err)

	_, err = eval.Evaluate(context.Background(), cand, []string{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.InvalidInput))

	_, err = eval.Evaluate(context.Background(), cand, []string{"no-such-scenario"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.InvalidInput))
	assert.Equal(t, 0, runner.CallCount())
}

func TestEvaluateRunnerErrorBecomesFailingResult(t *testing.T) {
	runner := core.RunnerFunc(func(ctx context.Context, instruction, input string) (*core.Trace, error) {
		return nil, errors.New(errors.Unknown, "agent crashed")
	})
	eval, store, budget, _ := newTestHarness(t, runner, 2, 10)

	cand, err := store.AddSeed("seed")
	require.NoError(t, err)

	batch, err := eval.Evaluate(context.Background(), cand, nil)
	require.NoError(t, err)
	require.Len(t, batch.Results, 2)

	for _, r := range batch.Results {
		assert.False(t, r.Passed)
		assert.Equal(t, 0.0, r.Score)
		require.NotNil(t, r.Trace)
		assert.Contains(t, r.Trace.ExecError, "agent crashed")
	}
	// Failed rollouts still consume budget.
	assert.Equal(t, 2, budget.Consumed())
}

func TestEvaluateTimeoutConsumesBudget(t *testing.T) {
	runner := core.RunnerFunc(func(ctx context.Context, instruction, input string) (*core.Trace, error) {
		// Ignores cancellation on purpose.
		time.Sleep(200 * time.Millisecond)
		return &core.Trace{Output: "ok"}, nil
	})
	suite := testutil.PassingSuite(1)
	store := NewStore()
	defer store.Close()
	budget := NewBudget(5)
	eval := NewEvaluator(runner, suite, store, budget, 1, 20*time.Millisecond)

	cand, err := store.AddSeed("seed")
	require.NoError(t, err)

	batch, err := eval.Evaluate(context.Background(), cand, nil)
	require.NoError(t, err)
	require.Len(t, batch.Results, 1)
	assert.False(t, batch.Results[0].Passed)
	assert.Contains(t, batch.Results[0].Trace.ExecError, "timed out")
	assert.Equal(t, 1, budget.Consumed())
}

func TestEvaluateTruncatesOnBudgetExhaustion(t *testing.T) {
	runner := testutil.NewScriptedRunner(nil)
	eval, store, budget, _ := newTestHarness(t, runner, 5, 2)

	cand, err := store.AddSeed("seed")
	require.NoError(t, err)

	batch, err := eval.Evaluate(context.Background(), cand, nil)
	require.NoError(t, err)
	assert.True(t, batch.Truncated)
	assert.Len(t, batch.Results, 2)
	assert.Equal(t, 2, budget.Consumed())
	assert.Equal(t, BudgetExhausted, budget.State())

	// The completed results were still recorded.
	assert.Equal(t, 2, store.ResultCount(cand.ID))
}

func TestReevaluateSkipsReservationForExistingPairs(t *testing.T) {
	runner := testutil.NewScriptedRunner(map[string]string{"input-s00": "ok", "input-s01": "ok"})
	eval, store, budget, _ := newTestHarness(t, runner, 2, 10)

	cand, err := store.AddSeed("seed")
	require.NoError(t, err)

	_, err = eval.Evaluate(context.Background(), cand, nil)
	require.NoError(t, err)
	require.Equal(t, 2, budget.Consumed())

	// Re-running the same pairs overwrites without new reservations.
	batch, err := eval.Reevaluate(context.Background(), cand, []string{"s00", "s01"})
	require.NoError(t, err)
	assert.False(t, batch.Truncated)
	assert.Equal(t, 2, budget.Consumed())
	assert.Equal(t, 2, store.ResultCount(cand.ID))
	assert.Equal(t, 4, runner.CallCount())
}

func TestReevaluateReservesForFreshPairs(t *testing.T) {
	runner := testutil.NewScriptedRunner(nil)
	eval, store, budget, _ := newTestHarness(t, runner, 2, 10)

	cand, err := store.AddSeed("seed")
	require.NoError(t, err)

	// No prior results: Reevaluate behaves like Evaluate.
	_, err = eval.Reevaluate(context.Background(), cand, []string{"s00"})
	require.NoError(t, err)
	assert.Equal(t, 1, budget.Consumed())
}

func TestEvaluateStoreClosedIsFatal(t *testing.T) {
	runner := testutil.NewScriptedRunner(nil)
	suite := testutil.PassingSuite(1)
	store := NewStore()
	budget := NewBudget(5)
	eval := NewEvaluator(runner, suite, store, budget, 1, time.Second)

	cand, err := store.AddSeed("seed")
	require.NoError(t, err)
	store.Close()

	_, err = eval.Evaluate(context.Background(), cand, nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.StoreClosed))
}
