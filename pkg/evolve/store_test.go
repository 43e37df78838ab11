package evolve

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/gepa-go/pkg/core"
	"github.com/XiaoConstantine/gepa-go/pkg/errors"
)

func TestStoreAddSeedAndChildren(t *testing.T) {
	store := NewStore()
	defer store.Close()

	seed, err := store.AddSeed("do the thing")
	require.NoError(t, err)
	assert.True(t, seed.IsSeed())
	assert.Equal(t, 0, seed.Generation)
	assert.Empty(t, seed.ParentIDs)
	assert.NotEmpty(t, seed.ID)

	child, err := store.AddChild(seed, "do the thing carefully")
	require.NoError(t, err)
	assert.Equal(t, 1, child.Generation)
	assert.Equal(t, []string{seed.ID}, child.ParentIDs)
	assert.Equal(t, core.ReasonMutation, child.Reason)

	candidates := store.Candidates()
	require.Len(t, candidates, 2)
	assert.Equal(t, seed.ID, candidates[0].ID)
	assert.Equal(t, child.ID, candidates[1].ID)
}

func TestStorePutResultOverwrites(t *testing.T) {
	store := NewStore()
	defer store.Close()

	seed, err := store.AddSeed("seed")
	require.NoError(t, err)

	first := core.EvaluationResult{CandidateID: seed.ID, ScenarioID: "a", Passed: false, Score: 0.1, RecordedAt: time.Now()}
	second := core.EvaluationResult{CandidateID: seed.ID, ScenarioID: "a", Passed: true, Score: 0.9, RecordedAt: time.Now()}

	require.NoError(t, store.PutResult(first))
	require.NoError(t, store.PutResult(second))

	// At most one result per (candidate, scenario) pair: overwrite, never duplicate.
	results := store.Results(seed.ID)
	require.Len(t, results, 1)
	assert.True(t, results[0].Passed)
	assert.Equal(t, 0.9, results[0].Score)
	assert.Equal(t, 1, store.ResultCount(seed.ID))
}

func TestStoreFailingResults(t *testing.T) {
	store := NewStore()
	defer store.Close()

	seed, err := store.AddSeed("seed")
	require.NoError(t, err)

	require.NoError(t, store.PutResult(core.EvaluationResult{CandidateID: seed.ID, ScenarioID: "a", Passed: true, Score: 1.0}))
	require.NoError(t, store.PutResult(core.EvaluationResult{CandidateID: seed.ID, ScenarioID: "b", Passed: false, Score: 0.0}))
	require.NoError(t, store.PutResult(core.EvaluationResult{CandidateID: seed.ID, ScenarioID: "c", Passed: false, Score: 0.3}))

	failing := store.FailingResults(seed.ID)
	require.Len(t, failing, 2)
	assert.Equal(t, "b", failing[0].ScenarioID)
	assert.Equal(t, "c", failing[1].ScenarioID)
}

func TestStoreConcurrentWriters(t *testing.T) {
	store := NewStore()
	defer store.Close()

	seed, err := store.AddSeed("seed")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.PutResult(core.EvaluationResult{
				CandidateID: seed.ID,
				ScenarioID:  fmt.Sprintf("s%02d", i),
				Passed:      i%2 == 0,
				Score:       float64(i) / 32,
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 32, store.ResultCount(seed.ID))
}

func TestStoreLineageWalksToSeed(t *testing.T) {
	store := NewStore()
	defer store.Close()

	seed, err := store.AddSeed("g0")
	require.NoError(t, err)
	c1, err := store.AddChild(seed, "g1")
	require.NoError(t, err)
	c2, err := store.AddChild(c1, "g2")
	require.NoError(t, err)

	chain := store.Lineage(c2.ID)
	require.Len(t, chain, 3)
	assert.Equal(t, seed.ID, chain[0].ID)
	assert.Equal(t, c1.ID, chain[1].ID)
	assert.Equal(t, c2.ID, chain[2].ID)

	// Every non-seed generation equals parent generation + 1 back to a
	// single seed at generation zero.
	for i := 1; i < len(chain); i++ {
		assert.Equal(t, chain[i-1].Generation+1, chain[i].Generation)
	}
	assert.True(t, chain[0].IsSeed())
}

func TestStoreScoreVector(t *testing.T) {
	store := NewStore()
	defer store.Close()

	seed, err := store.AddSeed("seed")
	require.NoError(t, err)

	require.NoError(t, store.PutResult(core.EvaluationResult{CandidateID: seed.ID, ScenarioID: "a", Passed: true, Score: 1.0}))
	require.NoError(t, store.PutResult(core.EvaluationResult{CandidateID: seed.ID, ScenarioID: "b", Passed: false, Score: 0.5}))

	v := store.ScoreVector(seed.ID, 2)
	assert.InDelta(t, 0.5, v.PassRate, 1e-9)
	assert.InDelta(t, 0.75, v.MeanScore, 1e-9)
	assert.InDelta(t, 0.5, v.WorstCase, 1e-9)
}

func TestStoreClosedOperationsFail(t *testing.T) {
	store := NewStore()
	seed, err := store.AddSeed("seed")
	require.NoError(t, err)

	store.Close()
	// Close is idempotent.
	store.Close()

	err = store.PutResult(core.EvaluationResult{CandidateID: seed.ID, ScenarioID: "a"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.StoreClosed))

	_, err = store.AddSeed("another")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.StoreClosed))
}
