package archive

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/gepa-go/pkg/core"
	"github.com/XiaoConstantine/gepa-go/pkg/evolve"
)

func populatedStore(t *testing.T) (*evolve.Store, *evolve.RunResult) {
	t.Helper()

	store := evolve.NewStore()
	t.Cleanup(store.Close)

	seed, err := store.AddSeed("the seed instruction")
	require.NoError(t, err)
	child, err := store.AddChild(seed, "the improved instruction")
	require.NoError(t, err)

	for _, cand := range []*core.Candidate{seed, child} {
		passed := cand.ID == child.ID
		require.NoError(t, store.PutResult(core.EvaluationResult{
			CandidateID: cand.ID,
			ScenarioID:  "s00",
			Passed:      passed,
			Score:       boolScore(passed),
			Trace:       &core.Trace{ScenarioID: "s00", Input: "in", Output: "out"},
			RecordedAt:  time.Now(),
		}))
	}

	result := &evolve.RunResult{
		State:            evolve.StateConverged,
		BestCandidateID:  child.ID,
		BestInstruction:  child.Instruction,
		Scores:           core.ScoreVector{PassRate: 1.0, MeanScore: 1.0, WorstCase: 1.0},
		RolloutsConsumed: 2,
		Generations:      1,
	}
	return store, result
}

func boolScore(passed bool) float64 {
	if passed {
		return 1.0
	}
	return 0.0
}

func TestSaveAndLoadSummary(t *testing.T) {
	store, result := populatedStore(t)
	path := filepath.Join(t.TempDir(), "run.db")

	require.NoError(t, Save(path, store, result))

	summary, err := LoadSummary(path)
	require.NoError(t, err)

	assert.Equal(t, string(evolve.StateConverged), summary.State)
	assert.Equal(t, result.BestCandidateID, summary.BestCandidateID)
	assert.InDelta(t, 1.0, summary.PassRate, 1e-9)
	assert.Equal(t, 2, summary.RolloutsConsumed)
	assert.Equal(t, 1, summary.Generations)
}

func TestSavePersistsPopulation(t *testing.T) {
	store, result := populatedStore(t)
	path := filepath.Join(t.TempDir(), "run.db")
	require.NoError(t, Save(path, store, result))

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var candidates, results int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM candidates`).Scan(&candidates))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM evaluation_results`).Scan(&results))
	assert.Equal(t, 2, candidates)
	assert.Equal(t, 2, results)

	var parentIDs string
	var generation int
	require.NoError(t, db.QueryRow(
		`SELECT parent_ids, generation FROM candidates WHERE id = ?`,
		result.BestCandidateID).Scan(&parentIDs, &generation))
	assert.NotEmpty(t, parentIDs)
	assert.Equal(t, 1, generation)
}

func TestSaveIsIdempotentPerCandidate(t *testing.T) {
	store, result := populatedStore(t)
	path := filepath.Join(t.TempDir(), "run.db")

	require.NoError(t, Save(path, store, result))
	require.NoError(t, Save(path, store, result))

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	// Candidates and results upsert; run summaries append.
	var candidates, runs int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM candidates`).Scan(&candidates))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&runs))
	assert.Equal(t, 2, candidates)
	assert.Equal(t, 2, runs)
}

func TestLoadSummaryEmptyArchive(t *testing.T) {
	store, _ := populatedStore(t)
	path := filepath.Join(t.TempDir(), "run.db")
	require.NoError(t, Save(path, store, nil))

	_, err := LoadSummary(path)
	require.Error(t, err)
}
