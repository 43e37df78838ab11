// Package archive serializes a finished optimization run to SQLite. The
// population store's lifetime is one run; exporting it here is how history
// outlives the engine.
package archive

import (
	"database/sql"
	"encoding/json"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/XiaoConstantine/gepa-go/pkg/errors"
	"github.com/XiaoConstantine/gepa-go/pkg/evolve"
)

const schema = `
CREATE TABLE IF NOT EXISTS candidates (
    id TEXT PRIMARY KEY,
    instruction TEXT NOT NULL,
    parent_ids TEXT,
    generation INTEGER NOT NULL,
    creation_reason TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS evaluation_results (
    candidate_id TEXT NOT NULL,
    scenario_id TEXT NOT NULL,
    passed INTEGER NOT NULL,
    score REAL NOT NULL,
    trace TEXT,
    recorded_at DATETIME NOT NULL,
    PRIMARY KEY (candidate_id, scenario_id)
);

CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    state TEXT NOT NULL,
    best_candidate_id TEXT,
    pass_rate REAL,
    mean_score REAL,
    worst_case_score REAL,
    rollouts_consumed INTEGER,
    generations INTEGER,
    saved_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// Save writes the population store and run summary to the SQLite database
// at path, creating it if needed.
func Save(path string, store *evolve.Store, result *evolve.RunResult) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.Unknown, "failed to open archive database"),
			errors.Fields{"path": path})
	}
	defer db.Close()

	if _, err := db.Exec(schema); err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to initialize archive schema")
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to begin archive transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, cand := range store.Candidates() {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO candidates (id, instruction, parent_ids, generation, creation_reason, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			cand.ID, cand.Instruction, strings.Join(cand.ParentIDs, ","),
			cand.Generation, string(cand.Reason), cand.CreatedAt,
		); err != nil {
			return errors.WithFields(
				errors.Wrap(err, errors.Unknown, "failed to archive candidate"),
				errors.Fields{"candidate_id": cand.ID})
		}

		for _, res := range store.Results(cand.ID) {
			traceJSON, err := json.Marshal(res.Trace)
			if err != nil {
				return errors.Wrap(err, errors.Unknown, "failed to encode trace")
			}
			if _, err := tx.Exec(
				`INSERT OR REPLACE INTO evaluation_results (candidate_id, scenario_id, passed, score, trace, recorded_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				res.CandidateID, res.ScenarioID, res.Passed, res.Score, string(traceJSON), res.RecordedAt,
			); err != nil {
				return errors.WithFields(
					errors.Wrap(err, errors.Unknown, "failed to archive result"),
					errors.Fields{"candidate_id": res.CandidateID, "scenario_id": res.ScenarioID})
			}
		}
	}

	if result != nil {
		if _, err := tx.Exec(
			`INSERT INTO runs (state, best_candidate_id, pass_rate, mean_score, worst_case_score, rollouts_consumed, generations)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			string(result.State), result.BestCandidateID,
			result.Scores.PassRate, result.Scores.MeanScore, result.Scores.WorstCase,
			result.RolloutsConsumed, result.Generations,
		); err != nil {
			return errors.Wrap(err, errors.Unknown, "failed to archive run summary")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to commit archive")
	}
	return nil
}

// RunSummary is the persisted run report row.
type RunSummary struct {
	State            string
	BestCandidateID  string
	PassRate         float64
	MeanScore        float64
	WorstCaseScore   float64
	RolloutsConsumed int
	Generations      int
}

// LoadSummary reads the most recent run summary from an archive.
func LoadSummary(path string) (*RunSummary, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.Unknown, "failed to open archive database"),
			errors.Fields{"path": path})
	}
	defer db.Close()

	row := db.QueryRow(
		`SELECT state, best_candidate_id, pass_rate, mean_score, worst_case_score, rollouts_consumed, generations
		 FROM runs ORDER BY id DESC LIMIT 1`)

	summary := &RunSummary{}
	if err := row.Scan(
		&summary.State, &summary.BestCandidateID,
		&summary.PassRate, &summary.MeanScore, &summary.WorstCaseScore,
		&summary.RolloutsConsumed, &summary.Generations,
	); err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to read run summary")
	}
	return summary, nil
}
