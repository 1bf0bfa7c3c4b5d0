package database

import (
	"database/sql"
	"time"

	"autorenew/internal/models"
)

// OutcomeRow is one recorded per-resource result of a past run
type OutcomeRow struct {
	RunID      string
	Account    string
	ResourceID string
	Outcome    models.Outcome
	Reason     models.FailureReason
	CreatedAt  time.Time
}

// RunRepository records run history
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db.GetConn()}
}

// CreateRun inserts the row for a starting run
func (rr *RunRepository) CreateRun(id string, startedAt time.Time, accounts int) error {
	_, err := rr.db.Exec(`
		INSERT INTO runs (id, started_at, accounts) VALUES (?, ?, ?)
	`, id, startedAt, accounts)
	return err
}

// FinishRun stamps the end time and stores the final report text
func (rr *RunRepository) FinishRun(id string, finishedAt time.Time, reportText string) error {
	_, err := rr.db.Exec(`
		UPDATE runs
		SET finished_at = ?, report = ?
		WHERE id = ?
	`, finishedAt, reportText, id)
	return err
}

// RecordOutcome appends one per-resource result to the run
func (rr *RunRepository) RecordOutcome(runID, account string, outcome models.ResourceOutcome) error {
	_, err := rr.db.Exec(`
		INSERT INTO outcomes (run_id, account, resource_id, outcome, reason)
		VALUES (?, ?, ?, ?, ?)
	`, runID, account, outcome.ResourceID, string(outcome.Outcome), string(outcome.Reason))
	return err
}

// RunOutcomes returns the recorded results of one run in insertion order
func (rr *RunRepository) RunOutcomes(runID string) ([]OutcomeRow, error) {
	rows, err := rr.db.Query(`
		SELECT run_id, account, resource_id, outcome, reason, created_at
		FROM outcomes
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []OutcomeRow
	for rows.Next() {
		var row OutcomeRow
		var outcome, reason string
		if err := rows.Scan(&row.RunID, &row.Account, &row.ResourceID, &outcome, &reason, &row.CreatedAt); err != nil {
			return nil, err
		}
		row.Outcome = models.Outcome(outcome)
		row.Reason = models.FailureReason(reason)
		outcomes = append(outcomes, row)
	}
	return outcomes, rows.Err()
}
