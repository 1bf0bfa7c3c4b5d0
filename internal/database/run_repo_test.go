package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autorenew/internal/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunHistoryRoundTrip(t *testing.T) {
	repo := NewRunRepository(openTestDB(t))

	started := time.Now()
	require.NoError(t, repo.CreateRun("run-1", started, 2))

	require.NoError(t, repo.RecordOutcome("run-1", "a@b.test", models.ResourceOutcome{
		ResourceID: "100001",
		Outcome:    models.OutcomeRenewed,
		State:      models.StateConfirmed,
	}))
	require.NoError(t, repo.RecordOutcome("run-1", "a@b.test", models.ResourceOutcome{
		ResourceID: "100002",
		Outcome:    models.OutcomeNoAction,
	}))
	require.NoError(t, repo.RecordOutcome("run-1", "c@d.test", models.ResourceOutcome{
		ResourceID: "200001",
		Outcome:    models.OutcomeFailed,
		Reason:     models.ReasonPinNotReceived,
	}))
	require.NoError(t, repo.FinishRun("run-1", time.Now(), "report text"))

	outcomes, err := repo.RunOutcomes("run-1")
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	assert.Equal(t, "100001", outcomes[0].ResourceID)
	assert.Equal(t, models.OutcomeRenewed, outcomes[0].Outcome)
	assert.Equal(t, models.ReasonNone, outcomes[0].Reason)

	assert.Equal(t, models.OutcomeNoAction, outcomes[1].Outcome)

	assert.Equal(t, "c@d.test", outcomes[2].Account)
	assert.Equal(t, models.OutcomeFailed, outcomes[2].Outcome)
	assert.Equal(t, models.ReasonPinNotReceived, outcomes[2].Reason)
}

func TestRunOutcomesEmptyForUnknownRun(t *testing.T) {
	repo := NewRunRepository(openTestDB(t))
	outcomes, err := repo.RunOutcomes("missing")
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestSchemaSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")

	db, err := New(path)
	require.NoError(t, err)
	repo := NewRunRepository(db)
	require.NoError(t, repo.CreateRun("run-1", time.Now(), 1))
	require.NoError(t, db.Close())

	db, err = New(path)
	require.NoError(t, err)
	defer db.Close()

	// The history table is never dropped on open
	outcomes, err := NewRunRepository(db).RunOutcomes("run-1")
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}
