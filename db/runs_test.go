// ABOUTME: Tests for run history and sync state persistence
// ABOUTME: Uses temp-file SQLite databases created through OpenDatabase
package db

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/leadsync/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := OpenDatabase(filepath.Join(t.TempDir(), "leadsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestRunLifecycle(t *testing.T) {
	database := openTestDB(t)

	started := time.Date(2025, 9, 30, 16, 20, 0, 0, time.UTC)
	run := &models.Run{ID: "01J0000000000000000000000A", Trigger: models.TriggerSchedule, StartedAt: started}
	require.NoError(t, CreateRun(database, run))
	assert.Equal(t, models.RunStatusRunning, run.Status)

	got, err := GetRun(database, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.RunStatusRunning, got.Status)
	assert.Nil(t, got.FinishedAt)

	run.Status = models.RunStatusOK
	run.MessagesSeen = 2
	run.RecordsIngested = 10
	run.RowsSkipped = 1
	run.RowsAppended = 7
	run.Duplicates = 3
	require.NoError(t, FinishRun(database, run))
	require.NotNil(t, run.FinishedAt)

	got, err = GetRun(database, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusOK, got.Status)
	assert.Equal(t, 7, got.RowsAppended)
	assert.Equal(t, 3, got.Duplicates)
	assert.True(t, started.Equal(got.StartedAt))
	require.NotNil(t, got.FinishedAt)
	assert.Empty(t, got.ErrorMessage)
}

func TestFinishRunUnknown(t *testing.T) {
	database := openTestDB(t)

	err := FinishRun(database, &models.Run{ID: "missing", Status: models.RunStatusFailed})
	assert.Error(t, err)
}

func TestCreateRunRequiresID(t *testing.T) {
	database := openTestDB(t)
	assert.Error(t, CreateRun(database, &models.Run{Trigger: models.TriggerManual}))
}

func TestCreateRunRejectsUnknownStatus(t *testing.T) {
	database := openTestDB(t)
	err := CreateRun(database, &models.Run{ID: "x", Trigger: models.TriggerManual, Status: "exploded"})
	assert.Error(t, err)
}

func TestListRunsNewestFirst(t *testing.T) {
	database := openTestDB(t)
	base := time.Date(2025, 9, 30, 16, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		run := &models.Run{
			ID:           id,
			Trigger:      models.TriggerManual,
			Status:       models.RunStatusFailed,
			StartedAt:    base.Add(time.Duration(i) * time.Minute),
			ErrorMessage: "sheet unavailable",
		}
		require.NoError(t, CreateRun(database, run))
	}

	runs, err := ListRuns(database, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
	assert.Equal(t, "sheet unavailable", runs[0].ErrorMessage)

	last, err := LastRun(database)
	require.NoError(t, err)
	assert.Equal(t, "c", last.ID)

	missing, err := GetRun(database, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLastRunEmpty(t *testing.T) {
	database := openTestDB(t)

	last, err := LastRun(database)
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestSyncStateTokens(t *testing.T) {
	database := openTestDB(t)

	token, err := GetSyncToken(database, ServiceSchedule)
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, UpdateSyncToken(database, ServiceSchedule, "2025-09-30T11:20"))
	token, err = GetSyncToken(database, ServiceSchedule)
	require.NoError(t, err)
	assert.Equal(t, "2025-09-30T11:20", token)

	msg := "quota exceeded"
	require.NoError(t, UpdateSyncStatus(database, ServiceMail, models.SyncStatusError, &msg))

	state, err := GetSyncState(database, ServiceMail)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, models.SyncStatusError, state.Status)
	require.NotNil(t, state.ErrorMessage)
	assert.Equal(t, msg, *state.ErrorMessage)
	assert.Nil(t, state.LastSyncToken)

	require.NoError(t, UpdateSyncToken(database, ServiceMail, "m-42"))
	state, err = GetSyncState(database, ServiceMail)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusIdle, state.Status)
	assert.Nil(t, state.ErrorMessage)
	assert.NotNil(t, state.LastSyncTime)

	states, err := GetAllSyncStates(database)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, ServiceMail, states[0].Service)
	assert.Equal(t, ServiceSchedule, states[1].Service)
}

func TestSyncLog(t *testing.T) {
	database := openTestDB(t)

	exists, err := CheckSyncLogExists(database, "gmail", "m1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, CreateSyncLog(database, "gmail", "m1", "message", "run-1", `{"subject":"New Leads"}`))
	require.NoError(t, CreateSyncLog(database, "gmail", "m1", "message", "run-2", ""))

	exists, err = CheckSyncLogExists(database, "gmail", "m1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = CheckSyncLogExists(database, "imap", "m1")
	require.NoError(t, err)
	assert.False(t, exists)

	count, err := CountSyncLogs(database, "gmail")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
