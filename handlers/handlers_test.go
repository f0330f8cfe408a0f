// ABOUTME: Tests for MCP tool, resource, and prompt handlers
// ABOUTME: Uses a temp SQLite database and a fake cycler
package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/leadsync/db"
	"github.com/harperreed/leadsync/models"
	"github.com/harperreed/leadsync/pipeline"
	"github.com/harperreed/leadsync/schedule"
)

var (
	openWindow   = time.Date(2025, 9, 30, 11, 20, 0, 0, time.UTC)
	closedWindow = time.Date(2025, 10, 7, 11, 20, 0, 0, time.UTC)
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "leadsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type fakeCycler struct {
	calls int
	err   error
}

func (f *fakeCycler) RunCycle(ctx context.Context, trigger string) (pipeline.Summary, error) {
	f.calls++
	if f.err != nil {
		return pipeline.Summary{}, f.err
	}
	return pipeline.Summary{
		RunID:           "01J00000000000000000000000",
		Trigger:         trigger,
		Status:          models.RunStatusOK,
		MessagesSeen:    1,
		RecordsIngested: 3,
		RowsAppended:    2,
		Duplicates:      1,
	}, nil
}

func TestCheckSchedule(t *testing.T) {
	h := NewScheduleHandlers(schedule.NewGate(time.UTC), fixedClock(openWindow))

	tests := []struct {
		name    string
		at      string
		runNow  bool
		onWeek  bool
		next    string
		wantErr bool
	}{
		{name: "default now", runNow: true, onWeek: true, next: "2025-09-30T12:00:00Z"},
		{name: "off week", at: "2025-10-07T11:20:00Z", runNow: false, onWeek: false, next: "2025-10-14T11:20:00Z"},
		{name: "on week, wrong minute", at: "2025-09-30T11:21:00Z", runNow: false, onWeek: true, next: "2025-09-30T12:00:00Z"},
		{name: "bad instant", at: "tuesday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, out, err := h.CheckSchedule(context.Background(), &mcp.CallToolRequest{}, CheckScheduleInput{At: tt.at})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.runNow, out.RunNow)
			assert.Equal(t, tt.onWeek, out.OnWeek)
			assert.True(t, out.RunDay)
			assert.Equal(t, tt.next, out.NextRun)
			if tt.runNow {
				assert.NotEmpty(t, out.Slot)
			}
		})
	}
}

func TestListRuns(t *testing.T) {
	database := setupTestDB(t)
	h := NewRunHandlers(database, nil, schedule.NewGate(time.UTC), nil)

	_, out, err := h.ListRuns(context.Background(), &mcp.CallToolRequest{}, ListRunsInput{})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Count)
	assert.NotNil(t, out.Runs)

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		run := &models.Run{ID: id, Trigger: models.TriggerManual, StartedAt: openWindow.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, db.CreateRun(database, run))
		run.Status = models.RunStatusOK
		run.RowsAppended = i
		require.NoError(t, db.FinishRun(database, run))
	}

	_, out, err = h.ListRuns(context.Background(), &mcp.CallToolRequest{}, ListRunsInput{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 2, out.Count)
	assert.Equal(t, "run-c", out.Runs[0].ID)
	assert.Equal(t, 2, out.Runs[0].RowsAppended)
	assert.NotEmpty(t, out.Runs[0].FinishedAt)
}

func TestRunCycleRespectsGate(t *testing.T) {
	cycler := &fakeCycler{}
	h := NewRunHandlers(setupTestDB(t), cycler, schedule.NewGate(time.UTC), fixedClock(closedWindow))

	_, out, err := h.RunCycle(context.Background(), &mcp.CallToolRequest{}, RunCycleInput{})
	require.NoError(t, err)
	assert.False(t, out.Ran)
	assert.Equal(t, "2025-10-14T11:20:00Z", out.NextRun)
	assert.Equal(t, 0, cycler.calls)

	_, out, err = h.RunCycle(context.Background(), &mcp.CallToolRequest{}, RunCycleInput{Force: true})
	require.NoError(t, err)
	assert.True(t, out.Ran)
	assert.Equal(t, models.RunStatusOK, out.Status)
	assert.Equal(t, 2, out.RowsAppended)
	assert.Equal(t, 1, cycler.calls)
}

func TestRunCycleOpenWindowAndErrors(t *testing.T) {
	cycler := &fakeCycler{}
	h := NewRunHandlers(setupTestDB(t), cycler, schedule.NewGate(time.UTC), fixedClock(openWindow))

	_, out, err := h.RunCycle(context.Background(), &mcp.CallToolRequest{}, RunCycleInput{})
	require.NoError(t, err)
	assert.True(t, out.Ran)

	cycler.err = errors.New("search failed")
	_, _, err = h.RunCycle(context.Background(), &mcp.CallToolRequest{}, RunCycleInput{})
	assert.ErrorContains(t, err, "search failed")

	unconfigured := NewRunHandlers(setupTestDB(t), nil, schedule.NewGate(time.UTC), nil)
	_, _, err = unconfigured.RunCycle(context.Background(), &mcp.CallToolRequest{}, RunCycleInput{Force: true})
	assert.ErrorContains(t, err, "not configured")
}

func TestPreviewCSV(t *testing.T) {
	h := NewPreviewHandlers(5000)

	content := "h1,h2,h3,h4,h5,h6,h7\n" +
		"2025-09-29,2025-09-28,Oak Park,Hot,1,Web,Google\n" +
		"a,\"unterminated\n" +
		"only,three,fields\n"

	_, out, err := h.PreviewCSV(context.Background(), &mcp.CallToolRequest{}, PreviewCSVInput{Content: content})
	require.NoError(t, err)

	assert.Equal(t, models.LeadHeaders, out.Headers)
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, 1, out.Skipped)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, []string{"only", "three", "fields", "", "", "", ""}, out.Records[1])

	_, out, err = h.PreviewCSV(context.Background(), &mcp.CallToolRequest{}, PreviewCSVInput{Content: content, MaxRows: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Count)

	_, _, err = h.PreviewCSV(context.Background(), &mcp.CallToolRequest{}, PreviewCSVInput{})
	assert.Error(t, err)
}

func readResource(t *testing.T, h *ResourceHandlers, uri string) (*mcp.ReadResourceResult, error) {
	t.Helper()
	return h.ReadResource(context.Background(), &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: uri},
	})
}

func TestReadResource(t *testing.T) {
	database := setupTestDB(t)
	run := &models.Run{ID: "run-1", Trigger: models.TriggerSchedule, StartedAt: openWindow}
	require.NoError(t, db.CreateRun(database, run))
	require.NoError(t, db.UpdateSyncToken(database, db.ServiceSchedule, "2025-09-30T11:20"))
	require.NoError(t, db.CreateSyncLog(database, db.ServiceMail, "m1", "message", "run-1", "{}"))

	h := NewResourceHandlers(database, schedule.NewGate(time.UTC), fixedClock(openWindow))

	res, err := readResource(t, h, "leadsync://runs")
	require.NoError(t, err)
	var runs []RunOutput
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusRunning, runs[0].Status)

	res, err = readResource(t, h, "leadsync://runs/run-1")
	require.NoError(t, err)
	assert.Contains(t, res.Contents[0].Text, `"id": "run-1"`)

	_, err = readResource(t, h, "leadsync://runs/missing")
	assert.Error(t, err)

	res, err = readResource(t, h, "leadsync://schedule")
	require.NoError(t, err)
	assert.Contains(t, res.Contents[0].Text, `"run_now": true`)

	res, err = readResource(t, h, "leadsync://state")
	require.NoError(t, err)
	assert.Contains(t, res.Contents[0].Text, `"last_slot": "2025-09-30T11:20"`)
	assert.Contains(t, res.Contents[0].Text, `"processed_messages": 1`)

	_, err = readResource(t, h, "https://example.com/runs")
	assert.ErrorContains(t, err, "invalid URI scheme")

	_, err = readResource(t, h, "leadsync://nope")
	assert.Error(t, err)
}

func TestSyncReportPrompt(t *testing.T) {
	database := setupTestDB(t)
	h := NewPromptHandlers(database, schedule.NewGate(time.UTC), fixedClock(openWindow))

	get := func(args map[string]string) (*mcp.GetPromptResult, error) {
		return h.GetPrompt(context.Background(), &mcp.GetPromptRequest{
			Params: &mcp.GetPromptParams{Name: "sync-report", Arguments: args},
		})
	}

	res, err := get(nil)
	require.NoError(t, err)
	text := res.Messages[0].Content.(*mcp.TextContent).Text
	assert.Contains(t, text, "No sync runs have been recorded yet.")

	run := &models.Run{ID: "run-1", Trigger: models.TriggerSchedule, StartedAt: openWindow}
	require.NoError(t, db.CreateRun(database, run))
	run.Status = models.RunStatusFallback
	run.ErrorMessage = "quota exceeded"
	require.NoError(t, db.FinishRun(database, run))

	res, err = get(map[string]string{"runs": "5"})
	require.NoError(t, err)
	text = res.Messages[0].Content.(*mcp.TextContent).Text
	assert.Contains(t, text, "[fallback via schedule]")
	assert.Contains(t, text, `error="quota exceeded"`)
	assert.Contains(t, text, "1 of 1 runs")

	_, err = get(map[string]string{"runs": "zero"})
	assert.Error(t, err)

	_, err = h.GetPrompt(context.Background(), &mcp.GetPromptRequest{Params: &mcp.GetPromptParams{Name: "other"}})
	assert.Error(t, err)
}
