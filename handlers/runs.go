// ABOUTME: MCP tool handlers for sync runs
// ABOUTME: Lists recorded cycles and triggers a new cycle, gate-checked unless forced
package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/leadsync/db"
	"github.com/harperreed/leadsync/models"
	"github.com/harperreed/leadsync/pipeline"
	"github.com/harperreed/leadsync/schedule"
)

type RunHandlers struct {
	db     *sql.DB
	cycler pipeline.Cycler
	gate   schedule.Gate
	now    func() time.Time
}

// NewRunHandlers returns run handlers. cycler may be nil, in which case
// run_cycle reports that syncing is not configured.
func NewRunHandlers(database *sql.DB, cycler pipeline.Cycler, gate schedule.Gate, now func() time.Time) *RunHandlers {
	if now == nil {
		now = time.Now
	}
	return &RunHandlers{db: database, cycler: cycler, gate: gate, now: now}
}

type RunOutput struct {
	ID              string `json:"id"`
	Trigger         string `json:"trigger"`
	Status          string `json:"status"`
	StartedAt       string `json:"started_at"`
	FinishedAt      string `json:"finished_at,omitempty"`
	MessagesSeen    int    `json:"messages_seen"`
	RecordsIngested int    `json:"records_ingested"`
	RowsSkipped     int    `json:"rows_skipped"`
	RowsAppended    int    `json:"rows_appended"`
	Duplicates      int    `json:"duplicates"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

func runToOutput(r *models.Run) RunOutput {
	out := RunOutput{
		ID:              r.ID,
		Trigger:         r.Trigger,
		Status:          r.Status,
		StartedAt:       r.StartedAt.Format(time.RFC3339),
		MessagesSeen:    r.MessagesSeen,
		RecordsIngested: r.RecordsIngested,
		RowsSkipped:     r.RowsSkipped,
		RowsAppended:    r.RowsAppended,
		Duplicates:      r.Duplicates,
		ErrorMessage:    r.ErrorMessage,
	}
	if r.FinishedAt != nil {
		out.FinishedAt = r.FinishedAt.Format(time.RFC3339)
	}
	return out
}

type ListRunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum runs to return (default 20)"`
}

type ListRunsOutput struct {
	Runs  []RunOutput `json:"runs"`
	Count int         `json:"count"`
}

func (h *RunHandlers) ListRuns(ctx context.Context, req *mcp.CallToolRequest, input ListRunsInput) (*mcp.CallToolResult, ListRunsOutput, error) {
	runs, err := db.ListRuns(h.db, input.Limit)
	if err != nil {
		return nil, ListRunsOutput{}, fmt.Errorf("failed to list runs: %w", err)
	}

	out := ListRunsOutput{Runs: make([]RunOutput, len(runs))}
	for i := range runs {
		out.Runs[i] = runToOutput(&runs[i])
	}
	out.Count = len(out.Runs)

	return &mcp.CallToolResult{}, out, nil
}

type RunCycleInput struct {
	Force bool `json:"force,omitempty" jsonschema:"Run even when the schedule gate is closed"`
}

type RunCycleOutput struct {
	Ran             bool     `json:"ran"`
	Reason          string   `json:"reason,omitempty"`
	NextRun         string   `json:"next_run,omitempty"`
	RunID           string   `json:"run_id,omitempty"`
	Status          string   `json:"status,omitempty"`
	MessagesSeen    int      `json:"messages_seen"`
	RecordsIngested int      `json:"records_ingested"`
	RowsSkipped     int      `json:"rows_skipped"`
	RowsAppended    int      `json:"rows_appended"`
	Duplicates      int      `json:"duplicates"`
	Exports         []string `json:"exports,omitempty"`
	Errors          []string `json:"errors,omitempty"`
}

func (h *RunHandlers) RunCycle(ctx context.Context, req *mcp.CallToolRequest, input RunCycleInput) (*mcp.CallToolResult, RunCycleOutput, error) {
	if h.cycler == nil {
		return nil, RunCycleOutput{}, fmt.Errorf("sync is not configured (set sheets.spreadsheet_id and run 'leadsync auth')")
	}

	now := h.now()
	if !input.Force && !h.gate.ShouldRun(now) {
		out := RunCycleOutput{Reason: "outside the schedule window"}
		if next := h.gate.NextRun(now); !next.IsZero() {
			out.NextRun = next.Format(time.RFC3339)
		}
		return &mcp.CallToolResult{}, out, nil
	}

	s, err := h.cycler.RunCycle(ctx, models.TriggerMCP)
	if err != nil {
		return nil, RunCycleOutput{}, fmt.Errorf("sync cycle failed: %w", err)
	}

	return &mcp.CallToolResult{}, RunCycleOutput{
		Ran:             true,
		RunID:           s.RunID,
		Status:          s.Status,
		MessagesSeen:    s.MessagesSeen,
		RecordsIngested: s.RecordsIngested,
		RowsSkipped:     s.RowsSkipped,
		RowsAppended:    s.RowsAppended,
		Duplicates:      s.Duplicates,
		Exports:         s.Exports,
		Errors:          s.Errors,
	}, nil
}
