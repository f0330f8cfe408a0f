// ABOUTME: MCP prompt handlers for reviewing lead sync health
// ABOUTME: Builds prompts from recent run history and the schedule state
package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/leadsync/db"
	"github.com/harperreed/leadsync/models"
	"github.com/harperreed/leadsync/schedule"
)

type PromptHandlers struct {
	db   *sql.DB
	gate schedule.Gate
	now  func() time.Time
}

func NewPromptHandlers(database *sql.DB, gate schedule.Gate, now func() time.Time) *PromptHandlers {
	if now == nil {
		now = time.Now
	}
	return &PromptHandlers{db: database, gate: gate, now: now}
}

// GetPrompt generates the prompt message based on the template
func (h *PromptHandlers) GetPrompt(ctx context.Context, request *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	switch request.Params.Name {
	case "sync-report":
		return h.getSyncReportPrompt(request.Params.Arguments)
	default:
		return nil, fmt.Errorf("unknown prompt: %s", request.Params.Name)
	}
}

func (h *PromptHandlers) getSyncReportPrompt(args map[string]string) (*mcp.GetPromptResult, error) {
	limit := 10
	if v := args["runs"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("runs must be a positive number")
		}
		limit = n
	}

	runs, err := db.ListRuns(h.db, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch runs: %w", err)
	}

	var promptText strings.Builder
	promptText.WriteString("Please review the health of the lead sync job.\n\n")
	promptText.WriteString(fmt.Sprintf("Schedule: %s\n", h.gate.String()))
	if next := h.gate.NextRun(h.now()); !next.IsZero() {
		promptText.WriteString(fmt.Sprintf("Next run: %s\n", next.Format(time.RFC1123)))
	}

	if len(runs) == 0 {
		promptText.WriteString("\nNo sync runs have been recorded yet.\n")
	} else {
		promptText.WriteString(fmt.Sprintf("\nLast %d runs (newest first):\n", len(runs)))
		failed := 0
		for _, r := range runs {
			if r.Status == models.RunStatusFailed || r.Status == models.RunStatusFallback {
				failed++
			}
			promptText.WriteString(fmt.Sprintf("- %s [%s via %s] messages=%d records=%d skipped=%d appended=%d duplicates=%d",
				r.StartedAt.Format("2006-01-02 15:04"), r.Status, r.Trigger,
				r.MessagesSeen, r.RecordsIngested, r.RowsSkipped, r.RowsAppended, r.Duplicates))
			if r.ErrorMessage != "" {
				promptText.WriteString(fmt.Sprintf(" error=%q", r.ErrorMessage))
			}
			promptText.WriteString("\n")
		}
		promptText.WriteString(fmt.Sprintf("\n%d of %d runs did not reach the sheet cleanly.\n", failed, len(runs)))
	}

	promptText.WriteString("\nPlease provide:")
	promptText.WriteString("\n1. Whether scheduled windows are firing as expected")
	promptText.WriteString("\n2. Any recurring errors and their likely cause")
	promptText.WriteString("\n3. Whether skipped rows or fallback exports need attention")

	return &mcp.GetPromptResult{
		Description: "Lead sync health report",
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: promptText.String()},
			},
		},
	}, nil
}
