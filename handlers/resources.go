// ABOUTME: MCP resource handlers exposing sync history and schedule state
// ABOUTME: Serves leadsync:// URIs as read-only JSON documents
package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/leadsync/db"
	"github.com/harperreed/leadsync/schedule"
)

const resourceScheme = "leadsync://"

type ResourceHandlers struct {
	db   *sql.DB
	gate schedule.Gate
	now  func() time.Time
}

func NewResourceHandlers(database *sql.DB, gate schedule.Gate, now func() time.Time) *ResourceHandlers {
	if now == nil {
		now = time.Now
	}
	return &ResourceHandlers{db: database, gate: gate, now: now}
}

// ReadResource handles resource read requests
func (h *ResourceHandlers) ReadResource(ctx context.Context, request *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := request.Params.URI
	if !strings.HasPrefix(uri, resourceScheme) {
		return nil, fmt.Errorf("invalid URI scheme: expected %s", resourceScheme)
	}

	parts := strings.Split(strings.TrimPrefix(uri, resourceScheme), "/")

	switch parts[0] {
	case "runs":
		if len(parts) == 1 || parts[1] == "" {
			return h.readRuns()
		}
		return h.readRun(parts[1])

	case "schedule":
		return jsonResource(uri, checkSchedule(h.gate, h.now()))

	case "state":
		return h.readState()

	default:
		return nil, mcp.ResourceNotFoundError(uri)
	}
}

func (h *ResourceHandlers) readRuns() (*mcp.ReadResourceResult, error) {
	runs, err := db.ListRuns(h.db, 100)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch runs: %w", err)
	}

	out := make([]RunOutput, len(runs))
	for i := range runs {
		out[i] = runToOutput(&runs[i])
	}
	return jsonResource(resourceScheme+"runs", out)
}

func (h *ResourceHandlers) readRun(id string) (*mcp.ReadResourceResult, error) {
	run, err := db.GetRun(h.db, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch run: %w", err)
	}
	uri := resourceScheme + "runs/" + id
	if run == nil {
		return nil, mcp.ResourceNotFoundError(uri)
	}
	return jsonResource(uri, runToOutput(run))
}

func (h *ResourceHandlers) readState() (*mcp.ReadResourceResult, error) {
	states, err := db.GetAllSyncStates(h.db)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sync state: %w", err)
	}

	processed, err := db.CountSyncLogs(h.db, db.ServiceMail)
	if err != nil {
		return nil, fmt.Errorf("failed to count processed messages: %w", err)
	}

	type stateOutput struct {
		Service      string `json:"service"`
		Status       string `json:"status"`
		LastSyncTime string `json:"last_sync_time,omitempty"`
		LastSlot     string `json:"last_slot,omitempty"`
		ErrorMessage string `json:"error_message,omitempty"`
	}
	out := struct {
		Services          []stateOutput `json:"services"`
		ProcessedMessages int           `json:"processed_messages"`
	}{ProcessedMessages: processed}

	for _, s := range states {
		so := stateOutput{Service: s.Service, Status: s.Status}
		if s.LastSyncTime != nil {
			so.LastSyncTime = s.LastSyncTime.Format(time.RFC3339)
		}
		if s.LastSyncToken != nil {
			so.LastSlot = *s.LastSyncToken
		}
		if s.ErrorMessage != nil {
			so.ErrorMessage = *s.ErrorMessage
		}
		out.Services = append(out.Services, so)
	}

	return jsonResource(resourceScheme+"state", out)
}

func jsonResource(uri string, v interface{}) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}

	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
		{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}}, nil
}
