// ABOUTME: MCP tool handler for schedule checks
// ABOUTME: Reports whether the gate is open at a given instant and when it next opens
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/leadsync/schedule"
)

type ScheduleHandlers struct {
	gate schedule.Gate
	now  func() time.Time
}

func NewScheduleHandlers(gate schedule.Gate, now func() time.Time) *ScheduleHandlers {
	if now == nil {
		now = time.Now
	}
	return &ScheduleHandlers{gate: gate, now: now}
}

type CheckScheduleInput struct {
	At string `json:"at,omitempty" jsonschema:"Instant to check, RFC3339 (default now)"`
}

type CheckScheduleOutput struct {
	At      string `json:"at"`
	RunNow  bool   `json:"run_now"`
	RunDay  bool   `json:"run_day"`
	OnWeek  bool   `json:"on_week"`
	Slot    string `json:"slot,omitempty"`
	NextRun string `json:"next_run,omitempty"`
	Gate    string `json:"gate"`
}

func (h *ScheduleHandlers) CheckSchedule(ctx context.Context, req *mcp.CallToolRequest, input CheckScheduleInput) (*mcp.CallToolResult, CheckScheduleOutput, error) {
	at := h.now()
	if input.At != "" {
		t, err := time.Parse(time.RFC3339, input.At)
		if err != nil {
			return nil, CheckScheduleOutput{}, fmt.Errorf("invalid at: %w", err)
		}
		at = t
	}

	return &mcp.CallToolResult{}, checkSchedule(h.gate, at), nil
}

func checkSchedule(gate schedule.Gate, at time.Time) CheckScheduleOutput {
	out := CheckScheduleOutput{
		At:     at.Format(time.RFC3339),
		RunNow: gate.ShouldRun(at),
		RunDay: gate.IsRunDay(at),
		OnWeek: gate.IsOnWeek(at),
		Gate:   gate.String(),
	}
	if out.RunNow {
		out.Slot = gate.SlotKey(at)
	}
	if next := gate.NextRun(at); !next.IsZero() {
		out.NextRun = next.Format(time.RFC3339)
	}
	return out
}
