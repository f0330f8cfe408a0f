// ABOUTME: MCP tool handler that normalizes pasted CSV content without writing anywhere
// ABOUTME: Useful for checking an attachment before it reaches the sheet
package handlers

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/leadsync/ingest"
	"github.com/harperreed/leadsync/models"
)

type PreviewHandlers struct {
	maxRows int
}

func NewPreviewHandlers(maxRows int) *PreviewHandlers {
	return &PreviewHandlers{maxRows: maxRows}
}

type PreviewCSVInput struct {
	Content string `json:"content" jsonschema:"Raw CSV text including the header line (required)"`
	MaxRows int    `json:"max_rows,omitempty" jsonschema:"Maximum data rows to process (default from config)"`
}

type RowFailureOutput struct {
	Line  string `json:"line"`
	Error string `json:"error"`
}

type PreviewCSVOutput struct {
	Headers  []string           `json:"headers"`
	Records  [][]string         `json:"records"`
	Count    int                `json:"count"`
	Skipped  int                `json:"skipped"`
	Failures []RowFailureOutput `json:"failures,omitempty"`
}

func (h *PreviewHandlers) PreviewCSV(ctx context.Context, req *mcp.CallToolRequest, input PreviewCSVInput) (*mcp.CallToolResult, PreviewCSVOutput, error) {
	if input.Content == "" {
		return nil, PreviewCSVOutput{}, fmt.Errorf("content is required")
	}

	maxRows := input.MaxRows
	if maxRows <= 0 {
		maxRows = h.maxRows
	}

	res := ingest.NewIngestor(maxRows, nil).Ingest([]byte(input.Content))

	out := PreviewCSVOutput{
		Headers: append([]string(nil), models.LeadHeaders...),
		Records: make([][]string, 0, len(res.Records)),
		Count:   len(res.Records),
		Skipped: res.Skipped,
	}
	for _, rec := range res.Records {
		out.Records = append(out.Records, rec.Values())
	}
	for _, f := range res.Failures {
		out.Failures = append(out.Failures, RowFailureOutput{Line: f.Line, Error: f.Err.Error()})
	}

	return &mcp.CallToolResult{}, out, nil
}
