// ABOUTME: MCP server subcommand
// ABOUTME: Exposes schedule checks, run history, CSV preview, and run-now over stdio
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/harperreed/leadsync/handlers"
	"github.com/harperreed/leadsync/pipeline"
	"github.com/harperreed/leadsync/schedule"
)

// MCPCommand starts the MCP server on stdio
func MCPCommand(app *App, version string) error {
	logger := app.logger()
	logger.Info("starting leadsync MCP server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gate, err := app.Config.Gate()
	if err != nil {
		return err
	}

	// Without a sheet or credentials the read-only tools still work.
	var cycler pipeline.Cycler
	p, release, err := app.BuildPipeline(ctx)
	if err != nil {
		logger.Warn("run_cycle disabled", zap.Error(err))
	} else {
		defer release()
		cycler = p
	}

	server := buildMCPServer(app, gate, cycler, version)
	return server.Run(ctx, &mcp.StdioTransport{})
}

func buildMCPServer(app *App, gate schedule.Gate, cycler pipeline.Cycler, version string) *mcp.Server {
	scheduleHandlers := handlers.NewScheduleHandlers(gate, nil)
	runHandlers := handlers.NewRunHandlers(app.DB, cycler, gate, nil)
	previewHandlers := handlers.NewPreviewHandlers(app.Config.Ingest.MaxRows)
	resourceHandlers := handlers.NewResourceHandlers(app.DB, gate, nil)
	promptHandlers := handlers.NewPromptHandlers(app.DB, gate, nil)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "leadsync",
		Version: version,
	}, nil)

	// Register tools
	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_schedule",
		Description: "Report whether the biweekly schedule permits a run at an instant (default now) and when the next window opens",
	}, scheduleHandlers.CheckSchedule)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_runs",
		Description: "List recent sync cycles, newest first, with record and row counts",
	}, runHandlers.ListRuns)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "preview_csv",
		Description: "Normalize lead CSV content without touching the sheet and show the resulting records",
	}, previewHandlers.PreviewCSV)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_cycle",
		Description: "Run one sync cycle: search mail, ingest CSV attachments, and merge new rows into the sheet. Respects the schedule unless force is set",
	}, runHandlers.RunCycle)

	// Register resources
	server.AddResource(&mcp.Resource{
		URI:         "leadsync://runs",
		Name:        "runs",
		Description: "Recent sync cycles",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "leadsync://runs/{id}",
		Name:        "run",
		Description: "One sync cycle by id",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResource(&mcp.Resource{
		URI:         "leadsync://schedule",
		Name:        "schedule",
		Description: "Current schedule gate state and next run",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResource(&mcp.Resource{
		URI:         "leadsync://state",
		Name:        "state",
		Description: "Sync service state and processed message count",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	// Register prompts
	server.AddPrompt(&mcp.Prompt{
		Name:        "sync-report",
		Description: "Summarize recent sync cycles and the upcoming schedule",
		Arguments: []*mcp.PromptArgument{
			{Name: "runs", Description: "Number of recent runs to include (default 10)"},
		},
	}, promptHandlers.GetPrompt)

	return server
}
