// ABOUTME: Entry point for the leadsync CLI and MCP server
// ABOUTME: Loads config, opens state, and routes to subcommands
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/harperreed/leadsync/cli"
	"github.com/harperreed/leadsync/config"
	"github.com/harperreed/leadsync/db"
	"github.com/harperreed/leadsync/logging"
)

const version = "0.1.0"

func main() {
	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	configPath := flag.String("config", "", "Config file (default: ~/.config/leadsync/config.yaml)")
	dbPath := flag.String("db-path", "", "Database path (default: ~/.local/share/leadsync/leadsync.db)")

	// Parse global flags but don't fail on unknown (for subcommands)
	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("leadsync version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	command := args[0]
	commandArgs := args[1:]

	// init writes the config, so it runs before one is loaded.
	if command == "init" {
		if err := cli.InitCommand(*configPath, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Commands that only need config
	switch command {
	case "auth":
		run(cli.AuthCommand(cfg, commandArgs))
		return
	case "check":
		run(cli.CheckCommand(cfg, commandArgs))
		return
	case "imap-password":
		run(cli.IMAPPasswordCommand(cfg, commandArgs))
		return
	}

	database, err := db.OpenDatabase(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	app := &cli.App{Config: cfg, DB: database, Logger: logger}

	switch command {
	case "run":
		err = cli.RunCommand(app, commandArgs)
	case "daemon":
		err = cli.DaemonCommand(app, commandArgs)
	case "ingest":
		err = cli.IngestCommand(app, commandArgs)
	case "status":
		err = cli.StatusCommand(app, commandArgs)
	case "tui":
		err = cli.TUICommand(app, commandArgs)
	case "mcp":
		err = cli.MCPCommand(app, version)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		_ = database.Close()
		os.Exit(1)
	}

	if err != nil {
		_ = logger.Sync()
		_ = database.Close()
		log.Fatalf("Error: %v", err)
	}
}

func run(err error) {
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func printUsage() {
	fmt.Printf(`leadsync v%s - Lead report mailbox to Google Sheets sync

USAGE:
  leadsync [global flags] <command> [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --config <path>        Config file (default: ~/.config/leadsync/config.yaml)
  --db-path <path>       Database path (default: ~/.local/share/leadsync/leadsync.db)

COMMANDS:
  init                   Write a default config file
    --spreadsheet <id>     Google Sheets spreadsheet ID
    --from <email>         Only ingest mail from this sender
    --force                Overwrite an existing config

  auth                   Connect a Google account (browser OAuth flow)
    --check                Verify stored credentials against Gmail and Sheets

  check                  Show whether the schedule permits a run
    --at <time>            RFC3339 or 'YYYY-MM-DD HH:MM' (default: now)

  run                    Run one sync cycle if the schedule window is open
    --force                Run regardless of the schedule

  daemon                 Run cycles in every permitted window until stopped
    --metrics-addr <addr>  Serve /metrics and /health (default from config)

  ingest [flags] <file>  Normalize a local CSV file and preview the records
    --merge                Merge the records into the sheet
    --export               Write the flat CSV to the export directory
    --preview <n>          Records to print (default: 10)
    --max-rows <n>         Maximum data rows to process

  status                 Show schedule, sync state, and recent runs
    --limit <n>            Runs to show (default: 10)

  tui                    Interactive dashboard
  mcp                    Start MCP server on stdio

  imap-password set      Store the IMAP app password in the OS keyring
  imap-password delete   Remove it

ENVIRONMENT:
  GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET     OAuth app credentials
  GOOGLE_SHEETS_SPREADSHEET_ID               Destination spreadsheet
  GMAIL_FROM_EMAIL, GMAIL_SUBJECT_FILTER     Mail search filter
  LOG_LEVEL, LOG_FILE                        Logging

EXAMPLES:
  # Is it a run week?
  leadsync check --at "2025-09-30 11:20"

  # Try a report file before wiring the sheet
  leadsync ingest ~/Downloads/leads.csv

  # Run now regardless of the schedule
  leadsync run --force

`, version)
}
