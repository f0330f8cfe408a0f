// ABOUTME: Config file bootstrap command
// ABOUTME: Writes the default configuration for editing
package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/harperreed/leadsync/config"
)

// InitCommand writes a default config file at path (config.DefaultPath when empty).
func InitCommand(path string, args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite an existing config file")
	spreadsheet := fs.String("spreadsheet", "", "Google Sheets spreadsheet ID")
	from := fs.String("from", "", "Only ingest mail from this sender")
	_ = fs.Parse(args)

	if path == "" {
		path = config.DefaultPath()
	}

	if _, err := os.Stat(path); err == nil && !*force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check config: %w", err)
	}

	cfg := config.Default()
	cfg.Sheets.SpreadsheetID = *spreadsheet
	cfg.Mail.From = *from

	if err := config.Save(path, cfg); err != nil {
		return err
	}

	fmt.Printf("✓ Config written to %s\n", path)
	if cfg.Sheets.SpreadsheetID == "" {
		fmt.Println("  Set sheets.spreadsheet_id before running a cycle.")
	}
	fmt.Println("\nNext step: Run 'leadsync auth' to connect your Google account")
	return nil
}
