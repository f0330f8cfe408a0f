// ABOUTME: Tests for configuration loading, env overrides, and validation
// ABOUTME: Uses temp files and t.Setenv so no real user config is touched
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/leadsync/schedule"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GMAIL_FROM_EMAIL", "GMAIL_SUBJECT_FILTER", "GMAIL_LABEL",
		"GOOGLE_SHEETS_SPREADSHEET_ID", "GOOGLE_SHEETS_SHEET_NAME", "GOOGLE_DRIVE_FOLDER_ID",
		"MAX_ROWS_TO_PROCESS", "LOG_LEVEL", "LOG_FILE",
		"LEADSYNC_MAIL_PROVIDER", "LEADSYNC_REFERENCE_DATE", "LEADSYNC_WINDOWS",
		"LEADSYNC_TIMEZONE", "LEADSYNC_KEY_COLUMNS", "LEADSYNC_METRICS_ADDR",
		"LEADSYNC_IMAP_HOST", "LEADSYNC_IMAP_USERNAME",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	gate, err := cfg.Gate()
	require.NoError(t, err)
	assert.Equal(t, time.Tuesday, gate.Weekday)
	assert.Equal(t, schedule.DefaultWindows, gate.Windows)
	assert.True(t, gate.Reference.Equal(schedule.DefaultReference))

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, cfg.KeyColumns())
	assert.Equal(t, "Sheet1!A:Z", cfg.SheetRange())
	assert.Equal(t, 24*time.Hour, cfg.Lookback())
	assert.Equal(t, 30*time.Second, cfg.Tick())
	assert.Error(t, cfg.RequireSheet())
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
mail:
  from: leads@example.com
  subject: New Leads
  lookback: 48h
sheets:
  spreadsheet_id: from-file
  sheet_name: Lead Data
  key_columns: [0, 2]
schedule:
  windows: ["09:00"]
  timezone: UTC
`)

	t.Setenv("GOOGLE_SHEETS_SPREADSHEET_ID", "from-env")
	t.Setenv("MAX_ROWS_TO_PROCESS", "250")
	t.Setenv("LEADSYNC_WINDOWS", "11:20, 12:00")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "leads@example.com", cfg.Mail.From)
	assert.Equal(t, "from-env", cfg.Sheets.SpreadsheetID)
	assert.Equal(t, 250, cfg.Ingest.MaxRows)
	assert.Equal(t, []string{"11:20", "12:00"}, cfg.Schedule.Windows)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []int{0, 2}, cfg.KeyColumns())
	assert.Equal(t, "'Lead Data'!A:Z", cfg.SheetRange())
	assert.Equal(t, 48*time.Hour, cfg.Lookback())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	// Fields absent from the file keep their defaults.
	assert.Equal(t, "INBOX", cfg.Mail.Label)
	assert.True(t, cfg.Sheets.WriteHeader)
}

func TestLoadMissingFiles(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err, "an explicit path must exist")

	path := writeConfig(t, "mail: [not, a, map]\n")
	_, err = Load(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestDriveFolderSlashMeansNone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/", ""},
		{" / ", ""},
		{"", ""},
		{"abc123", "abc123"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("GOOGLE_DRIVE_FOLDER_ID", tt.in)

			cfg := Default()
			require.NoError(t, applyEnvOverrides(cfg))
			assert.Equal(t, tt.want, cfg.Export.DriveFolderID)
			assert.Equal(t, tt.want != "", cfg.DriveEnabled())
		})
	}
}

func TestEnvOverrideErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_ROWS_TO_PROCESS", "lots")
	assert.Error(t, applyEnvOverrides(Default()))

	clearEnv(t)
	t.Setenv("LEADSYNC_KEY_COLUMNS", "0,x")
	assert.Error(t, applyEnvOverrides(Default()))

	clearEnv(t)
	t.Setenv("LEADSYNC_KEY_COLUMNS", "1, 3")
	cfg := Default()
	require.NoError(t, applyEnvOverrides(cfg))
	assert.Equal(t, []int{1, 3}, cfg.KeyColumns())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown provider", func(c *Config) { c.Mail.Provider = "pop3" }, "mail.provider"},
		{"imap needs host", func(c *Config) { c.Mail.Provider = ProviderIMAP; c.Mail.IMAP.Username = "u" }, "mail.imap.host"},
		{"bad lookback", func(c *Config) { c.Mail.Lookback = "yesterday" }, "mail.lookback"},
		{"bad reference", func(c *Config) { c.Schedule.ReferenceDate = "09/30/2025" }, "reference_date"},
		{"bad weekday", func(c *Config) { c.Schedule.Weekday = "Funday" }, "weekday"},
		{"bad window", func(c *Config) { c.Schedule.Windows = []string{"25:00"} }, "schedule.windows"},
		{"no windows", func(c *Config) { c.Schedule.Windows = nil }, "schedule.windows"},
		{"bad timezone", func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }, "timezone"},
		{"tick too long", func(c *Config) { c.Schedule.Tick = "5m" }, "schedule.tick"},
		{"max rows", func(c *Config) { c.Ingest.MaxRows = 0 }, "max_rows"},
		{"no key columns", func(c *Config) { c.Sheets.KeyColumns = nil }, "key_columns"},
		{"negative key column", func(c *Config) { c.Sheets.KeyColumns = []int{0, -1} }, "key_columns[1]"},
		{"log level", func(c *Config) { c.Log.Level = "chatty" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Ingest.MaxRows = 0
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_rows")
	assert.Contains(t, err.Error(), "log.level")
}

func TestRanges(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "", cfg.ActivityRange())

	cfg.Sheets.ActivitySheet = "Bob's Log"
	assert.Equal(t, "'Bob''s Log'!A:E", cfg.ActivityRange())

	cfg.Mail.IMAP.Host = "imap.example.com"
	assert.Equal(t, "imap.example.com:993", cfg.IMAPAddr())
}

func TestSearchCriteria(t *testing.T) {
	cfg := Default()
	cfg.Mail.From = "a@b.com"
	now := time.Date(2025, 9, 30, 11, 20, 0, 0, time.UTC)

	c := cfg.SearchCriteria(now)
	assert.Equal(t, "a@b.com", c.From)
	assert.Equal(t, "INBOX", c.Label)
	assert.True(t, c.HasAttachment)
	assert.True(t, c.Since.Equal(now.Add(-24*time.Hour)))
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Sheets.SpreadsheetID = "sheet-1"
	cfg.Schedule.Windows = []string{"08:00"}
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sheet-1", loaded.Sheets.SpreadsheetID)
	assert.Equal(t, []string{"08:00"}, loaded.Schedule.Windows)
}
