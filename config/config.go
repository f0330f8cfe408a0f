// ABOUTME: Runtime configuration loaded from YAML, .env, and environment variables
// ABOUTME: Supplies plain values for the schedule gate, ingestor, merger, and collaborators
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/harperreed/leadsync/models"
	"github.com/harperreed/leadsync/schedule"
)

// Mail providers.
const (
	ProviderGmail = "gmail"
	ProviderIMAP  = "imap"
)

type MailConfig struct {
	Provider          string     `yaml:"provider"`
	From              string     `yaml:"from"`
	Subject           string     `yaml:"subject"`
	Label             string     `yaml:"label"`
	Lookback          string     `yaml:"lookback"`
	RequestsPerSecond float64    `yaml:"requests_per_second"`
	IMAP              IMAPConfig `yaml:"imap"`
}

type IMAPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
}

type ScheduleConfig struct {
	ReferenceDate string   `yaml:"reference_date"`
	Weekday       string   `yaml:"weekday"`
	Windows       []string `yaml:"windows"`
	Timezone      string   `yaml:"timezone"`
	Tick          string   `yaml:"tick"`
}

type IngestConfig struct {
	MaxRows int `yaml:"max_rows"`
}

type SheetsConfig struct {
	SpreadsheetID string `yaml:"spreadsheet_id"`
	SheetName     string `yaml:"sheet_name"`
	Columns       string `yaml:"columns"`
	KeyColumns    []int  `yaml:"key_columns"`
	WriteHeader   bool   `yaml:"write_header"`
	ActivitySheet string `yaml:"activity_sheet"`
}

type ExportConfig struct {
	Dir           string `yaml:"dir"`
	Drive         bool   `yaml:"drive"`
	DriveFolderID string `yaml:"drive_folder_id"`
	ArchiveRaw    bool   `yaml:"archive_raw"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// Config is the full application configuration.
type Config struct {
	Mail     MailConfig     `yaml:"mail"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Sheets   SheetsConfig   `yaml:"sheets"`
	Export   ExportConfig   `yaml:"export"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Database DatabaseConfig `yaml:"database"`
}

// DataDir is the XDG data directory for leadsync state.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "leadsync")
}

// DefaultPath returns the XDG config file location.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "leadsync", "config.yaml")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Mail: MailConfig{
			Provider:          ProviderGmail,
			Label:             "INBOX",
			Lookback:          "24h",
			RequestsPerSecond: 5,
			IMAP:              IMAPConfig{Port: 993},
		},
		Schedule: ScheduleConfig{
			ReferenceDate: schedule.DefaultReference.Format("2006-01-02"),
			Weekday:       "Tuesday",
			Windows:       []string{"11:20", "12:00"},
			Timezone:      "Local",
			Tick:          "30s",
		},
		Ingest: IngestConfig{MaxRows: 5000},
		Sheets: SheetsConfig{
			SheetName:   "Sheet1",
			Columns:     "A:Z",
			KeyColumns:  []int{0, 1, 2, 3, 4, 5, 6},
			WriteHeader: true,
		},
		Export: ExportConfig{
			Dir: filepath.Join(DataDir(), "exports"),
		},
		Log:      LogConfig{Level: "info"},
		Database: DatabaseConfig{Path: filepath.Join(DataDir(), "leadsync.db")},
	}
}

// Load reads .env from the working directory, then the YAML file at path
// (DefaultPath when empty), then environment overrides. A missing file at
// the default location is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	cfg := Default()

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("GMAIL_FROM_EMAIL"); v != "" {
		cfg.Mail.From = v
	}
	if v := os.Getenv("GMAIL_SUBJECT_FILTER"); v != "" {
		cfg.Mail.Subject = v
	}
	if v := os.Getenv("GMAIL_LABEL"); v != "" {
		cfg.Mail.Label = v
	}
	if v := os.Getenv("LEADSYNC_MAIL_PROVIDER"); v != "" {
		cfg.Mail.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("LEADSYNC_IMAP_HOST"); v != "" {
		cfg.Mail.IMAP.Host = v
	}
	if v := os.Getenv("LEADSYNC_IMAP_USERNAME"); v != "" {
		cfg.Mail.IMAP.Username = v
	}
	if v := os.Getenv("GOOGLE_SHEETS_SPREADSHEET_ID"); v != "" {
		cfg.Sheets.SpreadsheetID = v
	}
	if v := os.Getenv("GOOGLE_SHEETS_SHEET_NAME"); v != "" {
		cfg.Sheets.SheetName = v
	}
	if v, ok := os.LookupEnv("GOOGLE_DRIVE_FOLDER_ID"); ok {
		cfg.Export.DriveFolderID = v
	}
	if v := os.Getenv("MAX_ROWS_TO_PROCESS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAX_ROWS_TO_PROCESS %q: %w", v, err)
		}
		cfg.Ingest.MaxRows = n
	}
	if v := os.Getenv("LEADSYNC_REFERENCE_DATE"); v != "" {
		cfg.Schedule.ReferenceDate = v
	}
	if v := os.Getenv("LEADSYNC_WINDOWS"); v != "" {
		cfg.Schedule.Windows = splitList(v)
	}
	if v := os.Getenv("LEADSYNC_TIMEZONE"); v != "" {
		cfg.Schedule.Timezone = v
	}
	if v := os.Getenv("LEADSYNC_KEY_COLUMNS"); v != "" {
		cols, err := parseIntList(v)
		if err != nil {
			return fmt.Errorf("invalid LEADSYNC_KEY_COLUMNS %q: %w", v, err)
		}
		cfg.Sheets.KeyColumns = cols
	}
	if v := os.Getenv("LEADSYNC_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Log.File = v
	}

	// "/" is the historical spelling of "no folder".
	if strings.TrimSpace(cfg.Export.DriveFolderID) == "/" {
		cfg.Export.DriveFolderID = ""
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseIntList(s string) ([]int, error) {
	var out []int
	for _, part := range splitList(s) {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []string

	switch c.Mail.Provider {
	case ProviderGmail:
	case ProviderIMAP:
		if c.Mail.IMAP.Host == "" {
			errs = append(errs, "mail.imap.host is required for the imap provider")
		}
		if c.Mail.IMAP.Username == "" {
			errs = append(errs, "mail.imap.username is required for the imap provider")
		}
		if c.Mail.IMAP.Port <= 0 || c.Mail.IMAP.Port > 65535 {
			errs = append(errs, "mail.imap.port must be 1..65535")
		}
	default:
		errs = append(errs, fmt.Sprintf("mail.provider must be %q or %q", ProviderGmail, ProviderIMAP))
	}

	if d, err := time.ParseDuration(c.Mail.Lookback); err != nil || d <= 0 {
		errs = append(errs, "mail.lookback must be a positive duration")
	}
	if c.Mail.RequestsPerSecond < 0 {
		errs = append(errs, "mail.requests_per_second must be >= 0")
	}

	if _, err := c.Gate(); err != nil {
		errs = append(errs, err.Error())
	}
	if d, err := time.ParseDuration(c.Schedule.Tick); err != nil || d <= 0 || d > time.Minute {
		errs = append(errs, "schedule.tick must be a positive duration of at most 1m")
	}

	if c.Ingest.MaxRows < 1 {
		errs = append(errs, "ingest.max_rows must be >= 1")
	}

	if len(c.Sheets.KeyColumns) == 0 {
		errs = append(errs, "sheets.key_columns must have at least 1 column")
	}
	for i, col := range c.Sheets.KeyColumns {
		if col < 0 {
			errs = append(errs, fmt.Sprintf("sheets.key_columns[%d] must be >= 0", i))
		}
	}
	if c.Sheets.SheetName == "" {
		errs = append(errs, "sheets.sheet_name is required")
	}
	if c.Sheets.Columns == "" {
		errs = append(errs, "sheets.columns is required")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "log.level must be debug, info, warn or error")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// RequireSheet fails when no destination spreadsheet is configured.
func (c *Config) RequireSheet() error {
	if c.Sheets.SpreadsheetID == "" {
		return errors.New("sheets.spreadsheet_id is required (or set GOOGLE_SHEETS_SPREADSHEET_ID)")
	}
	return nil
}

// Location resolves the schedule time zone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Schedule.Timezone {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule.timezone %q: %w", c.Schedule.Timezone, err)
	}
	return loc, nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Gate builds the schedule gate.
func (c *Config) Gate() (schedule.Gate, error) {
	ref, err := time.Parse("2006-01-02", c.Schedule.ReferenceDate)
	if err != nil {
		return schedule.Gate{}, fmt.Errorf("schedule.reference_date must be YYYY-MM-DD: %w", err)
	}

	weekday, ok := weekdays[strings.ToLower(c.Schedule.Weekday)]
	if !ok {
		return schedule.Gate{}, fmt.Errorf("schedule.weekday %q is not a weekday", c.Schedule.Weekday)
	}

	if len(c.Schedule.Windows) == 0 {
		return schedule.Gate{}, errors.New("schedule.windows must have at least 1 entry")
	}
	windows, err := schedule.ParseWindows(c.Schedule.Windows)
	if err != nil {
		return schedule.Gate{}, fmt.Errorf("schedule.windows: %w", err)
	}

	loc, err := c.Location()
	if err != nil {
		return schedule.Gate{}, err
	}

	return schedule.Gate{
		Reference: ref,
		Weekday:   weekday,
		Windows:   windows,
		Location:  loc,
	}, nil
}

// KeyColumns returns a copy of the uniqueness key column indices.
func (c *Config) KeyColumns() []int {
	out := make([]int, len(c.Sheets.KeyColumns))
	copy(out, c.Sheets.KeyColumns)
	return out
}

// SheetRange is the A1 range of the destination sheet, e.g. 'Lead Data'!A:Z.
func (c *Config) SheetRange() string {
	return a1Range(c.Sheets.SheetName, c.Sheets.Columns)
}

// ActivityRange is the A1 range of the activity sheet, or "" when disabled.
func (c *Config) ActivityRange() string {
	if c.Sheets.ActivitySheet == "" {
		return ""
	}
	return a1Range(c.Sheets.ActivitySheet, "A:E")
}

func a1Range(sheet, columns string) string {
	if strings.ContainsAny(sheet, " '!") {
		sheet = "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
	}
	return sheet + "!" + columns
}

// Lookback is the mail search window. Call after Validate.
func (c *Config) Lookback() time.Duration {
	d, _ := time.ParseDuration(c.Mail.Lookback)
	return d
}

// Tick is the daemon's gate polling interval. Call after Validate.
func (c *Config) Tick() time.Duration {
	d, _ := time.ParseDuration(c.Schedule.Tick)
	return d
}

// IMAPAddr is host:port for the IMAP provider.
func (c *Config) IMAPAddr() string {
	return fmt.Sprintf("%s:%d", c.Mail.IMAP.Host, c.Mail.IMAP.Port)
}

// DriveEnabled reports whether fallback files also go to Drive.
func (c *Config) DriveEnabled() bool {
	return c.Export.Drive || c.Export.DriveFolderID != ""
}

// SearchCriteria builds the mail filter for a cycle starting at now.
func (c *Config) SearchCriteria(now time.Time) models.SearchCriteria {
	return models.SearchCriteria{
		From:          c.Mail.From,
		Subject:       c.Mail.Subject,
		Label:         c.Mail.Label,
		HasAttachment: true,
		Since:         now.Add(-c.Lookback()),
	}
}

// Save writes cfg as YAML at path, creating parent directories.
func Save(path string, cfg *Config) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return os.Rename(tmp, path)
}
