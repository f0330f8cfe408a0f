// ABOUTME: Shared wiring for commands that reach the mailbox and the sheet
// ABOUTME: Builds the mail source, merger, exporters, and pipeline from config
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/harperreed/leadsync/config"
	"github.com/harperreed/leadsync/ingest"
	"github.com/harperreed/leadsync/merge"
	"github.com/harperreed/leadsync/metrics"
	"github.com/harperreed/leadsync/models"
	"github.com/harperreed/leadsync/pipeline"
	"github.com/harperreed/leadsync/secrets"
	"github.com/harperreed/leadsync/sync"
)

// App carries what every command needs.
type App struct {
	Config  *config.Config
	DB      *sql.DB
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

func (a *App) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

// newLimiter paces Google API calls. A non-positive rate disables pacing.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// mailSource returns the configured mail source and a function that releases it.
func (a *App) mailSource(ctx context.Context, client *http.Client) (pipeline.MailSource, func(), error) {
	cfg := a.Config
	switch cfg.Mail.Provider {
	case config.ProviderIMAP:
		account := secrets.IMAPKeyringAccount(cfg.Mail.IMAP.Username, cfg.Mail.IMAP.Host)
		password, err := secrets.GetIMAPPassword(account)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get IMAP password (run 'leadsync imap-password set'): %w", err)
		}
		src, err := sync.NewIMAPSource(sync.IMAPConfig{
			Addr:     cfg.IMAPAddr(),
			Username: cfg.Mail.IMAP.Username,
			Password: password,
		}, a.logger())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create IMAP source: %w", err)
		}
		return src, func() {
			if err := src.Close(); err != nil {
				a.logger().Warn("failed to close IMAP connection", zap.Error(err))
			}
		}, nil
	default:
		svc, err := sync.NewGmailClient(ctx, client)
		if err != nil {
			return nil, nil, err
		}
		return sync.NewGmailSource(svc, newLimiter(cfg.Mail.RequestsPerSecond), a.logger()), func() {}, nil
	}
}

// sheetDestination returns the Sheets destination for the configured spreadsheet.
func (a *App) sheetDestination(ctx context.Context, client *http.Client) (*sync.SheetsDestination, error) {
	if err := a.Config.RequireSheet(); err != nil {
		return nil, err
	}
	svc, err := sync.NewSheetsClient(ctx, client)
	if err != nil {
		return nil, err
	}
	return sync.NewSheetsDestination(svc, a.Config.Sheets.SpreadsheetID,
		newLimiter(a.Config.Mail.RequestsPerSecond), a.logger()), nil
}

func (a *App) newMerger(dest merge.Destination) (*merge.Merger, error) {
	opts := []merge.Option{merge.WithLogger(a.logger())}
	if a.Config.Sheets.WriteHeader {
		opts = append(opts, merge.WithHeader(models.LeadHeaders))
	}
	return merge.NewMerger(dest, a.Config.SheetRange(), a.Config.KeyColumns(), opts...)
}

// exporters returns the fallback exporters and the optional raw archive.
// client may be nil when Drive is not enabled.
func (a *App) exporters(ctx context.Context, client *http.Client) ([]pipeline.Exporter, pipeline.Exporter, error) {
	cfg := a.Config
	local := ingest.LocalExporter{Dir: cfg.Export.Dir}
	exporters := []pipeline.Exporter{local}

	var archive pipeline.Exporter
	if cfg.Export.ArchiveRaw {
		archive = ingest.LocalExporter{Dir: filepath.Join(cfg.Export.Dir, "raw")}
	}

	if cfg.DriveEnabled() {
		svc, err := sync.NewDriveClient(ctx, client)
		if err != nil {
			return nil, nil, err
		}
		drive := sync.NewDriveExporter(svc, cfg.Export.DriveFolderID, a.logger())
		exporters = append(exporters, drive)
		if cfg.Export.ArchiveRaw {
			archive = drive
		}
	}
	return exporters, archive, nil
}

// googleClient returns an authenticated client when any Google service is in use.
func (a *App) googleClient(ctx context.Context) (*http.Client, error) {
	client, err := sync.NewHTTPClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}
	return client, nil
}

// BuildPipeline wires a pipeline from config. The returned function releases
// the mail connection and must be called when done.
func (a *App) BuildPipeline(ctx context.Context) (*pipeline.Pipeline, func(), error) {
	if err := a.Config.RequireSheet(); err != nil {
		return nil, nil, err
	}

	client, err := a.googleClient(ctx)
	if err != nil {
		return nil, nil, err
	}

	source, release, err := a.mailSource(ctx, client)
	if err != nil {
		return nil, nil, err
	}

	dest, err := a.sheetDestination(ctx, client)
	if err != nil {
		release()
		return nil, nil, err
	}
	merger, err := a.newMerger(dest)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("failed to create merger: %w", err)
	}

	exporters, archive, err := a.exporters(ctx, client)
	if err != nil {
		release()
		return nil, nil, err
	}

	opts := pipeline.Options{
		DB:        a.DB,
		Source:    source,
		Ingestor:  ingest.NewIngestor(a.Config.Ingest.MaxRows, a.logger()),
		Merger:    merger,
		Criteria:  a.Config.SearchCriteria,
		Exporters: exporters,
		Archive:   archive,
		Metrics:   a.Metrics,
		Logger:    a.logger(),
	}
	if rng := a.Config.ActivityRange(); rng != "" {
		opts.Activity = dest
		opts.ActivityRange = rng
	}

	p, err := pipeline.New(opts)
	if err != nil {
		release()
		return nil, nil, err
	}
	return p, release, nil
}
