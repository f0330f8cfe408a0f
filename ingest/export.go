// ABOUTME: Flat-file rendering and export of normalized lead records
// ABOUTME: Builds the fallback CSV, timestamped file names, and a local-directory exporter
package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harperreed/leadsync/models"
)

// RenderCSV writes records under the standard lead header. No records
// renders nothing.
func RenderCSV(records []models.LeadRecord) ([]byte, error) {
	if len(records) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(models.LeadHeaders); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, rec := range records {
		if err := w.Write(rec.Values()); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}

	return buf.Bytes(), nil
}

// OutputFilename names a processed export, e.g. Lead_Data_2025-09-30_11H20.csv.
func OutputFilename(now time.Time) string {
	return fmt.Sprintf("Lead_Data_%s.csv", now.UTC().Format("2006-01-02_15H04"))
}

// ArchiveFilename names an archived raw attachment.
func ArchiveFilename(now time.Time) string {
	return fmt.Sprintf("New Leads - Daily TMP %s.csv", now.UTC().Format("2006-01-02_15-04-05"))
}

// maxNameAttempts bounds the numbered variants tried for one export name.
const maxNameAttempts = 1000

// LocalExporter writes exports into a directory. Existing files are never
// overwritten.
type LocalExporter struct {
	Dir string
}

// Export writes data to Dir/name and returns the full path. When name is
// taken, a numbered variant such as Lead_Data_2025-09-30_11H20_2.csv is used.
func (e LocalExporter) Export(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if e.Dir == "" {
		return "", fmt.Errorf("export directory not configured")
	}

	if err := os.MkdirAll(e.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	f, path, err := createUnique(e.Dir, filepath.Base(name))
	if err != nil {
		return "", fmt.Errorf("failed to create export: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write export: %w", err)
	}

	return path, nil
}

func createUnique(dir, name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 1; i <= maxNameAttempts; i++ {
		candidate := name
		if i > 1 {
			candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		path := filepath.Join(dir, candidate)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("no free name for %s after %d attempts", name, maxNameAttempts)
}
