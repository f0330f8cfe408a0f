// ABOUTME: Google Sheets destination for merged lead rows
// ABOUTME: Reads a whole sheet range as strings and appends rows after the last used row
package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/sheets/v4"
)

// SheetsDestination reads and appends values in one spreadsheet.
type SheetsDestination struct {
	service       *sheets.Service
	spreadsheetID string
	limiter       *rate.Limiter
	logger        *zap.Logger
}

// NewSheetsDestination wraps service for spreadsheetID.
func NewSheetsDestination(service *sheets.Service, spreadsheetID string, limiter *rate.Limiter, logger *zap.Logger) *SheetsDestination {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SheetsDestination{
		service:       service,
		spreadsheetID: spreadsheetID,
		limiter:       limiter,
		logger:        logger.Named("sheets"),
	}
}

func (d *SheetsDestination) wait(ctx context.Context) error {
	if d.limiter == nil {
		return nil
	}
	return d.limiter.Wait(ctx)
}

// ReadAll returns every row in rangeSpec with cells stringified. Trailing
// empty cells are omitted by the API, so rows may differ in length.
func (d *SheetsDestination) ReadAll(ctx context.Context, rangeSpec string) ([][]string, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := d.service.Spreadsheets.Values.Get(d.spreadsheetID, rangeSpec).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rangeSpec, err)
	}

	rows := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = fmt.Sprint(cell)
		}
		rows[i] = cells
	}

	d.logger.Debug("read existing rows", zap.String("range", rangeSpec), zap.Int("rows", len(rows)))
	return rows, nil
}

// AppendRows writes rows as raw values after the last row of rangeSpec.
func (d *SheetsDestination) AppendRows(ctx context.Context, rangeSpec string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	if err := d.wait(ctx); err != nil {
		return err
	}

	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, cell := range row {
			cells[j] = cell
		}
		values[i] = cells
	}

	resp, err := d.service.Spreadsheets.Values.Append(d.spreadsheetID, rangeSpec, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", rangeSpec, err)
	}

	var updated int64
	if resp.Updates != nil {
		updated = resp.Updates.UpdatedCells
	}
	d.logger.Info("appended rows",
		zap.String("range", rangeSpec),
		zap.Int("rows", len(rows)),
		zap.Int64("cells", updated))
	return nil
}
