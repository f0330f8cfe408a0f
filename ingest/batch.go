// ABOUTME: Batch ingestion of raw CSV attachment payloads
// ABOUTME: Decodes, pre-cleans, drops the header line, caps rows, and isolates per-row faults
package ingest

import (
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/harperreed/leadsync/models"
)

// DefaultMaxRows matches the row cap of the upstream export flow.
const DefaultMaxRows = 5000

// RowFailure describes one dropped line.
type RowFailure struct {
	Line string
	Err  error
}

// Result is the outcome of ingesting one payload.
type Result struct {
	Records  []models.LeadRecord
	Skipped  int
	Failures []RowFailure
}

// Ingestor turns attachment bytes into lead records.
type Ingestor struct {
	maxRows int
	logger  *zap.Logger
}

// NewIngestor creates an ingestor. maxRows < 1 selects DefaultMaxRows.
func NewIngestor(maxRows int, logger *zap.Logger) *Ingestor {
	if maxRows < 1 {
		maxRows = DefaultMaxRows
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{maxRows: maxRows, logger: logger.Named("ingest")}
}

// MaxRows returns the row cap in effect.
func (in *Ingestor) MaxRows() int {
	return in.maxRows
}

// Ingest never fails. A payload that cannot be decoded yields an empty result,
// and a malformed line is dropped and counted without aborting the batch.
//
// The whole text is pre-cleaned before splitting: carriage returns become
// line feeds and every doubled quote collapses to a single quote. The collapse
// runs before CSV quoting is interpreted, so a legitimately escaped quote next
// to a comma can change how that line splits. The first line is always dropped
// as a header when more than one line exists.
func (in *Ingestor) Ingest(raw []byte) Result {
	text, err := decodeText(raw)
	if err != nil {
		in.logger.Error("failed to decode attachment", zap.Error(err), zap.Int("bytes", len(raw)))
		return Result{}
	}

	lines := splitLines(text)
	if len(lines) > in.maxRows {
		lines = lines[:in.maxRows]
	}

	candidates := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			candidates = append(candidates, line)
		}
	}

	in.logger.Info("processing csv rows", zap.Int("rows", len(candidates)))

	var result Result
	for _, line := range candidates {
		rec, err := NormalizeRow(line)
		if err != nil {
			failure := RowFailure{Line: truncate(line, maxLineInError), Err: err}
			var rpe *RowParseError
			if errors.As(err, &rpe) {
				failure.Err = rpe.Err
			}
			result.Failures = append(result.Failures, failure)
			result.Skipped++
			in.logger.Warn("skipping malformed row",
				zap.String("line", failure.Line),
				zap.Error(failure.Err))
			continue
		}

		// A line made only of delimiters is as blank as an empty one.
		if isBlank(rec) {
			continue
		}

		result.Records = append(result.Records, rec)
	}

	in.logger.Info("processed csv rows",
		zap.Int("records", len(result.Records)),
		zap.Int("skipped", result.Skipped))

	return result
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, `""`, `"`)

	lines := strings.Split(text, "\n")
	if len(lines) > 1 {
		lines = lines[1:]
	}
	return lines
}

func isBlank(rec models.LeadRecord) bool {
	for _, v := range rec.Values() {
		if v != "" {
			return false
		}
	}
	return true
}
