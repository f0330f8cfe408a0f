// ABOUTME: Single-line lead normalization
// ABOUTME: Parses one comma-delimited line into a fixed seven-field LeadRecord
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/harperreed/leadsync/models"
)

// maxLineInError bounds how much of a bad line is kept for logs.
const maxLineInError = 100

// RowParseError is returned when a line cannot be split into fields.
// Callers skip the line and keep going.
type RowParseError struct {
	Line string
	Err  error
}

func (e *RowParseError) Error() string {
	return fmt.Sprintf("failed to parse row %q: %v", e.Line, e.Err)
}

func (e *RowParseError) Unwrap() error {
	return e.Err
}

// NormalizeRow parses one line into a LeadRecord. Quoted fields may hold
// commas and a doubled quote inside a quoted field is one literal quote.
// Stray quotes are kept as literal characters. Only a quoted field left open
// at the end of the line is an error.
// Fields are trimmed and mapped positionally; header content is never consulted.
func NormalizeRow(line string) (models.LeadRecord, error) {
	if openQuote(line) {
		return models.LeadRecord{}, &RowParseError{Line: truncate(line, maxLineInError), Err: csv.ErrQuote}
	}

	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	fields, err := r.Read()
	if err != nil && !errors.Is(err, io.EOF) {
		return models.LeadRecord{}, &RowParseError{Line: truncate(line, maxLineInError), Err: err}
	}

	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	return models.NewLeadRecord(fields), nil
}

// openQuote reports whether a quoted field is still open at the end of line.
// A quote closes a field only before a comma or the end of the line, the
// same rule the lazy csv reader applies.
func openQuote(line string) bool {
	fieldStart, quoted := true, false
	for i := 0; i < len(line); i++ {
		c := line[i]
		if quoted {
			if c != '"' {
				continue
			}
			switch {
			case i+1 < len(line) && line[i+1] == '"':
				i++
			case i+1 == len(line) || line[i+1] == ',':
				quoted = false
			}
			continue
		}

		switch {
		case c == ',':
			fieldStart = true
			continue
		case c == '"' && fieldStart:
			quoted = true
		}
		fieldStart = false
	}
	return quoted
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
