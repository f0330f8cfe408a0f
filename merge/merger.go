// ABOUTME: Duplicate-aware merge-append into a tabular destination
// ABOUTME: Reads a fresh snapshot, filters rows whose key already exists, and appends the rest
package merge

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Destination is a single named sheet that can be read whole and appended to.
type Destination interface {
	ReadAll(ctx context.Context, rangeSpec string) ([][]string, error)
	AppendRows(ctx context.Context, rangeSpec string, rows [][]string) error
}

// FetchError wraps a failure reading existing destination content.
type FetchError struct {
	Range string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.Range, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AppendError wraps a failure appending rows.
type AppendError struct {
	Range string
	Rows  int
	Err   error
}

func (e *AppendError) Error() string {
	return fmt.Sprintf("failed to append %d rows to %s: %v", e.Rows, e.Range, e.Err)
}

func (e *AppendError) Unwrap() error { return e.Err }

// Result reports one merge. Err is set when fetching or appending failed.
type Result struct {
	Existing   int
	Appended   int
	Duplicates int
	Header     bool
	Err        error
}

// OK reports whether the merge succeeded, including the no-op case.
func (r Result) OK() bool {
	return r.Err == nil
}

// Option configures a Merger.
type Option func(*Merger)

// WithHeader prepends header when the destination has no rows at all.
func WithHeader(header []string) Option {
	return func(m *Merger) {
		m.header = header
	}
}

// WithLogger sets the merger's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Merger) {
		m.logger = logger
	}
}

// Merger appends only novel rows to a destination.
type Merger struct {
	dest      Destination
	rangeSpec string
	keys      KeyExtractor
	header    []string
	logger    *zap.Logger
}

// NewMerger creates a merger keyed on keyCols.
func NewMerger(dest Destination, rangeSpec string, keyCols []int, opts ...Option) (*Merger, error) {
	if dest == nil {
		return nil, fmt.Errorf("destination is required")
	}
	keys, err := NewKeyExtractor(keyCols)
	if err != nil {
		return nil, err
	}

	m := &Merger{
		dest:      dest,
		rangeSpec: rangeSpec,
		keys:      keys,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("merge")
	return m, nil
}

// Merge reads a fresh snapshot, drops rows whose key is already present
// (including repeats within rows), and appends the survivors in order. It
// never panics or returns an error directly; failures land in Result.Err.
//
// No lock is held between the read and the append, so a concurrent writer
// can still slip a duplicate in.
func (m *Merger) Merge(ctx context.Context, rows [][]string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("merge panicked: %v", r)
			m.logger.Error("merge panicked", zap.Any("panic", r))
		}
	}()

	existing, err := m.dest.ReadAll(ctx, m.rangeSpec)
	if err != nil {
		result.Err = &FetchError{Range: m.rangeSpec, Err: err}
		m.logger.Error("failed to fetch existing rows", zap.String("range", m.rangeSpec), zap.Error(err))
		return result
	}
	result.Existing = len(existing)

	seen := m.seed(existing)

	fresh := make([][]string, 0, len(rows))
	for _, row := range rows {
		key := m.keys.ExtractPadded(row)
		if _, dup := seen[key]; dup {
			result.Duplicates++
			m.logger.Debug("skipping duplicate row", zap.Strings("key", m.keys.Cells(row)))
			continue
		}
		seen[key] = struct{}{}
		fresh = append(fresh, row)
	}

	if len(fresh) == 0 {
		m.logger.Info("no new rows to append",
			zap.Int("incoming", len(rows)),
			zap.Int("duplicates", result.Duplicates))
		return result
	}

	toWrite := fresh
	if len(existing) == 0 && len(m.header) > 0 {
		toWrite = append([][]string{m.header}, fresh...)
		result.Header = true
	}

	if err := m.dest.AppendRows(ctx, m.rangeSpec, toWrite); err != nil {
		result.Header = false
		result.Err = &AppendError{Range: m.rangeSpec, Rows: len(toWrite), Err: err}
		m.logger.Error("failed to append rows", zap.String("range", m.rangeSpec), zap.Error(err))
		return result
	}

	result.Appended = len(fresh)
	m.logger.Info("appended rows",
		zap.Int("appended", result.Appended),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("existing", result.Existing))
	return result
}

func (m *Merger) seed(existing [][]string) map[string]struct{} {
	seen := make(map[string]struct{}, len(existing))

	start := 0
	if len(existing) > 1 && m.looksLikeHeader(existing[0]) {
		start = 1
	}

	for _, row := range existing[start:] {
		key, ok := m.keys.Extract(row)
		if !ok || m.keys.IsEmpty(row) {
			continue
		}
		seen[key] = struct{}{}
	}
	return seen
}

// looksLikeHeader checks the key-column cells of row for "lead" or "id".
func (m *Merger) looksLikeHeader(row []string) bool {
	for _, c := range m.keys.cols {
		if c >= len(row) {
			continue
		}
		cell := strings.ToLower(row[c])
		if strings.Contains(cell, "lead") || strings.Contains(cell, "id") {
			return true
		}
	}
	return false
}
