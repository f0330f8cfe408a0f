// ABOUTME: Tests for duplicate-aware merging
// ABOUTME: Uses an in-memory destination to check dedup, idempotence, headers, and failures
package merge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type memSheet struct {
	rows      [][]string
	readErr   error
	appendErr error
	appends   int
}

func (s *memSheet) ReadAll(ctx context.Context, rangeSpec string) ([][]string, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	out := make([][]string, len(s.rows))
	copy(out, s.rows)
	return out, nil
}

func (s *memSheet) AppendRows(ctx context.Context, rangeSpec string, rows [][]string) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appends++
	s.rows = append(s.rows, rows...)
	return nil
}

func newTestMerger(t *testing.T, dest Destination, cols []int, opts ...Option) *Merger {
	t.Helper()
	opts = append(opts, WithLogger(zaptest.NewLogger(t)))
	m, err := NewMerger(dest, "Sheet1!A:Z", cols, opts...)
	require.NoError(t, err)
	return m
}

func TestMergeAppendsOnlyNovelRows(t *testing.T) {
	sheet := &memSheet{rows: [][]string{{"LeadID", "Name"}, {"1", "A"}}}
	m := newTestMerger(t, sheet, []int{0})

	result := m.Merge(context.Background(), [][]string{{"1", "A"}, {"2", "B"}})

	require.True(t, result.OK())
	assert.Equal(t, 1, result.Appended)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, [][]string{{"LeadID", "Name"}, {"1", "A"}, {"2", "B"}}, sheet.rows)
}

func TestMergeIsIdempotent(t *testing.T) {
	sheet := &memSheet{rows: [][]string{{"LeadID", "Name"}}}
	m := newTestMerger(t, sheet, []int{0, 1})
	batch := [][]string{{"1", "A"}, {"2", "B"}, {"3", "C"}}

	first := m.Merge(context.Background(), batch)
	require.True(t, first.OK())
	assert.Equal(t, 3, first.Appended)
	after := append([][]string(nil), sheet.rows...)

	second := m.Merge(context.Background(), batch)
	require.True(t, second.OK())
	assert.Equal(t, 0, second.Appended)
	assert.Equal(t, 3, second.Duplicates)
	assert.Equal(t, after, sheet.rows)
	assert.Equal(t, 1, sheet.appends)
}

func TestMergeDedupsWithinBatch(t *testing.T) {
	sheet := &memSheet{}
	m := newTestMerger(t, sheet, []int{0})

	result := m.Merge(context.Background(), [][]string{{"1", "A"}, {"1", "other"}, {"2", "B"}})

	require.True(t, result.OK())
	assert.Equal(t, 2, result.Appended)
	assert.Equal(t, [][]string{{"1", "A"}, {"2", "B"}}, sheet.rows)
}

func TestMergeHeaderHeuristic(t *testing.T) {
	tests := []struct {
		name     string
		existing [][]string
		incoming [][]string
		appended int
	}{
		{
			name:     "single header-like row is treated as data",
			existing: [][]string{{"LeadID"}},
			incoming: [][]string{{"LeadID"}},
			appended: 0,
		},
		{
			name:     "header row is excluded from keys",
			existing: [][]string{{"lead"}, {"x"}},
			incoming: [][]string{{"lead"}},
			appended: 1,
		},
		{
			name:     "non-header first row is kept as data",
			existing: [][]string{{"7"}, {"8"}},
			incoming: [][]string{{"7"}, {"9"}},
			appended: 1,
		},
		{
			name:     "heuristic only looks at key columns",
			existing: [][]string{{"7", "CustomerID"}, {"8", "x"}},
			incoming: [][]string{{"7", "y"}},
			appended: 0,
		},
		{
			name:     "case insensitive id match",
			existing: [][]string{{"Row Id"}, {"8"}},
			incoming: [][]string{{"Row Id"}},
			appended: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sheet := &memSheet{rows: tt.existing}
			m := newTestMerger(t, sheet, []int{0})

			result := m.Merge(context.Background(), tt.incoming)

			require.True(t, result.OK())
			assert.Equal(t, tt.appended, result.Appended)
		})
	}
}

func TestMergeSkipsShortAndBlankExistingRows(t *testing.T) {
	sheet := &memSheet{rows: [][]string{
		{"LeadCreationDate", "InquiryDate"},
		{"1"},
		{"", ""},
		{"2", "b"},
	}}
	m := newTestMerger(t, sheet, []int{0, 1})

	result := m.Merge(context.Background(), [][]string{{"1"}, {"", ""}, {"2", "b"}})

	require.True(t, result.OK())
	// {"1"} pads to ("1","") which no stored row produced; the short row was skipped.
	assert.Equal(t, 2, result.Appended)
	assert.Equal(t, 1, result.Duplicates)
}

func TestMergeNoRowsIsSuccess(t *testing.T) {
	sheet := &memSheet{rows: [][]string{{"h"}, {"1"}}}
	m := newTestMerger(t, sheet, []int{0})

	result := m.Merge(context.Background(), nil)

	assert.True(t, result.OK())
	assert.Zero(t, result.Appended)
	assert.Zero(t, sheet.appends)
}

func TestMergeWritesHeaderToEmptyDestination(t *testing.T) {
	sheet := &memSheet{}
	header := []string{"LeadID", "Name"}
	m := newTestMerger(t, sheet, []int{0}, WithHeader(header))

	result := m.Merge(context.Background(), [][]string{{"1", "A"}})
	require.True(t, result.OK())
	assert.True(t, result.Header)
	assert.Equal(t, 1, result.Appended)
	assert.Equal(t, [][]string{header, {"1", "A"}}, sheet.rows)

	result = m.Merge(context.Background(), [][]string{{"2", "B"}})
	require.True(t, result.OK())
	assert.False(t, result.Header)
	assert.Equal(t, [][]string{header, {"1", "A"}, {"2", "B"}}, sheet.rows)
}

func TestMergeFetchFailure(t *testing.T) {
	cause := errors.New("quota exceeded")
	sheet := &memSheet{readErr: cause}
	m := newTestMerger(t, sheet, []int{0})

	result := m.Merge(context.Background(), [][]string{{"1"}})

	assert.False(t, result.OK())
	var fe *FetchError
	require.ErrorAs(t, result.Err, &fe)
	assert.ErrorIs(t, result.Err, cause)
	assert.Zero(t, sheet.appends)
}

func TestMergeAppendFailure(t *testing.T) {
	cause := errors.New("503")
	sheet := &memSheet{appendErr: cause}
	m := newTestMerger(t, sheet, []int{0}, WithHeader([]string{"h"}))

	result := m.Merge(context.Background(), [][]string{{"1"}, {"2"}})

	assert.False(t, result.OK())
	var ae *AppendError
	require.ErrorAs(t, result.Err, &ae)
	assert.Equal(t, 3, ae.Rows)
	assert.Zero(t, result.Appended)
	assert.False(t, result.Header)
}

type panicSheet struct{}

func (panicSheet) ReadAll(ctx context.Context, rangeSpec string) ([][]string, error) {
	panic("boom")
}

func (panicSheet) AppendRows(ctx context.Context, rangeSpec string, rows [][]string) error {
	return nil
}

func TestMergeRecoversPanics(t *testing.T) {
	m := newTestMerger(t, panicSheet{}, []int{0})

	result := m.Merge(context.Background(), [][]string{{"1"}})

	assert.False(t, result.OK())
	assert.Contains(t, result.Err.Error(), "boom")
}

func TestNewMergerValidation(t *testing.T) {
	_, err := NewMerger(nil, "A:Z", []int{0})
	assert.Error(t, err)

	_, err = NewMerger(&memSheet{}, "A:Z", nil)
	assert.Error(t, err)

	_, err = NewMerger(&memSheet{}, "A:Z", []int{0, -1})
	assert.Error(t, err)
}
