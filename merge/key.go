// ABOUTME: Uniqueness key extraction for duplicate-aware merging
// ABOUTME: Bounds-checked, width-parameterized tuple keys over chosen column positions
package merge

import (
	"fmt"
	"strconv"
	"strings"
)

// KeyExtractor builds exact-match identity keys from fixed column positions.
type KeyExtractor struct {
	cols   []int
	maxCol int
}

// NewKeyExtractor validates cols. At least one non-negative index is required.
func NewKeyExtractor(cols []int) (KeyExtractor, error) {
	if len(cols) == 0 {
		return KeyExtractor{}, fmt.Errorf("at least one key column is required")
	}

	maxCol := -1
	for _, c := range cols {
		if c < 0 {
			return KeyExtractor{}, fmt.Errorf("invalid key column %d", c)
		}
		if c > maxCol {
			maxCol = c
		}
	}

	own := make([]int, len(cols))
	copy(own, cols)
	return KeyExtractor{cols: own, maxCol: maxCol}, nil
}

// Columns returns the key column positions.
func (k KeyExtractor) Columns() []int {
	out := make([]int, len(k.cols))
	copy(out, k.cols)
	return out
}

// Width is the minimum row length that contains every key column.
func (k KeyExtractor) Width() int {
	return k.maxCol + 1
}

// Extract returns the key for row. ok is false when row is too short.
func (k KeyExtractor) Extract(row []string) (key string, ok bool) {
	if len(row) < k.Width() {
		return "", false
	}
	return k.encode(func(c int) string { return row[c] }), true
}

// ExtractPadded treats missing trailing cells as empty strings.
func (k KeyExtractor) ExtractPadded(row []string) string {
	return k.encode(func(c int) string {
		if c < len(row) {
			return row[c]
		}
		return ""
	})
}

// IsEmpty reports whether every key cell in row is empty or absent.
func (k KeyExtractor) IsEmpty(row []string) bool {
	for _, c := range k.cols {
		if c < len(row) && row[c] != "" {
			return false
		}
	}
	return true
}

// encode length-prefixes each cell so ("a,b","c") and ("a","b,c") differ.
func (k KeyExtractor) encode(cell func(int) string) string {
	var b strings.Builder
	for _, c := range k.cols {
		v := cell(c)
		b.WriteString(strconv.Itoa(len(v)))
		b.WriteByte(':')
		b.WriteString(v)
	}
	return b.String()
}

// Cells returns the raw key cells, for logging.
func (k KeyExtractor) Cells(row []string) []string {
	out := make([]string, len(k.cols))
	for i, c := range k.cols {
		if c < len(row) {
			out[i] = row[c]
		}
	}
	return out
}
