// ABOUTME: Tests for uniqueness key extraction
// ABOUTME: Covers bounds checks, padding, and unambiguous tuple encoding
package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyExtractorBounds(t *testing.T) {
	k, err := NewKeyExtractor([]int{2, 0})
	require.NoError(t, err)
	assert.Equal(t, 3, k.Width())
	assert.Equal(t, []int{2, 0}, k.Columns())

	_, ok := k.Extract([]string{"a", "b"})
	assert.False(t, ok)

	key, ok := k.Extract([]string{"a", "b", "c"})
	require.True(t, ok)
	assert.Equal(t, k.ExtractPadded([]string{"a", "b", "c", "d"}), key)
}

func TestKeyExtractorEncodingIsUnambiguous(t *testing.T) {
	k, err := NewKeyExtractor([]int{0, 1})
	require.NoError(t, err)

	a := k.ExtractPadded([]string{"a,b", "c"})
	b := k.ExtractPadded([]string{"a", "b,c"})
	assert.NotEqual(t, a, b)

	assert.NotEqual(t, k.ExtractPadded([]string{"A", "x"}), k.ExtractPadded([]string{"a", "x"}))
	assert.NotEqual(t, k.ExtractPadded([]string{"a ", "x"}), k.ExtractPadded([]string{"a", "x"}))
}

func TestKeyExtractorPaddingAndEmpty(t *testing.T) {
	k, err := NewKeyExtractor([]int{0, 3})
	require.NoError(t, err)

	assert.Equal(t, k.ExtractPadded([]string{"a", "", "", ""}), k.ExtractPadded([]string{"a"}))
	assert.True(t, k.IsEmpty([]string{"", "x", "y", ""}))
	assert.True(t, k.IsEmpty(nil))
	assert.False(t, k.IsEmpty([]string{"", "", "", "z"}))
	assert.Equal(t, []string{"a", ""}, k.Cells([]string{"a"}))
}
