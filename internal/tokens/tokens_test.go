package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newCounter skips when the BPE ranks cannot be loaded (offline runs).
func newCounter(t *testing.T) *Counter {
	t.Helper()
	c, err := New(DefaultEncoding)
	if err != nil {
		t.Skipf("encoding unavailable: %v", err)
	}
	return c
}

func TestCounter_Count(t *testing.T) {
	c := newCounter(t)

	assert.Equal(t, 0, c.Count(""))
	assert.Positive(t, c.Count("Hello world. This is a test."))
	assert.Greater(t, c.Count(strings.Repeat("word ", 100)), c.Count("word"))
}

func TestCounter_Truncate(t *testing.T) {
	c := newCounter(t)
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 20)

	short := c.Truncate(text, 10)
	assert.LessOrEqual(t, c.Count(short), 10)
	assert.True(t, strings.HasPrefix(text, short))

	assert.Equal(t, text, c.Truncate(text, 10_000))
	assert.Empty(t, c.Truncate(text, 0))
}

func TestNew_UnknownEncoding(t *testing.T) {
	_, err := New("no_such_encoding")
	require.Error(t, err)
}
