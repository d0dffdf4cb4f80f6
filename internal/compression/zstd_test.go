package compression

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, c *Compressor, data []byte) ([]byte, []byte) {
	t.Helper()
	var stored bytes.Buffer
	w, err := c.NewWriter(&stored)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := c.NewReader(bytes.NewReader(stored.Bytes()))
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	return stored.Bytes(), got
}

func TestCompressorRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("build-cache-artifact "), 4096)

	for _, level := range []int{0, 1, 2, 3} {
		c := NewCompressor(level, true)
		assert.True(t, c.Enabled())
		stored, got := roundTrip(t, c, data)
		assert.Equal(t, data, got)
		assert.Less(t, len(stored), len(data), "level %d", level)
	}
}

func TestCompressorDisabled(t *testing.T) {
	c := NewCompressor(2, false)
	assert.False(t, c.Enabled())

	data := []byte("plain")
	stored, got := roundTrip(t, c, data)
	assert.Equal(t, data, stored)
	assert.Equal(t, data, got)
}

func TestCompressorEmpty(t *testing.T) {
	_, got := roundTrip(t, NewCompressor(2, true), nil)
	assert.Empty(t, got)
}

func TestCompressorRejectsGarbage(t *testing.T) {
	r, err := NewCompressor(2, true).NewReader(bytes.NewReader([]byte("not zstd at all")))
	if err == nil {
		_, err = io.ReadAll(r)
		r.Close()
	}
	assert.Error(t, err)
}
