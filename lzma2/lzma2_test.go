package lzma2

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lzmaio/xzmt/lzma"
	"github.com/lzmaio/xzmt/randtxt"
)

func genText(t *testing.T, n int64) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, err := io.CopyN(&buf, randtxt.NewReader(rand.NewSource(13)), n)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestWriterReaderRoundTrip(t *testing.T) {
	text := genText(t, 256<<10) // spans multiple chunks

	opts := lzma.Preset(3)
	opts.DictSize = 1 << 16
	opts.ApplyDefaults()

	var buf bytes.Buffer
	w, err := NewWriter(&buf, opts)
	require.NoError(t, err)
	_, err = w.Write(text)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := NewReader(&buf, opts.DictSize)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, text, got)
}

// TestIncompressibleInputRoundTrip exercises the uncompressed-chunk
// fallback (random bytes never compress smaller than themselves),
// including mid-stream chunks after real LZMA chunks have already
// advanced the probability model, to catch any divergence between a
// discarded speculative LZMA attempt and the decoder's untouched state.
func TestIncompressibleInputRoundTrip(t *testing.T) {
	text := genText(t, 96<<10)
	random := make([]byte, 96<<10)
	rand.New(rand.NewSource(99)).Read(random)
	input := append(append([]byte{}, text...), random...)

	opts := lzma.Preset(3)
	opts.DictSize = 1 << 16
	opts.ApplyDefaults()

	var buf bytes.Buffer
	w, err := NewWriter(&buf, opts)
	require.NoError(t, err)
	_, err = w.Write(input)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := NewReader(&buf, opts.DictSize)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, input, got)
}

func TestEmptyInputRoundTrip(t *testing.T) {
	opts := lzma.Preset(1)
	opts.DictSize = 1 << 16
	opts.ApplyDefaults()

	var buf bytes.Buffer
	w, err := NewWriter(&buf, opts)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := NewReader(&buf, opts.DictSize)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDictSizeByteRoundTrip(t *testing.T) {
	for _, size := range []uint32{1 << 16, 1 << 20, 3 << 24, 1 << 26} {
		b := DictSizeByte(size)
		assert.Equal(t, size, DictSizeFromByte(b), "size %d", size)
	}
}
