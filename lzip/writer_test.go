package lzip

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lzmaio/xzmt/randtxt"
)

func genText(t *testing.T, n int) []byte {
	t.Helper()
	r := randtxt.NewReader(rand.NewSource(42))
	buf := make([]byte, n)
	_, err := io.ReadFull(r, buf)
	require.NoError(t, err)
	return buf
}

func TestStreamWriterReaderRoundTrip(t *testing.T) {
	text := genText(t, 64<<10)

	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(text)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := NewReader(&buf)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, text, got)
	require.NoError(t, r.Close())
}

func TestStreamWriterEmptyInput(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Greater(t, buf.Len(), HeaderLen+TrailerLen-1)

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMultiThreadedWriterReaderRoundTrip(t *testing.T) {
	text := genText(t, 512<<10)

	var buf bytes.Buffer
	cfg := WriterConfig{Workers: 4, MemberSize: 64 << 10}
	w, err := NewWriterConfig(&buf, cfg)
	require.NoError(t, err)
	_, err = w.Write(text)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// Sequential reader must handle a multi-member file forward-only.
	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, text, got)

	// Concurrent reader over the same bytes, via ReaderAt+Seeker.
	mr, err := NewReaderConfig(bytes.NewReader(buf.Bytes()), ReaderConfig{Workers: 4})
	require.NoError(t, err)
	got2, err := io.ReadAll(mr)
	require.NoError(t, err)
	assert.Equal(t, text, got2)
}

func TestMultiThreadedWriterEmptyInput(t *testing.T) {
	var buf bytes.Buffer
	cfg := WriterConfig{Workers: 4}
	w, err := NewWriterConfig(&buf, cfg)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := NewReaderConfig(bytes.NewReader(buf.Bytes()), ReaderConfig{Workers: 4})
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestConcatenatedMembersDecodeInOrder(t *testing.T) {
	a := genText(t, 8<<10)
	b := genText(t, 8<<10)[:4<<10] // a different slice of the same stream

	var buf bytes.Buffer
	for _, part := range [][]byte{a, b} {
		w, err := NewWriter(&buf)
		require.NoError(t, err)
		_, err = w.Write(part)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	}

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, a...), b...), got)
}

func TestReaderRejectsTrailerMismatch(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(genText(t, 4096))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data := buf.Bytes()
	// Flip a bit in the trailer's CRC32 field.
	data[len(data)-TrailerLen] ^= 0xff

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	assert.ErrorIs(t, err, errTrailerMismatch)
}

func TestWriterConfigRejectsBadWorkers(t *testing.T) {
	cfg := WriterConfig{Workers: -1}
	cfg.LZMA.ApplyDefaults()
	assert.ErrorIs(t, cfg.Verify(), errWorkersRange)
}
