package xz

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lzmaio/xzmt/randtxt"
)

func genText(t *testing.T, n int64) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, err := io.CopyN(&buf, randtxt.NewReader(rand.NewSource(41)), n)
	require.NoError(t, err)
	return buf.Bytes()
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

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestChecksumMethods(t *testing.T) {
	for name, method := range map[string]byte{
		"none":   None,
		"crc32":  CRC32,
		"crc64":  CRC64,
		"sha256": SHA256,
	} {
		t.Run(name, func(t *testing.T) {
			text := genText(t, 16<<10)
			var buf bytes.Buffer
			cfg := WriterConfig{Checksum: method, Workers: 1}
			w, err := NewWriterConfig(&buf, cfg)
			require.NoError(t, err)
			_, err = w.Write(text)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			r, err := NewReader(&buf)
			require.NoError(t, err)
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, text, got)
		})
	}
}

func TestMultiThreadedWriterReaderRoundTrip(t *testing.T) {
	text := genText(t, 512<<10)

	var buf bytes.Buffer
	cfg := WriterConfig{Workers: 4, BlockSize: 64 << 10}
	w, err := NewWriterConfig(&buf, cfg)
	require.NoError(t, err)
	_, err = w.Write(text)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// Sequential reader must handle a multi-block stream.
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

func TestConcatenatedStreamsDecodeInOrder(t *testing.T) {
	a := genText(t, 8<<10)
	b := genText(t, 4<<10)

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

func TestSingleStreamRejectsTrailingData(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(genText(t, 1024))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	buf.Write([]byte{0xff})

	r, err := NewReaderConfig(bytes.NewReader(buf.Bytes()), ReaderConfig{SingleStream: true})
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	assert.ErrorIs(t, err, errUnexpectedData)
}

func TestReaderRejectsCorruptBlockChecksum(t *testing.T) {
	var buf bytes.Buffer
	cfg := WriterConfig{Checksum: CRC32, Workers: 1}
	w, err := NewWriterConfig(&buf, cfg)
	require.NoError(t, err)
	_, err = w.Write(genText(t, 4096))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data := buf.Bytes()
	// The one-record Index is 12 bytes (indicator, count, two 2-byte
	// uvarints, 2 padding bytes, CRC32), so the block's CRC32 check ends
	// 12 bytes before the Footer.
	data[len(data)-footerLen-13] ^= 0xff

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	assert.Error(t, err)
}

func TestWriterConfigRejectsBadWorkers(t *testing.T) {
	cfg := WriterConfig{Workers: -1}
	cfg.LZMA.ApplyDefaults()
	assert.Error(t, cfg.Verify())
}

func TestWriterConfigRejectsBadChecksum(t *testing.T) {
	cfg := WriterConfig{Checksum: 0x7, Workers: 1}
	cfg.LZMA.ApplyDefaults()
	assert.ErrorIs(t, cfg.Verify(), errInvalidFlags)
}
