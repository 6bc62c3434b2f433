package filter

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeltaRoundTrip(t *testing.T) {
	data := make([]byte, 4096)
	rand.New(rand.NewSource(1)).Read(data)

	f, err := ByID(IDDelta, []byte{3}) // distance 4
	require.NoError(t, err)

	var enc bytes.Buffer
	wc := f.Encoder(&enc)
	_, err = wc.Write(data)
	require.NoError(t, err)
	require.NoError(t, wc.Close())

	f2, err := ByID(IDDelta, f.Properties())
	require.NoError(t, err)
	got, err := io.ReadAll(f2.Decoder(&enc))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestX86RoundTrip(t *testing.T) {
	// A handful of E8 call-style opcodes likely to trigger the BCJ
	// transform, padded with filler bytes.
	data := bytes.Repeat([]byte{0xE8, 0x01, 0x02, 0x03, 0x00, 0x90, 0x90, 0x90}, 64)

	f, err := ByID(IDX86, nil)
	require.NoError(t, err)

	var enc bytes.Buffer
	wc := f.Encoder(&enc)
	_, err = wc.Write(data)
	require.NoError(t, err)
	require.NoError(t, wc.Close())

	got, err := io.ReadAll(f.Decoder(&enc))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestChainEncodeDecodeRoundTrip(t *testing.T) {
	data := make([]byte, 2048)
	rand.New(rand.NewSource(2)).Read(data)

	df, err := ByID(IDDelta, []byte{0})
	require.NoError(t, err)
	chain := Chain{df}

	var buf bytes.Buffer
	wc := chain.Encoder(&buf)
	_, err = wc.Write(data)
	require.NoError(t, err)
	require.NoError(t, wc.Close())

	got, err := io.ReadAll(chain.Decoder(&buf))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

// TestChainMultiFilterOrder chains two filters, which a single-filter
// chain can't exercise: Decoder must undo them in reverse of the order
// Encoder applied them, or the x86 pass sees delta-coded bytes instead
// of its own output and the round trip corrupts.
func TestChainMultiFilterOrder(t *testing.T) {
	data := bytes.Repeat([]byte{0xE8, 0x01, 0x02, 0x03, 0x00, 0x90, 0x90, 0x90}, 64)

	df, err := ByID(IDDelta, []byte{0})
	require.NoError(t, err)
	xf, err := ByID(IDX86, nil)
	require.NoError(t, err)
	chain := Chain{df, xf}

	var buf bytes.Buffer
	wc := chain.Encoder(&buf)
	_, err = wc.Write(data)
	require.NoError(t, err)
	require.NoError(t, wc.Close())

	got, err := io.ReadAll(chain.Decoder(&buf))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestByIDRejectsUnknown(t *testing.T) {
	_, err := ByID(ID(0x9999), nil)
	assert.Error(t, err)
}
