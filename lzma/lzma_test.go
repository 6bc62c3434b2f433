package lzma

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
	_, err := io.CopyN(&buf, randtxt.NewReader(rand.NewSource(7)), n)
	require.NoError(t, err)
	return buf.Bytes()
}

func encodeDecode(t *testing.T, opts Options, text []byte) []byte {
	t.Helper()
	props, err := NewProperties(opts.LC, opts.LP, opts.PB)
	require.NoError(t, err)

	var buf bytes.Buffer
	enc, err := NewEncoder(&buf, props, opts)
	require.NoError(t, err)
	_, err = enc.Write(text)
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	dec, err := NewDecoder(&buf, props, opts.DictSize, UnknownSize)
	require.NoError(t, err)
	out, err := dec.Decode(nil, len(text))
	require.NoError(t, err)
	return out
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	text := genText(t, 64<<10)
	tests := []struct {
		name string
		opts Options
	}{
		{"fast-hc4", Options{DictSize: 1 << 16, LC: 3, LP: 0, PB: 2, Mode: ModeFast, MatchFinder: MFHC4, NiceLen: 32}},
		{"normal-bt4", Options{DictSize: 1 << 16, LC: 3, LP: 0, PB: 2, Mode: ModeNormal, MatchFinder: MFBT4, NiceLen: 64}},
		{"non-default-props", Options{DictSize: 1 << 16, LC: 0, LP: 2, PB: 0, Mode: ModeFast, MatchFinder: MFHC4, NiceLen: 32}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.opts.ApplyDefaults()
			require.NoError(t, tc.opts.Verify())
			got := encodeDecode(t, tc.opts, text)
			assert.Equal(t, text, got)
		})
	}
}

func TestPresetsRoundTrip(t *testing.T) {
	text := genText(t, 32<<10)
	for level := 0; level <= 9; level++ {
		opts := Preset(level)
		got := encodeDecode(t, opts, text)
		assert.Equal(t, text, got, "preset %d", level)
	}
}

func TestEmptyInputRoundTrip(t *testing.T) {
	opts := Preset(1)
	got := encodeDecode(t, opts, nil)
	assert.Empty(t, got)
}

func TestPropertiesPacking(t *testing.T) {
	p, err := NewProperties(3, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, p.LC())
	assert.Equal(t, 0, p.LP())
	assert.Equal(t, 2, p.PB())
}

func TestNewPropertiesRejectsLCPlusLPOverflow(t *testing.T) {
	_, err := NewProperties(4, 2, 0)
	assert.Error(t, err)
}
