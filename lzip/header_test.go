package lzip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   uint32
		want uint32
	}{
		{"min", minDictSize, minDictSize},
		{"exact power of two", 1 << 20, 1 << 20},
		{"rounds up to next power of two", (1 << 20) + 1, 1 << 21},
		{"clamped to max", maxDictSize + 1, maxDictSize},
		{"clamped to min", 1, minDictSize},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := Header{DictSize: tc.in}
			data, err := h.MarshalBinary()
			require.NoError(t, err)
			require.Len(t, data, HeaderLen)
			assert.Equal(t, magic[:], data[0:4])
			assert.Equal(t, byte(Version), data[4])

			var got Header
			require.NoError(t, got.UnmarshalBinary(data))
			assert.Equal(t, tc.want, got.DictSize)
		})
	}
}

func TestHeaderUnmarshalRejectsBadMagic(t *testing.T) {
	data := []byte{'X', 'Z', 'I', 'P', Version, 20}
	var h Header
	assert.ErrorIs(t, h.UnmarshalBinary(data), errBadMagic)
}

func TestHeaderUnmarshalRejectsBadVersion(t *testing.T) {
	data := []byte{'L', 'Z', 'I', 'P', 2, 20}
	var h Header
	assert.ErrorIs(t, h.UnmarshalBinary(data), errBadVersion)
}

func TestHeaderUnmarshalRejectsShort(t *testing.T) {
	var h Header
	assert.ErrorIs(t, h.UnmarshalBinary([]byte{'L', 'Z', 'I'}), errShort)
}

func TestDecodeDictSizeFraction(t *testing.T) {
	// d=20, f=3: 2^20 - (2^20/16)*3 = 1048576 - 196608 = 851968
	got := decodeDictSize(byte(20) | (3 << 5))
	assert.Equal(t, uint32(851968), got)
}
