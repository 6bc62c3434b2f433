package lzip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrailerRoundTrip(t *testing.T) {
	tr := Trailer{CRC32: 0xdeadbeef, UncompressedSize: 12345, MemberSize: 6789}
	data, err := tr.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, TrailerLen)

	var got Trailer
	require.NoError(t, got.UnmarshalBinary(data))
	assert.Equal(t, tr, got)
}

func TestTrailerUnmarshalRejectsShort(t *testing.T) {
	var tr Trailer
	assert.ErrorIs(t, tr.UnmarshalBinary(make([]byte, TrailerLen-1)), errShort)
}
