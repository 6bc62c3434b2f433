// Package lzip implements the LZIP file format: a magic-prefixed header
// carrying a coded dictionary size, a raw LZMA1 body with a fixed
// lc=3/lp=0/pb=2 property set (LZIP never stores a properties byte),
// and a trailer recording the original data's CRC32, its size, and the
// member's total size on disk (spec §3.8/§6.3). A file is a
// concatenation of one or more such members with no padding between.
package lzip

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// HeaderLen is the size of a member's header: magic, version, coded
// dictionary size.
const HeaderLen = 6

// TrailerLen is the size of a member's trailer: CRC32, original size,
// member size, all little-endian.
const TrailerLen = 20

// Version is the only LZIP format version this package writes or
// accepts.
const Version = 1

var magic = [4]byte{'L', 'Z', 'I', 'P'}

// Every LZIP member uses these fixed LZMA properties; the format has no
// properties byte, unlike the raw LZMA1 header or LZMA2's chunk header.
const (
	LC = 3
	LP = 0
	PB = 2
)

const (
	minDictSize = 1 << 12
	maxDictSize = 1 << 29
)

var (
	errBadMagic   = errors.New("lzip: bad member magic")
	errBadVersion = errors.New("lzip: unsupported member version")
	errShort      = errors.New("lzip: header or trailer truncated")
)

// Header is a member's 6-byte preamble.
type Header struct {
	DictSize uint32
}

// MarshalBinary encodes the header, choosing the coded dictionary size
// byte as the smallest power of two (fraction 0) at least as large as
// h.DictSize — always valid per the decode formula below, even though
// real-world encoders also use the fractional steps for finer-grained
// preset sizes.
func (h Header) MarshalBinary() ([]byte, error) {
	sz := h.DictSize
	if sz < minDictSize {
		sz = minDictSize
	}
	if sz > maxDictSize {
		sz = maxDictSize
	}
	var d uint
	for d = 0; d < 31 && (uint32(1)<<d) < sz; d++ {
	}
	buf := make([]byte, HeaderLen)
	copy(buf[:4], magic[:])
	buf[4] = Version
	buf[5] = byte(d)
	return buf, nil
}

// UnmarshalBinary decodes a 6-byte member header.
func (h *Header) UnmarshalBinary(p []byte) error {
	if len(p) < HeaderLen {
		return errShort
	}
	if [4]byte{p[0], p[1], p[2], p[3]} != magic {
		return errBadMagic
	}
	if p[4] != Version {
		return errBadVersion
	}
	h.DictSize = decodeDictSize(p[5])
	return nil
}

// decodeDictSize expands a coded dictionary size byte: bits 0-4 are the
// base-2 exponent d, bits 5-7 are a 3-bit fraction f, and the size is
// (2^d) - (2^d/16)*f (spec §6.3).
func decodeDictSize(b byte) uint32 {
	d := uint(b & 0x1f)
	f := uint32((b >> 5) & 0x07)
	base := uint32(1) << d
	return base - (base/16)*f
}

func putUint32LE(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func uint32LE(b []byte) uint32       { return binary.LittleEndian.Uint32(b) }
func putUint64LE(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
func uint64LE(b []byte) uint64       { return binary.LittleEndian.Uint64(b) }
