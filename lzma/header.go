package lzma

import (
	"encoding/binary"
	"io"
)

// HeaderLen is the size of the classic raw LZMA1 header (spec §6.1): one
// properties byte, a 4-byte little-endian dictionary size, and an
// 8-byte little-endian uncompressed size (all-ones meaning unknown).
const HeaderLen = 1 + 4 + 8

// UnknownSize marks an LZMA1 header's size field as "unknown", decoded
// by relying on the end-of-stream marker instead.
const UnknownSize uint64 = 1<<64 - 1

// Header is the fixed 13-byte preamble of a raw .lzma stream.
type Header struct {
	Properties Properties
	DictSize   uint32
	Size       uint64
}

func (h Header) append(buf []byte) []byte {
	buf = append(buf, byte(h.Properties))
	var tmp [8]byte
	binary.LittleEndian.PutUint32(tmp[:4], h.DictSize)
	buf = append(buf, tmp[:4]...)
	binary.LittleEndian.PutUint64(tmp[:8], h.Size)
	buf = append(buf, tmp[:8]...)
	return buf
}

// WriteTo writes the header in its canonical 13-byte wire form.
func (h Header) WriteTo(w io.Writer) (int64, error) {
	buf := h.append(make([]byte, 0, HeaderLen))
	n, err := w.Write(buf)
	return int64(n), err
}

// readHeader parses a 13-byte raw LZMA1 header from r.
func readHeader(r io.Reader) (Header, error) {
	var buf [HeaderLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return Header{}, errShortInput
		}
		return Header{}, err
	}
	props := Properties(buf[0])
	if err := verifyProperties(props.LC(), props.LP(), props.PB()); err != nil {
		return Header{}, wrapErr(CodeInvalidData, err, "lzma header")
	}
	h := Header{
		Properties: props,
		DictSize:   binary.LittleEndian.Uint32(buf[1:5]),
		Size:       binary.LittleEndian.Uint64(buf[5:13]),
	}
	return h, nil
}
