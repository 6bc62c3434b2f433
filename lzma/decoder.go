package lzma

import (
	"io"
)

// eosDist is the distance value (spec §3.6, "distance offset" encoding)
// reserved to mark the end of an LZMA1 stream when the uncompressed
// size is not known up front.
const eosDist = 1<<32 - 1

// Decoder decodes a raw LZMA byte stream (no container framing) into
// its original bytes, per spec §4.2's decode loop mirrored bit for bit
// against Encoder.
type Decoder struct {
	st   *state
	rd   *rangeDecoder
	win  *decoderWindow
	size uint64 // remaining bytes expected; UnknownSize means rely on EOS marker
	have uint64
}

// NewDecoder constructs a Decoder reading from r, which must begin
// exactly at the first range-coder byte (no LZMA1 header consumed
// here; callers needing the classic 13-byte header use NewDecoderFromHeader).
func NewDecoder(r io.Reader, props Properties, dictSize int, size uint64) (*Decoder, error) {
	if err := verifyProperties(props.LC(), props.LP(), props.PB()); err != nil {
		return nil, err
	}
	br, ok := r.(io.ByteReader)
	if !ok {
		br = newByteReader(r)
	}
	rd, err := newRangeDecoder(br)
	if err != nil {
		return nil, err
	}
	return &Decoder{
		st:   newState(props),
		rd:   rd,
		win:  newDecoderWindow(dictSize),
		size: size,
	}, nil
}

// NewRawDecoder constructs a Decoder with no range-coder attached yet:
// the window and state are ready, but symbols can only be produced
// after a chunk's range coder is attached with DecodeChunk. Used by the
// LZMA2 chunk decoder, which supplies a fresh range-coder sequence per
// chunk while the window and state persist across chunks that don't
// reset them.
func NewRawDecoder(props Properties, dictSize int) (*Decoder, error) {
	if err := verifyProperties(props.LC(), props.LP(), props.PB()); err != nil {
		return nil, err
	}
	return &Decoder{st: newState(props), win: newDecoderWindow(dictSize)}, nil
}

// NewDecoderFromHeader reads the classic 13-byte LZMA1 header from r
// before constructing the Decoder.
func NewDecoderFromHeader(r io.Reader) (*Decoder, error) {
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	dictSize := int(h.DictSize)
	if dictSize < minDictSize {
		dictSize = minDictSize
	}
	return NewDecoder(r, h.Properties, dictSize, h.Size)
}

func (d *Decoder) SetPresetDict(dict []byte) { d.win.putPresetDict(dict) }

// unknownSize reports whether the decoder should stop on the EOS marker
// rather than a byte count.
func (d *Decoder) unknownSize() bool { return d.size == UnknownSize }

// ResetState discards the probability model and symbol-class state
// (LZMA2 "state reset" chunk, spec §4.4) without touching the window.
func (d *Decoder) ResetState() { d.st.resetState() }

// ResetProps installs new lc/lp/pb values (LZMA2 "new properties"
// chunk, spec §4.4).
func (d *Decoder) ResetProps(props Properties) { d.st.resetProps(props) }

// ResetDict clears the dictionary window (LZMA2 "dictionary reset"
// chunk, spec §4.4). It leaves the state and rep distances alone; the
// LZMA2 reader pairs it with ResetState for a full-reset LZMA chunk but
// calls it alone for an uncompressed chunk with a dictionary reset.
func (d *Decoder) ResetDict() { d.win.reset() }

// PutRaw appends already-known plaintext bytes directly into the
// dictionary window without range coding, for LZMA2's "uncompressed
// chunk" framing (spec §4.4).
func (d *Decoder) PutRaw(p []byte) {
	for _, c := range p {
		d.win.putByte(c)
	}
	d.have += uint64(len(p))
}

// DecodeChunk decodes exactly n uncompressed bytes from an
// independent range-coder sequence read from r — the unit LZMA2 chunks
// code (spec §4.4) — leaving window and state as the caller configured
// via the Reset* methods, and appends the produced bytes to dst.
func (d *Decoder) DecodeChunk(r io.Reader, n int, dst []byte) ([]byte, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = newByteReader(r)
	}
	rd, err := newRangeDecoder(br)
	if err != nil {
		return dst, err
	}
	d.rd = rd
	return d.decodeLoop(dst, n)
}

// Decode decodes until the expected total size is reached or the EOS
// marker appears (whole-stream LZMA1 mode), bounded additionally by max
// if max > 0, appending produced bytes to dst.
func (d *Decoder) Decode(dst []byte, max int) ([]byte, error) {
	if !d.unknownSize() {
		remaining := int(d.size - d.have)
		if remaining < 0 {
			remaining = 0
		}
		if max <= 0 || max > remaining {
			max = remaining
		}
	}
	return d.decodeLoop(dst, max)
}

// decodeLoop decodes symbols from the current range-coder sequence
// until at least max bytes have been produced (a final match may run
// past max) or the EOS marker appears; with max <= 0 only the EOS
// marker stops it. Produced bytes are appended to dst.
func (d *Decoder) decodeLoop(dst []byte, max int) ([]byte, error) {
	produced := 0
	for max <= 0 || produced < max {
		posState := d.st.posState(int64(d.have))
		bit, err := d.rd.decodeBit(&d.st.isMatch[d.st.st<<maxPosBits|posState])
		if err != nil {
			return dst, err
		}
		if bit == 0 {
			c, err := d.decodeLiteral(posState)
			if err != nil {
				return dst, err
			}
			dst = append(dst, c)
			d.win.putByte(c)
			d.have++
			produced++
			d.st.updateLiteral()
			continue
		}

		var length uint32
		repBit, err := d.rd.decodeBit(&d.st.isRep[d.st.st])
		if err != nil {
			return dst, err
		}
		if repBit == 0 {
			length, err = d.st.len.decode(d.rd, posState)
			if err != nil {
				return dst, err
			}
			distOff, err := d.st.dist.decode(d.rd, length-minMatchLen)
			if err != nil {
				return dst, err
			}
			if distOff == eosDist {
				return dst, nil
			}
			d.st.rep[3], d.st.rep[2], d.st.rep[1] = d.st.rep[2], d.st.rep[1], d.st.rep[0]
			d.st.rep[0] = distOff + 1
			d.st.updateMatch()
		} else {
			g0, err := d.rd.decodeBit(&d.st.isRepG0[d.st.st])
			if err != nil {
				return dst, err
			}
			if g0 == 0 {
				short, err := d.rd.decodeBit(&d.st.isRep0Long[d.st.st<<maxPosBits|posState])
				if err != nil {
					return dst, err
				}
				if short == 0 {
					c := d.win.byteAt(int64(d.st.rep[0]))
					dst = append(dst, c)
					d.win.putByte(c)
					d.have++
					produced++
					d.st.updateShortRep()
					continue
				}
			} else {
				g1, err := d.rd.decodeBit(&d.st.isRepG1[d.st.st])
				if err != nil {
					return dst, err
				}
				if g1 == 0 {
					d.st.rep[0], d.st.rep[1] = d.st.rep[1], d.st.rep[0]
				} else {
					g2, err := d.rd.decodeBit(&d.st.isRepG2[d.st.st])
					if err != nil {
						return dst, err
					}
					if g2 == 0 {
						dist := d.st.rep[2]
						d.st.rep[2] = d.st.rep[1]
						d.st.rep[1] = d.st.rep[0]
						d.st.rep[0] = dist
					} else {
						dist := d.st.rep[3]
						d.st.rep[3] = d.st.rep[2]
						d.st.rep[2] = d.st.rep[1]
						d.st.rep[1] = d.st.rep[0]
						d.st.rep[0] = dist
					}
				}
			}
			length, err = d.st.repLen.decode(d.rd, posState)
			if err != nil {
				return dst, err
			}
			d.st.updateRep()
		}

		if int64(d.st.rep[0]) > d.win.len() {
			return dst, errBadDistance
		}
		n := int(length)
		dst = d.win.copyMatch(dst, int64(d.st.rep[0]), n)
		d.have += uint64(n)
		produced += n
	}
	return dst, nil
}

func (d *Decoder) decodeLiteral(posState uint32) (byte, error) {
	var prevByte byte
	if d.win.len() > 0 {
		prevByte = d.win.byteAt(1)
	}
	litState := d.st.litState(prevByte, int64(d.have))
	matched := d.st.isAfterMatch()
	var matchByte byte
	if matched {
		if int64(d.st.rep[0]) > d.win.len() {
			return 0, errBadState
		}
		matchByte = d.win.byteAt(int64(d.st.rep[0]))
	}
	return d.st.lit.decode(d.rd, matched, matchByte, litState)
}

type byteReader struct {
	r   io.Reader
	buf [1]byte
}

func newByteReader(r io.Reader) *byteReader { return &byteReader{r: r} }

func (b *byteReader) ReadByte() (byte, error) {
	_, err := io.ReadFull(b.r, b.buf[:])
	return b.buf[0], err
}
