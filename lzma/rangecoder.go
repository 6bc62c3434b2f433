package lzma

import "io"

// topValue is the renormalization threshold for range: whenever range
// drops below it, one byte is shifted out (encoder) or in (decoder),
// per spec §3.1's invariant that range >= 2^24 at every byte boundary.
const topValue = 1 << 24

// rangeEncoder implements the LZMA range coder's write side. low is
// kept in a uint64 because carries can push a bit above bit 32 (spec
// §3.1, "low: 33-bit accumulator").
type rangeEncoder struct {
	w        io.Writer
	rng      uint32
	low      uint64
	cache    byte
	cacheLen int64
}

func newRangeEncoder(w io.Writer) *rangeEncoder {
	return &rangeEncoder{w: w, rng: 0xffffffff, cacheLen: 1}
}

// encodeBit encodes the least significant bit of b using and updating
// the probability p (spec §4.1, encode_bit).
func (e *rangeEncoder) encodeBit(p *prob, b uint32) error {
	bound := p.bound(e.rng)
	if b == 0 {
		e.rng = bound
		p.inc()
	} else {
		e.low += uint64(bound)
		e.rng -= bound
		p.dec()
	}
	return e.normalize()
}

// encodeDirectBit encodes one equiprobable bit (spec §4.1,
// encode_direct_bits, single iteration).
func (e *rangeEncoder) encodeDirectBit(b uint32) error {
	e.rng >>= 1
	if b != 0 {
		e.low += uint64(e.rng)
	}
	return e.normalize()
}

// encodeDirectBits encodes the low n bits of v, most significant bit
// first.
func (e *rangeEncoder) encodeDirectBits(v uint32, n int) error {
	for i := n - 1; i >= 0; i-- {
		if err := e.encodeDirectBit((v >> uint(i)) & 1); err != nil {
			return err
		}
	}
	return nil
}

func (e *rangeEncoder) normalize() error {
	if e.rng >= topValue {
		return nil
	}
	e.rng <<= 8
	return e.shiftLow()
}

// shiftLow performs the deferred carry propagation described in spec
// §4.1: emit the cached byte (plus any pending carry), flush any
// accumulated 0xff run, and refill the cache from the next byte of low.
func (e *rangeEncoder) shiftLow() error {
	if uint32(e.low) < 0xff000000 || (e.low>>32) != 0 {
		carry := byte(e.low >> 32)
		if err := e.writeByte(e.cache + carry); err != nil {
			return err
		}
		for ; e.cacheLen > 1; e.cacheLen-- {
			if err := e.writeByte(0xff + carry); err != nil {
				return err
			}
		}
		e.cache = byte(e.low >> 24)
		e.cacheLen = 0
	}
	e.cacheLen++
	e.low = (e.low << 8) & 0xffffffff
	return nil
}

func (e *rangeEncoder) writeByte(c byte) error {
	_, err := e.w.Write([]byte{c})
	return err
}

// finish flushes the five bytes required to drain low completely (spec
// §4.1, "finish").
func (e *rangeEncoder) finish() error {
	for i := 0; i < 5; i++ {
		if err := e.shiftLow(); err != nil {
			return err
		}
	}
	return nil
}

// rangeDecoder implements the range coder's read side.
type rangeDecoder struct {
	r    io.ByteReader
	rng  uint32
	code uint32
}

func newRangeDecoder(r io.ByteReader) (*rangeDecoder, error) {
	d := &rangeDecoder{r: r, rng: 0xffffffff}
	b, err := r.ReadByte()
	if err != nil {
		return nil, errShortInput
	}
	if b != 0 {
		return nil, newErr(CodeInvalidData, "range decoder: first byte not zero")
	}
	for i := 0; i < 4; i++ {
		if err := d.updateCode(); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *rangeDecoder) updateCode() error {
	b, err := d.r.ReadByte()
	if err != nil {
		return errShortInput
	}
	d.code = (d.code << 8) | uint32(b)
	return nil
}

func (d *rangeDecoder) normalize() error {
	if d.rng < topValue {
		d.rng <<= 8
		if err := d.updateCode(); err != nil {
			return err
		}
	}
	return nil
}

// decodeBit is the branchless-in-spirit mirror of encodeBit.
func (d *rangeDecoder) decodeBit(p *prob) (uint32, error) {
	bound := p.bound(d.rng)
	var b uint32
	if d.code < bound {
		d.rng = bound
		p.inc()
		b = 0
	} else {
		d.code -= bound
		d.rng -= bound
		p.dec()
		b = 1
	}
	if err := d.normalize(); err != nil {
		return 0, err
	}
	return b, nil
}

func (d *rangeDecoder) decodeDirectBit() (uint32, error) {
	d.rng >>= 1
	d.code -= d.rng
	t := 0 - (d.code >> 31)
	d.code += d.rng & t
	if err := d.normalize(); err != nil {
		return 0, err
	}
	return (t + 1) & 1, nil
}

func (d *rangeDecoder) decodeDirectBits(n int) (uint32, error) {
	var v uint32
	for i := 0; i < n; i++ {
		b, err := d.decodeDirectBit()
		if err != nil {
			return 0, err
		}
		v = (v << 1) | b
	}
	return v, nil
}

// isFinished reports whether the decoder has consumed a plausible
// end-of-stream position; used to sanity-check chunk/member boundaries.
func (d *rangeDecoder) isFinished() bool {
	return d.code == 0
}
