package filter

import "io"

// x86Filter implements the XZ x86 BCJ filter (spec §9 domain stack):
// relative CALL/JMP (E8/E9) operand addresses are converted to absolute
// ones on encode (and back on decode) so the LZMA2 stage sees more
// repetitive byte patterns across similar code addresses. The other
// BCJ variants (PowerPC, ARM, ...) follow the same idea with different
// instruction encodings; only x86 is implemented here (SPEC_FULL.md
// §11).
type x86Filter struct{}

func newX86Filter(props []byte) Filter { return x86Filter{} }

func (x86Filter) ID() ID             { return IDX86 }
func (x86Filter) Properties() []byte { return nil }

func (x86Filter) Encoder(w io.Writer) io.WriteCloser {
	return &x86Coder{w: w, encoding: true}
}

func (x86Filter) Decoder(r io.Reader) io.Reader {
	return &x86Coder{r: r, encoding: false}
}

// x86Coder buffers the whole stream before transforming it: the filter
// needs a look-behind/look-ahead window around every E8/E9 byte, and
// streams are expected to be modest-sized LZMA2 chunks rather than
// unbounded firehoses, so buffering is the simplest correct approach
// (spec places no bound on filter memory use, only on LZMA2's own
// dictionary).
type x86Coder struct {
	w        io.Writer
	r        io.Reader
	encoding bool
	buf      []byte
	ip       uint32
	read     bool
}

func (c *x86Coder) Write(p []byte) (int, error) {
	c.buf = append(c.buf, p...)
	return len(p), nil
}

func (c *x86Coder) Close() error {
	out := append([]byte(nil), c.buf...)
	x86Convert(out, c.ip, c.encoding)
	if _, err := c.w.Write(out); err != nil {
		return err
	}
	if cl, ok := c.w.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

func (c *x86Coder) Read(p []byte) (int, error) {
	if !c.read {
		buf, err := io.ReadAll(c.r)
		if err != nil {
			return 0, err
		}
		x86Convert(buf, c.ip, c.encoding)
		c.buf = buf
		c.read = true
	}
	if len(c.buf) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

func test86MSByte(b byte) bool { return b == 0x00 || b == 0xFF }

var maskToAllowedStatus = [8]bool{true, true, true, false, true, false, false, false}
var maskToBitNumber = [8]uint32{0, 1, 2, 2, 3, 3, 3, 3}

// x86Convert applies the classic 7-Zip/xz-utils x86 BCJ transform to
// data in place, starting at virtual address ip; encoding selects the
// forward (relative->absolute) or inverse direction. The transform
// is its own approximate inverse by construction: decode with the same
// ip recovers the original bytes.
func x86Convert(data []byte, ip uint32, encoding bool) {
	if len(data) < 5 {
		return
	}
	size := len(data) - 4
	prevMask := uint32(0)
	prevPos := -1
	i := 0
	for i < size {
		if data[i]&0xFE != 0xE8 {
			i++
			continue
		}
		off := i - prevPos
		prevPos = i
		if off > 3 {
			prevMask = 0
		} else {
			prevMask = (prevMask << uint(off-1)) & 0x7
			if prevMask != 0 {
				b := data[i+4-int(maskToBitNumber[prevMask])]
				if !maskToAllowedStatus[prevMask] || test86MSByte(b) {
					prevMask = ((prevMask << 1) & 0x7) | 1
					i++
					continue
				}
			}
		}
		if test86MSByte(data[i+4]) {
			src := uint32(data[i+1]) | uint32(data[i+2])<<8 | uint32(data[i+3])<<16 | uint32(data[i+4])<<24
			var dest uint32
			for {
				if encoding {
					dest = src + (ip + uint32(i) + 5)
				} else {
					dest = src - (ip + uint32(i) + 5)
				}
				if prevMask == 0 {
					break
				}
				idx := maskToBitNumber[prevMask] * 8
				b := byte(dest >> (24 - idx))
				if !test86MSByte(b) {
					break
				}
				src = dest ^ ((1 << (32 - idx)) - 1)
			}
			data[i+4] = byte(0 - ((dest >> 24) & 1))
			data[i+3] = byte(dest >> 16)
			data[i+2] = byte(dest >> 8)
			data[i+1] = byte(dest)
			i += 5
		} else {
			prevMask = ((prevMask << 1) & 0x7) | 1
			i++
		}
	}
}
