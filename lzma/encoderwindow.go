package lzma

// matcher is the capability the HC4 and BT4 match finders both expose
// to the encoder window: feed it bytes as they become the dictionary,
// and ask it for match candidates ending just before the current head.
type matcher interface {
	// insert makes the byte at the given absolute position (whose
	// 4-byte prefix is buf[pos:pos+4], possibly short at EOF)
	// available as a future match target.
	insert(buf []byte, pos int64)
	// find returns match candidates for the window's current head,
	// strictly increasing in length, per spec §3.6.
	find(buf []byte, head int64, niceLen, depthLimit int) []match
	reset()
}

// match is a single (distance, length) candidate, distance already
// offset by -1 (spec's "distance offset" convention used by distCodec)
// is NOT applied here; dist is the true byte distance (>=1).
type match struct {
	dist int64
	n    int
}

// encoderWindow is the encoder-side sliding window of spec §3.4: a
// flat buffer holding keepBefore bytes of already-coded dictionary,
// keepAfter+reserve bytes of lookahead, with read_pos/write_pos
// indices. When read_pos nears the end the live region is copied down
// to keep memory bounded regardless of total input size.
type encoderWindow struct {
	data       []byte
	readPos    int
	writePos   int
	keepBefore int
	keepAfter  int
	base       int64 // absolute stream position of data[0]
	closed     bool  // true once no more input will arrive
	m          matcher
	presetDict []byte
}

func newEncoderWindow(dictCap, niceLen int, m matcher) *encoderWindow {
	keepAfter := niceLen + maxMatchLen
	reserve := dictCap/2 + (1 << 16)
	size := dictCap + keepAfter + reserve
	return &encoderWindow{
		data:       make([]byte, size),
		keepBefore: dictCap,
		keepAfter:  keepAfter,
		m:          m,
	}
}

func (w *encoderWindow) setPresetDict(dict []byte) {
	if len(dict) == 0 {
		return
	}
	if len(dict) > w.keepBefore {
		dict = dict[len(dict)-w.keepBefore:]
	}
	n := copy(w.data, dict)
	w.readPos = n
	w.writePos = n
	w.base = -int64(n)
	for i := 0; i < n; i++ {
		w.m.insert(w.data, int64(i)-int64(n)+w.base+int64(n))
	}
}

// pos is the absolute stream position of the next byte to be coded.
func (w *encoderWindow) pos() int64 { return w.base + int64(w.readPos) }

// write appends application bytes into the lookahead area, compacting
// the buffer first if necessary.
func (w *encoderWindow) write(p []byte) (n int, err error) {
	for len(p) > 0 {
		if w.writePos == len(w.data) {
			w.compact()
			if w.writePos == len(w.data) {
				return n, newErr(CodeInvalidInput, "encoder window full")
			}
		}
		k := copy(w.data[w.writePos:], p)
		w.writePos += k
		n += k
		p = p[k:]
	}
	return n, nil
}

// compact slides the live region down so write_pos has room, keeping
// keepBefore bytes of history before read_pos, aligned to 16 bytes as
// spec §3.4 prescribes.
func (w *encoderWindow) compact() {
	newStart := w.readPos - w.keepBefore
	if newStart <= 0 {
		return
	}
	newStart &^= 15
	if newStart <= 0 {
		return
	}
	copy(w.data, w.data[newStart:w.writePos])
	w.readPos -= newStart
	w.writePos -= newStart
	w.base += int64(newStart)
}

// avail returns how many lookahead bytes are available to code.
func (w *encoderWindow) avail() int { return w.writePos - w.readPos }

// finish marks that no more input will arrive; avail() now reports the
// true remaining tail instead of being bounded by keepAfter lookahead
// requirements elsewhere.
func (w *encoderWindow) finish() { w.closed = true }

// byteAt returns the byte dist (>=1) bytes before the head.
func (w *encoderWindow) byteAt(dist int) byte {
	return w.data[w.readPos-dist]
}

// matchLen returns how many bytes starting at the head equal the bytes
// starting dist bytes earlier, up to maxMatchLen and avail().
func (w *encoderWindow) matchLen(dist int, limit int) int {
	avail := w.avail()
	if limit > avail {
		limit = avail
	}
	a := w.data[w.readPos : w.readPos+limit]
	b := w.data[w.readPos-dist : w.readPos-dist+limit]
	n := 0
	for n < limit && a[n] == b[n] {
		n++
	}
	return n
}

// advance feeds n coded bytes into the matcher and moves the head
// forward.
func (w *encoderWindow) advance(n int) {
	for i := 0; i < n; i++ {
		w.m.insert(w.data[:w.writePos], w.base+int64(w.readPos))
		w.readPos++
	}
}

func (w *encoderWindow) findMatches(niceLen, depthLimit int) []match {
	return w.m.find(w.data[:w.writePos], w.base+int64(w.readPos), niceLen, depthLimit)
}
