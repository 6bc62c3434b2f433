package lzma

import "io"

// Encoder turns a byte stream into a raw LZMA stream (no container
// framing), choosing between literals, matches and repeated-distance
// matches at each position per spec §4.2's encode loop.
//
// Mode selects how that choice is made: ModeFast uses a length-only
// heuristic (cheap, streaming-friendly); ModeNormal additionally
// normalizes each candidate's range-coder price per byte it covers and
// picks the cheapest, giving the optimal parser's flavor of decision
// without the reference implementation's full multi-position dynamic
// program — see DESIGN.md.
type Encoder struct {
	st   *state
	re   *rangeEncoder
	win  *encoderWindow
	opts Options
}

// NewEncoder constructs an Encoder writing range-coded output to w.
func NewEncoder(w io.Writer, props Properties, opts Options) (*Encoder, error) {
	enc, err := NewRawEncoder(props, opts)
	if err != nil {
		return nil, err
	}
	enc.re = newRangeEncoder(w)
	return enc, nil
}

// NewRawEncoder builds an Encoder with its window, matcher and
// probability model ready but no range-coder output target yet; used
// by the LZMA2 chunk encoder, which attaches a fresh range-coder
// sequence per chunk via EncodeChunk while window/state persist across
// chunks that don't reset them.
func NewRawEncoder(props Properties, opts Options) (*Encoder, error) {
	opts.ApplyDefaults()
	if err := opts.Verify(); err != nil {
		return nil, err
	}
	var m matcher
	switch opts.MatchFinder {
	case MFBT4:
		m = newBT4(opts.DictSize)
	default:
		m = newHC4(opts.DictSize)
	}
	win := newEncoderWindow(opts.DictSize, opts.NiceLen, m)
	if len(opts.PresetDict) > 0 {
		win.setPresetDict(opts.PresetDict)
	}
	return &Encoder{
		st:   newState(props),
		win:  win,
		opts: opts,
	}, nil
}

// Properties reports the lc/lp/pb currently active, for callers (like
// the LZMA2 writer) that need to emit a properties byte on reset.
func (enc *Encoder) Properties() Properties { return enc.st.props }

// Feed buffers application bytes into the encoder's lookahead window
// without encoding them, for callers (the LZMA2 writer) that decide
// chunk boundaries themselves and drive encoding via EncodeChunk.
func (enc *Encoder) Feed(p []byte) (int, error) { return enc.win.write(p) }

// FinishInput marks that no more input will arrive, letting Pending
// report the true remaining tail rather than holding back lookahead.
func (enc *Encoder) FinishInput() { enc.win.finish() }

// Write feeds application bytes into the encoder's lookahead window and
// encodes everything that can be resolved without further lookahead.
func (enc *Encoder) Write(p []byte) (int, error) {
	n, err := enc.win.write(p)
	if err != nil {
		return n, err
	}
	if err := enc.drain(false); err != nil {
		return n, err
	}
	return n, nil
}

// Close flushes remaining lookahead, emits the LZMA1 end-of-stream
// marker and drains the range coder.
func (enc *Encoder) Close() error {
	enc.win.finish()
	if err := enc.drain(true); err != nil {
		return err
	}
	if err := enc.encodeEOS(); err != nil {
		return err
	}
	return enc.re.finish()
}

// historyLen reports how many bytes of dictionary are available before
// the current head, used to validate rep distances.
func (enc *Encoder) historyLen() int { return enc.win.readPos }

func (enc *Encoder) drain(all bool) error {
	minNeeded := enc.opts.NiceLen
	if enc.win.closed {
		all = true
	}
	for {
		avail := enc.win.avail()
		if all {
			if avail == 0 {
				return nil
			}
		} else if avail < minNeeded+1 {
			return nil
		}
		if err := enc.step(0); err != nil {
			return err
		}
	}
}

// EncodeChunk range-codes exactly n bytes of already-buffered input
// (the caller must have Write-n enough input first) to w as a single
// independent range-coder sequence, leaving the window and state
// models untouched for a following chunk to continue from — the LZMA2
// "no reset" chunk boundary of spec §4.4. It does not emit an LZMA1
// end-of-stream marker; chunk boundaries are signalled by the caller's
// container framing instead.
func (enc *Encoder) EncodeChunk(w io.Writer, n int) error {
	enc.re = newRangeEncoder(w)
	target := enc.win.pos() + int64(n)
	for enc.win.pos() < target {
		remaining := int(target - enc.win.pos())
		if err := enc.step(remaining); err != nil {
			return err
		}
	}
	return enc.re.finish()
}

// Snapshot captures the probability model and symbol-class state (but
// not the dictionary window, which a discarded chunk attempt never
// needs to roll back, since its bytes were consumed either way) so a
// speculative EncodeChunk can be undone with Restore if the caller
// decides not to keep its output.
func (enc *Encoder) Snapshot() *EncoderState {
	return &EncoderState{st: enc.st.clone()}
}

// Restore undoes every probability and state-machine update made since
// the matching Snapshot, leaving the window untouched.
func (enc *Encoder) Restore(snap *EncoderState) {
	enc.st = snap.st
}

// EncoderState is an opaque capture of an Encoder's probability model,
// returned by Snapshot and consumed by Restore.
type EncoderState struct {
	st *state
}

// ResetState discards the probability model and symbol-class state
// (LZMA2 "state reset" chunk, spec §4.4) without touching the
// dictionary window.
func (enc *Encoder) ResetState() { enc.st.resetState() }

// ResetProps installs new lc/lp/pb values (LZMA2 "new properties"
// chunk, spec §4.4).
func (enc *Encoder) ResetProps(props Properties) { enc.st.resetProps(props) }

// ResetDict drops all match-finder history so no future match can
// reference bytes before this point (LZMA2 "dictionary reset" chunk,
// spec §4.4). Always paired with ResetState in practice, since a stray
// rep distance left pointing before the reset would otherwise still
// read stale bytes out of the window's backing buffer.
func (enc *Encoder) ResetDict() { enc.win.m.reset() }

// RecentBytes returns the n bytes most recently consumed by the
// parser, in stream order — used when a chunk's compressed form turns
// out not to be smaller than its input and the caller falls back to
// storing it uncompressed instead.
func (enc *Encoder) RecentBytes(n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[n-1-i] = enc.win.byteAt(i + 1)
	}
	return out
}

// Pending reports how many buffered-but-unencoded bytes remain
// available to chunk.
func (enc *Encoder) Pending() int { return enc.win.avail() }

// Flush forces any remaining buffered input through the parser without
// closing the stream (used when the caller wants a definite chunk
// boundary without EOS).
func (enc *Encoder) Flush() error { return enc.drain(true) }

type candKind int

const (
	candLiteral candKind = iota
	candMatch
	candRep
)

func (enc *Encoder) step(budget int) error {
	pos := enc.win.pos()
	posState := enc.st.posState(pos)
	avail := enc.win.avail()
	maxLen := maxMatchLen
	if avail < maxLen {
		maxLen = avail
	}
	if budget > 0 && budget < maxLen {
		maxLen = budget
	}

	var repLens [4]int
	hist := enc.historyLen()
	for i, d := range enc.st.rep {
		if d == 0 || int64(d) > int64(hist) {
			continue
		}
		repLens[i] = enc.win.matchLen(int(d), maxLen)
	}

	matches := enc.win.findMatches(enc.opts.NiceLen, enc.opts.DepthLimit)
	var bestDist int64
	var bestLen int
	if len(matches) > 0 {
		m := matches[len(matches)-1]
		bestDist, bestLen = m.dist, m.n
		if bestLen > maxLen {
			bestLen = maxLen
		}
	}

	kind, idx, length, dist := enc.choose(posState, repLens, bestDist, bestLen, maxLen)

	switch kind {
	case candLiteral:
		if err := enc.encodeLiteral(posState); err != nil {
			return err
		}
		enc.st.updateLiteral()
		enc.win.advance(1)
	case candRep:
		if err := enc.encodeRep(posState, idx, length); err != nil {
			return err
		}
		enc.win.advance(length)
	case candMatch:
		if err := enc.encodeMatch(posState, dist, length); err != nil {
			return err
		}
		enc.win.advance(length)
	}
	return nil
}

// choose picks what to encode at the current position. See the Encoder
// doc comment for the Fast/Normal distinction.
func (enc *Encoder) choose(posState uint32, repLens [4]int, matchDist int64, matchLen, maxLen int) (kind candKind, idx, length int, dist int64) {
	bestRepIdx, bestRepLen := 0, 0
	for i, l := range repLens {
		if l > bestRepLen {
			bestRepLen, bestRepIdx = l, i
		}
	}

	if enc.opts.Mode == ModeFast {
		switch {
		case bestRepLen >= 2 && bestRepLen+1 >= matchLen:
			return candRep, bestRepIdx, bestRepLen, 0
		case matchLen >= minMatchLen:
			return candMatch, 0, matchLen, matchDist
		default:
			return candLiteral, 0, 1, 0
		}
	}

	// ModeNormal: normalize each viable candidate's estimated price per
	// byte covered and take the cheapest.
	type cand struct {
		kind   candKind
		idx    int
		length int
		dist   int64
		perByte float64
	}
	var cands []cand
	cands = append(cands, cand{kind: candLiteral, length: 1, perByte: 1 << 30})

	if bestRepLen >= 2 {
		l := clampLen(bestRepLen, maxLen)
		p := float64(enc.priceRep(posState, bestRepIdx, l))
		cands[0] = cand{kind: candLiteral, length: 1, perByte: float64(enc.priceLiteral(posState))}
		cands = append(cands, cand{kind: candRep, idx: bestRepIdx, length: l, perByte: p / float64(l)})
	} else {
		cands[0] = cand{kind: candLiteral, length: 1, perByte: float64(enc.priceLiteral(posState))}
	}
	if matchLen >= minMatchLen {
		l := clampLen(matchLen, maxLen)
		p := float64(enc.priceMatch(posState, matchDist, l))
		cands = append(cands, cand{kind: candMatch, length: l, dist: matchDist, perByte: p / float64(l)})
	}

	best := cands[0]
	for _, c := range cands[1:] {
		if c.perByte < best.perByte {
			best = c
		}
	}
	return best.kind, best.idx, best.length, best.dist
}

func clampLen(l, max int) int {
	if l > max {
		return max
	}
	return l
}

func (enc *Encoder) priceLiteral(posState uint32) uint32 {
	matched := enc.st.isAfterMatch()
	var matchByte byte
	if matched && enc.historyLen() > 0 && int64(enc.st.rep[0]) <= int64(enc.historyLen()) {
		matchByte = enc.win.byteAt(int(enc.st.rep[0]))
	} else {
		matched = false
	}
	var prevByte byte
	if enc.historyLen() > 0 {
		prevByte = enc.win.byteAt(1)
	}
	litState := enc.st.litState(prevByte, enc.win.pos())
	cur := enc.win.byteAt(0)
	return enc.st.isMatch[enc.st.st<<maxPosBits|posState].price(0) +
		enc.st.lit.price(cur, matched, matchByte, litState)
}

func (enc *Encoder) priceMatch(posState uint32, dist int64, length int) uint32 {
	lenMinus := uint32(length - minMatchLen)
	return enc.st.isMatch[enc.st.st<<maxPosBits|posState].price(1) +
		enc.st.isRep[enc.st.st].price(0) +
		enc.st.len.price(uint32(length), posState) +
		enc.st.dist.price(uint32(dist-1), lenMinus)
}

func (enc *Encoder) priceRep(posState uint32, idx, length int) uint32 {
	price := enc.st.isMatch[enc.st.st<<maxPosBits|posState].price(1) +
		enc.st.isRep[enc.st.st].price(1)
	switch idx {
	case 0:
		price += enc.st.isRepG0[enc.st.st].price(0)
		if length == 1 {
			return price + enc.st.isRep0Long[enc.st.st<<maxPosBits|posState].price(0)
		}
		price += enc.st.isRep0Long[enc.st.st<<maxPosBits|posState].price(1)
	case 1:
		price += enc.st.isRepG0[enc.st.st].price(1) + enc.st.isRepG1[enc.st.st].price(0)
	case 2:
		price += enc.st.isRepG0[enc.st.st].price(1) + enc.st.isRepG1[enc.st.st].price(1) + enc.st.isRepG2[enc.st.st].price(0)
	default:
		price += enc.st.isRepG0[enc.st.st].price(1) + enc.st.isRepG1[enc.st.st].price(1) + enc.st.isRepG2[enc.st.st].price(1)
	}
	return price + enc.st.repLen.price(uint32(length), posState)
}

func (enc *Encoder) encodeLiteral(posState uint32) error {
	if err := enc.re.encodeBit(&enc.st.isMatch[enc.st.st<<maxPosBits|posState], 0); err != nil {
		return err
	}
	matched := enc.st.isAfterMatch()
	var matchByte byte
	if matched {
		matchByte = enc.win.byteAt(int(enc.st.rep[0]))
	}
	var prevByte byte
	if enc.historyLen() > 0 {
		prevByte = enc.win.byteAt(1)
	}
	litState := enc.st.litState(prevByte, enc.win.pos())
	cur := enc.win.byteAt(0)
	return enc.st.lit.encode(enc.re, cur, matched, matchByte, litState)
}

func (enc *Encoder) encodeMatch(posState uint32, dist int64, length int) error {
	if err := enc.re.encodeBit(&enc.st.isMatch[enc.st.st<<maxPosBits|posState], 1); err != nil {
		return err
	}
	if err := enc.re.encodeBit(&enc.st.isRep[enc.st.st], 0); err != nil {
		return err
	}
	if err := enc.st.len.encode(enc.re, uint32(length), posState); err != nil {
		return err
	}
	if err := enc.st.dist.encode(enc.re, uint32(dist-1), uint32(length-minMatchLen)); err != nil {
		return err
	}
	enc.st.rep[3], enc.st.rep[2], enc.st.rep[1] = enc.st.rep[2], enc.st.rep[1], enc.st.rep[0]
	enc.st.rep[0] = uint32(dist)
	enc.st.updateMatch()
	return nil
}

func (enc *Encoder) encodeRep(posState uint32, idx, length int) error {
	if err := enc.re.encodeBit(&enc.st.isMatch[enc.st.st<<maxPosBits|posState], 1); err != nil {
		return err
	}
	if err := enc.re.encodeBit(&enc.st.isRep[enc.st.st], 1); err != nil {
		return err
	}
	switch idx {
	case 0:
		if err := enc.re.encodeBit(&enc.st.isRepG0[enc.st.st], 0); err != nil {
			return err
		}
		if length == 1 {
			if err := enc.re.encodeBit(&enc.st.isRep0Long[enc.st.st<<maxPosBits|posState], 0); err != nil {
				return err
			}
			enc.st.updateShortRep()
			return nil
		}
		if err := enc.re.encodeBit(&enc.st.isRep0Long[enc.st.st<<maxPosBits|posState], 1); err != nil {
			return err
		}
	case 1:
		if err := enc.re.encodeBit(&enc.st.isRepG0[enc.st.st], 1); err != nil {
			return err
		}
		if err := enc.re.encodeBit(&enc.st.isRepG1[enc.st.st], 0); err != nil {
			return err
		}
		enc.st.rep[0], enc.st.rep[1] = enc.st.rep[1], enc.st.rep[0]
	case 2:
		if err := enc.re.encodeBit(&enc.st.isRepG0[enc.st.st], 1); err != nil {
			return err
		}
		if err := enc.re.encodeBit(&enc.st.isRepG1[enc.st.st], 1); err != nil {
			return err
		}
		if err := enc.re.encodeBit(&enc.st.isRepG2[enc.st.st], 0); err != nil {
			return err
		}
		dist := enc.st.rep[2]
		enc.st.rep[2] = enc.st.rep[1]
		enc.st.rep[1] = enc.st.rep[0]
		enc.st.rep[0] = dist
	default:
		if err := enc.re.encodeBit(&enc.st.isRepG0[enc.st.st], 1); err != nil {
			return err
		}
		if err := enc.re.encodeBit(&enc.st.isRepG1[enc.st.st], 1); err != nil {
			return err
		}
		if err := enc.re.encodeBit(&enc.st.isRepG2[enc.st.st], 1); err != nil {
			return err
		}
		dist := enc.st.rep[3]
		enc.st.rep[3] = enc.st.rep[2]
		enc.st.rep[2] = enc.st.rep[1]
		enc.st.rep[1] = enc.st.rep[0]
		enc.st.rep[0] = dist
	}
	if err := enc.st.repLen.encode(enc.re, uint32(length), posState); err != nil {
		return err
	}
	enc.st.updateRep()
	return nil
}

// encodeEOS emits the canonical end-of-stream marker: a match with
// distance offset all-ones (spec §4.2, "EOS marker").
func (enc *Encoder) encodeEOS() error {
	posState := enc.st.posState(enc.win.pos())
	if err := enc.re.encodeBit(&enc.st.isMatch[enc.st.st<<maxPosBits|posState], 1); err != nil {
		return err
	}
	if err := enc.re.encodeBit(&enc.st.isRep[enc.st.st], 0); err != nil {
		return err
	}
	if err := enc.st.len.encode(enc.re, minMatchLen, posState); err != nil {
		return err
	}
	return enc.st.dist.encode(enc.re, eosDist, 0)
}
