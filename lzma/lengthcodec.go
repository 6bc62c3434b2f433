package lzma

// Length range supported by the coder: 2..273 (spec §3.6/§4.2).
const (
	minMatchLen = 2
	maxMatchLen = minMatchLen + 16 + 256 - 1
)

// lengthCodec implements the two-level length choice of spec §4.2: a
// low tree (8 values), a mid tree (8 values) and a high tree (256
// values), selected by two choice bits and indexed by posState for the
// low/mid trees.
type lengthCodec struct {
	choice [2]prob
	low    [1 << maxPosBits]treeCodec
	mid    [1 << maxPosBits]treeCodec
	high   treeCodec
}

func newLengthCodec() lengthCodec {
	lc := lengthCodec{high: makeTreeCodec(8)}
	lc.choice[0], lc.choice[1] = probInit, probInit
	for i := range lc.low {
		lc.low[i] = makeTreeCodec(3)
		lc.mid[i] = makeTreeCodec(3)
	}
	return lc
}

func (lc *lengthCodec) encode(e *rangeEncoder, l uint32, posState uint32) error {
	l -= minMatchLen
	if l < 8 {
		if err := e.encodeBit(&lc.choice[0], 0); err != nil {
			return err
		}
		return lc.low[posState].encode(e, l)
	}
	if err := e.encodeBit(&lc.choice[0], 1); err != nil {
		return err
	}
	if l < 16 {
		if err := e.encodeBit(&lc.choice[1], 0); err != nil {
			return err
		}
		return lc.mid[posState].encode(e, l-8)
	}
	if err := e.encodeBit(&lc.choice[1], 1); err != nil {
		return err
	}
	return lc.high.encode(e, l-16)
}

func (lc *lengthCodec) decode(d *rangeDecoder, posState uint32) (uint32, error) {
	b0, err := d.decodeBit(&lc.choice[0])
	if err != nil {
		return 0, err
	}
	if b0 == 0 {
		l, err := lc.low[posState].decode(d)
		return l + minMatchLen, err
	}
	b1, err := d.decodeBit(&lc.choice[1])
	if err != nil {
		return 0, err
	}
	if b1 == 0 {
		l, err := lc.mid[posState].decode(d)
		return l + minMatchLen + 8, err
	}
	l, err := lc.high.decode(d)
	return l + minMatchLen + 16, err
}

// clone returns a deep copy, so mutating the copy's tree probabilities
// never affects lc's.
func (lc lengthCodec) clone() lengthCodec {
	for i := range lc.low {
		lc.low[i] = lc.low[i].clone()
		lc.mid[i] = lc.mid[i].clone()
	}
	lc.high = lc.high.clone()
	return lc
}

func (lc *lengthCodec) price(l uint32, posState uint32) uint32 {
	l -= minMatchLen
	if l < 8 {
		return lc.choice[0].price(0) + lc.low[posState].price(l)
	}
	if l < 16 {
		return lc.choice[0].price(1) + lc.choice[1].price(0) + lc.mid[posState].price(l-8)
	}
	return lc.choice[0].price(1) + lc.choice[1].price(1) + lc.high.price(l-16)
}
