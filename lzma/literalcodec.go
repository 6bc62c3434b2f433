package lzma

// literalCodec holds 0x300 probabilities per literal-state context: the
// low 0x100 code the byte directly, the upper 0x200 are consulted when
// the previous symbol was a match and the literal is matched bit by bit
// against the matched byte (spec §4.2, Literal row).
type literalCodec struct {
	probs []prob
}

func newLiteralCodec(lc, lp int) literalCodec {
	c := literalCodec{probs: make([]prob, 0x300<<uint(lc+lp))}
	initProbs(c.probs)
	return c
}

// clone returns a deep copy, so mutating the copy's probabilities never
// affects c's.
func (c literalCodec) clone() literalCodec {
	c.probs = append([]prob(nil), c.probs...)
	return c
}

func (c *literalCodec) encode(e *rangeEncoder, s byte, matched bool, match byte, litState uint32) error {
	probs := c.probs[litState*0x300 : litState*0x300+0x300]
	symbol := uint32(1)
	r := uint32(s)
	if matched {
		m := uint32(match)
		for symbol < 0x100 {
			matchBit := (m >> 7) & 1
			m <<= 1
			bit := (r >> 7) & 1
			r <<= 1
			i := ((1 + matchBit) << 8) | symbol
			if err := e.encodeBit(&probs[i], bit); err != nil {
				return err
			}
			symbol = (symbol << 1) | bit
			if matchBit != bit {
				break
			}
		}
	}
	for symbol < 0x100 {
		bit := (r >> 7) & 1
		r <<= 1
		if err := e.encodeBit(&probs[symbol], bit); err != nil {
			return err
		}
		symbol = (symbol << 1) | bit
	}
	return nil
}

func (c *literalCodec) decode(d *rangeDecoder, matched bool, match byte, litState uint32) (byte, error) {
	probs := c.probs[litState*0x300 : litState*0x300+0x300]
	symbol := uint32(1)
	if matched {
		m := uint32(match)
		for symbol < 0x100 {
			matchBit := (m >> 7) & 1
			m <<= 1
			i := ((1 + matchBit) << 8) | symbol
			bit, err := d.decodeBit(&probs[i])
			if err != nil {
				return 0, err
			}
			symbol = (symbol << 1) | bit
			if matchBit != bit {
				break
			}
		}
	}
	for symbol < 0x100 {
		bit, err := d.decodeBit(&probs[symbol])
		if err != nil {
			return 0, err
		}
		symbol = (symbol << 1) | bit
	}
	return byte(symbol - 0x100), nil
}

// price estimates the bit-cost of encoding s under the given context,
// used by the optimal parser to compare literal vs. match edges.
func (c *literalCodec) price(s byte, matched bool, match byte, litState uint32) uint32 {
	probs := c.probs[litState*0x300 : litState*0x300+0x300]
	symbol := uint32(1)
	r := uint32(s)
	var price uint32
	if matched {
		m := uint32(match)
		for symbol < 0x100 {
			matchBit := (m >> 7) & 1
			m <<= 1
			bit := (r >> 7) & 1
			r <<= 1
			i := ((1 + matchBit) << 8) | symbol
			price += probs[i].price(bit)
			symbol = (symbol << 1) | bit
			if matchBit != bit {
				goto tail
			}
		}
		return price
	}
tail:
	for symbol < 0x100 {
		bit := (r >> 7) & 1
		r <<= 1
		price += probs[symbol].price(bit)
		symbol = (symbol << 1) | bit
	}
	return price
}
