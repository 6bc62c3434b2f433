// Package filter implements the small set of XZ filters this library
// supports as a chain: a linear sequence of byte-stream transforms
// applied before LZMA2 compression on encode and after LZMA2
// decompression on decode (spec §9's "Vec<Filter> + interpreter"
// re-architecture note, replacing the teacher's nested-reader wrapper
// style).
package filter

import "io"

// ID identifies a filter the way the XZ block header does (spec §6.3).
type ID uint64

const (
	IDDelta    ID = 0x03
	IDX86      ID = 0x04
	IDPowerPC  ID = 0x05
	IDIA64     ID = 0x06
	IDARM      ID = 0x07
	IDARMThumb ID = 0x08
	IDSPARC    ID = 0x09
	IDARM64    ID = 0x0A
	IDRISCV    ID = 0x0B
	IDLZMA2    ID = 0x21
)

// Filter is one entry of a filter chain. Encoder/Decoder wrap an
// io.Writer/io.Reader with the filter's transform; the last filter in
// a chain is always the compressor (LZMA2) and is handled separately
// by the xz package, so Filter here only covers the non-terminal,
// reversible byte transforms (Delta, the BCJ family).
type Filter interface {
	ID() ID
	// Properties returns the filter's block-header properties bytes
	// (spec §6.3); nil for filters with no properties.
	Properties() []byte
	// Encoder wraps w so that writes to the returned writer are
	// transformed before reaching w.
	Encoder(w io.Writer) io.WriteCloser
	// Decoder wraps r so that reads from the returned reader are
	// transformed after being read from r.
	Decoder(r io.Reader) io.Reader
}

// Chain is an ordered list of non-terminal filters, applied outermost
// first on encode (matching the XZ block header's filter order, spec
// §6.3).
type Chain []Filter

// MaxChainFilters is the XZ format's limit of filters per block,
// including the terminal compressor (spec §6.3).
const MaxChainFilters = 4

func (c Chain) Encoder(w io.Writer) io.WriteCloser {
	var wc io.WriteCloser = nopCloser{w}
	for i := len(c) - 1; i >= 0; i-- {
		wc = c[i].Encoder(wc)
	}
	return wc
}

func (c Chain) Decoder(r io.Reader) io.Reader {
	for i := len(c) - 1; i >= 0; i-- {
		r = c[i].Decoder(r)
	}
	return r
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// ByID constructs the filter for a recognized ID from its raw
// block-header properties bytes. BCJ variants other than x86 are
// recognized (so a stream naming them produces a clear Unsupported
// error rather than silently mis-parsing the block header) but are
// not implemented, per SPEC_FULL.md's domain stack section.
func ByID(id ID, props []byte) (Filter, error) {
	switch id {
	case IDDelta:
		return newDeltaFilter(props)
	case IDX86:
		return newX86Filter(props), nil
	case IDPowerPC, IDIA64, IDARM, IDARMThumb, IDSPARC, IDARM64, IDRISCV:
		return nil, unsupportedFilter(id)
	default:
		return nil, unsupportedFilter(id)
	}
}
