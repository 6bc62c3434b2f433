package lzip

import (
	"github.com/lzmaio/xzmt/lzma"
)

// Options configures a member's LZMA1 body. Properties (lc/lp/pb) are
// not configurable — the LZIP format fixes them at 3/0/2 and carries no
// properties byte — so only the match-finder/window knobs of
// lzma.Options are honored; the rest follows the teacher's
// ApplyDefaults/Verify config-struct idiom (SPEC_FULL.md §10.3).
type Options struct {
	DictSize    int
	Mode        lzma.Mode
	MatchFinder lzma.MatchFinder
	NiceLen     int
	DepthLimit  int
	PresetDict  []byte
}

// Preset returns Options for one of the ten standard levels, deferring
// to lzma.Preset for the window/match-finder knobs and discarding the
// lc/lp/pb it computes (LZIP has none).
func Preset(level int) Options {
	o := lzma.Preset(level)
	return Options{
		DictSize:    o.DictSize,
		Mode:        o.Mode,
		MatchFinder: o.MatchFinder,
		NiceLen:     o.NiceLen,
		DepthLimit:  o.DepthLimit,
	}
}

func (o *Options) ApplyDefaults() {
	d := Preset(6)
	if o.DictSize == 0 {
		o.DictSize = d.DictSize
	}
	if o.NiceLen == 0 {
		o.NiceLen = d.NiceLen
	}
	lo := o.lzmaOptions()
	lo.ApplyDefaults()
	o.DepthLimit = lo.DepthLimit
}

func (o *Options) Verify() error {
	lo := o.lzmaOptions()
	return lo.Verify()
}

func (o Options) lzmaOptions() lzma.Options {
	return lzma.Options{
		DictSize:    o.DictSize,
		LC:          LC,
		LP:          LP,
		PB:          PB,
		Mode:        o.Mode,
		MatchFinder: o.MatchFinder,
		NiceLen:     o.NiceLen,
		DepthLimit:  o.DepthLimit,
		PresetDict:  o.PresetDict,
	}
}

func (o Options) properties() lzma.Properties {
	p, _ := lzma.NewProperties(LC, LP, PB)
	return p
}
