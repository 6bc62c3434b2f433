package lzma

import "fmt"

// Mode selects the parser strategy used by the encoder (spec §4.2,
// "Fast" vs "Normal").
type Mode int

const (
	// ModeFast uses a greedy parser: cheap, streaming-friendly, used by
	// the low presets.
	ModeFast Mode = iota
	// ModeNormal compares the range-coder price per covered byte of the
	// literal, match and rep candidates at the current position and takes
	// the cheapest, for better ratio at higher cost. It does not search
	// for a minimum-cost path across several positions.
	ModeNormal
)

// MatchFinder selects which match finder backs the encoder window.
type MatchFinder int

const (
	MFHC4 MatchFinder = iota
	MFBT4
)

// Options configures a single-stream LZMA encoder, corresponding to
// spec §6.5's tunable knobs plus the preset table. Mirrors the shape of
// the teacher's WriterConfig: a plain struct with an ApplyDefaults/
// Verify pair rather than a constructor with a long parameter list.
type Options struct {
	DictSize    int
	LC, LP, PB  int
	Mode        Mode
	MatchFinder MatchFinder
	NiceLen     int
	DepthLimit  int
	PresetDict  []byte
}

const (
	minDictSize = 1 << 12
	maxDictSize = 1<<32 - 1

	minNiceLen = 2
	maxNiceLen = maxMatchLen
)

// Preset returns the Options for one of the ten standard compression
// levels (0 fastest/worst ratio .. 9 slowest/best ratio), following the
// table conventionally shipped by LZMA/XZ implementations (spec §6.5).
func Preset(level int) Options {
	if level < 0 {
		level = 0
	}
	if level > 9 {
		level = 9
	}
	o := Options{LC: 3, LP: 0, PB: 2}
	switch {
	case level <= 3:
		o.DictSize = 1 << (18 + uint(level))
		o.Mode = ModeFast
		o.MatchFinder = MFHC4
		o.NiceLen = 128
		o.DepthLimit = 0
	case level <= 6:
		o.DictSize = 1 << (20 + uint(level-4))
		o.Mode = ModeNormal
		o.MatchFinder = MFBT4
		o.NiceLen = 128
		o.DepthLimit = 0
	default:
		o.DictSize = 1 << 26
		o.Mode = ModeNormal
		o.MatchFinder = MFBT4
		o.NiceLen = 273
		o.DepthLimit = 0
		if level == 8 {
			o.DictSize = 1 << 27
		}
		if level == 9 {
			o.DictSize = 1 << 30
		}
	}
	return o
}

// ApplyDefaults fills a zero DictSize or NiceLen from preset 6, sets
// LC/LP/PB to preset 6's 3/0/2 when all three are zero, and derives a
// zero DepthLimit from depthLimitFor, matching the teacher's
// WriterConfig.fill pattern. Mode and MatchFinder are left as given, so
// their zero values select ModeFast and MFHC4.
func (o *Options) ApplyDefaults() {
	d := Preset(6)
	if o.DictSize == 0 {
		o.DictSize = d.DictSize
	}
	if o.NiceLen == 0 {
		o.NiceLen = d.NiceLen
	}
	if o.LC == 0 && o.LP == 0 && o.PB == 0 {
		o.LC, o.LP, o.PB = d.LC, d.LP, d.PB
	}
	if o.DepthLimit == 0 {
		o.DepthLimit = depthLimitFor(o.NiceLen, o.MatchFinder)
	}
}

// Verify checks the option values against the limits of spec §3.3/§6.5.
func (o *Options) Verify() error {
	if err := verifyProperties(o.LC, o.LP, o.PB); err != nil {
		return err
	}
	if o.DictSize < minDictSize || o.DictSize > maxDictSize {
		return errRange("DictSize", o.DictSize)
	}
	if o.NiceLen < minNiceLen || o.NiceLen > maxNiceLen {
		return errRange("NiceLen", o.NiceLen)
	}
	if o.DepthLimit < 0 {
		return errRange("DepthLimit", o.DepthLimit)
	}
	return nil
}

// depthLimitFor picks a default search depth when the caller leaves it
// at 0 ("auto"), scaling with NiceLen and the match finder the way the
// reference LZMA SDK does.
func depthLimitFor(niceLen int, mf MatchFinder) int {
	d := 16 + niceLen/2
	if mf == MFBT4 {
		d *= 2
	}
	return d
}

func (o Options) String() string {
	return fmt.Sprintf("lzma.Options{DictSize:%d LC:%d LP:%d PB:%d NiceLen:%d DepthLimit:%d}",
		o.DictSize, o.LC, o.LP, o.PB, o.NiceLen, o.DepthLimit)
}
