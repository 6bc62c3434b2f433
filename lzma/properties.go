package lzma

import "fmt"

// Limits for the three property values, per spec §3.3.
const (
	MinLC = 0
	MaxLC = 8
	MinLP = 0
	MaxLP = 4
	MinPB = 0
	MaxPB = 4
)

// Properties packs lc, lp and pb into the single byte used by the raw
// LZMA1 header and the LZMA2 chunk properties byte: (pb*5+lp)*9+lc
// (spec §6.1).
type Properties byte

// NewProperties validates lc, lp and pb and packs them.
func NewProperties(lc, lp, pb int) (Properties, error) {
	if err := verifyProperties(lc, lp, pb); err != nil {
		return 0, err
	}
	return Properties((pb*5+lp)*9 + lc), nil
}

func (p Properties) LC() int { return int(p) % 9 }
func (p Properties) LP() int { return (int(p) / 9) % 5 }
func (p Properties) PB() int { return (int(p) / 45) % 5 }

func verifyProperties(lc, lp, pb int) error {
	if !(MinLC <= lc && lc <= MaxLC) {
		return errRange("lc", lc)
	}
	if !(MinLP <= lp && lp <= MaxLP) {
		return errRange("lp", lp)
	}
	if !(MinPB <= pb && pb <= MaxPB) {
		return errRange("pb", pb)
	}
	if lc+lp > 4 {
		return newErr(CodeInvalidInput, fmt.Sprintf("lc+lp=%d exceeds 4", lc+lp))
	}
	return nil
}
