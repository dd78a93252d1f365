package codec

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Widths used when precision does not leave room for an integer part.
const (
	wideIntDigits = 10
	wideScale     = 9
)

// decimalFormat renders decimals as fixed-width strings whose lexical order
// matches numeric order.
//
// Positive values are "0" followed by the zero-padded magnitude. Negative
// values are "-" followed by the nines-complement 10^intDigits - |v| at the
// same width, so a larger magnitude yields a smaller string and every
// negative sorts before every positive ('-' < '0').
type decimalFormat struct {
	intDigits int
	scale     int
	limit     decimal.Decimal
}

func newDecimalFormat(precision, scale int) decimalFormat {
	if scale < 0 {
		scale = 0
	}
	intDigits := precision - scale
	if intDigits <= 0 {
		intDigits, scale = wideIntDigits, wideScale
	}
	return decimalFormat{
		intDigits: intDigits,
		scale:     scale,
		limit:     decimal.New(1, int32(intDigits)),
	}
}

func (f decimalFormat) encode(d decimal.Decimal) (string, error) {
	d = d.Round(int32(f.scale))
	abs := d.Abs()
	if abs.GreaterThanOrEqual(f.limit) {
		return "", fmt.Errorf("magnitude exceeds %d integer digits", f.intDigits)
	}
	if d.Sign() < 0 {
		return "-" + f.pad(f.limit.Sub(abs)), nil
	}
	return "0" + f.pad(abs), nil
}

func (f decimalFormat) decode(s string) (decimal.Decimal, error) {
	if len(s) < 2 {
		return decimal.Zero, fmt.Errorf("decimal %q is too short", s)
	}
	d, err := decimal.NewFromString(s[1:])
	if err != nil {
		return decimal.Zero, fmt.Errorf("decimal %q: %w", s, err)
	}
	switch s[0] {
	case '0':
		return d, nil
	case '-':
		return d.Sub(f.limit), nil
	default:
		return decimal.Zero, fmt.Errorf("decimal %q has no sign marker", s)
	}
}

// canonical renders d at the declared scale, used for identity keys.
func (f decimalFormat) canonical(d decimal.Decimal) string {
	return d.StringFixed(int32(f.scale))
}

func (f decimalFormat) pad(d decimal.Decimal) string {
	s := d.StringFixed(int32(f.scale))
	intPart, frac, _ := strings.Cut(s, ".")
	if n := f.intDigits - len(intPart); n > 0 {
		intPart = strings.Repeat("0", n) + intPart
	}
	if f.scale == 0 {
		return intPart
	}
	return intPart + "." + frac
}
