// Package fixed provides exact decimal values for monetary and other
// precision-sensitive report fields. Values are stored as a scaled big
// integer coefficient; no float64 is involved in parsing, arithmetic,
// or formatting, so a value renders back to exactly the digits it was
// parsed from.
package fixed

import (
	"fmt"
	"math/big"
	"strings"
)

// Decimal is an immutable fixed-point decimal: coefficient * 10^-scale.
type Decimal struct {
	coef  *big.Int
	scale int
}

// Zero returns a decimal zero with the given scale.
func Zero(scale int) Decimal {
	return Decimal{coef: big.NewInt(0), scale: scale}
}

// Parse parses a decimal string such as "-1234.5600". The scale of the
// result is the number of digits after the decimal point, preserved
// exactly (trailing zeros are significant for reporting precision).
func Parse(s string) (Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Decimal{}, fmt.Errorf("parse decimal: empty string")
	}

	neg := false
	switch s[0] {
	case '+':
		s = s[1:]
	case '-':
		neg = true
		s = s[1:]
	}

	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart = s[:i]
		fracPart = s[i+1:]
	}
	if intPart == "" && fracPart == "" {
		return Decimal{}, fmt.Errorf("parse decimal: %q has no digits", s)
	}
	if intPart == "" {
		intPart = "0"
	}

	digits := intPart + fracPart
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return Decimal{}, fmt.Errorf("parse decimal: invalid character %q in %q", digits[i], s)
		}
	}

	coef, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Decimal{}, fmt.Errorf("parse decimal: %q", s)
	}
	if neg {
		coef.Neg(coef)
	}
	return Decimal{coef: coef, scale: len(fracPart)}, nil
}

// MustParse parses s and panics on error. For literals in tests and
// static rule parameters.
func MustParse(s string) Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FromInt returns the decimal n with scale 0.
func FromInt(n int64) Decimal {
	return Decimal{coef: big.NewInt(n), scale: 0}
}

// Scale returns the number of digits after the decimal point.
func (d Decimal) Scale() int { return d.scale }

// IsZero reports whether the value is numerically zero.
func (d Decimal) IsZero() bool {
	return d.coef == nil || d.coef.Sign() == 0
}

// String formats the value with exactly Scale() fractional digits.
func (d Decimal) String() string {
	if d.coef == nil {
		return "0"
	}
	digits := new(big.Int).Abs(d.coef).String()
	for len(digits) <= d.scale {
		digits = "0" + digits
	}
	var b strings.Builder
	if d.coef.Sign() < 0 {
		b.WriteByte('-')
	}
	if d.scale == 0 {
		b.WriteString(digits)
	} else {
		b.WriteString(digits[:len(digits)-d.scale])
		b.WriteByte('.')
		b.WriteString(digits[len(digits)-d.scale:])
	}
	return b.String()
}

// Round returns the value rounded half-up (half away from zero) to the
// given number of fractional digits. Rounding to a larger scale pads
// with trailing zeros; the value is unchanged numerically.
func (d Decimal) Round(places int) Decimal {
	if places < 0 {
		places = 0
	}
	if d.coef == nil {
		return Zero(places)
	}
	if places >= d.scale {
		// Pad: multiply coefficient by 10^(places-scale).
		mult := pow10(places - d.scale)
		return Decimal{coef: new(big.Int).Mul(d.coef, mult), scale: places}
	}

	div := pow10(d.scale - places)
	quo, rem := new(big.Int).QuoRem(d.coef, div, new(big.Int))
	if rem.Sign() != 0 {
		// Compare 2*|rem| against divisor for the half-up decision.
		twice := new(big.Int).Abs(rem)
		twice.Lsh(twice, 1)
		if twice.Cmp(div) >= 0 {
			if d.coef.Sign() < 0 {
				quo.Sub(quo, big.NewInt(1))
			} else {
				quo.Add(quo, big.NewInt(1))
			}
		}
	}
	return Decimal{coef: quo, scale: places}
}

// Cmp compares d and other numerically: -1, 0, or +1.
func (d Decimal) Cmp(other Decimal) int {
	a, b := d.coef, other.coef
	if a == nil {
		a = big.NewInt(0)
	}
	if b == nil {
		b = big.NewInt(0)
	}
	switch {
	case d.scale == other.scale:
		return a.Cmp(b)
	case d.scale < other.scale:
		scaled := new(big.Int).Mul(a, pow10(other.scale-d.scale))
		return scaled.Cmp(b)
	default:
		scaled := new(big.Int).Mul(b, pow10(d.scale-other.scale))
		return a.Cmp(scaled)
	}
}

// Equal reports numeric equality regardless of scale: 1.50 equals 1.5.
func (d Decimal) Equal(other Decimal) bool {
	return d.Cmp(other) == 0
}

// Neg returns the negated value.
func (d Decimal) Neg() Decimal {
	if d.coef == nil {
		return d
	}
	return Decimal{coef: new(big.Int).Neg(d.coef), scale: d.scale}
}

// Add returns d + other at the larger of the two scales.
func (d Decimal) Add(other Decimal) Decimal {
	a, as := d.coef, d.scale
	b, bs := other.coef, other.scale
	if a == nil {
		a = big.NewInt(0)
	}
	if b == nil {
		b = big.NewInt(0)
	}
	scale := as
	if bs > scale {
		scale = bs
	}
	if as < scale {
		a = new(big.Int).Mul(a, pow10(scale-as))
	}
	if bs < scale {
		b = new(big.Int).Mul(b, pow10(scale-bs))
	}
	return Decimal{coef: new(big.Int).Add(a, b), scale: scale}
}

// Float64 returns a float64 approximation. Only for handing values to
// expression environments; never used on the formatting path.
func (d Decimal) Float64() float64 {
	if d.coef == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(d.coef).Float64()
	for i := 0; i < d.scale; i++ {
		f /= 10
	}
	return f
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
