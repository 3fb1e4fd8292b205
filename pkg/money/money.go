// Package money holds the fixed-point helpers every price computation goes through.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits stored for any amount.
const Scale = 2

var hundred = decimal.NewFromInt(100)

// Round2 rounds half away from zero to two places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// ApplyDiscount returns round2(price × (1 − pct/100)).
func ApplyDiscount(price, pct decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Sub(pct.Div(hundred))
	return Round2(price.Mul(factor))
}

// EqualAt2 compares two amounts after rounding both to two places.
func EqualAt2(a, b decimal.Decimal) bool {
	return Round2(a).Equal(Round2(b))
}

// ValidPercentage reports whether pct lies in [0,100].
func ValidPercentage(pct decimal.Decimal) bool {
	return !pct.IsNegative() && pct.LessThanOrEqual(hundred)
}

// Parse reads a decimal amount from configuration or wire input.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Format renders an amount with exactly two decimals.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}
