package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestApplyDiscount(t *testing.T) {
	tests := []struct {
		name  string
		price string
		pct   string
		want  string
	}{
		{"twenty percent", "100.00", "20", "80.00"},
		{"thirty percent", "100.00", "30", "70.00"},
		{"zero percent", "59.99", "0", "59.99"},
		{"full discount", "59.99", "100", "0.00"},
		{"rounds half away from zero", "0.25", "10", "0.23"},
		{"fractional percentage", "19.99", "12.5", "17.49"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyDiscount(MustParse(tt.price), MustParse(tt.pct))
			assert.Equal(t, tt.want, Format(got))
		})
	}
}

func TestValidPercentage(t *testing.T) {
	assert.True(t, ValidPercentage(decimal.Zero))
	assert.True(t, ValidPercentage(MustParse("100")))
	assert.False(t, ValidPercentage(MustParse("-0.01")))
	assert.False(t, ValidPercentage(MustParse("100.01")))
}

func TestEqualAt2(t *testing.T) {
	assert.True(t, EqualAt2(MustParse("10.004"), MustParse("10.00")))
	assert.False(t, EqualAt2(MustParse("10.005"), MustParse("10.00")))
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse("ten dollars")
	assert.Error(t, err)
}

func TestApplyDiscount_NeverNegativeNorAboveBase(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cents := rapid.Int64Range(0, 10_000_000).Draw(t, "cents")
		pct := rapid.IntRange(0, 100).Draw(t, "pct")

		price := decimal.New(cents, -2)
		got := ApplyDiscount(price, decimal.NewFromInt(int64(pct)))

		if got.IsNegative() {
			t.Fatalf("negative price %s for %s at %d%%", got, price, pct)
		}
		if got.GreaterThan(price) {
			t.Fatalf("discounted %s above base %s", got, price)
		}
	})
}
