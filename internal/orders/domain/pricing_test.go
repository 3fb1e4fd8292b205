package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"go-storefront/pkg/money"
)

func testCalculator(t *testing.T) PriceCalculator {
	t.Helper()
	calc, err := NewPriceCalculator("0.15", "10.00", "100.00")
	require.NoError(t, err)
	return calc
}

func TestPriceCalculator_Calculate(t *testing.T) {
	calc := testCalculator(t)

	tests := []struct {
		name       string
		items      []PricedItem
		itemsPrice string
		tax        string
		shipping   string
		total      string
	}{
		{
			name:       "shipping charged at threshold",
			items:      []PricedItem{{UnitPrice: money.MustParse("50.00"), Quantity: 2}},
			itemsPrice: "100.00",
			tax:        "15.00",
			shipping:   "10.00",
			total:      "125.00",
		},
		{
			name:       "free shipping above threshold",
			items:      []PricedItem{{UnitPrice: money.MustParse("100.01"), Quantity: 1}},
			itemsPrice: "100.01",
			tax:        "15.00",
			shipping:   "0.00",
			total:      "115.01",
		},
		{
			name:       "tax rounds half away from zero",
			items:      []PricedItem{{UnitPrice: money.MustParse("30.00"), Quantity: 2}, {UnitPrice: money.MustParse("25.50"), Quantity: 1}},
			itemsPrice: "85.50",
			tax:        "12.83",
			shipping:   "10.00",
			total:      "108.33",
		},
		{
			name:       "free item still ships",
			items:      []PricedItem{{UnitPrice: decimal.Zero, Quantity: 1}},
			itemsPrice: "0.00",
			tax:        "0.00",
			shipping:   "10.00",
			total:      "10.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.Calculate(tt.items)
			assert.Equal(t, tt.itemsPrice, money.Format(got.ItemsPrice))
			assert.Equal(t, tt.tax, money.Format(got.TaxPrice))
			assert.Equal(t, tt.shipping, money.Format(got.ShippingPrice))
			assert.Equal(t, tt.total, money.Format(got.TotalPrice))
		})
	}
}

func TestNewPriceCalculator_Invalid(t *testing.T) {
	_, err := NewPriceCalculator("fifteen", "10.00", "100.00")
	assert.Error(t, err)

	_, err = NewPriceCalculator("-0.15", "10.00", "100.00")
	assert.Error(t, err)
}

func TestPriceCalculator_TotalsAlwaysAddUp(t *testing.T) {
	calc := testCalculator(t)

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(t, "lines")
		items := make([]PricedItem, n)
		for i := range items {
			items[i] = PricedItem{
				UnitPrice: decimal.New(rapid.Int64Range(0, 1_000_000).Draw(t, "cents"), -2),
				Quantity:  rapid.IntRange(1, 20).Draw(t, "qty"),
			}
		}

		got := calc.Calculate(items)

		if !got.TotalPrice.Equal(got.ItemsPrice.Add(got.TaxPrice).Add(got.ShippingPrice)) {
			t.Fatalf("total %s does not add up", got.TotalPrice)
		}
		for _, amount := range []decimal.Decimal{got.ItemsPrice, got.TaxPrice, got.ShippingPrice, got.TotalPrice} {
			if !amount.Equal(money.Round2(amount)) {
				t.Fatalf("amount %s has more than two places", amount)
			}
		}
		free := got.ItemsPrice.GreaterThan(calc.FreeShippingThreshold)
		if free != got.ShippingPrice.IsZero() {
			t.Fatalf("shipping %s inconsistent with items %s", got.ShippingPrice, got.ItemsPrice)
		}
		if !got.TaxPrice.Equal(money.Round2(got.ItemsPrice.Mul(calc.TaxRate))) {
			t.Fatalf("tax %s is not round2(items x rate)", got.TaxPrice)
		}
	})
}
