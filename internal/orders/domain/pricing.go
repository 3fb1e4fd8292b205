package domain

import (
	"fmt"

	"github.com/shopspring/decimal"

	"go-storefront/pkg/money"
)

// PricedItem is a unit price and quantity pair
type PricedItem struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Totals are the four monetary amounts of an order
type Totals struct {
	ItemsPrice    decimal.Decimal
	TaxPrice      decimal.Decimal
	ShippingPrice decimal.Decimal
	TotalPrice    decimal.Decimal
}

// PriceCalculator computes order totals. Shipping is free when the items
// price is strictly above FreeShippingThreshold.
type PriceCalculator struct {
	TaxRate               decimal.Decimal
	ShippingFee           decimal.Decimal
	FreeShippingThreshold decimal.Decimal
}

// NewPriceCalculator parses the configured decimal strings
func NewPriceCalculator(taxRate, shippingFee, freeShippingThreshold string) (PriceCalculator, error) {
	var calc PriceCalculator
	var err error

	if calc.TaxRate, err = money.Parse(taxRate); err != nil {
		return calc, fmt.Errorf("tax rate: %w", err)
	}
	if calc.ShippingFee, err = money.Parse(shippingFee); err != nil {
		return calc, fmt.Errorf("shipping fee: %w", err)
	}
	if calc.FreeShippingThreshold, err = money.Parse(freeShippingThreshold); err != nil {
		return calc, fmt.Errorf("free shipping threshold: %w", err)
	}
	if calc.TaxRate.IsNegative() || calc.ShippingFee.IsNegative() {
		return calc, fmt.Errorf("tax rate and shipping fee must not be negative")
	}
	return calc, nil
}

// Calculate prices items. It has no side effects.
func (c PriceCalculator) Calculate(items []PricedItem) Totals {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	itemsPrice := money.Round2(sum)
	shipping := money.Round2(c.ShippingFee)
	if itemsPrice.GreaterThan(c.FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	tax := money.Round2(itemsPrice.Mul(c.TaxRate))

	return Totals{
		ItemsPrice:    itemsPrice,
		TaxPrice:      tax,
		ShippingPrice: shipping,
		TotalPrice:    itemsPrice.Add(tax).Add(shipping),
	}
}

// RecomputeTotals re-derives totals from the frozen line prices
func (o *Order) RecomputeTotals(c PriceCalculator) Totals {
	items := make([]PricedItem, len(o.Lines))
	for i, line := range o.Lines {
		items[i] = PricedItem{UnitPrice: line.Price, Quantity: line.Quantity}
	}
	return c.Calculate(items)
}

// TotalsConsistent reports whether the stored totals add up
func (o *Order) TotalsConsistent() bool {
	return o.TotalPrice.Equal(o.ItemsPrice.Add(o.TaxPrice).Add(o.ShippingPrice))
}
