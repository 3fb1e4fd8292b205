package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-storefront/pkg/errors"
	"go-storefront/pkg/money"
)

var address = ShippingAddress{Address: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"}

func newTestOrder(t *testing.T) *Order {
	t.Helper()
	lines := []OrderLine{{ProductID: 1, Name: "lamp", Quantity: 2, Price: money.MustParse("20.00")}}
	order, err := NewOrder(7, lines, address, " PayPal ", testCalculator(t))
	require.NoError(t, err)
	order.ID = 1
	return order
}

func TestNewOrder_ComputesTotals(t *testing.T) {
	order := newTestOrder(t)

	assert.Equal(t, "40.00", money.Format(order.ItemsPrice))
	assert.Equal(t, "6.00", money.Format(order.TaxPrice))
	assert.Equal(t, "10.00", money.Format(order.ShippingPrice))
	assert.Equal(t, "56.00", money.Format(order.TotalPrice))
	assert.Equal(t, "PayPal", order.PaymentMethod)
	assert.Equal(t, StatusCreated, order.Status())
	assert.True(t, order.TotalsConsistent())
}

func TestNewOrder_Validation(t *testing.T) {
	calc := testCalculator(t)
	line := OrderLine{ProductID: 1, Quantity: 1, Price: money.MustParse("1.00")}

	tests := []struct {
		name    string
		userID  uint
		lines   []OrderLine
		address ShippingAddress
		method  string
		want    error
	}{
		{"missing user", 0, []OrderLine{line}, address, "PayPal", ErrUserIDRequired},
		{"no lines", 7, nil, address, "PayPal", ErrNoItems},
		{"zero quantity", 7, []OrderLine{{ProductID: 1, Price: line.Price}}, address, "PayPal", ErrInvalidQuantity},
		{"negative price", 7, []OrderLine{{ProductID: 1, Quantity: 1, Price: money.MustParse("-1")}}, address, "PayPal", ErrNegativePrice},
		{"partial address", 7, []OrderLine{line}, ShippingAddress{Address: "1 Main St"}, "PayPal", ErrShippingAddressRequired},
		{"blank payment method", 7, []OrderLine{line}, address, "  ", ErrPaymentMethodRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOrder(tt.userID, tt.lines, tt.address, tt.method, calc)
			assert.Equal(t, tt.want, err)
		})
	}
}

func TestOrder_Lifecycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	order := newTestOrder(t)

	assert.Equal(t, ErrNotPaid, order.CanDeliver())
	require.NoError(t, order.CanPay())

	order.MarkPaid(now, PaymentResult{TransactionID: "TXN-1", Status: "COMPLETED"})
	assert.Equal(t, StatusPaid, order.Status())
	assert.Equal(t, now, *order.PaidAt)
	assert.True(t, errors.Is(order.CanPay(), errors.CodeConflict))
	assert.Equal(t, ErrPaidOrderLocked, order.CanCancel(7))
	assert.Equal(t, ErrPaidOrderLocked, order.CanDelete())

	require.NoError(t, order.CanDeliver())
	order.MarkDelivered(now.Add(time.Hour))
	assert.Equal(t, StatusDelivered, order.Status())
	assert.Equal(t, ErrAlreadyDelivered, order.CanDeliver())
}

func TestOrder_ExpiryRules(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	order := newTestOrder(t)
	order.CreatedAt = created

	assert.False(t, order.Expirable(created), "cutoff equal to creation is not past it")
	assert.True(t, order.Expirable(created.Add(time.Second)))
	assert.Equal(t, ErrNotExpired, order.CanDelete())

	order.IsExpired = true
	assert.Equal(t, StatusExpired, order.Status())
	assert.False(t, order.Expirable(created.Add(time.Hour)))
	assert.Equal(t, ErrOrderExpired, order.CanPay())
	assert.NoError(t, order.CanDelete())
	assert.NoError(t, order.CanCancel(7))
	assert.Equal(t, ErrNotOwner, order.CanCancel(8))
}

func TestOrder_Quantities(t *testing.T) {
	order := &Order{Lines: []OrderLine{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 1},
		{ProductID: 1, Quantity: 3},
	}}

	assert.Equal(t, map[uint]int{1: 5, 2: 1}, order.Quantities())
}
