package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is derived from the order flags; it is never stored
type Status string

const (
	StatusCreated   Status = "created"
	StatusPaid      Status = "paid"
	StatusDelivered Status = "delivered"
	StatusExpired   Status = "expired"
)

// ShippingAddress is where a paid order is sent
type ShippingAddress struct {
	Address    string
	City       string
	PostalCode string
	Country    string
}

// OrderLine is one product in an order. Price is frozen at creation.
type OrderLine struct {
	ProductID uint
	Name      string
	Image     string
	Quantity  int
	Price     decimal.Decimal
}

// PaymentResult is what the payment provider reported for the order
type PaymentResult struct {
	TransactionID string
	Status        string
	UpdateTime    string
	EmailAddress  string
}

// Order represents the order domain entity
type Order struct {
	ID              uint
	UserID          uint
	Lines           []OrderLine
	ShippingAddress ShippingAddress
	PaymentMethod   string
	ItemsPrice      decimal.Decimal
	TaxPrice        decimal.Decimal
	ShippingPrice   decimal.Decimal
	TotalPrice      decimal.Decimal
	IsPaid          bool
	PaidAt          *time.Time
	PaymentResult   *PaymentResult
	IsDelivered     bool
	DeliveredAt     *time.Time
	IsExpired       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewOrder creates an unpaid order with its totals computed from lines
func NewOrder(userID uint, lines []OrderLine, address ShippingAddress, paymentMethod string, calc PriceCalculator) (*Order, error) {
	order := &Order{
		UserID:          userID,
		Lines:           lines,
		ShippingAddress: address,
		PaymentMethod:   strings.TrimSpace(paymentMethod),
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}

	totals := order.RecomputeTotals(calc)
	order.ItemsPrice = totals.ItemsPrice
	order.TaxPrice = totals.TaxPrice
	order.ShippingPrice = totals.ShippingPrice
	order.TotalPrice = totals.TotalPrice
	return order, nil
}

// Validate validates the order entity
func (o *Order) Validate() error {
	if o.UserID == 0 {
		return ErrUserIDRequired
	}
	if len(o.Lines) == 0 {
		return ErrNoItems
	}
	for _, line := range o.Lines {
		if line.Quantity < 1 {
			return ErrInvalidQuantity
		}
		if line.Price.IsNegative() {
			return ErrNegativePrice
		}
	}
	a := o.ShippingAddress
	if a.Address == "" || a.City == "" || a.PostalCode == "" || a.Country == "" {
		return ErrShippingAddressRequired
	}
	if o.PaymentMethod == "" {
		return ErrPaymentMethodRequired
	}
	return nil
}

// Status derives the lifecycle state from the flags
func (o *Order) Status() Status {
	switch {
	case o.IsDelivered:
		return StatusDelivered
	case o.IsPaid:
		return StatusPaid
	case o.IsExpired:
		return StatusExpired
	default:
		return StatusCreated
	}
}

// CanPay reports why the order cannot accept a payment, if it cannot
func (o *Order) CanPay() error {
	if o.IsPaid {
		return NewAlreadyPaid(o.ID)
	}
	if o.IsExpired {
		return ErrOrderExpired
	}
	return nil
}

// MarkPaid records a verified payment
func (o *Order) MarkPaid(now time.Time, result PaymentResult) {
	o.IsPaid = true
	o.PaidAt = &now
	o.PaymentResult = &result
}

// CanDeliver requires a paid, undelivered order
func (o *Order) CanDeliver() error {
	if !o.IsPaid {
		return ErrNotPaid
	}
	if o.IsDelivered {
		return ErrAlreadyDelivered
	}
	return nil
}

// MarkDelivered records delivery
func (o *Order) MarkDelivered(now time.Time) {
	o.IsDelivered = true
	o.DeliveredAt = &now
}

// CanCancel allows the owner to cancel while unpaid
func (o *Order) CanCancel(userID uint) error {
	if o.UserID != userID {
		return ErrNotOwner
	}
	if o.IsPaid {
		return ErrPaidOrderLocked
	}
	return nil
}

// CanDelete allows administrative deletion of expired unpaid orders
func (o *Order) CanDelete() error {
	if o.IsPaid {
		return ErrPaidOrderLocked
	}
	if !o.IsExpired {
		return ErrNotExpired
	}
	return nil
}

// Expirable reports whether the sweep should flag the order at cutoff
func (o *Order) Expirable(cutoff time.Time) bool {
	return !o.IsPaid && !o.IsExpired && o.CreatedAt.Before(cutoff)
}

// Quantities sums line quantities per product
func (o *Order) Quantities() map[uint]int {
	q := make(map[uint]int, len(o.Lines))
	for _, line := range o.Lines {
		q[line.ProductID] += line.Quantity
	}
	return q
}
