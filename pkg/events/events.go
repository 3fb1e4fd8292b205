package events

import "time"

// Exchange names
const (
	ExchangeUsers      = "storefront.users"
	ExchangeOrders     = "storefront.orders"
	ExchangePromotions = "storefront.promotions"
	ExchangePayments   = "storefront.payments"
)

// Routing keys
const (
	RoutingKeyUserCreated            = "user.created"
	RoutingKeyPasswordResetRequested = "user.password_reset_requested"

	RoutingKeyOrderCreated   = "order.created"
	RoutingKeyOrderPaid      = "order.paid"
	RoutingKeyOrderDelivered = "order.delivered"
	RoutingKeyOrderCancelled = "order.cancelled"
	RoutingKeyOrderDeleted   = "order.deleted"
	RoutingKeyOrderExpired   = "order.expired"

	RoutingKeyPromotionActivated   = "promotion.activated"
	RoutingKeyPromotionDeactivated = "promotion.deactivated"
	RoutingKeyPromotionDeleted     = "promotion.deleted"

	RoutingKeyPaymentCaptured = "payment.captured"
)

// QueuePaymentCaptured is consumed by the order service
const QueuePaymentCaptured = "storefront.payment-captured"

// Event is the envelope every message on the bus uses
type Event struct {
	Version   string      `json:"version"`
	EventType string      `json:"event_type"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id"`
	Payload   interface{} `json:"payload"`
}

// New wraps payload in a versioned envelope
func New(eventType string, payload interface{}, traceID string) *Event {
	return &Event{
		Version:   "1.0",
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		TraceID:   traceID,
		Payload:   payload,
	}
}

// UserCreatedPayload contains user data
type UserCreatedPayload struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// PasswordResetRequestedPayload carries the token a mailer turns into a link
type PasswordResetRequestedPayload struct {
	UserID    uint      `json:"user_id"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OrderPayload describes an order at the moment of a transition.
// Amounts are decimal strings with two places.
type OrderPayload struct {
	ID            uint       `json:"id"`
	UserID        uint       `json:"user_id"`
	Status        string     `json:"status"`
	ItemsPrice    string     `json:"items_price"`
	TaxPrice      string     `json:"tax_price"`
	ShippingPrice string     `json:"shipping_price"`
	TotalPrice    string     `json:"total_price"`
	TransactionID string     `json:"transaction_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
}

// PromotionPayload describes a promotion transition
type PromotionPayload struct {
	ID                 uint       `json:"id"`
	Name               string     `json:"name"`
	DiscountPercentage string     `json:"discount_percentage"`
	Active             bool       `json:"active"`
	StartDate          *time.Time `json:"start_date,omitempty"`
	EndDate            *time.Time `json:"end_date,omitempty"`
	ProductIDs         []uint     `json:"product_ids"`
}

// PaymentCapturedPayload is published by the payment gateway integration
type PaymentCapturedPayload struct {
	OrderID       uint   `json:"order_id"`
	TransactionID string `json:"transaction_id"`
	Amount        string `json:"amount"`
	PayerEmail    string `json:"payer_email"`
	Status        string `json:"status"`
}

// PaymentCapturedEvent is the inbound envelope with a typed payload
type PaymentCapturedEvent struct {
	Version   string                 `json:"version"`
	EventType string                 `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	TraceID   string                 `json:"trace_id"`
	Payload   PaymentCapturedPayload `json:"payload"`
}
