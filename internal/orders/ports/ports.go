package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"go-storefront/internal/orders/domain"
)

// OrderRepository defines the interface for order persistence. Every state
// transition is a conditional write that re-checks the flags at commit.
type OrderRepository interface {
	// Create creates a new order with its lines
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order with its lines
	GetByID(ctx context.Context, id uint) (*domain.Order, error)

	// ListByUser retrieves a user's orders, newest first
	ListByUser(ctx context.Context, userID uint) ([]*domain.Order, error)

	// List retrieves every order, newest first
	List(ctx context.Context) ([]*domain.Order, error)

	// TransactionUsed reports whether any order stores the payment transaction id
	TransactionUsed(ctx context.Context, transactionID string) (bool, error)

	// MarkPaid writes the payment only while the order is unpaid and not
	// expired. A transaction id already stored elsewhere is a conflict.
	MarkPaid(ctx context.Context, order *domain.Order) (bool, error)

	// MarkDelivered writes delivery only while the order is paid and undelivered
	MarkDelivered(ctx context.Context, order *domain.Order) (bool, error)

	// DeleteUnpaid deletes the order only while it is unpaid, and expired
	// when requireExpired is set
	DeleteUnpaid(ctx context.Context, id uint, requireExpired bool) (bool, error)

	// ListExpirable returns ids of unpaid, unexpired orders created before cutoff
	ListExpirable(ctx context.Context, cutoff time.Time) ([]uint, error)

	// MarkExpired flags the order only while it is still expirable at cutoff
	MarkExpired(ctx context.Context, id uint, cutoff time.Time) (bool, error)
}

// ProductSnapshot is the catalog state an order line is priced from
type ProductSnapshot struct {
	ID            uint
	Name          string
	Image         string
	Price         decimal.Decimal
	DiscountPrice *decimal.Decimal
}

// CatalogClient is the view of the catalog and inventory orders need
type CatalogClient interface {
	// GetProducts returns snapshots of the products that exist among ids
	GetProducts(ctx context.Context, ids []uint) ([]ProductSnapshot, error)

	// CheckAvailability fails with OUT_OF_STOCK for the first short product
	CheckAvailability(ctx context.Context, quantities map[uint]int) error

	// Reserve decrements every quantity or none
	Reserve(ctx context.Context, quantities map[uint]int) error

	// Restore gives quantities back
	Restore(ctx context.Context, quantities map[uint]int) error
}

// UserClient defines the interface for user lookups
type UserClient interface {
	// GetUser retrieves a user by ID (validates user exists)
	GetUser(ctx context.Context, userID uint) (*UserInfo, error)
}

// UserInfo represents user information from the users context
type UserInfo struct {
	ID    uint
	Name  string
	Email string
}

// PaymentVerification is the provider's view of a transaction
type PaymentVerification struct {
	Verified bool
	Amount   decimal.Decimal
}

// PaymentVerifier confirms a payment with the external provider
type PaymentVerifier interface {
	Verify(ctx context.Context, transactionID string) (*PaymentVerification, error)
}

// EventPublisher defines the interface for publishing order events
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, order *domain.Order) error
	PublishOrderPaid(ctx context.Context, order *domain.Order) error
	PublishOrderDelivered(ctx context.Context, order *domain.Order) error
	PublishOrderCancelled(ctx context.Context, order *domain.Order) error
	PublishOrderDeleted(ctx context.Context, order *domain.Order) error
	PublishOrderExpired(ctx context.Context, order *domain.Order) error
}
