package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"go-storefront/internal/promotions/domain"
)

// PromotionRepository defines the interface for promotion persistence.
// Membership lives in one promotion_products relation; ProductIDs on a
// loaded promotion is read from it in insertion order.
type PromotionRepository interface {
	// Create inserts an inactive promotion and its memberships
	Create(ctx context.Context, promotion *domain.Promotion) error

	// GetByID retrieves a promotion with its product ids
	GetByID(ctx context.Context, id uint) (*domain.Promotion, error)

	// List retrieves every promotion, newest first
	List(ctx context.Context) ([]*domain.Promotion, error)

	// UpdateFields writes name, description, percentage, duration and end date
	// only while the stored window still equals expected. It reports false
	// when the promotion was toggled or deleted since it was read.
	UpdateFields(ctx context.Context, promotion *domain.Promotion, expected domain.Window) (bool, error)

	// SetActive writes the active flag and window only while the stored window
	// still equals expected. It reports false when another writer got there first.
	SetActive(ctx context.Context, promotion *domain.Promotion, expected domain.Window) (bool, error)

	// Delete removes an inactive promotion and its memberships. It reports
	// false when the promotion is missing or active.
	Delete(ctx context.Context, id uint) (bool, error)

	// AddProduct associates a product; a duplicate is a conflict
	AddProduct(ctx context.Context, promotionID, productID uint) error

	// RemoveProduct drops an association and reports whether it existed
	RemoveProduct(ctx context.Context, promotionID, productID uint) (bool, error)

	// RemoveProductEverywhere drops every association of a product
	RemoveProductEverywhere(ctx context.Context, productID uint) error

	// ActiveForProduct returns the active promotions a product belongs to
	ActiveForProduct(ctx context.Context, productID uint) ([]*domain.Promotion, error)

	// ActiveIDsByProduct maps each product to its active promotion ids
	ActiveIDsByProduct(ctx context.Context, productIDs []uint) (map[uint][]uint, error)

	// ListExpired returns active promotions whose end date is before now
	ListExpired(ctx context.Context, now time.Time) ([]*domain.Promotion, error)
}

// ProductPrice is the pricing state of one product
type ProductPrice struct {
	ID            uint
	Price         decimal.Decimal
	DiscountPrice *decimal.Decimal
}

// ProductPricer reads and conditionally writes product discount prices
type ProductPricer interface {
	// GetPrice retrieves the current price state of a product
	GetPrice(ctx context.Context, productID uint) (*ProductPrice, error)

	// CompareAndSetDiscount writes discount while price and discount still
	// match what was read
	CompareAndSetDiscount(ctx context.Context, productID uint, expectedPrice decimal.Decimal, expectedDiscount, discount *decimal.Decimal) (bool, error)
}

// EventPublisher defines the interface for publishing promotion events
type EventPublisher interface {
	PublishPromotionActivated(ctx context.Context, promotion *domain.Promotion) error
	PublishPromotionDeactivated(ctx context.Context, promotion *domain.Promotion) error
	PublishPromotionDeleted(ctx context.Context, promotion *domain.Promotion) error
}
