package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"go-storefront/internal/catalog/domain"
)

// ProductRepository defines the interface for product persistence.
// Stock and discount writes are conditional and evaluated at commit time.
type ProductRepository interface {
	// Create creates a new product
	Create(ctx context.Context, product *domain.Product) error

	// GetByID retrieves a product with its reviews
	GetByID(ctx context.Context, id uint) (*domain.Product, error)

	// GetByIDs retrieves the products that exist among ids
	GetByIDs(ctx context.Context, ids []uint) ([]*domain.Product, error)

	// List returns one page of products and the total match count
	List(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, int64, error)

	// Update writes descriptive fields, price and stock. A price change clears the
	// stored discount so it can never exceed the new base price.
	Update(ctx context.Context, product *domain.Product, priceChanged bool) error

	// Delete deletes a product by ID
	Delete(ctx context.Context, id uint) error

	// TopRated returns the best rated products
	TopRated(ctx context.Context, limit int) ([]*domain.Product, error)

	// Categories returns the distinct categories in use
	Categories(ctx context.Context) ([]string, error)

	// AddReview stores a review and refreshes the rating aggregate.
	// A second review by the same user is a conflict.
	AddReview(ctx context.Context, review *domain.Review) error

	// DecrementStock subtracts qty only while count_in_stock >= qty.
	// It reports false when the guard fails.
	DecrementStock(ctx context.Context, productID uint, qty int) (bool, error)

	// IncrementStock adds qty back
	IncrementStock(ctx context.Context, productID uint, qty int) error

	// CompareAndSetDiscount writes discount only while price and the current
	// discount still equal the values the caller read. nil means no discount.
	CompareAndSetDiscount(ctx context.Context, productID uint, expectedPrice decimal.Decimal, expectedDiscount, discount *decimal.Decimal) (bool, error)
}

// PromotionIndex is the view of promotions the catalog needs
type PromotionIndex interface {
	// RefreshProductPrice recomputes the product's discount from its active promotions
	RefreshProductPrice(ctx context.Context, productID uint) error

	// AppliedPromotionIDs returns active promotion ids per product
	AppliedPromotionIDs(ctx context.Context, productIDs []uint) (map[uint][]uint, error)

	// DetachProduct drops every promotion membership of a product
	DetachProduct(ctx context.Context, productID uint) error
}
