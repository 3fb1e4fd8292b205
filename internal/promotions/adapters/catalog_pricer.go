package adapters

import (
	"context"

	"github.com/shopspring/decimal"

	catalogports "go-storefront/internal/catalog/ports"
	"go-storefront/internal/promotions/ports"
)

// CatalogPricer adapts the catalog product repository to ProductPricer
type CatalogPricer struct {
	products catalogports.ProductRepository
}

// NewCatalogPricer creates a pricer over the catalog repository
func NewCatalogPricer(products catalogports.ProductRepository) *CatalogPricer {
	return &CatalogPricer{products: products}
}

// GetPrice retrieves the current price state of a product
func (p *CatalogPricer) GetPrice(ctx context.Context, productID uint) (*ports.ProductPrice, error) {
	product, err := p.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &ports.ProductPrice{
		ID:            product.ID,
		Price:         product.Price,
		DiscountPrice: product.DiscountPrice,
	}, nil
}

// CompareAndSetDiscount delegates to the repository's conditional write
func (p *CatalogPricer) CompareAndSetDiscount(ctx context.Context, productID uint, expectedPrice decimal.Decimal, expectedDiscount, discount *decimal.Decimal) (bool, error) {
	return p.products.CompareAndSetDiscount(ctx, productID, expectedPrice, expectedDiscount, discount)
}
