package adapters

import (
	"context"

	catalogapp "go-storefront/internal/catalog/application"
	catalogdomain "go-storefront/internal/catalog/domain"
	catalogports "go-storefront/internal/catalog/ports"
	"go-storefront/internal/orders/ports"
)

// CatalogClient implements the orders view of the catalog in process
type CatalogClient struct {
	products  catalogports.ProductRepository
	inventory *catalogapp.InventoryLedger
}

// NewCatalogClient creates a catalog client over the product repository and ledger
func NewCatalogClient(products catalogports.ProductRepository, inventory *catalogapp.InventoryLedger) *CatalogClient {
	return &CatalogClient{
		products:  products,
		inventory: inventory,
	}
}

// GetProducts returns snapshots of the products that exist among ids
func (c *CatalogClient) GetProducts(ctx context.Context, ids []uint) ([]ports.ProductSnapshot, error) {
	products, err := c.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	snapshots := make([]ports.ProductSnapshot, len(products))
	for i, p := range products {
		snapshots[i] = ports.ProductSnapshot{
			ID:            p.ID,
			Name:          p.Name,
			Image:         p.Image,
			Price:         p.Price,
			DiscountPrice: p.DiscountPrice,
		}
	}
	return snapshots, nil
}

// CheckAvailability delegates to the inventory ledger
func (c *CatalogClient) CheckAvailability(ctx context.Context, quantities map[uint]int) error {
	return c.inventory.CheckAvailability(ctx, stockLines(quantities))
}

// Reserve delegates to the inventory ledger
func (c *CatalogClient) Reserve(ctx context.Context, quantities map[uint]int) error {
	return c.inventory.Reserve(ctx, stockLines(quantities))
}

// Restore delegates to the inventory ledger
func (c *CatalogClient) Restore(ctx context.Context, quantities map[uint]int) error {
	return c.inventory.Restore(ctx, stockLines(quantities))
}

func stockLines(quantities map[uint]int) []catalogdomain.StockLine {
	lines := make([]catalogdomain.StockLine, 0, len(quantities))
	for id, qty := range quantities {
		lines = append(lines, catalogdomain.StockLine{ProductID: id, Quantity: qty})
	}
	// the ledger sorts by product id, so lock order is stable across orders
	return catalogdomain.MergeLines(lines)
}
