package adapters

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"go-storefront/internal/catalog/domain"
	"go-storefront/pkg/db"
)

// MemoryProductRepository keeps products in process. Conditional writes are
// evaluated under the mutex and register undo steps with db.RecordUndo.
type MemoryProductRepository struct {
	mu       sync.Mutex
	products map[uint]*domain.Product
	nextID   uint
	reviewID uint
	now      func() time.Time
}

// NewMemoryProductRepository creates an empty in-memory product repository
func NewMemoryProductRepository() *MemoryProductRepository {
	return &MemoryProductRepository{
		products: make(map[uint]*domain.Product),
		nextID:   1,
		reviewID: 1,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create creates a new product
func (r *MemoryProductRepository) Create(ctx context.Context, product *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	product.ID = r.nextID
	r.nextID++
	product.CreatedAt = r.now()
	product.UpdatedAt = product.CreatedAt
	r.products[product.ID] = cloneProduct(product)

	id := product.ID
	db.RecordUndo(ctx, func() {
		r.mu.Lock()
		delete(r.products, id)
		r.mu.Unlock()
	})
	return nil
}

// GetByID retrieves a product with its reviews
func (r *MemoryProductRepository) GetByID(ctx context.Context, id uint) (*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[id]
	if !ok {
		return nil, domain.NewProductNotFound(id)
	}
	return cloneProduct(p), nil
}

// GetByIDs retrieves the products that exist among ids
func (r *MemoryProductRepository) GetByIDs(ctx context.Context, ids []uint) ([]*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*domain.Product
	seen := make(map[uint]bool, len(ids))
	for _, id := range ids {
		if p, ok := r.products[id]; ok && !seen[id] {
			seen[id] = true
			result = append(result, cloneProduct(p))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// List returns one page of products and the total match count
func (r *MemoryProductRepository) List(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kw := strings.ToLower(strings.TrimSpace(filter.Keyword))
	var matched []*domain.Product
	for _, p := range r.sorted() {
		if kw != "" && !strings.Contains(strings.ToLower(p.Name), kw) {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		matched = append(matched, p)
	}

	total := int64(len(matched))
	start := filter.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if filter.PageSize > 0 && start+filter.PageSize < end {
		end = start + filter.PageSize
	}

	page := make([]*domain.Product, 0, end-start)
	for _, p := range matched[start:end] {
		page = append(page, cloneProduct(p))
	}
	return page, total, nil
}

// Update writes descriptive fields, price and stock
func (r *MemoryProductRepository) Update(ctx context.Context, product *domain.Product, priceChanged bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[product.ID]
	if !ok {
		return domain.NewProductNotFound(product.ID)
	}
	p.Name = product.Name
	p.Image = product.Image
	p.Brand = product.Brand
	p.Category = product.Category
	p.Description = product.Description
	p.Price = product.Price
	p.CountInStock = product.CountInStock
	if priceChanged {
		p.DiscountPrice = nil
		product.DiscountPrice = nil
	}
	p.UpdatedAt = r.now()
	return nil
}

// Delete deletes a product and its reviews
func (r *MemoryProductRepository) Delete(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[id]; !ok {
		return domain.NewProductNotFound(id)
	}
	delete(r.products, id)
	return nil
}

// TopRated returns the best rated products
func (r *MemoryProductRepository) TopRated(ctx context.Context, limit int) ([]*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.sorted()
	sort.SliceStable(all, func(i, j int) bool { return all[i].Rating > all[j].Rating })
	if len(all) > limit {
		all = all[:limit]
	}

	result := make([]*domain.Product, len(all))
	for i, p := range all {
		result[i] = cloneProduct(p)
	}
	return result, nil
}

// Categories returns the distinct categories in use
func (r *MemoryProductRepository) Categories(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool)
	var categories []string
	for _, p := range r.products {
		if p.Category != "" && !seen[p.Category] {
			seen[p.Category] = true
			categories = append(categories, p.Category)
		}
	}
	sort.Strings(categories)
	return categories, nil
}

// AddReview stores a review and refreshes the rating aggregate
func (r *MemoryProductRepository) AddReview(ctx context.Context, review *domain.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[review.ProductID]
	if !ok {
		return domain.NewProductNotFound(review.ProductID)
	}
	for _, existing := range p.Reviews {
		if existing.UserID == review.UserID {
			return domain.ErrAlreadyReviewed
		}
	}

	review.ID = r.reviewID
	r.reviewID++
	review.CreatedAt = r.now()

	p.Reviews = append(p.Reviews, *review)
	p.NumReviews = len(p.Reviews)
	p.Rating = domain.MeanRating(p.Reviews)
	return nil
}

// DecrementStock subtracts qty only while count_in_stock >= qty
func (r *MemoryProductRepository) DecrementStock(ctx context.Context, productID uint, qty int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[productID]
	if !ok || p.CountInStock < qty {
		return false, nil
	}
	p.CountInStock -= qty

	db.RecordUndo(ctx, func() {
		r.mu.Lock()
		if p, ok := r.products[productID]; ok {
			p.CountInStock += qty
		}
		r.mu.Unlock()
	})
	return true, nil
}

// IncrementStock adds qty back
func (r *MemoryProductRepository) IncrementStock(ctx context.Context, productID uint, qty int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[productID]
	if !ok {
		return domain.NewProductNotFound(productID)
	}
	p.CountInStock += qty

	db.RecordUndo(ctx, func() {
		r.mu.Lock()
		if p, ok := r.products[productID]; ok {
			p.CountInStock -= qty
		}
		r.mu.Unlock()
	})
	return nil
}

// CompareAndSetDiscount writes discount only while price and discount are unchanged
func (r *MemoryProductRepository) CompareAndSetDiscount(ctx context.Context, productID uint, expectedPrice decimal.Decimal, expectedDiscount, discount *decimal.Decimal) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[productID]
	if !ok || !p.Price.Equal(expectedPrice) || !sameDecimal(p.DiscountPrice, expectedDiscount) {
		return false, nil
	}
	p.DiscountPrice = copyDecimal(discount)
	return true, nil
}

// Stock returns the current stock of a product, for tests and diagnostics
func (r *MemoryProductRepository) Stock(id uint) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.products[id]; ok {
		return p.CountInStock
	}
	return 0
}

func (r *MemoryProductRepository) sorted() []*domain.Product {
	all := make([]*domain.Product, 0, len(r.products))
	for _, p := range r.products {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

func cloneProduct(p *domain.Product) *domain.Product {
	c := *p
	c.DiscountPrice = copyDecimal(p.DiscountPrice)
	c.Reviews = append([]domain.Review(nil), p.Reviews...)
	c.PromotionIDs = nil
	return &c
}

func copyDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

func sameDecimal(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
