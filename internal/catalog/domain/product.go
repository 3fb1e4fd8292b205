package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry. DiscountPrice is set only while an active
// promotion brings the price strictly below Price.
type Product struct {
	ID            uint
	Name          string
	Image         string
	Brand         string
	Category      string
	Description   string
	Price         decimal.Decimal
	DiscountPrice *decimal.Decimal
	CountInStock  int
	Rating        float64
	NumReviews    int
	Reviews       []Review
	// PromotionIDs is derived from active promotion memberships, never stored here.
	PromotionIDs []uint
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Review is one user's rating of a product
type Review struct {
	ID        uint
	ProductID uint
	UserID    uint
	Name      string
	Rating    int
	Comment   string
	CreatedAt time.Time
}

// NewProduct creates a product with validation
func NewProduct(name, image, brand, category, description string, price decimal.Decimal, countInStock int) (*Product, error) {
	p := &Product{
		Name:         strings.TrimSpace(name),
		Image:        image,
		Brand:        strings.TrimSpace(brand),
		Category:     strings.TrimSpace(category),
		Description:  description,
		Price:        price.Round(2),
		CountInStock: countInStock,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate validates the product entity
func (p *Product) Validate() error {
	if p.Name == "" {
		return ErrNameRequired
	}
	if p.Price.IsNegative() {
		return ErrNegativePrice
	}
	if p.CountInStock < 0 {
		return ErrNegativeStock
	}
	return nil
}

// EffectivePrice is what an order pays per unit right now
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.DiscountPrice != nil && p.DiscountPrice.LessThan(p.Price) {
		return *p.DiscountPrice
	}
	return p.Price
}

// NewReview validates a rating before it is attached to a product
func NewReview(productID, userID uint, name string, rating int, comment string) (*Review, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrRatingRange
	}
	if strings.TrimSpace(comment) == "" {
		return nil, ErrCommentRequired
	}
	return &Review{
		ProductID: productID,
		UserID:    userID,
		Name:      name,
		Rating:    rating,
		Comment:   comment,
	}, nil
}

// MeanRating returns the average rating of reviews, 0 for none
func MeanRating(reviews []Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	total := 0
	for _, r := range reviews {
		total += r.Rating
	}
	return float64(total) / float64(len(reviews))
}

// StockLine is a quantity of one product moved in or out of stock
type StockLine struct {
	ProductID uint
	Quantity  int
}

// MergeLines folds repeated products together and orders lines by product
// id, so every writer touches rows in the same order.
func MergeLines(lines []StockLine) []StockLine {
	totals := make(map[uint]int, len(lines))
	for _, l := range lines {
		totals[l.ProductID] += l.Quantity
	}

	merged := make([]StockLine, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, StockLine{ProductID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged
}

// ProductFilter narrows a catalog listing
type ProductFilter struct {
	Keyword  string
	Category string
	Page     int
	PageSize int
}

// Offset returns the row offset for the filter's page
func (f ProductFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}
