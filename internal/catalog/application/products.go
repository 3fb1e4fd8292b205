package application

import (
	"context"
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"go-storefront/internal/catalog/domain"
	"go-storefront/internal/catalog/ports"
	"go-storefront/pkg/errors"
	"go-storefront/pkg/logger"
)

// TopRatedLimit is how many products the top-rated listing returns
const TopRatedLimit = 3

// ProductUseCase handles catalog business logic
type ProductUseCase struct {
	repo       ports.ProductRepository
	promotions ports.PromotionIndex
	pageSize   int
	log        *logger.Logger
}

// NewProductUseCase creates a new product use case
func NewProductUseCase(repo ports.ProductRepository, promotions ports.PromotionIndex, pageSize int, log *logger.Logger) *ProductUseCase {
	if pageSize < 1 {
		pageSize = 8
	}
	return &ProductUseCase{
		repo:       repo,
		promotions: promotions,
		pageSize:   pageSize,
		log:        log,
	}
}

// CreateProductInput represents the input for creating a product
type CreateProductInput struct {
	Name         string
	Image        string
	Brand        string
	Category     string
	Description  string
	Price        decimal.Decimal
	CountInStock int
}

// CreateProduct creates a new product
func (uc *ProductUseCase) CreateProduct(ctx context.Context, input CreateProductInput) (*domain.Product, error) {
	product, err := domain.NewProduct(input.Name, input.Image, input.Brand, input.Category, input.Description, input.Price, input.CountInStock)
	if err != nil {
		return nil, err
	}

	if err := uc.repo.Create(ctx, product); err != nil {
		return nil, err
	}

	uc.log.WithContext(ctx).Info("product created",
		zap.Uint("product_id", product.ID),
		zap.String("price", product.Price.StringFixed(2)),
	)
	return product, nil
}

// GetProduct retrieves a product with its reviews and applied promotions
func (uc *ProductUseCase) GetProduct(ctx context.Context, id uint) (*domain.Product, error) {
	product, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := uc.attachPromotions(ctx, []*domain.Product{product}); err != nil {
		return nil, err
	}
	return product, nil
}

// ListProductsInput represents a catalog query
type ListProductsInput struct {
	Keyword  string
	Category string
	Page     int
}

// ListProductsOutput is one page of products
type ListProductsOutput struct {
	Products []*domain.Product
	Page     int
	Pages    int
}

// ListProducts returns a page of products matching keyword and category
func (uc *ProductUseCase) ListProducts(ctx context.Context, input ListProductsInput) (*ListProductsOutput, error) {
	page := input.Page
	if page < 1 {
		page = 1
	}

	products, count, err := uc.repo.List(ctx, domain.ProductFilter{
		Keyword:  input.Keyword,
		Category: input.Category,
		Page:     page,
		PageSize: uc.pageSize,
	})
	if err != nil {
		return nil, err
	}
	if err := uc.attachPromotions(ctx, products); err != nil {
		return nil, err
	}

	return &ListProductsOutput{
		Products: products,
		Page:     page,
		Pages:    int(math.Ceil(float64(count) / float64(uc.pageSize))),
	}, nil
}

// UpdateProductInput carries the full editable state of a product
type UpdateProductInput struct {
	ID           uint
	Name         string
	Image        string
	Brand        string
	Category     string
	Description  string
	Price        decimal.Decimal
	CountInStock int
}

// UpdateProduct replaces editable fields; a new base price re-runs discount
// resolution so the stored discount follows it.
func (uc *ProductUseCase) UpdateProduct(ctx context.Context, input UpdateProductInput) (*domain.Product, error) {
	product, err := uc.repo.GetByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	priceChanged := !product.Price.Equal(input.Price.Round(2))

	product.Name = input.Name
	product.Image = input.Image
	product.Brand = input.Brand
	product.Category = input.Category
	product.Description = input.Description
	product.Price = input.Price.Round(2)
	product.CountInStock = input.CountInStock
	if err := product.Validate(); err != nil {
		return nil, err
	}

	if err := uc.repo.Update(ctx, product, priceChanged); err != nil {
		return nil, err
	}

	if priceChanged {
		if err := uc.promotions.RefreshProductPrice(ctx, product.ID); err != nil {
			return nil, err
		}
	}

	uc.log.WithContext(ctx).Info("product updated",
		zap.Uint("product_id", product.ID),
		zap.Bool("price_changed", priceChanged),
	)
	return uc.GetProduct(ctx, product.ID)
}

// DeleteProduct removes a product and its promotion memberships
func (uc *ProductUseCase) DeleteProduct(ctx context.Context, id uint) error {
	if _, err := uc.repo.GetByID(ctx, id); err != nil {
		return err
	}
	if err := uc.promotions.DetachProduct(ctx, id); err != nil {
		return err
	}
	if err := uc.repo.Delete(ctx, id); err != nil {
		return err
	}

	uc.log.WithContext(ctx).Info("product deleted", zap.Uint("product_id", id))
	return nil
}

// TopProducts returns the best rated products
func (uc *ProductUseCase) TopProducts(ctx context.Context) ([]*domain.Product, error) {
	products, err := uc.repo.TopRated(ctx, TopRatedLimit)
	if err != nil {
		return nil, err
	}
	if err := uc.attachPromotions(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// Categories returns the distinct product categories
func (uc *ProductUseCase) Categories(ctx context.Context) ([]string, error) {
	return uc.repo.Categories(ctx)
}

// CreateReviewInput represents a new review
type CreateReviewInput struct {
	ProductID uint
	UserID    uint
	UserName  string
	Rating    int
	Comment   string
}

// CreateReview adds the caller's review; one review per user per product
func (uc *ProductUseCase) CreateReview(ctx context.Context, input CreateReviewInput) (*domain.Review, error) {
	review, err := domain.NewReview(input.ProductID, input.UserID, input.UserName, input.Rating, input.Comment)
	if err != nil {
		return nil, err
	}

	product, err := uc.repo.GetByID(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	for _, r := range product.Reviews {
		if r.UserID == input.UserID {
			return nil, domain.ErrAlreadyReviewed
		}
	}

	if err := uc.repo.AddReview(ctx, review); err != nil {
		if errors.Is(err, errors.CodeConflict) {
			return nil, domain.ErrAlreadyReviewed
		}
		return nil, err
	}

	uc.log.WithContext(ctx).Info("review added",
		zap.Uint("product_id", input.ProductID),
		zap.Uint("user_id", input.UserID),
		zap.Int("rating", input.Rating),
	)
	return review, nil
}

func (uc *ProductUseCase) attachPromotions(ctx context.Context, products []*domain.Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]uint, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}

	applied, err := uc.promotions.AppliedPromotionIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, p := range products {
		p.PromotionIDs = applied[p.ID]
	}
	return nil
}
