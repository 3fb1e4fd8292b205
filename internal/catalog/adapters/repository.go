package adapters

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"go-storefront/internal/catalog/domain"
	"go-storefront/pkg/db"
	apperrors "go-storefront/pkg/errors"
)

// ProductModel is the GORM model for products (persistence layer)
type ProductModel struct {
	ID            uint                `gorm:"primaryKey"`
	Name          string              `gorm:"size:200;not null"`
	Image         string              `gorm:"size:500"`
	Brand         string              `gorm:"size:100"`
	Category      string              `gorm:"size:100;index"`
	Description   string              `gorm:"type:text"`
	Price         decimal.Decimal     `gorm:"type:decimal(12,2);not null"`
	DiscountPrice decimal.NullDecimal `gorm:"type:decimal(12,2)"`
	CountInStock  int                 `gorm:"not null;default:0;check:chk_products_stock,count_in_stock >= 0"`
	Rating        float64             `gorm:"not null;default:0"`
	NumReviews    int                 `gorm:"not null;default:0"`
	Reviews       []ReviewModel       `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time           `gorm:"autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ReviewModel is the GORM model for reviews
type ReviewModel struct {
	ID        uint      `gorm:"primaryKey"`
	ProductID uint      `gorm:"not null;uniqueIndex:idx_reviews_product_user"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_reviews_product_user"`
	Name      string    `gorm:"size:100;not null"`
	Rating    int       `gorm:"not null"`
	Comment   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName returns the table name for GORM
func (ReviewModel) TableName() string {
	return "reviews"
}

// GormProductRepository implements ProductRepository on gorm (postgres or mysql)
type GormProductRepository struct {
	db *gorm.DB
}

// NewGormProductRepository creates a new product repository
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// Migrate runs auto-migration for the product models
func (r *GormProductRepository) Migrate() error {
	return r.db.AutoMigrate(&ProductModel{}, &ReviewModel{})
}

// Create creates a new product
func (r *GormProductRepository) Create(ctx context.Context, product *domain.Product) error {
	model := toModel(product)

	if err := db.Conn(ctx, r.db).Omit("Reviews").Create(model).Error; err != nil {
		return apperrors.NewInternal("failed to create product", err)
	}

	product.ID = model.ID
	product.CreatedAt = model.CreatedAt
	product.UpdatedAt = model.UpdatedAt
	return nil
}

// GetByID retrieves a product with its reviews
func (r *GormProductRepository) GetByID(ctx context.Context, id uint) (*domain.Product, error) {
	var model ProductModel

	result := db.Conn(ctx, r.db).
		Preload("Reviews", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at DESC") }).
		First(&model, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.NewProductNotFound(id)
		}
		return nil, apperrors.NewInternal("failed to get product", result.Error)
	}

	return toDomain(&model), nil
}

// GetByIDs retrieves the products that exist among ids
func (r *GormProductRepository) GetByIDs(ctx context.Context, ids []uint) ([]*domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var models []ProductModel
	if err := db.Conn(ctx, r.db).Where("id IN ?", ids).Order("id").Find(&models).Error; err != nil {
		return nil, apperrors.NewInternal("failed to get products", err)
	}
	return toDomainList(models), nil
}

// List returns one page of products and the total match count
func (r *GormProductRepository) List(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, int64, error) {
	query := db.Conn(ctx, r.db).Model(&ProductModel{})
	if kw := strings.TrimSpace(filter.Keyword); kw != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(kw)+"%")
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	query = query.Session(&gorm.Session{})

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, 0, apperrors.NewInternal("failed to count products", err)
	}

	var models []ProductModel
	err := query.Order("id").Limit(filter.PageSize).Offset(filter.Offset()).Find(&models).Error
	if err != nil {
		return nil, 0, apperrors.NewInternal("failed to list products", err)
	}
	return toDomainList(models), count, nil
}

// Update writes descriptive fields, price and stock
func (r *GormProductRepository) Update(ctx context.Context, product *domain.Product, priceChanged bool) error {
	updates := map[string]interface{}{
		"name":           product.Name,
		"image":          product.Image,
		"brand":          product.Brand,
		"category":       product.Category,
		"description":    product.Description,
		"price":          product.Price,
		"count_in_stock": product.CountInStock,
	}
	if priceChanged {
		updates["discount_price"] = gorm.Expr("NULL")
		product.DiscountPrice = nil
	}

	result := db.Conn(ctx, r.db).Model(&ProductModel{ID: product.ID}).Updates(updates)
	if result.Error != nil {
		return apperrors.NewInternal("failed to update product", result.Error)
	}
	return nil
}

// Delete deletes a product and its reviews
func (r *GormProductRepository) Delete(ctx context.Context, id uint) error {
	return db.Conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", id).Delete(&ReviewModel{}).Error; err != nil {
			return apperrors.NewInternal("failed to delete reviews", err)
		}
		result := tx.Delete(&ProductModel{}, id)
		if result.Error != nil {
			return apperrors.NewInternal("failed to delete product", result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.NewProductNotFound(id)
		}
		return nil
	})
}

// TopRated returns the best rated products
func (r *GormProductRepository) TopRated(ctx context.Context, limit int) ([]*domain.Product, error) {
	var models []ProductModel
	if err := db.Conn(ctx, r.db).Order("rating DESC").Order("id").Limit(limit).Find(&models).Error; err != nil {
		return nil, apperrors.NewInternal("failed to get top products", err)
	}
	return toDomainList(models), nil
}

// Categories returns the distinct categories in use
func (r *GormProductRepository) Categories(ctx context.Context) ([]string, error) {
	var categories []string
	err := db.Conn(ctx, r.db).Model(&ProductModel{}).
		Where("category <> ''").
		Distinct("category").
		Order("category").
		Pluck("category", &categories).Error
	if err != nil {
		return nil, apperrors.NewInternal("failed to get categories", err)
	}
	return categories, nil
}

// AddReview stores a review and refreshes the rating aggregate in one transaction
func (r *GormProductRepository) AddReview(ctx context.Context, review *domain.Review) error {
	return db.Conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		model := &ReviewModel{
			ProductID: review.ProductID,
			UserID:    review.UserID,
			Name:      review.Name,
			Rating:    review.Rating,
			Comment:   review.Comment,
		}
		if err := tx.Create(model).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ErrAlreadyReviewed
			}
			return apperrors.NewInternal("failed to create review", err)
		}

		result := tx.Model(&ProductModel{}).Where("id = ?", review.ProductID).UpdateColumns(map[string]interface{}{
			"num_reviews": gorm.Expr("(SELECT COUNT(*) FROM reviews WHERE product_id = ?)", review.ProductID),
			"rating":      gorm.Expr("(SELECT COALESCE(AVG(rating), 0) FROM reviews WHERE product_id = ?)", review.ProductID),
		})
		if result.Error != nil {
			return apperrors.NewInternal("failed to update rating", result.Error)
		}

		review.ID = model.ID
		review.CreatedAt = model.CreatedAt
		return nil
	})
}

// DecrementStock subtracts qty only while count_in_stock >= qty
func (r *GormProductRepository) DecrementStock(ctx context.Context, productID uint, qty int) (bool, error) {
	result := db.Conn(ctx, r.db).Model(&ProductModel{}).
		Where("id = ? AND count_in_stock >= ?", productID, qty).
		UpdateColumn("count_in_stock", gorm.Expr("count_in_stock - ?", qty))
	if result.Error != nil {
		return false, apperrors.NewInternal("failed to decrement stock", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// IncrementStock adds qty back
func (r *GormProductRepository) IncrementStock(ctx context.Context, productID uint, qty int) error {
	result := db.Conn(ctx, r.db).Model(&ProductModel{}).
		Where("id = ?", productID).
		UpdateColumn("count_in_stock", gorm.Expr("count_in_stock + ?", qty))
	if result.Error != nil {
		return apperrors.NewInternal("failed to increment stock", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewProductNotFound(productID)
	}
	return nil
}

// CompareAndSetDiscount writes discount only while price and discount are unchanged
func (r *GormProductRepository) CompareAndSetDiscount(ctx context.Context, productID uint, expectedPrice decimal.Decimal, expectedDiscount, discount *decimal.Decimal) (bool, error) {
	query := db.Conn(ctx, r.db).Model(&ProductModel{}).
		Where("id = ? AND price = ?", productID, expectedPrice)
	if expectedDiscount == nil {
		query = query.Where("discount_price IS NULL")
	} else {
		query = query.Where("discount_price = ?", *expectedDiscount)
	}

	result := query.UpdateColumn("discount_price", nullDecimal(discount))
	if result.Error != nil {
		return false, apperrors.NewInternal("failed to set discount price", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

// toModel converts a domain entity to a GORM model
func toModel(p *domain.Product) *ProductModel {
	return &ProductModel{
		ID:            p.ID,
		Name:          p.Name,
		Image:         p.Image,
		Brand:         p.Brand,
		Category:      p.Category,
		Description:   p.Description,
		Price:         p.Price,
		DiscountPrice: nullDecimal(p.DiscountPrice),
		CountInStock:  p.CountInStock,
		Rating:        p.Rating,
		NumReviews:    p.NumReviews,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// toDomain converts a GORM model to a domain entity
func toDomain(m *ProductModel) *domain.Product {
	p := &domain.Product{
		ID:           m.ID,
		Name:         m.Name,
		Image:        m.Image,
		Brand:        m.Brand,
		Category:     m.Category,
		Description:  m.Description,
		Price:        m.Price,
		CountInStock: m.CountInStock,
		Rating:       m.Rating,
		NumReviews:   m.NumReviews,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.DiscountPrice.Valid {
		d := m.DiscountPrice.Decimal
		p.DiscountPrice = &d
	}
	for _, rv := range m.Reviews {
		p.Reviews = append(p.Reviews, domain.Review{
			ID:        rv.ID,
			ProductID: rv.ProductID,
			UserID:    rv.UserID,
			Name:      rv.Name,
			Rating:    rv.Rating,
			Comment:   rv.Comment,
			CreatedAt: rv.CreatedAt,
		})
	}
	return p
}

func toDomainList(models []ProductModel) []*domain.Product {
	products := make([]*domain.Product, len(models))
	for i := range models {
		products[i] = toDomain(&models[i])
	}
	return products
}
