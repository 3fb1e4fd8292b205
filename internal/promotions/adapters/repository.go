package adapters

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"go-storefront/internal/promotions/domain"
	"go-storefront/pkg/db"
	apperrors "go-storefront/pkg/errors"
)

// PromotionModel is the GORM model for promotions
type PromotionModel struct {
	ID                 uint            `gorm:"primaryKey"`
	Name               string          `gorm:"size:200;not null"`
	Description        string          `gorm:"type:text"`
	DiscountPercentage decimal.Decimal `gorm:"type:decimal(5,2);not null"`
	Active             bool            `gorm:"not null;default:false;index:idx_promotions_active_end"`
	StartDate          *time.Time
	EndDate            *time.Time `gorm:"index:idx_promotions_active_end"`
	DurationDays       int        `gorm:"not null"`
	CreatedAt          time.Time  `gorm:"autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM
func (PromotionModel) TableName() string {
	return "promotions"
}

// PromotionProductModel is the membership relation. The surrogate id keeps
// insertion order.
type PromotionProductModel struct {
	ID          uint      `gorm:"primaryKey"`
	PromotionID uint      `gorm:"not null;uniqueIndex:idx_promotion_products_pair"`
	ProductID   uint      `gorm:"not null;uniqueIndex:idx_promotion_products_pair;index"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

// TableName returns the table name for GORM
func (PromotionProductModel) TableName() string {
	return "promotion_products"
}

// GormPromotionRepository implements PromotionRepository on gorm
type GormPromotionRepository struct {
	db *gorm.DB
}

// NewGormPromotionRepository creates a new promotion repository
func NewGormPromotionRepository(db *gorm.DB) *GormPromotionRepository {
	return &GormPromotionRepository{db: db}
}

// Migrate runs auto-migration for the promotion models
func (r *GormPromotionRepository) Migrate() error {
	return r.db.AutoMigrate(&PromotionModel{}, &PromotionProductModel{})
}

// Create inserts the promotion and its memberships in one transaction
func (r *GormPromotionRepository) Create(ctx context.Context, promotion *domain.Promotion) error {
	return db.Conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		model := toModel(promotion)
		if err := tx.Create(model).Error; err != nil {
			return apperrors.NewInternal("failed to create promotion", err)
		}

		for _, productID := range promotion.ProductIDs {
			link := &PromotionProductModel{PromotionID: model.ID, ProductID: productID}
			if err := tx.Create(link).Error; err != nil {
				return apperrors.NewInternal("failed to link product", err)
			}
		}

		promotion.ID = model.ID
		promotion.CreatedAt = model.CreatedAt
		promotion.UpdatedAt = model.UpdatedAt
		return nil
	})
}

// GetByID retrieves a promotion with its product ids
func (r *GormPromotionRepository) GetByID(ctx context.Context, id uint) (*domain.Promotion, error) {
	var model PromotionModel
	if err := db.Conn(ctx, r.db).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewPromotionNotFound(id)
		}
		return nil, apperrors.NewInternal("failed to get promotion", err)
	}

	promotions, err := r.withProducts(ctx, []PromotionModel{model})
	if err != nil {
		return nil, err
	}
	return promotions[0], nil
}

// List retrieves every promotion, newest first
func (r *GormPromotionRepository) List(ctx context.Context) ([]*domain.Promotion, error) {
	var models []PromotionModel
	if err := db.Conn(ctx, r.db).Order("created_at DESC").Order("id DESC").Find(&models).Error; err != nil {
		return nil, apperrors.NewInternal("failed to list promotions", err)
	}
	return r.withProducts(ctx, models)
}

// UpdateFields writes the editable fields and the derived end date while the
// stored window still equals expected
func (r *GormPromotionRepository) UpdateFields(ctx context.Context, promotion *domain.Promotion, expected domain.Window) (bool, error) {
	result := matchWindow(db.Conn(ctx, r.db).Model(&PromotionModel{}), promotion.ID, expected).
		Updates(map[string]interface{}{
			"name":                promotion.Name,
			"description":         promotion.Description,
			"discount_percentage": promotion.DiscountPercentage,
			"duration_days":       promotion.DurationDays,
			"end_date":            nullTime(promotion.EndDate),
		})
	if result.Error != nil {
		return false, apperrors.NewInternal("failed to update promotion", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// SetActive writes the flag and window while the stored window equals expected
func (r *GormPromotionRepository) SetActive(ctx context.Context, promotion *domain.Promotion, expected domain.Window) (bool, error) {
	result := matchWindow(db.Conn(ctx, r.db).Model(&PromotionModel{}), promotion.ID, expected).
		Updates(map[string]interface{}{
			"active":     promotion.Active,
			"start_date": nullTime(promotion.StartDate),
			"end_date":   nullTime(promotion.EndDate),
		})
	if result.Error != nil {
		return false, apperrors.NewInternal("failed to toggle promotion", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Delete removes an inactive promotion and its memberships
func (r *GormPromotionRepository) Delete(ctx context.Context, id uint) (bool, error) {
	deleted := false
	err := db.Conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND active = ?", id, false).Delete(&PromotionModel{})
		if result.Error != nil {
			return apperrors.NewInternal("failed to delete promotion", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}
		if err := tx.Where("promotion_id = ?", id).Delete(&PromotionProductModel{}).Error; err != nil {
			return apperrors.NewInternal("failed to unlink products", err)
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// AddProduct associates a product; the unique pair index rejects duplicates
func (r *GormPromotionRepository) AddProduct(ctx context.Context, promotionID, productID uint) error {
	link := &PromotionProductModel{PromotionID: promotionID, ProductID: productID}
	if err := db.Conn(ctx, r.db).Create(link).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.NewAlreadyMember(promotionID, productID)
		}
		return apperrors.NewInternal("failed to link product", err)
	}
	return nil
}

// RemoveProduct drops an association and reports whether it existed
func (r *GormPromotionRepository) RemoveProduct(ctx context.Context, promotionID, productID uint) (bool, error) {
	result := db.Conn(ctx, r.db).
		Where("promotion_id = ? AND product_id = ?", promotionID, productID).
		Delete(&PromotionProductModel{})
	if result.Error != nil {
		return false, apperrors.NewInternal("failed to unlink product", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// RemoveProductEverywhere drops every association of a product
func (r *GormPromotionRepository) RemoveProductEverywhere(ctx context.Context, productID uint) error {
	if err := db.Conn(ctx, r.db).Where("product_id = ?", productID).Delete(&PromotionProductModel{}).Error; err != nil {
		return apperrors.NewInternal("failed to unlink product", err)
	}
	return nil
}

// ActiveForProduct returns the active promotions a product belongs to
func (r *GormPromotionRepository) ActiveForProduct(ctx context.Context, productID uint) ([]*domain.Promotion, error) {
	var models []PromotionModel
	err := db.Conn(ctx, r.db).
		Joins("JOIN promotion_products ON promotion_products.promotion_id = promotions.id").
		Where("promotion_products.product_id = ? AND promotions.active = ?", productID, true).
		Order("promotions.id").
		Find(&models).Error
	if err != nil {
		return nil, apperrors.NewInternal("failed to get active promotions", err)
	}
	return toDomainList(models, nil), nil
}

type membershipRow struct {
	PromotionID uint
	ProductID   uint
}

// ActiveIDsByProduct maps each product to its active promotion ids
func (r *GormPromotionRepository) ActiveIDsByProduct(ctx context.Context, productIDs []uint) (map[uint][]uint, error) {
	result := make(map[uint][]uint)
	if len(productIDs) == 0 {
		return result, nil
	}

	var rows []membershipRow
	err := db.Conn(ctx, r.db).Model(&PromotionProductModel{}).
		Select("promotion_products.promotion_id, promotion_products.product_id").
		Joins("JOIN promotions ON promotions.id = promotion_products.promotion_id").
		Where("promotion_products.product_id IN ? AND promotions.active = ?", productIDs, true).
		Order("promotion_products.promotion_id").
		Scan(&rows).Error
	if err != nil {
		return nil, apperrors.NewInternal("failed to get applied promotions", err)
	}

	for _, row := range rows {
		result[row.ProductID] = append(result[row.ProductID], row.PromotionID)
	}
	return result, nil
}

// ListExpired returns active promotions whose end date is before now
func (r *GormPromotionRepository) ListExpired(ctx context.Context, now time.Time) ([]*domain.Promotion, error) {
	var models []PromotionModel
	err := db.Conn(ctx, r.db).
		Where("active = ? AND end_date < ?", true, now).
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, apperrors.NewInternal("failed to list expired promotions", err)
	}
	return r.withProducts(ctx, models)
}

// withProducts loads memberships for models in one query
func (r *GormPromotionRepository) withProducts(ctx context.Context, models []PromotionModel) ([]*domain.Promotion, error) {
	if len(models) == 0 {
		return []*domain.Promotion{}, nil
	}

	ids := make([]uint, len(models))
	for i, m := range models {
		ids[i] = m.ID
	}

	var links []PromotionProductModel
	if err := db.Conn(ctx, r.db).Where("promotion_id IN ?", ids).Order("id").Find(&links).Error; err != nil {
		return nil, apperrors.NewInternal("failed to load promotion products", err)
	}

	members := make(map[uint][]uint, len(models))
	for _, l := range links {
		members[l.PromotionID] = append(members[l.PromotionID], l.ProductID)
	}
	return toDomainList(models, members), nil
}

// matchWindow narrows an update to the row while it is still in window w
func matchWindow(tx *gorm.DB, id uint, w domain.Window) *gorm.DB {
	tx = tx.Where("id = ? AND active = ?", id, w.Active)
	tx = whereTime(tx, "start_date", w.StartDate)
	return whereTime(tx, "end_date", w.EndDate)
}

func whereTime(tx *gorm.DB, column string, t *time.Time) *gorm.DB {
	if t == nil {
		return tx.Where(column + " IS NULL")
	}
	return tx.Where(column+" = ?", *t)
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return gorm.Expr("NULL")
	}
	return *t
}

// toModel converts a domain entity to a GORM model
func toModel(p *domain.Promotion) *PromotionModel {
	return &PromotionModel{
		ID:                 p.ID,
		Name:               p.Name,
		Description:        p.Description,
		DiscountPercentage: p.DiscountPercentage,
		Active:             p.Active,
		StartDate:          p.StartDate,
		EndDate:            p.EndDate,
		DurationDays:       p.DurationDays,
	}
}

// toDomain converts a GORM model to a domain entity
func toDomain(m *PromotionModel, productIDs []uint) *domain.Promotion {
	if productIDs == nil {
		productIDs = []uint{}
	}
	return &domain.Promotion{
		ID:                 m.ID,
		Name:               m.Name,
		Description:        m.Description,
		DiscountPercentage: m.DiscountPercentage,
		Active:             m.Active,
		StartDate:          m.StartDate,
		EndDate:            m.EndDate,
		DurationDays:       m.DurationDays,
		ProductIDs:         productIDs,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func toDomainList(models []PromotionModel, members map[uint][]uint) []*domain.Promotion {
	promotions := make([]*domain.Promotion, len(models))
	for i := range models {
		promotions[i] = toDomain(&models[i], members[models[i].ID])
	}
	return promotions
}
