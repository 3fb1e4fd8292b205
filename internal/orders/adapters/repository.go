package adapters

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"go-storefront/internal/orders/domain"
	"go-storefront/pkg/db"
	apperrors "go-storefront/pkg/errors"
)

// OrderModel is the GORM model for orders (persistence layer)
type OrderModel struct {
	ID                   uint             `gorm:"primaryKey"`
	UserID               uint             `gorm:"index;not null"`
	Lines                []OrderLineModel `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Address              string           `gorm:"size:300;not null"`
	City                 string           `gorm:"size:100;not null"`
	PostalCode           string           `gorm:"size:20;not null"`
	Country              string           `gorm:"size:100;not null"`
	PaymentMethod        string           `gorm:"size:50;not null"`
	ItemsPrice           decimal.Decimal  `gorm:"type:decimal(12,2);not null"`
	TaxPrice             decimal.Decimal  `gorm:"type:decimal(12,2);not null"`
	ShippingPrice        decimal.Decimal  `gorm:"type:decimal(12,2);not null"`
	TotalPrice           decimal.Decimal  `gorm:"type:decimal(12,2);not null"`
	IsPaid               bool             `gorm:"not null;default:false"`
	PaidAt               *time.Time
	PaymentTransactionID *string `gorm:"size:100;uniqueIndex"`
	PaymentStatus        string  `gorm:"size:50"`
	PaymentUpdateTime    string  `gorm:"size:50"`
	PaymentEmail         string  `gorm:"size:200"`
	IsDelivered          bool    `gorm:"not null;default:false"`
	DeliveredAt          *time.Time
	IsExpired            bool      `gorm:"not null;default:false;index:idx_orders_expirable"`
	CreatedAt            time.Time `gorm:"autoCreateTime;index:idx_orders_expirable"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// OrderLineModel is the GORM model for order lines
type OrderLineModel struct {
	ID        uint            `gorm:"primaryKey"`
	OrderID   uint            `gorm:"index;not null"`
	ProductID uint            `gorm:"not null"`
	Name      string          `gorm:"size:200;not null"`
	Image     string          `gorm:"size:500"`
	Quantity  int             `gorm:"not null"`
	Price     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
}

// TableName returns the table name for GORM
func (OrderLineModel) TableName() string {
	return "order_lines"
}

// GormOrderRepository implements OrderRepository on gorm (postgres or mysql)
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new order repository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Migrate runs auto-migration for the order models
func (r *GormOrderRepository) Migrate() error {
	return r.db.AutoMigrate(&OrderModel{}, &OrderLineModel{})
}

// Create creates a new order with its lines
func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	model := toModel(order)

	if err := db.Conn(ctx, r.db).Create(model).Error; err != nil {
		return apperrors.NewInternal("failed to create order", err)
	}

	order.ID = model.ID
	order.CreatedAt = model.CreatedAt
	order.UpdatedAt = model.UpdatedAt
	return nil
}

// GetByID retrieves an order with its lines
func (r *GormOrderRepository) GetByID(ctx context.Context, id uint) (*domain.Order, error) {
	var model OrderModel

	result := r.withLines(ctx).First(&model, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.NewOrderNotFound(id)
		}
		return nil, apperrors.NewInternal("failed to get order", result.Error)
	}

	return toDomain(&model), nil
}

// ListByUser retrieves a user's orders, newest first
func (r *GormOrderRepository) ListByUser(ctx context.Context, userID uint) ([]*domain.Order, error) {
	var models []OrderModel
	if err := r.withLines(ctx).Where("user_id = ?", userID).Order("created_at DESC").Order("id DESC").Find(&models).Error; err != nil {
		return nil, apperrors.NewInternal("failed to list orders", err)
	}
	return toDomainList(models), nil
}

// List retrieves every order, newest first
func (r *GormOrderRepository) List(ctx context.Context) ([]*domain.Order, error) {
	var models []OrderModel
	if err := r.withLines(ctx).Order("created_at DESC").Order("id DESC").Find(&models).Error; err != nil {
		return nil, apperrors.NewInternal("failed to list orders", err)
	}
	return toDomainList(models), nil
}

// TransactionUsed reports whether any order stores the transaction id
func (r *GormOrderRepository) TransactionUsed(ctx context.Context, transactionID string) (bool, error) {
	var count int64
	err := db.Conn(ctx, r.db).Model(&OrderModel{}).
		Where("payment_transaction_id = ?", transactionID).
		Count(&count).Error
	if err != nil {
		return false, apperrors.NewInternal("failed to check payment transaction", err)
	}
	return count > 0, nil
}

// MarkPaid writes the payment while the order is unpaid and not expired.
// The unique index on the transaction id closes the replay window.
func (r *GormOrderRepository) MarkPaid(ctx context.Context, order *domain.Order) (bool, error) {
	p := order.PaymentResult
	result := db.Conn(ctx, r.db).Model(&OrderModel{}).
		Where("id = ? AND is_paid = ? AND is_expired = ?", order.ID, false, false).
		Updates(map[string]interface{}{
			"is_paid":                true,
			"paid_at":                order.PaidAt,
			"payment_transaction_id": p.TransactionID,
			"payment_status":         p.Status,
			"payment_update_time":    p.UpdateTime,
			"payment_email":          p.EmailAddress,
		})
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return false, domain.NewTransactionUsed(p.TransactionID)
		}
		return false, apperrors.NewInternal("failed to mark order paid", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// MarkDelivered writes delivery while the order is paid and undelivered
func (r *GormOrderRepository) MarkDelivered(ctx context.Context, order *domain.Order) (bool, error) {
	result := db.Conn(ctx, r.db).Model(&OrderModel{}).
		Where("id = ? AND is_paid = ? AND is_delivered = ?", order.ID, true, false).
		Updates(map[string]interface{}{
			"is_delivered": true,
			"delivered_at": order.DeliveredAt,
		})
	if result.Error != nil {
		return false, apperrors.NewInternal("failed to mark order delivered", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// DeleteUnpaid deletes the order while it is unpaid (and expired when required).
// Lines go with it through the cascading foreign key.
func (r *GormOrderRepository) DeleteUnpaid(ctx context.Context, id uint, requireExpired bool) (bool, error) {
	query := db.Conn(ctx, r.db).Where("id = ? AND is_paid = ?", id, false)
	if requireExpired {
		query = query.Where("is_expired = ?", true)
	}

	result := query.Delete(&OrderModel{})
	if result.Error != nil {
		return false, apperrors.NewInternal("failed to delete order", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// ListExpirable returns ids of unpaid, unexpired orders created before cutoff
func (r *GormOrderRepository) ListExpirable(ctx context.Context, cutoff time.Time) ([]uint, error) {
	var ids []uint
	err := db.Conn(ctx, r.db).Model(&OrderModel{}).
		Where("is_paid = ? AND is_expired = ? AND created_at < ?", false, false, cutoff).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, apperrors.NewInternal("failed to list expirable orders", err)
	}
	return ids, nil
}

// MarkExpired flags the order while it is still expirable at cutoff
func (r *GormOrderRepository) MarkExpired(ctx context.Context, id uint, cutoff time.Time) (bool, error) {
	result := db.Conn(ctx, r.db).Model(&OrderModel{}).
		Where("id = ? AND is_paid = ? AND is_expired = ? AND created_at < ?", id, false, false, cutoff).
		UpdateColumn("is_expired", true)
	if result.Error != nil {
		return false, apperrors.NewInternal("failed to expire order", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *GormOrderRepository) withLines(ctx context.Context) *gorm.DB {
	return db.Conn(ctx, r.db).Preload("Lines", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") })
}

// toModel converts a domain entity to a GORM model
func toModel(o *domain.Order) *OrderModel {
	m := &OrderModel{
		ID:            o.ID,
		UserID:        o.UserID,
		Address:       o.ShippingAddress.Address,
		City:          o.ShippingAddress.City,
		PostalCode:    o.ShippingAddress.PostalCode,
		Country:       o.ShippingAddress.Country,
		PaymentMethod: o.PaymentMethod,
		ItemsPrice:    o.ItemsPrice,
		TaxPrice:      o.TaxPrice,
		ShippingPrice: o.ShippingPrice,
		TotalPrice:    o.TotalPrice,
		IsPaid:        o.IsPaid,
		PaidAt:        o.PaidAt,
		IsDelivered:   o.IsDelivered,
		DeliveredAt:   o.DeliveredAt,
		IsExpired:     o.IsExpired,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	if p := o.PaymentResult; p != nil {
		txnID := p.TransactionID
		m.PaymentTransactionID = &txnID
		m.PaymentStatus = p.Status
		m.PaymentUpdateTime = p.UpdateTime
		m.PaymentEmail = p.EmailAddress
	}
	for _, line := range o.Lines {
		m.Lines = append(m.Lines, OrderLineModel{
			ProductID: line.ProductID,
			Name:      line.Name,
			Image:     line.Image,
			Quantity:  line.Quantity,
			Price:     line.Price,
		})
	}
	return m
}

// toDomain converts a GORM model to a domain entity
func toDomain(m *OrderModel) *domain.Order {
	o := &domain.Order{
		ID:     m.ID,
		UserID: m.UserID,
		ShippingAddress: domain.ShippingAddress{
			Address:    m.Address,
			City:       m.City,
			PostalCode: m.PostalCode,
			Country:    m.Country,
		},
		PaymentMethod: m.PaymentMethod,
		ItemsPrice:    m.ItemsPrice,
		TaxPrice:      m.TaxPrice,
		ShippingPrice: m.ShippingPrice,
		TotalPrice:    m.TotalPrice,
		IsPaid:        m.IsPaid,
		PaidAt:        m.PaidAt,
		IsDelivered:   m.IsDelivered,
		DeliveredAt:   m.DeliveredAt,
		IsExpired:     m.IsExpired,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.PaymentTransactionID != nil {
		o.PaymentResult = &domain.PaymentResult{
			TransactionID: *m.PaymentTransactionID,
			Status:        m.PaymentStatus,
			UpdateTime:    m.PaymentUpdateTime,
			EmailAddress:  m.PaymentEmail,
		}
	}
	for _, line := range m.Lines {
		o.Lines = append(o.Lines, domain.OrderLine{
			ProductID: line.ProductID,
			Name:      line.Name,
			Image:     line.Image,
			Quantity:  line.Quantity,
			Price:     line.Price,
		})
	}
	return o
}

func toDomainList(models []OrderModel) []*domain.Order {
	orders := make([]*domain.Order, len(models))
	for i := range models {
		orders[i] = toDomain(&models[i])
	}
	return orders
}
