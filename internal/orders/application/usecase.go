package application

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"go-storefront/internal/orders/domain"
	"go-storefront/internal/orders/ports"
	"go-storefront/pkg/clock"
	"go-storefront/pkg/db"
	"go-storefront/pkg/errors"
	"go-storefront/pkg/logger"
	"go-storefront/pkg/metrics"
	"go-storefront/pkg/money"
)

// OrderUseCase handles order business logic
type OrderUseCase struct {
	repo       ports.OrderRepository
	catalog    ports.CatalogClient
	userClient ports.UserClient
	verifier   ports.PaymentVerifier
	publisher  ports.EventPublisher
	tx         db.Transactor
	calc       domain.PriceCalculator
	clock      clock.Clock
	log        *logger.Logger
}

// NewOrderUseCase creates a new order use case
func NewOrderUseCase(
	repo ports.OrderRepository,
	catalog ports.CatalogClient,
	userClient ports.UserClient,
	verifier ports.PaymentVerifier,
	publisher ports.EventPublisher,
	tx db.Transactor,
	calc domain.PriceCalculator,
	clk clock.Clock,
	log *logger.Logger,
) *OrderUseCase {
	return &OrderUseCase{
		repo:       repo,
		catalog:    catalog,
		userClient: userClient,
		verifier:   verifier,
		publisher:  publisher,
		tx:         tx,
		calc:       calc,
		clock:      clk,
		log:        log,
	}
}

// OrderItemInput is one requested product
type OrderItemInput struct {
	ProductID uint
	Quantity  int
}

// CreateOrderInput represents the input for creating an order
type CreateOrderInput struct {
	UserID          uint
	Items           []OrderItemInput
	ShippingAddress domain.ShippingAddress
	PaymentMethod   string
}

// CreateOrderOutput represents the output of creating an order
type CreateOrderOutput struct {
	Order *domain.Order
}

// CreateOrder prices the requested items from the current catalog, then
// reserves stock and stores the order as one unit. When any line cannot be
// reserved nothing is decremented and no order exists.
func (uc *OrderUseCase) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderOutput, error) {
	items, err := mergeItems(input.Items)
	if err != nil {
		return nil, err
	}

	if _, err := uc.userClient.GetUser(ctx, input.UserID); err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return nil, domain.NewUserNotFoundError(input.UserID)
		}
		return nil, errors.Wrap(err, "failed to validate user")
	}

	lines, err := uc.priceLines(ctx, items)
	if err != nil {
		return nil, err
	}

	order, err := domain.NewOrder(input.UserID, lines, input.ShippingAddress, input.PaymentMethod, uc.calc)
	if err != nil {
		return nil, err
	}

	order.CreatedAt = uc.clock.Now()

	quantities := order.Quantities()
	if err := uc.catalog.CheckAvailability(ctx, quantities); err != nil {
		metrics.RecordOrderOperation("create", false)
		return nil, err
	}

	err = uc.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := uc.catalog.Reserve(ctx, quantities); err != nil {
			return err
		}
		return uc.repo.Create(ctx, order)
	})
	metrics.RecordOrderOperation("create", err == nil)
	if err != nil {
		return nil, err
	}

	uc.publish(ctx, order, uc.publisher.PublishOrderCreated)

	uc.log.WithContext(ctx).Info("order created",
		zap.Uint("order_id", order.ID),
		zap.Uint("user_id", order.UserID),
		zap.String("total", money.Format(order.TotalPrice)),
	)

	return &CreateOrderOutput{Order: order}, nil
}

// priceLines freezes name, image and effective unit price per item
func (uc *OrderUseCase) priceLines(ctx context.Context, items []OrderItemInput) ([]domain.OrderLine, error) {
	ids := make([]uint, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}

	snapshots, err := uc.catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]ports.ProductSnapshot, len(snapshots))
	for _, s := range snapshots {
		byID[s.ID] = s
	}

	lines := make([]domain.OrderLine, len(items))
	for i, item := range items {
		s, ok := byID[item.ProductID]
		if !ok {
			return nil, errors.NewNotFound("product", item.ProductID)
		}
		lines[i] = domain.OrderLine{
			ProductID: s.ID,
			Name:      s.Name,
			Image:     s.Image,
			Quantity:  item.Quantity,
			Price:     effectivePrice(s),
		}
	}
	return lines, nil
}

func effectivePrice(s ports.ProductSnapshot) decimal.Decimal {
	if s.DiscountPrice != nil && s.DiscountPrice.LessThan(s.Price) && !s.DiscountPrice.IsNegative() {
		return *s.DiscountPrice
	}
	return s.Price
}

// mergeItems rejects empty requests and bad quantities and folds repeated
// products into one item, keeping first-seen order
func mergeItems(items []OrderItemInput) ([]OrderItemInput, error) {
	if len(items) == 0 {
		return nil, domain.ErrNoItems
	}

	index := make(map[uint]int, len(items))
	merged := make([]OrderItemInput, 0, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, domain.ErrInvalidQuantity
		}
		if item.ProductID == 0 {
			return nil, errors.NewValidation("product id is required", nil)
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

// GetOrderInput represents the input for getting an order
type GetOrderInput struct {
	ID      uint
	UserID  uint
	IsAdmin bool
}

// GetOrderOutput represents the output of getting an order
type GetOrderOutput struct {
	Order *domain.Order
}

// GetOrder retrieves an order for its owner or an admin
func (uc *OrderUseCase) GetOrder(ctx context.Context, input GetOrderInput) (*GetOrderOutput, error) {
	order, err := uc.repo.GetByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if !input.IsAdmin && order.UserID != input.UserID {
		return nil, domain.ErrNotOwner
	}

	return &GetOrderOutput{Order: order}, nil
}

// ListMyOrders retrieves the orders of one user
func (uc *OrderUseCase) ListMyOrders(ctx context.Context, userID uint) ([]*domain.Order, error) {
	return uc.repo.ListByUser(ctx, userID)
}

// ListOrders retrieves every order
func (uc *OrderUseCase) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	return uc.repo.List(ctx)
}

// ConfirmPaymentInput carries the provider's payment report
type ConfirmPaymentInput struct {
	OrderID       uint
	TransactionID string
	ClaimedAmount decimal.Decimal
	PayerEmail    string
	Status        string
	UpdateTime    string
}

// ConfirmPayment verifies a payment with the provider and marks the order
// paid. A transaction id may pay for one order only; the guard is checked
// against stored orders and again by the conditional write.
func (uc *OrderUseCase) ConfirmPayment(ctx context.Context, input ConfirmPaymentInput) (*domain.Order, error) {
	txnID := strings.TrimSpace(input.TransactionID)
	if txnID == "" {
		return nil, errors.NewValidation("payment transaction id is required", nil)
	}

	order, err := uc.confirmPayment(ctx, txnID, input)
	metrics.RecordOrderOperation("pay", err == nil)
	if err != nil {
		uc.log.WithContext(ctx).Warn("payment rejected",
			zap.Error(err),
			zap.Uint("order_id", input.OrderID),
			zap.String("transaction_id", txnID),
		)
		return nil, err
	}

	uc.publish(ctx, order, uc.publisher.PublishOrderPaid)

	uc.log.WithContext(ctx).Info("order paid",
		zap.Uint("order_id", order.ID),
		zap.String("transaction_id", txnID),
		zap.String("total", money.Format(order.TotalPrice)),
	)
	return order, nil
}

func (uc *OrderUseCase) confirmPayment(ctx context.Context, txnID string, input ConfirmPaymentInput) (*domain.Order, error) {
	order, err := uc.repo.GetByID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}

	used, err := uc.repo.TransactionUsed(ctx, txnID)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, domain.NewTransactionUsed(txnID)
	}

	if err := order.CanPay(); err != nil {
		return nil, err
	}

	verification, err := uc.verifier.Verify(ctx, txnID)
	if err != nil {
		if errors.Is(err, errors.CodeExternalService) {
			return nil, err
		}
		return nil, errors.NewExternalService("payment verifier", err)
	}
	if !verification.Verified {
		return nil, errors.NewPaymentVerification("payment not verified", txnID)
	}

	expected := money.Format(order.TotalPrice)
	if !money.EqualAt2(verification.Amount, order.TotalPrice) {
		return nil, domain.NewAmountMismatch(txnID, expected, money.Format(verification.Amount))
	}
	if !money.EqualAt2(input.ClaimedAmount, order.TotalPrice) {
		return nil, domain.NewAmountMismatch(txnID, expected, money.Format(input.ClaimedAmount))
	}

	order.MarkPaid(uc.clock.Now(), domain.PaymentResult{
		TransactionID: txnID,
		Status:        input.Status,
		UpdateTime:    input.UpdateTime,
		EmailAddress:  input.PayerEmail,
	})

	ok, err := uc.repo.MarkPaid(ctx, order)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, uc.staleTransition(ctx, order.ID, func(current *domain.Order) error { return current.CanPay() })
	}
	return order, nil
}

// MarkDelivered records delivery of a paid order
func (uc *OrderUseCase) MarkDelivered(ctx context.Context, id uint) (*domain.Order, error) {
	order, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := order.CanDeliver(); err != nil {
		return nil, err
	}

	order.MarkDelivered(uc.clock.Now())
	ok, err := uc.repo.MarkDelivered(ctx, order)
	metrics.RecordOrderOperation("deliver", err == nil && ok)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, uc.staleTransition(ctx, id, func(current *domain.Order) error { return current.CanDeliver() })
	}

	uc.publish(ctx, order, uc.publisher.PublishOrderDelivered)
	uc.log.WithContext(ctx).Info("order delivered", zap.Uint("order_id", id))
	return order, nil
}

// CancelOrder lets the owner drop an unpaid order; its stock is restored in
// the same unit as the delete.
func (uc *OrderUseCase) CancelOrder(ctx context.Context, id, userID uint) error {
	order, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := order.CanCancel(userID); err != nil {
		return err
	}

	err = uc.removeAndRestock(ctx, order, false)
	metrics.RecordOrderOperation("cancel", err == nil)
	if err != nil {
		return err
	}

	uc.publish(ctx, order, uc.publisher.PublishOrderCancelled)
	uc.log.WithContext(ctx).Info("order cancelled",
		zap.Uint("order_id", id),
		zap.Uint("user_id", userID),
	)
	return nil
}

// DeleteOrder removes an expired unpaid order and restores its stock
func (uc *OrderUseCase) DeleteOrder(ctx context.Context, id uint) error {
	order, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := order.CanDelete(); err != nil {
		return err
	}

	err = uc.removeAndRestock(ctx, order, true)
	metrics.RecordOrderOperation("delete", err == nil)
	if err != nil {
		return err
	}

	uc.publish(ctx, order, uc.publisher.PublishOrderDeleted)
	uc.log.WithContext(ctx).Info("order deleted", zap.Uint("order_id", id))
	return nil
}

func (uc *OrderUseCase) removeAndRestock(ctx context.Context, order *domain.Order, requireExpired bool) error {
	return uc.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		ok, err := uc.repo.DeleteUnpaid(ctx, order.ID, requireExpired)
		if err != nil {
			return err
		}
		if !ok {
			return uc.staleTransition(ctx, order.ID, func(current *domain.Order) error {
				if requireExpired {
					return current.CanDelete()
				}
				return current.CanCancel(current.UserID)
			})
		}
		return uc.catalog.Restore(ctx, order.Quantities())
	})
}

// SweepExpirations flags every unpaid, unexpired order created more than
// threshold before now. It never restocks or deletes. Per-order failures are
// logged and aggregated; the pass continues.
func (uc *OrderUseCase) SweepExpirations(ctx context.Context, now time.Time, threshold time.Duration) (int, error) {
	cutoff := now.Add(-threshold)

	ids, err := uc.repo.ListExpirable(ctx, cutoff)
	if err != nil {
		metrics.RecordSweepFailure("orders")
		return 0, err
	}

	var errs error
	count := 0
	for _, id := range ids {
		ok, err := uc.repo.MarkExpired(ctx, id, cutoff)
		if err != nil {
			metrics.RecordSweepFailure("orders")
			uc.log.WithContext(ctx).Error("failed to expire order",
				zap.Error(err),
				zap.Uint("order_id", id),
			)
			errs = multierr.Append(errs, err)
			continue
		}
		if !ok {
			// paid, expired or deleted since it was listed
			continue
		}
		count++

		if order, err := uc.repo.GetByID(ctx, id); err == nil {
			uc.publish(ctx, order, uc.publisher.PublishOrderExpired)
		}
	}

	metrics.RecordSweepItems("orders", count)
	if count > 0 {
		uc.log.WithContext(ctx).Info("unpaid orders expired",
			zap.Int("count", count),
			zap.Time("cutoff", cutoff),
		)
	}
	return count, errs
}

// staleTransition explains a conditional write that matched no row by
// re-reading the order and re-running the precondition
func (uc *OrderUseCase) staleTransition(ctx context.Context, id uint, check func(*domain.Order) error) error {
	current, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := check(current); err != nil {
		return err
	}
	return errors.NewConflictWithDetails("order changed concurrently", map[string]interface{}{
		"order_id": id,
	})
}

func (uc *OrderUseCase) publish(ctx context.Context, order *domain.Order, fn func(context.Context, *domain.Order) error) {
	if err := fn(ctx, order); err != nil {
		uc.log.WithContext(ctx).Error("failed to publish order event",
			zap.Error(err),
			zap.Uint("order_id", order.ID),
		)
	}
}
