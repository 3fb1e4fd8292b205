package application

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"go-storefront/internal/promotions/domain"
	"go-storefront/internal/promotions/ports"
	"go-storefront/pkg/clock"
	"go-storefront/pkg/errors"
	"go-storefront/pkg/logger"
	"go-storefront/pkg/metrics"
)

// refreshAttempts bounds the compare-and-set loop on a product's discount
const refreshAttempts = 3

// Engine manages promotion lifecycle and keeps product discount prices equal
// to the best active promotion each product belongs to.
type Engine struct {
	repo      ports.PromotionRepository
	pricer    ports.ProductPricer
	publisher ports.EventPublisher
	clock     clock.Clock
	log       *logger.Logger
}

// NewEngine creates a new promotion engine
func NewEngine(repo ports.PromotionRepository, pricer ports.ProductPricer, publisher ports.EventPublisher, clk clock.Clock, log *logger.Logger) *Engine {
	return &Engine{
		repo:      repo,
		pricer:    pricer,
		publisher: publisher,
		clock:     clk,
		log:       log,
	}
}

// CreatePromotionInput represents the input for creating a promotion
type CreatePromotionInput struct {
	Name               string
	Description        string
	DiscountPercentage decimal.Decimal
	DurationDays       int
	ProductIDs         []uint
}

// CreatePromotion creates an inactive promotion. Inactive promotions never
// discount, so no product price changes here.
func (e *Engine) CreatePromotion(ctx context.Context, input CreatePromotionInput) (*domain.Promotion, error) {
	promotion, err := domain.NewPromotion(input.Name, input.Description, input.DiscountPercentage, input.DurationDays, input.ProductIDs)
	if err != nil {
		return nil, err
	}

	for _, id := range promotion.ProductIDs {
		if _, err := e.pricer.GetPrice(ctx, id); err != nil {
			return nil, err
		}
	}

	if err := e.repo.Create(ctx, promotion); err != nil {
		return nil, err
	}

	e.log.WithContext(ctx).Info("promotion created",
		zap.Uint("promotion_id", promotion.ID),
		zap.String("discount_percentage", promotion.DiscountPercentage.String()),
		zap.Int("products", len(promotion.ProductIDs)),
	)
	return promotion, nil
}

// GetPromotion retrieves a promotion with its product ids
func (e *Engine) GetPromotion(ctx context.Context, id uint) (*domain.Promotion, error) {
	return e.repo.GetByID(ctx, id)
}

// ListPromotions retrieves all promotions
func (e *Engine) ListPromotions(ctx context.Context) ([]*domain.Promotion, error) {
	return e.repo.List(ctx)
}

// UpdatePromotionInput carries optional field changes
type UpdatePromotionInput struct {
	ID                 uint
	Name               string
	Description        string
	DiscountPercentage *decimal.Decimal
	DurationDays       *int
}

// UpdatePromotion changes fields. Duration moves the end date only while
// active; an active promotion re-prices every associated product. The write
// is conditional on the window that was read, so a toggle or sweep landing in
// between forces a re-read.
func (e *Engine) UpdatePromotion(ctx context.Context, input UpdatePromotionInput) (*domain.Promotion, error) {
	for attempt := 0; attempt < refreshAttempts; attempt++ {
		promotion, err := e.repo.GetByID(ctx, input.ID)
		if err != nil {
			return nil, err
		}
		expected := promotion.Window()

		if err := applyUpdate(promotion, input); err != nil {
			return nil, err
		}

		ok, err := e.repo.UpdateFields(ctx, promotion, expected)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		if promotion.Active {
			if err := e.refreshAll(ctx, promotion.ProductIDs); err != nil {
				return nil, err
			}
		}

		e.log.WithContext(ctx).Info("promotion updated",
			zap.Uint("promotion_id", promotion.ID),
			zap.Bool("active", promotion.Active),
		)
		return promotion, nil
	}
	return nil, domain.ErrToggleRaceLost
}

func applyUpdate(promotion *domain.Promotion, input UpdatePromotionInput) error {
	if input.Name != "" {
		promotion.Name = input.Name
	}
	if input.Description != "" {
		promotion.Description = input.Description
	}
	if input.DiscountPercentage != nil {
		promotion.DiscountPercentage = *input.DiscountPercentage
	}
	if input.DurationDays != nil {
		if err := promotion.SetDuration(*input.DurationDays); err != nil {
			return err
		}
	}
	return promotion.Validate()
}

// TogglePromotion flips the active state. Losing a concurrent toggle is a conflict.
func (e *Engine) TogglePromotion(ctx context.Context, id uint) (*domain.Promotion, error) {
	promotion, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if promotion.Active {
		err = e.deactivate(ctx, promotion)
	} else {
		err = e.activate(ctx, promotion)
	}
	if err != nil {
		return nil, err
	}
	return promotion, nil
}

func (e *Engine) activate(ctx context.Context, promotion *domain.Promotion) error {
	expected := promotion.Window()
	promotion.Activate(e.clock.Now())

	ok, err := e.repo.SetActive(ctx, promotion, expected)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrToggleRaceLost
	}

	if err := e.refreshAll(ctx, promotion.ProductIDs); err != nil {
		return err
	}

	e.log.WithContext(ctx).Info("promotion activated",
		zap.Uint("promotion_id", promotion.ID),
		zap.Time("end_date", *promotion.EndDate),
	)
	e.publish(ctx, promotion, e.publisher.PublishPromotionActivated)
	return nil
}

// deactivate returns ErrToggleRaceLost when the stored window is no longer
// the one promotion was read with
func (e *Engine) deactivate(ctx context.Context, promotion *domain.Promotion) error {
	expected := promotion.Window()
	promotion.Deactivate()

	ok, err := e.repo.SetActive(ctx, promotion, expected)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrToggleRaceLost
	}

	if err := e.refreshAll(ctx, promotion.ProductIDs); err != nil {
		return err
	}

	e.log.WithContext(ctx).Info("promotion deactivated", zap.Uint("promotion_id", promotion.ID))
	e.publish(ctx, promotion, e.publisher.PublishPromotionDeactivated)
	return nil
}

// AddProduct associates a product; an active promotion prices it immediately
func (e *Engine) AddProduct(ctx context.Context, promotionID, productID uint) (*domain.Promotion, error) {
	promotion, err := e.repo.GetByID(ctx, promotionID)
	if err != nil {
		return nil, err
	}
	if _, err := e.pricer.GetPrice(ctx, productID); err != nil {
		return nil, err
	}
	if promotion.HasProduct(productID) {
		return nil, domain.NewAlreadyMember(promotionID, productID)
	}

	if err := e.repo.AddProduct(ctx, promotionID, productID); err != nil {
		return nil, err
	}
	promotion.ProductIDs = append(promotion.ProductIDs, productID)

	if promotion.Active {
		if err := e.RefreshProductPrice(ctx, productID); err != nil {
			return nil, err
		}
	}

	e.log.WithContext(ctx).Info("product added to promotion",
		zap.Uint("promotion_id", promotionID),
		zap.Uint("product_id", productID),
	)
	return promotion, nil
}

// RemoveProduct drops an association and re-prices the product from what remains
func (e *Engine) RemoveProduct(ctx context.Context, promotionID, productID uint) (*domain.Promotion, error) {
	promotion, err := e.repo.GetByID(ctx, promotionID)
	if err != nil {
		return nil, err
	}

	removed, err := e.repo.RemoveProduct(ctx, promotionID, productID)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, domain.NewNotMember(promotionID, productID)
	}

	kept := promotion.ProductIDs[:0]
	for _, id := range promotion.ProductIDs {
		if id != productID {
			kept = append(kept, id)
		}
	}
	promotion.ProductIDs = kept

	if err := e.RefreshProductPrice(ctx, productID); err != nil && !errors.Is(err, errors.CodeNotFound) {
		return nil, err
	}

	e.log.WithContext(ctx).Info("product removed from promotion",
		zap.Uint("promotion_id", promotionID),
		zap.Uint("product_id", productID),
	)
	return promotion, nil
}

// DeletePromotion removes a promotion. Its products are re-priced before the
// record goes, so a failed refresh leaves the promotion in place for a retry.
func (e *Engine) DeletePromotion(ctx context.Context, id uint) error {
	promotion, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if promotion.Active {
		if err := e.deactivate(ctx, promotion); err != nil {
			return err
		}
	} else if err := e.refreshAll(ctx, promotion.ProductIDs); err != nil {
		return err
	}

	deleted, err := e.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		// gone, or re-activated after the refresh
		if _, err := e.repo.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrToggleRaceLost
	}

	e.log.WithContext(ctx).Info("promotion deleted", zap.Uint("promotion_id", id))
	e.publish(ctx, promotion, e.publisher.PublishPromotionDeleted)
	return nil
}

// SweepExpired deactivates every active promotion whose end date is before
// now. Each write is conditional on the listed window, so a promotion
// re-activated after listing keeps its new window. Per-promotion failures are
// logged and aggregated; the pass continues.
func (e *Engine) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := e.repo.ListExpired(ctx, now)
	if err != nil {
		metrics.RecordSweepFailure("promotions")
		return 0, err
	}

	var errs error
	count := 0
	for _, promotion := range expired {
		err := e.deactivate(ctx, promotion)
		switch {
		case err == nil:
			count++
		case err == domain.ErrToggleRaceLost:
			// toggled or updated since it was listed
		default:
			metrics.RecordSweepFailure("promotions")
			e.log.WithContext(ctx).Error("failed to expire promotion",
				zap.Error(err),
				zap.Uint("promotion_id", promotion.ID),
			)
			errs = multierr.Append(errs, err)
		}
	}

	metrics.RecordSweepItems("promotions", count)
	if count > 0 {
		e.log.WithContext(ctx).Info("expired promotions deactivated", zap.Int("count", count))
	}
	return count, errs
}

// RefreshProductPrice recomputes a product's discount as the best active
// promotion it belongs to. The write is a compare-and-set on the price state
// that was read; a lost race re-reads and retries.
func (e *Engine) RefreshProductPrice(ctx context.Context, productID uint) error {
	for attempt := 0; attempt < refreshAttempts; attempt++ {
		current, err := e.pricer.GetPrice(ctx, productID)
		if err != nil {
			return err
		}

		active, err := e.repo.ActiveForProduct(ctx, productID)
		if err != nil {
			return err
		}

		discount := domain.DiscountedPrice(current.Price, active)
		if sameDiscount(current.DiscountPrice, discount) {
			return nil
		}

		ok, err := e.pricer.CompareAndSetDiscount(ctx, productID, current.Price, current.DiscountPrice, discount)
		if err != nil {
			return err
		}
		if ok {
			e.log.WithContext(ctx).Debug("discount price refreshed",
				zap.Uint("product_id", productID),
				zap.Stringp("discount_price", formatDiscount(discount)),
			)
			return nil
		}
	}

	return errors.NewConflictWithDetails("product price changed concurrently", map[string]interface{}{
		"product_id": productID,
	})
}

// AppliedPromotionIDs returns active promotion ids per product
func (e *Engine) AppliedPromotionIDs(ctx context.Context, productIDs []uint) (map[uint][]uint, error) {
	return e.repo.ActiveIDsByProduct(ctx, productIDs)
}

// DetachProduct drops every promotion membership of a product
func (e *Engine) DetachProduct(ctx context.Context, productID uint) error {
	return e.repo.RemoveProductEverywhere(ctx, productID)
}

// refreshAll re-prices every product, collecting failures instead of
// stopping at the first one. Deleted products are skipped.
func (e *Engine) refreshAll(ctx context.Context, productIDs []uint) error {
	var errs error
	for _, id := range productIDs {
		if err := e.RefreshProductPrice(ctx, id); err != nil && !errors.Is(err, errors.CodeNotFound) {
			e.log.WithContext(ctx).Error("failed to refresh discount price",
				zap.Error(err),
				zap.Uint("product_id", id),
			)
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return errors.Wrap(multierr.Errors(errs)[0], "failed to refresh product prices")
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, promotion *domain.Promotion, fn func(context.Context, *domain.Promotion) error) {
	if err := fn(ctx, promotion); err != nil {
		e.log.WithContext(ctx).Error("failed to publish promotion event",
			zap.Error(err),
			zap.Uint("promotion_id", promotion.ID),
		)
	}
}

func sameDiscount(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func formatDiscount(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.StringFixed(2)
	return &s
}
