package application

import (
	"context"

	"go.uber.org/zap"

	"go-storefront/internal/catalog/domain"
	"go-storefront/internal/catalog/ports"
	"go-storefront/pkg/db"
	"go-storefront/pkg/errors"
	"go-storefront/pkg/logger"
	"go-storefront/pkg/metrics"
)

// InventoryLedger reserves and restores stock for order transitions
type InventoryLedger struct {
	repo ports.ProductRepository
	tx   db.Transactor
	log  *logger.Logger
}

// NewInventoryLedger creates a new inventory ledger
func NewInventoryLedger(repo ports.ProductRepository, tx db.Transactor, log *logger.Logger) *InventoryLedger {
	return &InventoryLedger{
		repo: repo,
		tx:   tx,
		log:  log,
	}
}

// CheckAvailability fails with OUT_OF_STOCK naming the first product whose
// current stock cannot cover the requested quantity.
func (l *InventoryLedger) CheckAvailability(ctx context.Context, lines []domain.StockLine) error {
	lines, err := validLines(lines)
	if err != nil {
		return err
	}

	products, err := l.load(ctx, lines)
	if err != nil {
		return err
	}

	for _, line := range lines {
		p := products[line.ProductID]
		if p.CountInStock < line.Quantity {
			return errors.NewOutOfStock(p.ID, p.Name, line.Quantity, p.CountInStock)
		}
	}
	return nil
}

// Reserve decrements every line or none. Each decrement re-checks stock in
// the same conditional write, so a concurrent reservation that committed
// first makes this one fail instead of driving stock negative.
func (l *InventoryLedger) Reserve(ctx context.Context, lines []domain.StockLine) error {
	lines, err := validLines(lines)
	if err != nil {
		return err
	}

	err = l.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		for _, line := range lines {
			ok, err := l.repo.DecrementStock(ctx, line.ProductID, line.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return l.outOfStock(ctx, line)
			}
		}
		return nil
	})

	metrics.RecordReservation(err == nil)
	if err != nil {
		l.log.WithContext(ctx).Warn("stock reservation rejected", zap.Error(err))
		return err
	}

	l.log.WithContext(ctx).Debug("stock reserved", zap.Int("lines", len(lines)))
	return nil
}

// Restore gives reserved quantities back. Products deleted from the catalog
// since the reservation are skipped.
func (l *InventoryLedger) Restore(ctx context.Context, lines []domain.StockLine) error {
	lines, err := validLines(lines)
	if err != nil {
		return err
	}

	return l.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		for _, line := range lines {
			err := l.repo.IncrementStock(ctx, line.ProductID, line.Quantity)
			if errors.Is(err, errors.CodeNotFound) {
				l.log.WithContext(ctx).Warn("skipping restock of missing product",
					zap.Uint("product_id", line.ProductID),
					zap.Int("quantity", line.Quantity),
				)
				continue
			}
			if err != nil {
				return err
			}
		}
		l.log.WithContext(ctx).Debug("stock restored", zap.Int("lines", len(lines)))
		return nil
	})
}

func (l *InventoryLedger) load(ctx context.Context, lines []domain.StockLine) (map[uint]*domain.Product, error) {
	ids := make([]uint, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}

	found, err := l.repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	products := make(map[uint]*domain.Product, len(found))
	for _, p := range found {
		products[p.ID] = p
	}
	for _, id := range ids {
		if _, ok := products[id]; !ok {
			return nil, domain.NewProductNotFound(id)
		}
	}
	return products, nil
}

// outOfStock builds the error for a failed decrement from the row as it is now
func (l *InventoryLedger) outOfStock(ctx context.Context, line domain.StockLine) error {
	p, err := l.repo.GetByID(ctx, line.ProductID)
	if err != nil {
		return err
	}
	return errors.NewOutOfStock(p.ID, p.Name, line.Quantity, p.CountInStock)
}

func validLines(lines []domain.StockLine) ([]domain.StockLine, error) {
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, domain.ErrInvalidQuantity
		}
	}
	return domain.MergeLines(lines), nil
}
