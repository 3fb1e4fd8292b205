package adapters

import (
	"context"
	"sort"
	"sync"
	"time"

	"go-storefront/internal/orders/domain"
	"go-storefront/pkg/db"
)

// MemoryOrderRepository keeps orders in process. Conditional writes are
// evaluated under the mutex, the way the SQL adapter evaluates them in one
// statement.
type MemoryOrderRepository struct {
	mu     sync.Mutex
	orders map[uint]*domain.Order
	txnIDs map[string]uint
	nextID uint
	now    func() time.Time
}

// NewMemoryOrderRepository creates an empty in-memory order repository
func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders: make(map[uint]*domain.Order),
		txnIDs: make(map[string]uint),
		nextID: 1,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create creates a new order with its lines
func (r *MemoryOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order.ID = r.nextID
	r.nextID++
	if order.CreatedAt.IsZero() {
		order.CreatedAt = r.now()
	}
	order.UpdatedAt = order.CreatedAt
	r.orders[order.ID] = cloneOrder(order)

	id := order.ID
	db.RecordUndo(ctx, func() {
		r.mu.Lock()
		delete(r.orders, id)
		r.mu.Unlock()
	})
	return nil
}

// GetByID retrieves an order with its lines
func (r *MemoryOrderRepository) GetByID(ctx context.Context, id uint) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, domain.NewOrderNotFound(id)
	}
	return cloneOrder(o), nil
}

// ListByUser retrieves a user's orders, newest first
func (r *MemoryOrderRepository) ListByUser(ctx context.Context, userID uint) ([]*domain.Order, error) {
	return r.list(func(o *domain.Order) bool { return o.UserID == userID }), nil
}

// List retrieves every order, newest first
func (r *MemoryOrderRepository) List(ctx context.Context) ([]*domain.Order, error) {
	return r.list(func(*domain.Order) bool { return true }), nil
}

// TransactionUsed reports whether any order stores the transaction id
func (r *MemoryOrderRepository) TransactionUsed(ctx context.Context, transactionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.txnIDs[transactionID]
	return ok, nil
}

// MarkPaid writes the payment while the order is unpaid and not expired
func (r *MemoryOrderRepository) MarkPaid(ctx context.Context, order *domain.Order) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[order.ID]
	if !ok || o.IsPaid || o.IsExpired {
		return false, nil
	}
	txnID := order.PaymentResult.TransactionID
	if _, used := r.txnIDs[txnID]; used {
		return false, domain.NewTransactionUsed(txnID)
	}

	result := *order.PaymentResult
	paidAt := *order.PaidAt
	o.IsPaid = true
	o.PaidAt = &paidAt
	o.PaymentResult = &result
	o.UpdatedAt = r.now()
	r.txnIDs[txnID] = o.ID
	return true, nil
}

// MarkDelivered writes delivery while the order is paid and undelivered
func (r *MemoryOrderRepository) MarkDelivered(ctx context.Context, order *domain.Order) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[order.ID]
	if !ok || !o.IsPaid || o.IsDelivered {
		return false, nil
	}
	deliveredAt := *order.DeliveredAt
	o.IsDelivered = true
	o.DeliveredAt = &deliveredAt
	o.UpdatedAt = r.now()
	return true, nil
}

// DeleteUnpaid deletes the order while it is unpaid (and expired when required)
func (r *MemoryOrderRepository) DeleteUnpaid(ctx context.Context, id uint, requireExpired bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok || o.IsPaid || (requireExpired && !o.IsExpired) {
		return false, nil
	}
	delete(r.orders, id)

	db.RecordUndo(ctx, func() {
		r.mu.Lock()
		r.orders[id] = o
		r.mu.Unlock()
	})
	return true, nil
}

// ListExpirable returns ids of unpaid, unexpired orders created before cutoff
func (r *MemoryOrderRepository) ListExpirable(ctx context.Context, cutoff time.Time) ([]uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []uint
	for id, o := range r.orders {
		if o.Expirable(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// MarkExpired flags the order while it is still expirable at cutoff
func (r *MemoryOrderRepository) MarkExpired(ctx context.Context, id uint, cutoff time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok || !o.Expirable(cutoff) {
		return false, nil
	}
	o.IsExpired = true
	o.UpdatedAt = r.now()
	return true, nil
}

func (r *MemoryOrderRepository) list(keep func(*domain.Order) bool) []*domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]*domain.Order, 0, len(r.orders))
	for _, o := range r.orders {
		if keep(o) {
			result = append(result, cloneOrder(o))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Lines = append([]domain.OrderLine(nil), o.Lines...)
	if o.PaymentResult != nil {
		p := *o.PaymentResult
		c.PaymentResult = &p
	}
	if o.PaidAt != nil {
		t := *o.PaidAt
		c.PaidAt = &t
	}
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		c.DeliveredAt = &t
	}
	return &c
}
