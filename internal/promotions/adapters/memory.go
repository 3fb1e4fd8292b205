package adapters

import (
	"context"
	"sort"
	"sync"
	"time"

	"go-storefront/internal/promotions/domain"
	"go-storefront/pkg/db"
)

type membership struct {
	promotionID uint
	productID   uint
}

// MemoryPromotionRepository keeps promotions and the membership relation in
// process. Memberships are one ordered slice, mirroring the relational table.
type MemoryPromotionRepository struct {
	mu         sync.Mutex
	promotions map[uint]*domain.Promotion
	members    []membership
	nextID     uint
	now        func() time.Time
}

// NewMemoryPromotionRepository creates an empty in-memory promotion repository
func NewMemoryPromotionRepository() *MemoryPromotionRepository {
	return &MemoryPromotionRepository{
		promotions: make(map[uint]*domain.Promotion),
		nextID:     1,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts an inactive promotion and its memberships
func (r *MemoryPromotionRepository) Create(ctx context.Context, promotion *domain.Promotion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	promotion.ID = r.nextID
	r.nextID++
	promotion.CreatedAt = r.now()
	promotion.UpdatedAt = promotion.CreatedAt

	stored := clonePromotion(promotion)
	stored.ProductIDs = nil
	r.promotions[promotion.ID] = stored
	for _, productID := range promotion.ProductIDs {
		r.members = append(r.members, membership{promotionID: promotion.ID, productID: productID})
	}

	id := promotion.ID
	db.RecordUndo(ctx, func() {
		r.mu.Lock()
		delete(r.promotions, id)
		r.members = filterMembers(r.members, func(m membership) bool { return m.promotionID != id })
		r.mu.Unlock()
	})
	return nil
}

// GetByID retrieves a promotion with its product ids
func (r *MemoryPromotionRepository) GetByID(ctx context.Context, id uint) (*domain.Promotion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.promotions[id]
	if !ok {
		return nil, domain.NewPromotionNotFound(id)
	}
	return r.load(p), nil
}

// List retrieves every promotion, newest first
func (r *MemoryPromotionRepository) List(ctx context.Context) ([]*domain.Promotion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]*domain.Promotion, 0, len(r.promotions))
	for _, p := range r.promotions {
		result = append(result, r.load(p))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

// UpdateFields writes the editable fields and the derived end date while the
// stored window still equals expected
func (r *MemoryPromotionRepository) UpdateFields(ctx context.Context, promotion *domain.Promotion, expected domain.Window) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.promotions[promotion.ID]
	if !ok || !expected.Matches(p) {
		return false, nil
	}
	p.Name = promotion.Name
	p.Description = promotion.Description
	p.DiscountPercentage = promotion.DiscountPercentage
	p.DurationDays = promotion.DurationDays
	p.EndDate = copyTime(promotion.EndDate)
	p.UpdatedAt = r.now()
	return true, nil
}

// SetActive writes the flag and window while the stored window equals expected
func (r *MemoryPromotionRepository) SetActive(ctx context.Context, promotion *domain.Promotion, expected domain.Window) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.promotions[promotion.ID]
	if !ok || !expected.Matches(p) {
		return false, nil
	}
	p.Active = promotion.Active
	p.StartDate = copyTime(promotion.StartDate)
	p.EndDate = copyTime(promotion.EndDate)
	p.UpdatedAt = r.now()
	return true, nil
}

// Delete removes an inactive promotion and its memberships
func (r *MemoryPromotionRepository) Delete(ctx context.Context, id uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.promotions[id]
	if !ok || p.Active {
		return false, nil
	}
	delete(r.promotions, id)
	r.members = filterMembers(r.members, func(m membership) bool { return m.promotionID != id })
	return true, nil
}

// AddProduct associates a product; a duplicate is a conflict
func (r *MemoryPromotionRepository) AddProduct(ctx context.Context, promotionID, productID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.promotions[promotionID]; !ok {
		return domain.NewPromotionNotFound(promotionID)
	}
	for _, m := range r.members {
		if m.promotionID == promotionID && m.productID == productID {
			return domain.NewAlreadyMember(promotionID, productID)
		}
	}
	r.members = append(r.members, membership{promotionID: promotionID, productID: productID})
	return nil
}

// RemoveProduct drops an association and reports whether it existed
func (r *MemoryPromotionRepository) RemoveProduct(ctx context.Context, promotionID, productID uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := len(r.members)
	r.members = filterMembers(r.members, func(m membership) bool {
		return m.promotionID != promotionID || m.productID != productID
	})
	return len(r.members) < before, nil
}

// RemoveProductEverywhere drops every association of a product
func (r *MemoryPromotionRepository) RemoveProductEverywhere(ctx context.Context, productID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.members = filterMembers(r.members, func(m membership) bool { return m.productID != productID })
	return nil
}

// ActiveForProduct returns the active promotions a product belongs to
func (r *MemoryPromotionRepository) ActiveForProduct(ctx context.Context, productID uint) ([]*domain.Promotion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*domain.Promotion
	for _, m := range r.members {
		if m.productID != productID {
			continue
		}
		if p, ok := r.promotions[m.promotionID]; ok && p.Active {
			result = append(result, r.load(p))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ActiveIDsByProduct maps each product to its active promotion ids
func (r *MemoryPromotionRepository) ActiveIDsByProduct(ctx context.Context, productIDs []uint) (map[uint][]uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := make(map[uint]bool, len(productIDs))
	for _, id := range productIDs {
		wanted[id] = true
	}

	result := make(map[uint][]uint)
	for _, m := range r.members {
		if !wanted[m.productID] {
			continue
		}
		if p, ok := r.promotions[m.promotionID]; ok && p.Active {
			result[m.productID] = append(result[m.productID], m.promotionID)
		}
	}
	for id := range result {
		ids := result[id]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	return result, nil
}

// ListExpired returns active promotions whose end date is before now
func (r *MemoryPromotionRepository) ListExpired(ctx context.Context, now time.Time) ([]*domain.Promotion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*domain.Promotion
	for _, p := range r.promotions {
		if p.Expired(now) {
			result = append(result, r.load(p))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// load clones p and fills its product ids; callers hold the mutex
func (r *MemoryPromotionRepository) load(p *domain.Promotion) *domain.Promotion {
	c := clonePromotion(p)
	c.ProductIDs = []uint{}
	for _, m := range r.members {
		if m.promotionID == p.ID {
			c.ProductIDs = append(c.ProductIDs, m.productID)
		}
	}
	return c
}

func filterMembers(members []membership, keep func(membership) bool) []membership {
	out := members[:0]
	for _, m := range members {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

func clonePromotion(p *domain.Promotion) *domain.Promotion {
	c := *p
	c.StartDate = copyTime(p.StartDate)
	c.EndDate = copyTime(p.EndDate)
	c.ProductIDs = append([]uint(nil), p.ProductIDs...)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
