package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"go-storefront/pkg/money"
)

// Promotion is a time-bound percentage discount over a set of products.
// Active implies StartDate and EndDate are set and EndDate = StartDate + DurationDays.
// Inactive implies both are nil.
type Promotion struct {
	ID                 uint
	Name               string
	Description        string
	DiscountPercentage decimal.Decimal
	Active             bool
	StartDate          *time.Time
	EndDate            *time.Time
	DurationDays       int
	ProductIDs         []uint
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewPromotion creates an inactive promotion with validation
func NewPromotion(name, description string, pct decimal.Decimal, durationDays int, productIDs []uint) (*Promotion, error) {
	p := &Promotion{
		Name:               strings.TrimSpace(name),
		Description:        description,
		DiscountPercentage: pct,
		DurationDays:       durationDays,
		ProductIDs:         UniqueIDs(productIDs),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate validates the promotion entity
func (p *Promotion) Validate() error {
	if p.Name == "" {
		return ErrNameRequired
	}
	if !money.ValidPercentage(p.DiscountPercentage) {
		return ErrDiscountRange
	}
	if p.DurationDays <= 0 {
		return ErrDurationPositive
	}
	return nil
}

// Activate starts the promotion window at now
func (p *Promotion) Activate(now time.Time) {
	start := now
	end := start.AddDate(0, 0, p.DurationDays)
	p.Active = true
	p.StartDate = &start
	p.EndDate = &end
}

// Deactivate clears the window
func (p *Promotion) Deactivate() {
	p.Active = false
	p.StartDate = nil
	p.EndDate = nil
}

// SetDuration changes the duration; an active window is re-derived from its start
func (p *Promotion) SetDuration(days int) error {
	if days <= 0 {
		return ErrDurationPositive
	}
	p.DurationDays = days
	if p.Active && p.StartDate != nil {
		end := p.StartDate.AddDate(0, 0, days)
		p.EndDate = &end
	}
	return nil
}

// Window is the activation state a conditional write expects to find stored
type Window struct {
	Active    bool
	StartDate *time.Time
	EndDate   *time.Time
}

// Window snapshots the activation state
func (p *Promotion) Window() Window {
	return Window{Active: p.Active, StartDate: copyTime(p.StartDate), EndDate: copyTime(p.EndDate)}
}

// Matches reports whether p is in exactly the state w
func (w Window) Matches(p *Promotion) bool {
	return w.Active == p.Active && sameTime(w.StartDate, p.StartDate) && sameTime(w.EndDate, p.EndDate)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Expired reports whether an active promotion's window has closed
func (p *Promotion) Expired(now time.Time) bool {
	return p.Active && p.EndDate != nil && p.EndDate.Before(now)
}

// HasProduct reports membership of productID
func (p *Promotion) HasProduct(productID uint) bool {
	for _, id := range p.ProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}

// BestDiscount picks the active promotion with the highest percentage.
// Ties go to the lowest id. Returns nil when none is active.
func BestDiscount(promotions []*Promotion) *Promotion {
	var best *Promotion
	for _, p := range promotions {
		if !p.Active {
			continue
		}
		if best == nil ||
			p.DiscountPercentage.GreaterThan(best.DiscountPercentage) ||
			(p.DiscountPercentage.Equal(best.DiscountPercentage) && p.ID < best.ID) {
			best = p
		}
	}
	return best
}

// DiscountedPrice resolves the stored discount for a base price: nil unless
// the best active promotion brings the price strictly below base.
func DiscountedPrice(base decimal.Decimal, promotions []*Promotion) *decimal.Decimal {
	best := BestDiscount(promotions)
	if best == nil {
		return nil
	}
	d := money.ApplyDiscount(base, best.DiscountPercentage)
	if !d.LessThan(base) || d.IsNegative() {
		return nil
	}
	return &d
}

// UniqueIDs drops repeated ids, keeping first-seen order
func UniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
