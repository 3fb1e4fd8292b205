package application

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalogadapters "go-storefront/internal/catalog/adapters"
	catalogdomain "go-storefront/internal/catalog/domain"
	"go-storefront/internal/promotions/adapters"
	"go-storefront/internal/promotions/domain"
	"go-storefront/internal/promotions/ports"
	"go-storefront/pkg/clock"
	"go-storefront/pkg/errors"
	"go-storefront/pkg/logger"
	"go-storefront/pkg/money"
)

type fixture struct {
	engine   *Engine
	products *catalogadapters.MemoryProductRepository
	repo     *adapters.MemoryPromotionRepository
	clock    *clock.Fixed
}

func newFixture() *fixture {
	products := catalogadapters.NewMemoryProductRepository()
	repo := adapters.NewMemoryPromotionRepository()
	clk := clock.NewFixed(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return &fixture{
		engine:   NewEngine(repo, adapters.NewCatalogPricer(products), adapters.NoopPublisher{}, clk, logger.NewNop()),
		products: products,
		repo:     repo,
		clock:    clk,
	}
}

func (f *fixture) product(t *testing.T, price string) uint {
	t.Helper()
	p, err := catalogdomain.NewProduct("Item", "", "", "", "", money.MustParse(price), 5)
	require.NoError(t, err)
	require.NoError(t, f.products.Create(context.Background(), p))
	return p.ID
}

func (f *fixture) promotion(t *testing.T, pct string, productIDs ...uint) uint {
	t.Helper()
	p, err := f.engine.CreatePromotion(context.Background(), CreatePromotionInput{
		Name:               "Sale " + pct,
		DiscountPercentage: money.MustParse(pct),
		DurationDays:       7,
		ProductIDs:         productIDs,
	})
	require.NoError(t, err)
	return p.ID
}

func (f *fixture) discount(t *testing.T, productID uint) *string {
	t.Helper()
	p, err := f.products.GetByID(context.Background(), productID)
	require.NoError(t, err)
	if p.DiscountPrice == nil {
		return nil
	}
	s := money.Format(*p.DiscountPrice)
	return &s
}

func strp(s string) *string { return &s }

func TestCreatePromotion_IsInactiveAndDoesNotPrice(t *testing.T) {
	f := newFixture()
	id := f.product(t, "100.00")

	promoID := f.promotion(t, "20", id, id)

	got, err := f.engine.GetPromotion(context.Background(), promoID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Nil(t, got.StartDate)
	assert.Equal(t, []uint{id}, got.ProductIDs)
	assert.Nil(t, f.discount(t, id))
}

func TestCreatePromotion_Validation(t *testing.T) {
	f := newFixture()
	id := f.product(t, "100.00")

	tests := []struct {
		name  string
		input CreatePromotionInput
		code  string
	}{
		{"missing name", CreatePromotionInput{DiscountPercentage: money.MustParse("10"), DurationDays: 1}, errors.CodeValidation},
		{"percentage above 100", CreatePromotionInput{Name: "x", DiscountPercentage: money.MustParse("100.5"), DurationDays: 1}, errors.CodeValidation},
		{"negative percentage", CreatePromotionInput{Name: "x", DiscountPercentage: money.MustParse("-1"), DurationDays: 1}, errors.CodeValidation},
		{"zero duration", CreatePromotionInput{Name: "x", DiscountPercentage: money.MustParse("10"), DurationDays: 0}, errors.CodeValidation},
		{"unknown product", CreatePromotionInput{Name: "x", DiscountPercentage: money.MustParse("10"), DurationDays: 1, ProductIDs: []uint{id, 999}}, errors.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreatePromotion(context.Background(), tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.code), "got %v", err)
		})
	}
}

func TestTogglePromotion_ActivatesWithWindow(t *testing.T) {
	f := newFixture()
	id := f.product(t, "100.00")
	promoID := f.promotion(t, "20", id)

	got, err := f.engine.TogglePromotion(context.Background(), promoID)

	require.NoError(t, err)
	assert.True(t, got.Active)
	require.NotNil(t, got.StartDate)
	require.NotNil(t, got.EndDate)
	assert.Equal(t, f.clock.Now().AddDate(0, 0, 7), *got.EndDate)
	assert.Equal(t, strp("80.00"), f.discount(t, id))
}

func TestTogglePromotion_BestActiveWinsAndDeactivationRecomputes(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := f.product(t, "100.00")
	low := f.promotion(t, "10", id)
	high := f.promotion(t, "30", id)

	_, err := f.engine.TogglePromotion(ctx, high)
	require.NoError(t, err)
	_, err = f.engine.TogglePromotion(ctx, low)
	require.NoError(t, err)

	// activating the weaker promotion must not override the stronger one
	assert.Equal(t, strp("70.00"), f.discount(t, id))

	_, err = f.engine.TogglePromotion(ctx, high)
	require.NoError(t, err)
	assert.Equal(t, strp("90.00"), f.discount(t, id))

	_, err = f.engine.TogglePromotion(ctx, low)
	require.NoError(t, err)
	assert.Nil(t, f.discount(t, id))
}

func TestTogglePromotion_ZeroPercentLeavesNoDiscount(t *testing.T) {
	f := newFixture()
	id := f.product(t, "100.00")
	promoID := f.promotion(t, "0", id)

	_, err := f.engine.TogglePromotion(context.Background(), promoID)

	require.NoError(t, err)
	assert.Nil(t, f.discount(t, id))
}

func TestActivate_LostRaceIsConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := f.product(t, "100.00")
	promoID := f.promotion(t, "20", id)

	stale, err := f.repo.GetByID(ctx, promoID)
	require.NoError(t, err)
	_, err = f.engine.TogglePromotion(ctx, promoID)
	require.NoError(t, err)

	err = f.engine.activate(ctx, stale)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeConflict))
	assert.Equal(t, strp("80.00"), f.discount(t, id))
}

func TestAddProduct_ActivePromotionPricesImmediately(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	first := f.product(t, "100.00")
	second := f.product(t, "50.00")
	promoID := f.promotion(t, "50", first)
	_, err := f.engine.TogglePromotion(ctx, promoID)
	require.NoError(t, err)

	got, err := f.engine.AddProduct(ctx, promoID, second)

	require.NoError(t, err)
	assert.Equal(t, []uint{first, second}, got.ProductIDs)
	assert.Equal(t, strp("25.00"), f.discount(t, second))

	_, err = f.engine.AddProduct(ctx, promoID, second)
	assert.True(t, errors.Is(err, errors.CodeConflict))
}

func TestRemoveProduct_ClearsDiscount(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := f.product(t, "100.00")
	other := f.product(t, "100.00")
	promoID := f.promotion(t, "25", id)
	_, err := f.engine.TogglePromotion(ctx, promoID)
	require.NoError(t, err)

	got, err := f.engine.RemoveProduct(ctx, promoID, id)

	require.NoError(t, err)
	assert.Empty(t, got.ProductIDs)
	assert.Nil(t, f.discount(t, id))

	_, err = f.engine.RemoveProduct(ctx, promoID, other)
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestUpdatePromotion_ActiveRepricesAndMovesEndDate(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := f.product(t, "80.00")
	promoID := f.promotion(t, "10", id)
	active, err := f.engine.TogglePromotion(ctx, promoID)
	require.NoError(t, err)

	pct := money.MustParse("25")
	days := 3
	got, err := f.engine.UpdatePromotion(ctx, UpdatePromotionInput{
		ID:                 promoID,
		DiscountPercentage: &pct,
		DurationDays:       &days,
	})

	require.NoError(t, err)
	assert.Equal(t, active.StartDate.AddDate(0, 0, 3), *got.EndDate)
	assert.Equal(t, strp("60.00"), f.discount(t, id))

	bad := -2
	_, err = f.engine.UpdatePromotion(ctx, UpdatePromotionInput{ID: promoID, DurationDays: &bad})
	assert.True(t, errors.Is(err, errors.CodeValidation))
}

func TestDeletePromotion_RecomputesFromRemaining(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := f.product(t, "100.00")
	keep := f.promotion(t, "10", id)
	drop := f.promotion(t, "40", id)
	for _, promoID := range []uint{keep, drop} {
		_, err := f.engine.TogglePromotion(ctx, promoID)
		require.NoError(t, err)
	}
	require.Equal(t, strp("60.00"), f.discount(t, id))

	require.NoError(t, f.engine.DeletePromotion(ctx, drop))

	assert.Equal(t, strp("90.00"), f.discount(t, id))
	_, err := f.engine.GetPromotion(ctx, drop)
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestSweepExpired_DeactivatesPastEndDate(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := f.product(t, "100.00")
	short := f.promotion(t, "50", id)
	long := f.promotion(t, "20", id)
	_, err := f.engine.TogglePromotion(ctx, short)
	require.NoError(t, err)

	f.clock.Advance(3 * 24 * time.Hour)
	_, err = f.engine.TogglePromotion(ctx, long)
	require.NoError(t, err)

	f.clock.Advance(4*24*time.Hour + time.Second)
	n, err := f.engine.SweepExpired(ctx, f.clock.Now())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := f.engine.GetPromotion(ctx, short)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Nil(t, got.EndDate)
	assert.Equal(t, strp("80.00"), f.discount(t, id))

	n, err = f.engine.SweepExpired(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAppliedPromotionIDsAndDetach(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := f.product(t, "100.00")
	active := f.promotion(t, "10", id)
	f.promotion(t, "20", id)
	_, err := f.engine.TogglePromotion(ctx, active)
	require.NoError(t, err)

	applied, err := f.engine.AppliedPromotionIDs(ctx, []uint{id})
	require.NoError(t, err)
	assert.Equal(t, map[uint][]uint{id: {active}}, applied)

	require.NoError(t, f.engine.DetachProduct(ctx, id))
	applied, err = f.engine.AppliedPromotionIDs(ctx, []uint{id})
	require.NoError(t, err)
	assert.Empty(t, applied)
}

// interleavedRepo lets a test commit a competing write at a chosen point
type interleavedRepo struct {
	*adapters.MemoryPromotionRepository
	beforeUpdate func()
	afterList    func()
}

func (r *interleavedRepo) UpdateFields(ctx context.Context, p *domain.Promotion, expected domain.Window) (bool, error) {
	if r.beforeUpdate != nil {
		r.beforeUpdate()
	}
	return r.MemoryPromotionRepository.UpdateFields(ctx, p, expected)
}

func (r *interleavedRepo) ListExpired(ctx context.Context, now time.Time) ([]*domain.Promotion, error) {
	listed, err := r.MemoryPromotionRepository.ListExpired(ctx, now)
	if err == nil && r.afterList != nil {
		r.afterList()
	}
	return listed, err
}

func (f *fixture) interleave() *interleavedRepo {
	repo := &interleavedRepo{MemoryPromotionRepository: f.repo}
	f.engine.repo = repo
	return repo
}

// failingPricer fails every discount write
type failingPricer struct {
	ports.ProductPricer
}

func (failingPricer) CompareAndSetDiscount(context.Context, uint, decimal.Decimal, *decimal.Decimal, *decimal.Decimal) (bool, error) {
	return false, errors.NewInternal("product store unavailable", nil)
}

func TestUpdatePromotion_DeactivatedMidUpdateKeepsWindowClear(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := f.product(t, "100.00")
	promoID := f.promotion(t, "20", id)
	_, err := f.engine.TogglePromotion(ctx, promoID)
	require.NoError(t, err)

	repo := f.interleave()
	fired := false
	repo.beforeUpdate = func() {
		if fired {
			return
		}
		fired = true
		_, err := f.engine.TogglePromotion(ctx, promoID)
		require.NoError(t, err)
	}

	pct := money.MustParse("30")
	days := 10
	got, err := f.engine.UpdatePromotion(ctx, UpdatePromotionInput{
		ID:                 promoID,
		DiscountPercentage: &pct,
		DurationDays:       &days,
	})

	require.NoError(t, err)
	assert.False(t, got.Active)
	stored, err := f.repo.GetByID(ctx, promoID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
	assert.Nil(t, stored.StartDate)
	assert.Nil(t, stored.EndDate)
	assert.Equal(t, 10, stored.DurationDays)
	assert.True(t, pct.Equal(stored.DiscountPercentage))
	assert.Nil(t, f.discount(t, id))
}

func TestUpdatePromotion_GivesUpWhenAlwaysRaced(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := f.product(t, "100.00")
	promoID := f.promotion(t, "20", id)

	repo := f.interleave()
	repo.beforeUpdate = func() {
		_, err := f.engine.TogglePromotion(ctx, promoID)
		require.NoError(t, err)
	}

	pct := money.MustParse("30")
	_, err := f.engine.UpdatePromotion(ctx, UpdatePromotionInput{ID: promoID, DiscountPercentage: &pct})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeConflict))
	stored, err := f.repo.GetByID(ctx, promoID)
	require.NoError(t, err)
	assert.True(t, money.MustParse("20").Equal(stored.DiscountPercentage))
}

func TestSweepExpired_SparesPromotionReactivatedAfterListing(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := f.product(t, "100.00")
	promoID := f.promotion(t, "50", id)
	_, err := f.engine.TogglePromotion(ctx, promoID)
	require.NoError(t, err)
	f.clock.Advance(8 * 24 * time.Hour)

	repo := f.interleave()
	repo.afterList = func() {
		for i := 0; i < 2; i++ {
			_, err := f.engine.TogglePromotion(ctx, promoID)
			require.NoError(t, err)
		}
	}

	n, err := f.engine.SweepExpired(ctx, f.clock.Now())

	require.NoError(t, err)
	assert.Zero(t, n)
	stored, err := f.repo.GetByID(ctx, promoID)
	require.NoError(t, err)
	assert.True(t, stored.Active)
	require.NotNil(t, stored.EndDate)
	assert.Equal(t, f.clock.Now().AddDate(0, 0, 7), *stored.EndDate)
	assert.Equal(t, strp("50.00"), f.discount(t, id))
}

func TestDeletePromotion_FailedRefreshKeepsRecordForRetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := f.product(t, "100.00")
	promoID := f.promotion(t, "40", id)
	_, err := f.engine.TogglePromotion(ctx, promoID)
	require.NoError(t, err)
	require.Equal(t, strp("60.00"), f.discount(t, id))

	pricer := f.engine.pricer
	f.engine.pricer = failingPricer{ProductPricer: pricer}
	err = f.engine.DeletePromotion(ctx, promoID)

	require.Error(t, err)
	stored, err := f.repo.GetByID(ctx, promoID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
	assert.Equal(t, []uint{id}, stored.ProductIDs)

	f.engine.pricer = pricer
	require.NoError(t, f.engine.DeletePromotion(ctx, promoID))

	assert.Nil(t, f.discount(t, id))
	_, err = f.engine.GetPromotion(ctx, promoID)
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}
