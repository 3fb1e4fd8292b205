package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalogadapters "go-storefront/internal/catalog/adapters"
	catalogapp "go-storefront/internal/catalog/application"
	catalogdomain "go-storefront/internal/catalog/domain"
	orderadapters "go-storefront/internal/orders/adapters"
	orderapp "go-storefront/internal/orders/application"
	orderdomain "go-storefront/internal/orders/domain"
	orderports "go-storefront/internal/orders/ports"
	promoadapters "go-storefront/internal/promotions/adapters"
	promoapp "go-storefront/internal/promotions/application"
	"go-storefront/pkg/clock"
	"go-storefront/pkg/db"
	"go-storefront/pkg/logger"
	"go-storefront/pkg/money"
)

type anyUser struct{}

func (anyUser) GetUser(_ context.Context, id uint) (*orderports.UserInfo, error) {
	return &orderports.UserInfo{ID: id}, nil
}

type neverVerified struct{}

func (neverVerified) Verify(context.Context, string) (*orderports.PaymentVerification, error) {
	return &orderports.PaymentVerification{}, nil
}

func TestRunOnce_ExpiresOrdersAndPromotions(t *testing.T) {
	// Arrange
	ctx := context.Background()
	log := logger.NewNop()
	clk := clock.NewFixed(now)

	products := catalogadapters.NewMemoryProductRepository()
	product, err := catalogdomain.NewProduct("Lamp", "", "", "", "", money.MustParse("100.00"), 5)
	require.NoError(t, err)
	require.NoError(t, products.Create(ctx, product))

	engine := promoapp.NewEngine(promoadapters.NewMemoryPromotionRepository(), promoadapters.NewCatalogPricer(products), promoadapters.NoopPublisher{}, clk, log)
	promo, err := engine.CreatePromotion(ctx, promoapp.CreatePromotionInput{
		Name:               "Spring",
		DiscountPercentage: money.MustParse("25"),
		DurationDays:       1,
		ProductIDs:         []uint{product.ID},
	})
	require.NoError(t, err)
	_, err = engine.TogglePromotion(ctx, promo.ID)
	require.NoError(t, err)

	tx := db.NewMemoryTransactor()
	calc, err := orderdomain.NewPriceCalculator("0.15", "10.00", "100.00")
	require.NoError(t, err)
	orders := orderadapters.NewMemoryOrderRepository()
	useCase := orderapp.NewOrderUseCase(
		orders,
		orderadapters.NewCatalogClient(products, catalogapp.NewInventoryLedger(products, tx, log)),
		anyUser{},
		neverVerified{},
		orderadapters.NoopPublisher{},
		tx,
		calc,
		clk,
		log,
	)
	out, err := useCase.CreateOrder(ctx, orderapp.CreateOrderInput{
		UserID: 1,
		Items:  []orderapp.OrderItemInput{{ProductID: product.ID, Quantity: 2}},
		ShippingAddress: orderdomain.ShippingAddress{
			Address:    "1 Main St",
			City:       "Springfield",
			PostalCode: "12345",
			Country:    "US",
		},
		PaymentMethod: "PayPal",
	})
	require.NoError(t, err)
	assert.Equal(t, "75.00", money.Format(out.Order.Lines[0].Price))

	s, err := New(useCase, engine, nil, clk, Config{Interval: time.Minute, OrderExpiryThreshold: 2 * time.Minute}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop(ctx) })

	// Act
	clk.Advance(2 * 24 * time.Hour)
	report, err := s.RunOnce(ctx)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, Report{OrdersExpired: 1, PromotionsDeactivated: 1}, report)

	order, err := orders.GetByID(ctx, out.Order.ID)
	require.NoError(t, err)
	assert.True(t, order.IsExpired)

	p, err := products.GetByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Nil(t, p.DiscountPrice)
	assert.Equal(t, 3, p.CountInStock, "expiry never restocks")

	report, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
}
