package infrastructure

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalogadapters "go-storefront/internal/catalog/adapters"
	catalogapp "go-storefront/internal/catalog/application"
	catalogdomain "go-storefront/internal/catalog/domain"
	"go-storefront/internal/orders/adapters"
	"go-storefront/internal/orders/application"
	"go-storefront/internal/orders/domain"
	"go-storefront/internal/orders/ports"
	"go-storefront/pkg/clock"
	"go-storefront/pkg/db"
	"go-storefront/pkg/errors"
	"go-storefront/pkg/events"
	"go-storefront/pkg/logger"
	"go-storefront/pkg/rabbitmq"
)

type stubUsers struct{}

func (stubUsers) GetUser(_ context.Context, id uint) (*ports.UserInfo, error) {
	return &ports.UserInfo{ID: id, Name: "buyer"}, nil
}

type stubVerifier struct {
	result *ports.PaymentVerification
	err    error
}

func (v stubVerifier) Verify(context.Context, string) (*ports.PaymentVerification, error) {
	return v.result, v.err
}

func newConsumerFixture(t *testing.T, verifier ports.PaymentVerifier) (*PaymentCapturedConsumer, *adapters.MemoryOrderRepository, uint) {
	t.Helper()
	ctx := context.Background()

	products := catalogadapters.NewMemoryProductRepository()
	product := &catalogdomain.Product{
		Name:         "Lamp",
		Price:        decimal.RequireFromString("50.00"),
		CountInStock: 5,
	}
	require.NoError(t, products.Create(ctx, product))

	tx := db.NewMemoryTransactor()
	ledger := catalogapp.NewInventoryLedger(products, tx, logger.NewNop())
	orders := adapters.NewMemoryOrderRepository()
	calc, err := domain.NewPriceCalculator("0.15", "10.00", "100.00")
	require.NoError(t, err)

	uc := application.NewOrderUseCase(
		orders,
		adapters.NewCatalogClient(products, ledger),
		stubUsers{},
		verifier,
		adapters.NoopPublisher{},
		tx,
		calc,
		clock.NewFixed(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		logger.NewNop(),
	)

	out, err := uc.CreateOrder(ctx, application.CreateOrderInput{
		UserID: 7,
		Items:  []application.OrderItemInput{{ProductID: product.ID, Quantity: 1}},
		ShippingAddress: domain.ShippingAddress{
			Address: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US",
		},
		PaymentMethod: "PayPal",
	})
	require.NoError(t, err)

	return &PaymentCapturedConsumer{useCase: uc, log: logger.NewNop()}, orders, out.Order.ID
}

func paymentMessage(t *testing.T, orderID uint, txnID, amount string) []byte {
	t.Helper()
	body, err := json.Marshal(events.New(events.RoutingKeyPaymentCaptured, events.PaymentCapturedPayload{
		OrderID:       orderID,
		TransactionID: txnID,
		Amount:        amount,
		PayerEmail:    "buyer@example.com",
		Status:        "COMPLETED",
	}, "trace-1"))
	require.NoError(t, err)
	return body
}

func TestPaymentCapturedConsumer_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("confirms a verified payment", func(t *testing.T) {
		// 50.00 + 7.50 tax + 10.00 shipping
		verifier := stubVerifier{result: &ports.PaymentVerification{Verified: true, Amount: decimal.RequireFromString("67.50")}}
		c, orders, id := newConsumerFixture(t, verifier)

		require.NoError(t, c.Handle(ctx, paymentMessage(t, id, "TXN-1", "67.50")))

		order, err := orders.GetByID(ctx, id)
		require.NoError(t, err)
		assert.True(t, order.IsPaid)
		assert.Equal(t, "TXN-1", order.PaymentResult.TransactionID)
	})

	t.Run("a replayed message is acknowledged without effect", func(t *testing.T) {
		verifier := stubVerifier{result: &ports.PaymentVerification{Verified: true, Amount: decimal.RequireFromString("67.50")}}
		c, _, id := newConsumerFixture(t, verifier)

		require.NoError(t, c.Handle(ctx, paymentMessage(t, id, "TXN-1", "67.50")))
		assert.NoError(t, c.Handle(ctx, paymentMessage(t, id, "TXN-1", "67.50")))
	})

	t.Run("malformed messages are dead-lettered", func(t *testing.T) {
		c, _, id := newConsumerFixture(t, stubVerifier{})

		err := c.Handle(ctx, []byte("{not json"))
		assert.True(t, rabbitmq.IsPermanent(err))

		err = c.Handle(ctx, paymentMessage(t, id, "TXN-1", "abc"))
		assert.True(t, rabbitmq.IsPermanent(err))

		err = c.Handle(ctx, paymentMessage(t, id, "", "67.50"))
		assert.True(t, rabbitmq.IsPermanent(err))
	})

	t.Run("provider outages are retried", func(t *testing.T) {
		verifier := stubVerifier{err: errors.NewExternalService("paypal", assert.AnError)}
		c, orders, id := newConsumerFixture(t, verifier)

		err := c.Handle(ctx, paymentMessage(t, id, "TXN-1", "67.50"))
		require.Error(t, err)
		assert.False(t, rabbitmq.IsPermanent(err))

		order, err := orders.GetByID(ctx, id)
		require.NoError(t, err)
		assert.False(t, order.IsPaid)
	})
}
