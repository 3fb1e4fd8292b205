package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"go-storefront/internal/orders/application"
	"go-storefront/pkg/errors"
	"go-storefront/pkg/events"
	"go-storefront/pkg/logger"
	"go-storefront/pkg/rabbitmq"
)

// PaymentCapturedConsumer confirms payments reported on the bus by the
// payment gateway integration. It runs the same verification as PUT /pay.
type PaymentCapturedConsumer struct {
	consumer *rabbitmq.Consumer
	useCase  *application.OrderUseCase
	log      *logger.Logger
}

// NewPaymentCapturedConsumer declares the queue and binds it to payment events
func NewPaymentCapturedConsumer(conn *rabbitmq.Connection, useCase *application.OrderUseCase, log *logger.Logger) (*PaymentCapturedConsumer, error) {
	consumer, err := rabbitmq.NewConsumer(
		conn,
		events.QueuePaymentCaptured,
		events.ExchangePayments,
		[]string{events.RoutingKeyPaymentCaptured},
		log,
	)
	if err != nil {
		return nil, err
	}

	return &PaymentCapturedConsumer{
		consumer: consumer,
		useCase:  useCase,
		log:      log,
	}, nil
}

// Start begins consuming until ctx is cancelled
func (c *PaymentCapturedConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.Handle)
}

// Wait blocks until the consume loop has exited
func (c *PaymentCapturedConsumer) Wait() {
	c.consumer.Wait()
}

// Handle processes one payment.captured message
func (c *PaymentCapturedConsumer) Handle(ctx context.Context, body []byte) error {
	var event events.PaymentCapturedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return rabbitmq.Permanent(fmt.Errorf("failed to unmarshal event: %w", err))
	}

	payload := event.Payload
	if payload.OrderID == 0 || payload.TransactionID == "" {
		return rabbitmq.Permanent(fmt.Errorf("payment event without order or transaction id"))
	}
	amount, err := decimal.NewFromString(payload.Amount)
	if err != nil {
		return rabbitmq.Permanent(fmt.Errorf("invalid amount %q: %w", payload.Amount, err))
	}

	log := c.log.WithContext(ctx)
	log.Info("processing payment.captured event",
		zap.Uint("order_id", payload.OrderID),
		zap.String("transaction_id", payload.TransactionID),
	)

	_, err = c.useCase.ConfirmPayment(ctx, application.ConfirmPaymentInput{
		OrderID:       payload.OrderID,
		TransactionID: payload.TransactionID,
		ClaimedAmount: amount,
		PayerEmail:    payload.PayerEmail,
		Status:        payload.Status,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errors.CodeConflict),
		errors.Is(err, errors.CodeValidation),
		errors.Is(err, errors.CodeNotFound),
		errors.Is(err, errors.CodePaymentVerification):
		// redelivery would be rejected the same way
		log.Warn("payment event rejected", zap.Error(err), zap.Uint("order_id", payload.OrderID))
		return nil
	default:
		return err
	}
}
