package adapters

import (
	"context"

	"go-storefront/internal/orders/domain"
	"go-storefront/pkg/events"
	"go-storefront/pkg/logger"
	"go-storefront/pkg/money"
	"go-storefront/pkg/rabbitmq"
)

// RabbitMQPublisher implements EventPublisher using RabbitMQ
type RabbitMQPublisher struct {
	publisher *rabbitmq.Publisher
	log       *logger.Logger
}

// NewRabbitMQPublisher creates a new RabbitMQ event publisher
func NewRabbitMQPublisher(publisher *rabbitmq.Publisher, log *logger.Logger) *RabbitMQPublisher {
	return &RabbitMQPublisher{
		publisher: publisher,
		log:       log,
	}
}

// PublishOrderCreated publishes an order created event
func (p *RabbitMQPublisher) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	return p.publish(ctx, events.RoutingKeyOrderCreated, order)
}

// PublishOrderPaid publishes an order paid event
func (p *RabbitMQPublisher) PublishOrderPaid(ctx context.Context, order *domain.Order) error {
	return p.publish(ctx, events.RoutingKeyOrderPaid, order)
}

// PublishOrderDelivered publishes an order delivered event
func (p *RabbitMQPublisher) PublishOrderDelivered(ctx context.Context, order *domain.Order) error {
	return p.publish(ctx, events.RoutingKeyOrderDelivered, order)
}

// PublishOrderCancelled publishes an order cancelled event
func (p *RabbitMQPublisher) PublishOrderCancelled(ctx context.Context, order *domain.Order) error {
	return p.publish(ctx, events.RoutingKeyOrderCancelled, order)
}

// PublishOrderDeleted publishes an order deleted event
func (p *RabbitMQPublisher) PublishOrderDeleted(ctx context.Context, order *domain.Order) error {
	return p.publish(ctx, events.RoutingKeyOrderDeleted, order)
}

// PublishOrderExpired publishes an order expired event
func (p *RabbitMQPublisher) PublishOrderExpired(ctx context.Context, order *domain.Order) error {
	return p.publish(ctx, events.RoutingKeyOrderExpired, order)
}

func (p *RabbitMQPublisher) publish(ctx context.Context, routingKey string, order *domain.Order) error {
	payload := events.OrderPayload{
		ID:            order.ID,
		UserID:        order.UserID,
		Status:        string(order.Status()),
		ItemsPrice:    money.Format(order.ItemsPrice),
		TaxPrice:      money.Format(order.TaxPrice),
		ShippingPrice: money.Format(order.ShippingPrice),
		TotalPrice:    money.Format(order.TotalPrice),
		CreatedAt:     order.CreatedAt,
		PaidAt:        order.PaidAt,
		DeliveredAt:   order.DeliveredAt,
	}
	if order.PaymentResult != nil {
		payload.TransactionID = order.PaymentResult.TransactionID
	}

	event := events.New(routingKey, payload, logger.GetTraceID(ctx))
	return p.publisher.Publish(ctx, routingKey, event)
}

// NoopPublisher drops events; used when no broker is configured
type NoopPublisher struct{}

func (NoopPublisher) PublishOrderCreated(context.Context, *domain.Order) error   { return nil }
func (NoopPublisher) PublishOrderPaid(context.Context, *domain.Order) error      { return nil }
func (NoopPublisher) PublishOrderDelivered(context.Context, *domain.Order) error { return nil }
func (NoopPublisher) PublishOrderCancelled(context.Context, *domain.Order) error { return nil }
func (NoopPublisher) PublishOrderDeleted(context.Context, *domain.Order) error   { return nil }
func (NoopPublisher) PublishOrderExpired(context.Context, *domain.Order) error   { return nil }
