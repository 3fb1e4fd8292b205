package adapters

import (
	"context"

	"go-storefront/internal/promotions/domain"
	"go-storefront/pkg/events"
	"go-storefront/pkg/logger"
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

// PublishPromotionActivated publishes a promotion activated event
func (p *RabbitMQPublisher) PublishPromotionActivated(ctx context.Context, promotion *domain.Promotion) error {
	return p.publish(ctx, events.RoutingKeyPromotionActivated, promotion)
}

// PublishPromotionDeactivated publishes a promotion deactivated event
func (p *RabbitMQPublisher) PublishPromotionDeactivated(ctx context.Context, promotion *domain.Promotion) error {
	return p.publish(ctx, events.RoutingKeyPromotionDeactivated, promotion)
}

// PublishPromotionDeleted publishes a promotion deleted event
func (p *RabbitMQPublisher) PublishPromotionDeleted(ctx context.Context, promotion *domain.Promotion) error {
	return p.publish(ctx, events.RoutingKeyPromotionDeleted, promotion)
}

func (p *RabbitMQPublisher) publish(ctx context.Context, routingKey string, promotion *domain.Promotion) error {
	payload := events.PromotionPayload{
		ID:                 promotion.ID,
		Name:               promotion.Name,
		DiscountPercentage: promotion.DiscountPercentage.StringFixed(2),
		Active:             promotion.Active,
		StartDate:          promotion.StartDate,
		EndDate:            promotion.EndDate,
		ProductIDs:         promotion.ProductIDs,
	}
	event := events.New(routingKey, payload, logger.GetTraceID(ctx))
	return p.publisher.Publish(ctx, routingKey, event)
}

// NoopPublisher drops events; used when no broker is configured
type NoopPublisher struct{}

// PublishPromotionActivated does nothing
func (NoopPublisher) PublishPromotionActivated(context.Context, *domain.Promotion) error { return nil }

// PublishPromotionDeactivated does nothing
func (NoopPublisher) PublishPromotionDeactivated(context.Context, *domain.Promotion) error {
	return nil
}

// PublishPromotionDeleted does nothing
func (NoopPublisher) PublishPromotionDeleted(context.Context, *domain.Promotion) error { return nil }
