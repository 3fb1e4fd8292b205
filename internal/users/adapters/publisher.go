package adapters

import (
	"context"
	"time"

	"go-storefront/internal/users/domain"
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

// PublishUserCreated publishes a user created event
func (p *RabbitMQPublisher) PublishUserCreated(ctx context.Context, user *domain.User) error {
	event := events.New(events.RoutingKeyUserCreated, events.UserCreatedPayload{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}, logger.GetTraceID(ctx))

	return p.publisher.Publish(ctx, events.RoutingKeyUserCreated, event)
}

// PublishPasswordResetRequested publishes the reset token for the mailer
func (p *RabbitMQPublisher) PublishPasswordResetRequested(ctx context.Context, user *domain.User, token string, expiresAt time.Time) error {
	event := events.New(events.RoutingKeyPasswordResetRequested, events.PasswordResetRequestedPayload{
		UserID:    user.ID,
		Email:     user.Email,
		Token:     token,
		ExpiresAt: expiresAt,
	}, logger.GetTraceID(ctx))

	return p.publisher.Publish(ctx, events.RoutingKeyPasswordResetRequested, event)
}

// NoopPublisher drops events when no broker is configured
type NoopPublisher struct{}

func (NoopPublisher) PublishUserCreated(context.Context, *domain.User) error { return nil }
func (NoopPublisher) PublishPasswordResetRequested(context.Context, *domain.User, string, time.Time) error {
	return nil
}
