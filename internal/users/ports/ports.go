package ports

import (
	"context"
	"time"

	"go-storefront/internal/users/domain"
)

// UserRepository defines the interface for user persistence
type UserRepository interface {
	// Create creates a new user; a taken email is a conflict
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uint) (*domain.User, error)

	// GetByEmail retrieves a user by normalized email
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// List retrieves every user
	List(ctx context.Context) ([]*domain.User, error)

	// Update updates an existing user
	Update(ctx context.Context, user *domain.User) error

	// Delete deletes a user by ID
	Delete(ctx context.Context, id uint) error
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// PublishUserCreated publishes a user created event
	PublishUserCreated(ctx context.Context, user *domain.User) error

	// PublishPasswordResetRequested hands the reset token to the mailer
	PublishPasswordResetRequested(ctx context.Context, user *domain.User, token string, expiresAt time.Time) error
}
