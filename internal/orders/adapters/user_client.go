package adapters

import (
	"context"

	"go-storefront/internal/orders/ports"
	usersports "go-storefront/internal/users/ports"
)

// LocalUserClient implements UserClient against the users repository
type LocalUserClient struct {
	users usersports.UserRepository
}

// NewLocalUserClient creates a user client over the users repository
func NewLocalUserClient(users usersports.UserRepository) *LocalUserClient {
	return &LocalUserClient{users: users}
}

// GetUser retrieves a user by ID
func (c *LocalUserClient) GetUser(ctx context.Context, userID uint) (*ports.UserInfo, error) {
	user, err := c.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &ports.UserInfo{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
	}, nil
}
