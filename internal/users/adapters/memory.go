package adapters

import (
	"context"
	"sort"
	"sync"
	"time"

	"go-storefront/internal/users/domain"
)

// MemoryUserRepository keeps users in process, for tests and DB_DRIVER=memory
type MemoryUserRepository struct {
	mu     sync.Mutex
	users  map[uint]*domain.User
	nextID uint
}

// NewMemoryUserRepository creates an empty in-memory user repository
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users:  make(map[uint]*domain.User),
		nextID: 1,
	}
}

// Create creates a new user
func (r *MemoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.emailTaken(user.Email, 0) {
		return domain.ErrEmailExists
	}
	user.ID = r.nextID
	r.nextID++
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = cloneUser(user)
	return nil
}

// GetByID retrieves a user by ID
func (r *MemoryUserRepository) GetByID(ctx context.Context, id uint) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, domain.NewUserNotFound(id)
	}
	return cloneUser(u), nil
}

// GetByEmail retrieves a user by email
func (r *MemoryUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, domain.NewEmailNotFound(email)
}

// List retrieves every user, oldest first
func (r *MemoryUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]*domain.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, cloneUser(u))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// Update updates an existing user
func (r *MemoryUserRepository) Update(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; !ok {
		return domain.NewUserNotFound(user.ID)
	}
	if r.emailTaken(user.Email, user.ID) {
		return domain.ErrEmailExists
	}
	user.UpdatedAt = time.Now().UTC()
	r.users[user.ID] = cloneUser(user)
	return nil
}

// Delete deletes a user by ID
func (r *MemoryUserRepository) Delete(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return domain.NewUserNotFound(id)
	}
	delete(r.users, id)
	return nil
}

func (r *MemoryUserRepository) emailTaken(email string, self uint) bool {
	for id, u := range r.users {
		if id != self && u.Email == email {
			return true
		}
	}
	return false
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	if u.ResetExpiresAt != nil {
		t := *u.ResetExpiresAt
		c.ResetExpiresAt = &t
	}
	return &c
}
