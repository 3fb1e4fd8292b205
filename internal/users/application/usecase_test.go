package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-storefront/internal/users/adapters"
	"go-storefront/internal/users/domain"
	"go-storefront/pkg/auth"
	"go-storefront/pkg/clock"
	"go-storefront/pkg/errors"
	"go-storefront/pkg/logger"
)

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mu      sync.Mutex
	created []uint
	resets  []string
	failing bool
}

func (m *MockEventPublisher) PublishUserCreated(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, user.ID)
	return nil
}

func (m *MockEventPublisher) PublishPasswordResetRequested(ctx context.Context, user *domain.User, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return assert.AnError
	}
	m.resets = append(m.resets, token)
	return nil
}

func (m *MockEventPublisher) lastResetToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.resets)
	return m.resets[len(m.resets)-1]
}

type fixture struct {
	repo      *adapters.MemoryUserRepository
	publisher *MockEventPublisher
	clock     *clock.Fixed
	tokens    *auth.TokenManager
	useCase   *UserUseCase
}

func newFixture() *fixture {
	f := &fixture{
		repo:      adapters.NewMemoryUserRepository(),
		publisher: &MockEventPublisher{},
		clock:     clock.NewFixed(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	f.tokens = auth.NewTokenManager("test-secret").WithClock(f.clock.Now)
	f.useCase = NewUserUseCase(f.repo, f.publisher, f.tokens, TokenTTLs{
		Access:        24 * time.Hour,
		PasswordReset: time.Hour,
	}, f.clock, logger.NewNop())
	return f
}

func (f *fixture) register(t *testing.T, name, email, password string) *AuthOutput {
	t.Helper()
	out, err := f.useCase.Register(context.Background(), RegisterInput{Name: name, Email: email, Password: password})
	require.NoError(t, err)
	return out
}

func TestRegister_Success(t *testing.T) {
	// Arrange
	f := newFixture()

	// Act
	out, err := f.useCase.Register(context.Background(), RegisterInput{
		Name:     "John Doe",
		Email:    " John@Example.com ",
		Password: "secret1",
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, uint(1), out.User.ID)
	assert.Equal(t, "john@example.com", out.User.Email)
	assert.False(t, out.User.IsAdmin)
	assert.NotEqual(t, "secret1", out.User.PasswordHash)
	assert.Equal(t, []uint{1}, f.publisher.created)

	claims, err := f.tokens.Parse(out.Token, auth.PurposeAccess)
	require.NoError(t, err)
	assert.Equal(t, uint(1), claims.UserID)
	assert.Equal(t, "John Doe", claims.Name)
}

func TestRegister_Rejections(t *testing.T) {
	f := newFixture()
	f.register(t, "John Doe", "john@example.com", "secret1")

	tests := []struct {
		name  string
		input RegisterInput
		code  string
	}{
		{"duplicate email", RegisterInput{Name: "Other", Email: "JOHN@example.com", Password: "secret1"}, errors.CodeConflict},
		{"short password", RegisterInput{Name: "Jane", Email: "jane@example.com", Password: "1234"}, errors.CodeValidation},
		{"bad email", RegisterInput{Name: "Jane", Email: "jane", Password: "secret1"}, errors.CodeValidation},
		{"short name", RegisterInput{Name: "J", Email: "jane@example.com", Password: "secret1"}, errors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.useCase.Register(context.Background(), tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.code), "got %v", err)
		})
	}
}

func TestLogin(t *testing.T) {
	f := newFixture()
	f.register(t, "John Doe", "john@example.com", "secret1")
	ctx := context.Background()

	out, err := f.useCase.Login(ctx, LoginInput{Email: "JOHN@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Token)

	_, err = f.useCase.Login(ctx, LoginInput{Email: "john@example.com", Password: "wrong"})
	assert.True(t, errors.Is(err, errors.CodeUnauthorized))

	_, err = f.useCase.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "secret1"})
	assert.True(t, errors.Is(err, errors.CodeUnauthorized), "unknown emails look like bad passwords")
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	john := f.register(t, "John Doe", "john@example.com", "secret1").User
	f.register(t, "Jane Roe", "jane@example.com", "secret2")

	_, err := f.useCase.UpdateProfile(ctx, UpdateProfileInput{ID: john.ID, Email: "jane@example.com"})
	assert.True(t, errors.Is(err, errors.CodeConflict))

	updated, err := f.useCase.UpdateProfile(ctx, UpdateProfileInput{ID: john.ID, Name: "Johnny", Password: "newpass"})
	require.NoError(t, err)
	assert.Equal(t, "Johnny", updated.Name)
	assert.Equal(t, "john@example.com", updated.Email)

	_, err = f.useCase.Login(ctx, LoginInput{Email: "john@example.com", Password: "newpass"})
	assert.NoError(t, err)
}

func TestAdminOperations(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.useCase.EnsureAdmin(ctx, "Admin", "admin@example.com", "adminpass"))
	require.NoError(t, f.useCase.EnsureAdmin(ctx, "Admin", "admin@example.com", "other"), "second seed is a no-op")
	customer := f.register(t, "John Doe", "john@example.com", "secret1").User

	users, err := f.useCase.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.True(t, users[0].IsAdmin)

	out, err := f.useCase.Login(ctx, LoginInput{Email: "admin@example.com", Password: "adminpass"})
	require.NoError(t, err)
	claims, err := f.tokens.Parse(out.Token, auth.PurposeAccess)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin)

	err = f.useCase.DeleteUser(ctx, users[0].ID)
	assert.True(t, errors.Is(err, errors.CodeValidation), "admins cannot be deleted")

	promoted, err := f.useCase.UpdateUser(ctx, UpdateUserInput{ID: customer.ID, IsAdmin: true})
	require.NoError(t, err)
	assert.True(t, promoted.IsAdmin)
	assert.Equal(t, "John Doe", promoted.Name)

	_, err = f.useCase.UpdateUser(ctx, UpdateUserInput{ID: customer.ID, IsAdmin: false})
	require.NoError(t, err)
	require.NoError(t, f.useCase.DeleteUser(ctx, customer.ID))

	_, err = f.useCase.GetUser(ctx, GetUserInput{ID: customer.ID})
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()

	t.Run("token resets the password once", func(t *testing.T) {
		f := newFixture()
		f.register(t, "John Doe", "john@example.com", "secret1")

		out, err := f.useCase.ForgotPassword(ctx, "john@example.com")
		require.NoError(t, err)
		assert.Equal(t, f.clock.Now().Add(time.Hour), out.ExpiresAt)
		token := f.publisher.lastResetToken(t)

		require.NoError(t, f.useCase.ResetPassword(ctx, ResetPasswordInput{Token: token, NewPassword: "brandnew"}))

		_, err = f.useCase.Login(ctx, LoginInput{Email: "john@example.com", Password: "brandnew"})
		assert.NoError(t, err)

		err = f.useCase.ResetPassword(ctx, ResetPasswordInput{Token: token, NewPassword: "again"})
		assert.Equal(t, domain.ErrResetTokenInvalid, err)
	})

	t.Run("expired token", func(t *testing.T) {
		f := newFixture()
		f.register(t, "John Doe", "john@example.com", "secret1")
		_, err := f.useCase.ForgotPassword(ctx, "john@example.com")
		require.NoError(t, err)
		token := f.publisher.lastResetToken(t)

		f.clock.Advance(2 * time.Hour)

		err = f.useCase.ResetPassword(ctx, ResetPasswordInput{Token: token, NewPassword: "brandnew"})
		assert.Equal(t, domain.ErrResetTokenExpired, err)
	})

	t.Run("access tokens cannot reset passwords", func(t *testing.T) {
		f := newFixture()
		access := f.register(t, "John Doe", "john@example.com", "secret1").Token

		err := f.useCase.ResetPassword(ctx, ResetPasswordInput{Token: access, NewPassword: "brandnew"})
		assert.Equal(t, domain.ErrResetTokenInvalid, err)
	})

	t.Run("a newer request replaces the older token", func(t *testing.T) {
		f := newFixture()
		f.register(t, "John Doe", "john@example.com", "secret1")
		_, err := f.useCase.ForgotPassword(ctx, "john@example.com")
		require.NoError(t, err)
		first := f.publisher.lastResetToken(t)

		f.clock.Advance(time.Second)
		_, err = f.useCase.ForgotPassword(ctx, "john@example.com")
		require.NoError(t, err)

		err = f.useCase.ResetPassword(ctx, ResetPasswordInput{Token: first, NewPassword: "brandnew"})
		assert.Equal(t, domain.ErrResetTokenInvalid, err)
	})

	t.Run("unknown email", func(t *testing.T) {
		f := newFixture()
		_, err := f.useCase.ForgotPassword(ctx, "nobody@example.com")
		assert.True(t, errors.Is(err, errors.CodeNotFound))
	})

	t.Run("mailer unavailable", func(t *testing.T) {
		f := newFixture()
		f.register(t, "John Doe", "john@example.com", "secret1")
		f.publisher.failing = true

		_, err := f.useCase.ForgotPassword(ctx, "john@example.com")
		assert.True(t, errors.Is(err, errors.CodeExternalService))
	})
}
