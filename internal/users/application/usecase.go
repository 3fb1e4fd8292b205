package application

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"go-storefront/internal/users/domain"
	"go-storefront/internal/users/ports"
	"go-storefront/pkg/auth"
	"go-storefront/pkg/clock"
	"go-storefront/pkg/errors"
	"go-storefront/pkg/logger"
)

// TokenTTLs are the lifetimes of issued tokens
type TokenTTLs struct {
	Access        time.Duration
	PasswordReset time.Duration
}

// UserUseCase handles user business logic
type UserUseCase struct {
	repo      ports.UserRepository
	publisher ports.EventPublisher
	tokens    *auth.TokenManager
	ttls      TokenTTLs
	clock     clock.Clock
	log       *logger.Logger
}

// NewUserUseCase creates a new user use case
func NewUserUseCase(
	repo ports.UserRepository,
	publisher ports.EventPublisher,
	tokens *auth.TokenManager,
	ttls TokenTTLs,
	clk clock.Clock,
	log *logger.Logger,
) *UserUseCase {
	return &UserUseCase{
		repo:      repo,
		publisher: publisher,
		tokens:    tokens,
		ttls:      ttls,
		clock:     clk,
		log:       log,
	}
}

// RegisterInput represents the input for registering a user
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// AuthOutput is a user together with a fresh access token
type AuthOutput struct {
	User  *domain.User
	Token string
}

// Register creates a new customer account and signs it in
func (uc *UserUseCase) Register(ctx context.Context, input RegisterInput) (*AuthOutput, error) {
	user, err := domain.NewUser(input.Name, input.Email, input.Password)
	if err != nil {
		return nil, err
	}

	if err := uc.ensureEmailFree(ctx, user.Email, 0); err != nil {
		return nil, err
	}

	if err := uc.repo.Create(ctx, user); err != nil {
		return nil, errors.Wrap(err, "failed to create user")
	}

	if err := uc.publisher.PublishUserCreated(ctx, user); err != nil {
		uc.log.WithContext(ctx).Error("failed to publish user created event",
			zap.Error(err),
			zap.Uint("user_id", user.ID),
		)
	}

	uc.log.WithContext(ctx).Info("user registered",
		zap.Uint("user_id", user.ID),
		zap.String("email", user.Email),
	)

	return uc.signIn(user)
}

// LoginInput represents the credentials of a login attempt
type LoginInput struct {
	Email    string
	Password string
}

// Login checks credentials and issues an access token
func (uc *UserUseCase) Login(ctx context.Context, input LoginInput) (*AuthOutput, error) {
	user, err := uc.repo.GetByEmail(ctx, domain.NormalizeEmail(input.Email))
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return nil, domain.ErrInvalidLogin
		}
		return nil, err
	}
	if !user.CheckPassword(input.Password) {
		uc.log.WithContext(ctx).Warn("login rejected", zap.Uint("user_id", user.ID))
		return nil, domain.ErrInvalidLogin
	}

	return uc.signIn(user)
}

func (uc *UserUseCase) signIn(user *domain.User) (*AuthOutput, error) {
	token, err := uc.tokens.Issue(auth.Identity{
		UserID:  user.ID,
		Name:    user.Name,
		IsAdmin: user.IsAdmin,
	}, auth.PurposeAccess, uc.ttls.Access)
	if err != nil {
		return nil, errors.NewInternal("failed to issue token", err)
	}
	return &AuthOutput{User: user, Token: token}, nil
}

// GetUserInput represents the input for getting a user
type GetUserInput struct {
	ID uint
}

// GetUserOutput represents the output of getting a user
type GetUserOutput struct {
	User *domain.User
}

// GetUser retrieves a user by ID
func (uc *UserUseCase) GetUser(ctx context.Context, input GetUserInput) (*GetUserOutput, error) {
	user, err := uc.repo.GetByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	return &GetUserOutput{User: user}, nil
}

// ListUsers retrieves every user
func (uc *UserUseCase) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return uc.repo.List(ctx)
}

// UpdateProfileInput carries a user's own changes; empty fields are kept
type UpdateProfileInput struct {
	ID       uint
	Name     string
	Email    string
	Password string
}

// UpdateProfile lets a user change their name, email or password
func (uc *UserUseCase) UpdateProfile(ctx context.Context, input UpdateProfileInput) (*domain.User, error) {
	user, err := uc.repo.GetByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	if err := uc.applyIdentity(ctx, user, input.Name, input.Email); err != nil {
		return nil, err
	}
	if input.Password != "" {
		if err := user.SetPassword(input.Password); err != nil {
			return nil, err
		}
	}

	if err := uc.repo.Update(ctx, user); err != nil {
		return nil, err
	}

	uc.log.WithContext(ctx).Info("profile updated", zap.Uint("user_id", user.ID))
	return user, nil
}

// UpdateUserInput carries an admin's changes to another account
type UpdateUserInput struct {
	ID      uint
	Name    string
	Email   string
	IsAdmin bool
}

// UpdateUser lets an admin rename a user or change their role
func (uc *UserUseCase) UpdateUser(ctx context.Context, input UpdateUserInput) (*domain.User, error) {
	user, err := uc.repo.GetByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	if err := uc.applyIdentity(ctx, user, input.Name, input.Email); err != nil {
		return nil, err
	}
	user.IsAdmin = input.IsAdmin

	if err := uc.repo.Update(ctx, user); err != nil {
		return nil, err
	}

	uc.log.WithContext(ctx).Info("user updated",
		zap.Uint("user_id", user.ID),
		zap.Bool("is_admin", user.IsAdmin),
	)
	return user, nil
}

// DeleteUser removes a customer account; admins cannot be deleted
func (uc *UserUseCase) DeleteUser(ctx context.Context, id uint) error {
	user, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if user.IsAdmin {
		return domain.ErrAdminUndeletable
	}

	if err := uc.repo.Delete(ctx, id); err != nil {
		return err
	}

	uc.log.WithContext(ctx).Info("user deleted", zap.Uint("user_id", id))
	return nil
}

// ForgotPasswordOutput tells the caller when the issued token lapses
type ForgotPasswordOutput struct {
	ExpiresAt time.Time
}

// ForgotPassword issues a single-use reset token and publishes it for the
// mailer. Issuing a new token invalidates the previous one.
func (uc *UserUseCase) ForgotPassword(ctx context.Context, email string) (*ForgotPasswordOutput, error) {
	email = domain.NormalizeEmail(email)
	if !domain.EmailRegex.MatchString(email) {
		return nil, domain.ErrEmailInvalid
	}

	user, err := uc.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	token, err := uc.tokens.Issue(auth.Identity{UserID: user.ID}, auth.PurposePasswordReset, uc.ttls.PasswordReset)
	if err != nil {
		return nil, errors.NewInternal("failed to issue reset token", err)
	}
	expiresAt := uc.clock.Now().Add(uc.ttls.PasswordReset)
	user.SetResetToken(token, expiresAt)

	if err := uc.repo.Update(ctx, user); err != nil {
		return nil, err
	}

	if err := uc.publisher.PublishPasswordResetRequested(ctx, user, token, expiresAt); err != nil {
		return nil, errors.NewExternalService("password reset mailer", err)
	}

	uc.log.WithContext(ctx).Info("password reset requested", zap.Uint("user_id", user.ID))
	return &ForgotPasswordOutput{ExpiresAt: expiresAt}, nil
}

// ResetPasswordInput carries a reset token and the new password
type ResetPasswordInput struct {
	Token       string
	NewPassword string
}

// ResetPassword stores a new password when the token is the user's
// outstanding, unexpired reset token
func (uc *UserUseCase) ResetPassword(ctx context.Context, input ResetPasswordInput) error {
	claims, err := uc.tokens.Parse(strings.TrimSpace(input.Token), auth.PurposePasswordReset)
	if err != nil {
		if stderrors.Is(err, auth.ErrExpiredToken) {
			return domain.ErrResetTokenExpired
		}
		return domain.ErrResetTokenInvalid
	}

	user, err := uc.repo.GetByID(ctx, claims.UserID)
	if err != nil {
		return err
	}
	if err := user.ResetTokenMatches(strings.TrimSpace(input.Token), uc.clock.Now()); err != nil {
		return err
	}
	if err := user.SetPassword(input.NewPassword); err != nil {
		return err
	}

	if err := uc.repo.Update(ctx, user); err != nil {
		return err
	}

	uc.log.WithContext(ctx).Info("password reset", zap.Uint("user_id", user.ID))
	return nil
}

// EnsureAdmin creates the bootstrap admin account when the email is unused.
// An existing account with that email is left as it is.
func (uc *UserUseCase) EnsureAdmin(ctx context.Context, name, email, password string) error {
	existing, err := uc.repo.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err == nil {
		if !existing.IsAdmin {
			uc.log.WithContext(ctx).Warn("bootstrap admin email belongs to a customer",
				zap.Uint("user_id", existing.ID),
			)
		}
		return nil
	}
	if !errors.Is(err, errors.CodeNotFound) {
		return err
	}

	user, err := domain.NewUser(name, email, password)
	if err != nil {
		return err
	}
	user.IsAdmin = true
	if err := uc.repo.Create(ctx, user); err != nil {
		return err
	}

	uc.log.WithContext(ctx).Info("bootstrap admin created", zap.Uint("user_id", user.ID))
	return nil
}

func (uc *UserUseCase) applyIdentity(ctx context.Context, user *domain.User, name, email string) error {
	if name = strings.TrimSpace(name); name != "" {
		user.Name = name
	}
	if email = domain.NormalizeEmail(email); email != "" && email != user.Email {
		if err := uc.ensureEmailFree(ctx, email, user.ID); err != nil {
			return err
		}
		user.Email = email
	}
	return user.Validate()
}

func (uc *UserUseCase) ensureEmailFree(ctx context.Context, email string, self uint) error {
	existing, err := uc.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return nil
		}
		return errors.Wrap(err, "failed to check email existence")
	}
	if existing.ID != self {
		return domain.ErrEmailExists
	}
	return nil
}
