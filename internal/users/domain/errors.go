package domain

import "go-storefront/pkg/errors"

// Domain-specific errors
var (
	ErrNameRequired      = errors.NewValidation("name is required", nil)
	ErrNameLength        = errors.NewValidation("name must be between 2 and 100 characters", nil)
	ErrEmailRequired     = errors.NewValidation("email is required", nil)
	ErrEmailInvalid      = errors.NewValidation("email format is invalid", nil)
	ErrPasswordTooShort  = errors.NewValidation("password must be at least 5 characters", nil)
	ErrPasswordTooLong   = errors.NewValidation("password must be at most 72 bytes", nil)
	ErrEmailExists       = errors.NewConflict("email already exists")
	ErrInvalidLogin      = errors.NewUnauthorized("invalid email or password")
	ErrResetTokenInvalid = errors.NewValidation("invalid password reset token", nil)
	ErrResetTokenExpired = errors.NewValidation("password reset token expired", nil)
	ErrAdminUndeletable  = errors.NewValidation("cannot delete admin user", nil)
)

// NewUserNotFound creates a not found error with the user ID
func NewUserNotFound(id uint) error {
	return errors.NewNotFound("user", id)
}

// NewEmailNotFound creates a not found error for an unknown address
func NewEmailNotFound(email string) error {
	return errors.NewNotFound("user", email)
}
