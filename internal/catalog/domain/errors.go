package domain

import "go-storefront/pkg/errors"

// Domain-specific errors
var (
	ErrNameRequired    = errors.NewValidation("name is required", nil)
	ErrNegativePrice   = errors.NewValidation("price cannot be negative", nil)
	ErrNegativeStock   = errors.NewValidation("count in stock cannot be negative", nil)
	ErrRatingRange     = errors.NewValidation("rating must be between 1 and 5", nil)
	ErrCommentRequired = errors.NewValidation("comment is required", nil)
	ErrInvalidQuantity = errors.NewValidation("quantity must be at least 1", nil)
	ErrAlreadyReviewed = errors.NewConflict("product already reviewed")
	ErrPriceRaceLost   = errors.NewConflict("product price changed concurrently")
)

// NewProductNotFound creates a not found error with the product ID
func NewProductNotFound(id uint) error {
	return errors.NewNotFound("product", id)
}
