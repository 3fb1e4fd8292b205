package domain

import "go-storefront/pkg/errors"

// Domain-specific errors
var (
	ErrNameRequired     = errors.NewValidation("name is required", nil)
	ErrDiscountRange    = errors.NewValidation("discount percentage must be between 0 and 100", nil)
	ErrDurationPositive = errors.NewValidation("duration must be a positive number of days", nil)
	ErrToggleRaceLost   = errors.NewConflict("promotion state changed concurrently")
)

// NewPromotionNotFound creates a not found error with the promotion ID
func NewPromotionNotFound(id uint) error {
	return errors.NewNotFound("promotion", id)
}

// NewAlreadyMember reports a duplicate promotion/product association
func NewAlreadyMember(promotionID, productID uint) error {
	return errors.NewConflictWithDetails("product already belongs to promotion", map[string]interface{}{
		"promotion_id": promotionID,
		"product_id":   productID,
	})
}

// NewNotMember reports a missing promotion/product association
func NewNotMember(promotionID, productID uint) error {
	return &errors.AppError{
		Code:    errors.CodeNotFound,
		Message: "product is not part of the promotion",
		Details: map[string]interface{}{
			"promotion_id": promotionID,
			"product_id":   productID,
		},
	}
}
