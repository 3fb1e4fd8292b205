package domain

import "go-storefront/pkg/errors"

// Domain-specific errors
var (
	ErrUserIDRequired          = errors.NewValidation("user_id is required", nil)
	ErrNoItems                 = errors.NewValidation("order has no items", nil)
	ErrInvalidQuantity         = errors.NewValidation("quantity must be at least 1", nil)
	ErrNegativePrice           = errors.NewValidation("line price cannot be negative", nil)
	ErrShippingAddressRequired = errors.NewValidation("shipping address, city, postal code and country are required", nil)
	ErrPaymentMethodRequired   = errors.NewValidation("payment method is required", nil)
	ErrOrderExpired            = errors.NewValidation("order has expired", nil)
	ErrNotPaid                 = errors.NewValidation("order is not paid", nil)
	ErrAlreadyDelivered        = errors.NewConflict("order already delivered")
	ErrPaidOrderLocked         = errors.NewValidation("paid orders cannot be cancelled or deleted", nil)
	ErrNotExpired              = errors.NewValidation("only expired orders can be deleted", nil)
	ErrNotOwner                = errors.NewForbidden("order belongs to another user")
)

// NewOrderNotFound creates a not found error with the order ID
func NewOrderNotFound(id uint) error {
	return errors.NewNotFound("order", id)
}

// NewUserNotFoundError creates a validation error for an unknown owner
func NewUserNotFoundError(userID uint) error {
	return errors.NewValidation("user not found", map[string]interface{}{
		"user_id": userID,
	})
}

// NewAlreadyPaid reports a second payment for one order
func NewAlreadyPaid(orderID uint) error {
	return errors.NewConflictWithDetails("order already paid", map[string]interface{}{
		"order_id": orderID,
	})
}

// NewTransactionUsed reports a replayed payment transaction
func NewTransactionUsed(transactionID string) error {
	return errors.NewConflictWithDetails("payment transaction already used", map[string]interface{}{
		"transaction_id": transactionID,
	})
}

// NewAmountMismatch reports a payment that does not cover the order total
func NewAmountMismatch(transactionID, expected, got string) error {
	return &errors.AppError{
		Code:    errors.CodePaymentVerification,
		Message: "paid amount does not match order total",
		Details: map[string]interface{}{
			"transaction_id": transactionID,
			"expected":       expected,
			"paid":           got,
		},
	}
}
