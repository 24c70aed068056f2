package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotAuthenticated = errors.New("authentication required")
	ErrForbidden        = errors.New("access denied")
	ErrNotFound         = errors.New("not found")

	ErrItemNotFound    = fmt.Errorf("item %w in cart", ErrNotFound)
	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)

	ErrEmptyCart          = errors.New("cart is empty")
	ErrInvalidShipping    = errors.New("shipping name, phone and address are required")
	ErrInvalidQuantity    = errors.New("quantity must be at least 1")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrInvalidStatus      = errors.New("unknown order status")
	ErrIllegalTransition  = errors.New("illegal order status transition")

	// ErrCheckoutIncomplete means the order was stored but the cart could not
	// be cleared. Retrying the checkout returns the same order.
	ErrCheckoutIncomplete = errors.New("checkout incomplete, retry")
)
