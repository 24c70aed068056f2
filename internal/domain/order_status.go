package domain

import (
	"fmt"
	"strings"
)

type OrderStatus string

const (
	OrderStatusPlaced     OrderStatus = "Placed"
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusShipped    OrderStatus = "Shipped"
	OrderStatusDelivered  OrderStatus = "Delivered"
	OrderStatusCancelled  OrderStatus = "Cancelled"
	OrderStatusRefunded   OrderStatus = "Refunded"
)

var orderStatuses = []OrderStatus{
	OrderStatusPlaced,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

// fulfillment order for forward moves; cancelled and refunded sit outside it
var fulfillmentRank = map[OrderStatus]int{
	OrderStatusPlaced:     1,
	OrderStatusProcessing: 2,
	OrderStatusShipped:    3,
	OrderStatusDelivered:  4,
}

// ParseOrderStatus matches the canonical names case-insensitively.
func ParseOrderStatus(s string) (OrderStatus, error) {
	s = strings.TrimSpace(s)
	for _, status := range orderStatuses {
		if strings.EqualFold(s, string(status)) {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

func (s OrderStatus) IsValid() bool {
	for _, status := range orderStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled || s == OrderStatusRefunded
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}

// CanTransitionTo reports whether the guarded workflow allows s -> next.
// Staying in place is always allowed.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == next {
		return true
	}
	if s.IsTerminal() {
		return false
	}
	switch next {
	case OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	from, okFrom := fulfillmentRank[s]
	to, okTo := fulfillmentRank[next]
	return okFrom && okTo && to > from
}

// StatusPolicy decides whether staff may move an order from one status to
// another.
type StatusPolicy interface {
	Check(from, to OrderStatus) error
	Name() string
}

// PermissivePolicy accepts any known status from any status.
type PermissivePolicy struct{}

func (PermissivePolicy) Check(_, to OrderStatus) error {
	if !to.IsValid() {
		return ErrInvalidStatus
	}
	return nil
}

func (PermissivePolicy) Name() string { return "permissive" }

// StrictPolicy enforces the fulfillment workflow: forward only, no exits
// from terminal states.
type StrictPolicy struct{}

func (StrictPolicy) Check(from, to OrderStatus) error {
	if !to.IsValid() {
		return ErrInvalidStatus
	}
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}

func (StrictPolicy) Name() string { return "strict" }

func PolicyByName(name string) (StatusPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "permissive":
		return PermissivePolicy{}, nil
	case "strict":
		return StrictPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown order status policy %q", name)
	}
}
