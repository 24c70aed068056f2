package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

var (
	ErrCartNotFound      = errors.New("cart not found")
	ErrVersionConflict   = errors.New("cart was modified concurrently")
	ErrOrderNotFound     = fmt.Errorf("order %w", domain.ErrNotFound)
	ErrDuplicateCheckout = errors.New("order for this checkout already exists")
)

// CartRepository stores one cart per user with optimistic versioning.
// Consumers define this interface, not the MongoDB implementation
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	// SaveCart writes cart if the stored copy still has cart.Version (or
	// does not exist yet when cart.ID is empty). On success the cart gets an
	// ID if it had none and its Version is incremented.
	SaveCart(ctx context.Context, cart *domain.Cart) error
	// DeleteCart removes the cart if ID and Version still match.
	DeleteCart(ctx context.Context, cart *domain.Cart) error
}

// OrderRepository is the order ledger. Orders are append-only; only the
// status changes after creation.
type OrderRepository interface {
	// CreateOrder assigns the order ID. When an order with the same
	// idempotency key exists, order is overwritten with the stored one and
	// ErrDuplicateCheckout is returned.
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByID(ctx context.Context, id int64) (*domain.Order, error)
	ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error)
	ListOrders(ctx context.Context) ([]*domain.Order, error)
	// UpdateStatus runs check against the current status and writes the new
	// one atomically with respect to other updates of the same order.
	UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus, check func(from domain.OrderStatus) error) (*domain.Order, error)

	GetUnprocessedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

type ProductRepository interface {
	GetAllProducts(ctx context.Context) ([]*domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
}
