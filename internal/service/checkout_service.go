package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/auth"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"go.uber.org/zap"
)

// CartDrainer is the part of the cart store checkout needs: the current cart
// under the user's exclusion scope, deleted once the order is written.
type CartDrainer interface {
	Drain(ctx context.Context, userID string, fn func(cart *domain.Cart) error) error
}

type CheckoutService struct {
	carts  CartDrainer
	orders repository.OrderRepository
	log    *zap.Logger
}

func NewCheckoutService(carts CartDrainer, orders repository.OrderRepository, log *zap.Logger) *CheckoutService {
	return &CheckoutService{carts: carts, orders: orders, log: log}
}

// Checkout turns the caller's cart into an order and empties the cart.
//
// The order carries the cart's ID and version as idempotency key. When the
// order is stored but the cart cannot be cleared, ErrCheckoutIncomplete is
// returned and the cart is untouched, so a retry maps to the same key and
// returns the stored order instead of creating a second one.
func (s *CheckoutService) Checkout(ctx context.Context, principal auth.Principal, shipping domain.Shipping) (*domain.Order, error) {
	if !principal.IsAuthenticated() {
		return nil, domain.ErrNotAuthenticated
	}
	if err := shipping.Validate(); err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx, s.log).With(zap.String("user_id", principal.UserID))

	var (
		order    *domain.Order
		replayed bool
	)
	err := s.carts.Drain(ctx, principal.UserID, func(cart *domain.Cart) error {
		if cart.IsEmpty() {
			return domain.ErrEmptyCart
		}

		o, err := domain.NewOrder(principal.UserID, principal.Name, cart.Snapshot(), shipping, cart.CheckoutKey())
		if err != nil {
			return err
		}

		err = s.orders.CreateOrder(ctx, o)
		if errors.Is(err, repository.ErrDuplicateCheckout) {
			replayed = true
		} else if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		order = o
		return nil
	})

	if err != nil {
		if order != nil {
			log.Error("order stored but cart not cleared",
				zap.Int64("order_id", order.ID), zap.Error(err))
			return nil, fmt.Errorf("%w: %v", domain.ErrCheckoutIncomplete, err)
		}
		return nil, err
	}

	if replayed {
		log.Info("checkout replayed", zap.Int64("order_id", order.ID))
	} else {
		log.Info("order placed",
			zap.Int64("order_id", order.ID),
			zap.String("total_amount", order.TotalAmount.StringFixed(2)),
			zap.Int("item_count", order.ItemCount()))
	}
	return order, nil
}
