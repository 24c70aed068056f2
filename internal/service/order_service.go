package service

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/storefront/internal/auth"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"go.uber.org/zap"
)

type OrderService struct {
	orders repository.OrderRepository
	policy domain.StatusPolicy
	log    *zap.Logger
}

func NewOrderService(orders repository.OrderRepository, policy domain.StatusPolicy, log *zap.Logger) *OrderService {
	if policy == nil {
		policy = domain.PermissivePolicy{}
	}
	return &OrderService{orders: orders, policy: policy, log: log}
}

// GetOrder returns full detail to the owner or to staff.
func (s *OrderService) GetOrder(ctx context.Context, principal auth.Principal, id int64) (*domain.Order, error) {
	if !principal.IsAuthenticated() {
		return nil, domain.ErrNotAuthenticated
	}
	order, err := s.orders.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != principal.UserID && !principal.Staff {
		return nil, domain.ErrForbidden
	}
	return order, nil
}

// ListForUser returns the caller's orders, newest first.
func (s *OrderService) ListForUser(ctx context.Context, principal auth.Principal) ([]domain.OrderSummary, error) {
	if !principal.IsAuthenticated() {
		return nil, domain.ErrNotAuthenticated
	}
	orders, err := s.orders.ListOrdersByUserID(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}
	return summaries(orders), nil
}

// ListAll is the staff fulfillment view.
func (s *OrderService) ListAll(ctx context.Context, principal auth.Principal) ([]domain.OrderSummary, error) {
	if !principal.IsAuthenticated() {
		return nil, domain.ErrNotAuthenticated
	}
	if !principal.Staff {
		return nil, domain.ErrForbidden
	}
	orders, err := s.orders.ListOrders(ctx)
	if err != nil {
		return nil, err
	}
	return summaries(orders), nil
}

// Transition sets a new status. Only status and updated_at change.
func (s *OrderService) Transition(ctx context.Context, principal auth.Principal, id int64, status domain.OrderStatus) (domain.OrderSummary, error) {
	if !principal.IsAuthenticated() {
		return domain.OrderSummary{}, domain.ErrNotAuthenticated
	}
	if !principal.Staff {
		return domain.OrderSummary{}, domain.ErrForbidden
	}

	var from domain.OrderStatus
	order, err := s.orders.UpdateStatus(ctx, id, status, func(current domain.OrderStatus) error {
		from = current
		return s.policy.Check(current, status)
	})
	if err != nil {
		if errors.Is(err, domain.ErrIllegalTransition) {
			logger.FromContext(ctx, s.log).Info("status transition rejected",
				zap.Int64("order_id", id),
				zap.String("policy", s.policy.Name()),
				zap.Error(err))
		}
		return domain.OrderSummary{}, err
	}

	logger.FromContext(ctx, s.log).Info("order status changed",
		zap.Int64("order_id", id),
		zap.Stringer("from", from),
		zap.Stringer("to", order.Status),
		zap.String("staff_id", principal.UserID))
	return order.Summary(), nil
}

func summaries(orders []*domain.Order) []domain.OrderSummary {
	out := make([]domain.OrderSummary, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.Summary())
	}
	return out
}
