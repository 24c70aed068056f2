package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// MemoryOrderRepository is an in-process ledger with the same guarantees as
// the Postgres one: monotonic ids, unique idempotency keys and an outbox
// written together with each change.
type MemoryOrderRepository struct {
	mu          sync.RWMutex
	nextID      int64
	orders      map[int64]*domain.Order
	byKey       map[string]int64
	nextEventID int64
	outbox      []*domain.OutboxEvent // unpublished only
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders: make(map[int64]*domain.Order),
		byKey:  make(map[string]int64),
	}
}

func (r *MemoryOrderRepository) CreateOrder(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if order.IdempotencyKey != "" {
		if id, ok := r.byKey[order.IdempotencyKey]; ok {
			*order = *r.orders[id].Clone()
			return ErrDuplicateCheckout
		}
	}

	r.nextID++
	order.ID = r.nextID
	order.CreatedAt = time.Now().UTC()
	order.UpdatedAt = order.CreatedAt

	event, err := domain.NewOrderPlacedEvent(order)
	if err != nil {
		r.nextID--
		return err
	}

	r.orders[order.ID] = order.Clone()
	if order.IdempotencyKey != "" {
		r.byKey[order.IdempotencyKey] = order.ID
	}
	r.appendEvent(event)
	return nil
}

func (r *MemoryOrderRepository) GetOrderByID(_ context.Context, id int64) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (r *MemoryOrderRepository) ListOrdersByUserID(_ context.Context, userID string) ([]*domain.Order, error) {
	return r.list(func(o *domain.Order) bool { return o.UserID == userID }), nil
}

func (r *MemoryOrderRepository) ListOrders(_ context.Context) ([]*domain.Order, error) {
	return r.list(func(*domain.Order) bool { return true }), nil
}

func (r *MemoryOrderRepository) list(match func(*domain.Order) bool) []*domain.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	orders := make([]*domain.Order, 0)
	for _, o := range r.orders {
		if match(o) {
			orders = append(orders, o.Clone())
		}
	}
	sortNewestFirst(orders)
	return orders
}

func (r *MemoryOrderRepository) UpdateStatus(_ context.Context, id int64, status domain.OrderStatus, check func(from domain.OrderStatus) error) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	from := order.Status
	if check != nil {
		if err := check(from); err != nil {
			return nil, err
		}
	}
	if from == status {
		return order.Clone(), nil
	}

	updated := order.Clone()
	updated.Status = status
	updated.UpdatedAt = time.Now().UTC()

	event, err := domain.NewStatusChangedEvent(updated, from)
	if err != nil {
		return nil, err
	}
	r.orders[id] = updated
	r.appendEvent(event)
	return updated.Clone(), nil
}

func (r *MemoryOrderRepository) GetUnprocessedEvents(_ context.Context, limit int) ([]*domain.OutboxEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := max(0, min(limit, len(r.outbox)))
	events := make([]*domain.OutboxEvent, 0, n)
	for _, e := range r.outbox[:n] {
		cp := *e
		events = append(events, &cp)
	}
	return events, nil
}

func (r *MemoryOrderRepository) MarkEventAsProcessed(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.outbox {
		if e.ID == id {
			r.outbox = append(r.outbox[:i], r.outbox[i+1:]...)
			break
		}
	}
	return nil
}

func (r *MemoryOrderRepository) appendEvent(e *domain.OutboxEvent) {
	r.nextEventID++
	e.ID = r.nextEventID
	r.outbox = append(r.outbox, e)
}

func sortNewestFirst(orders []*domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
}
