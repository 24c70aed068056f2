package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder(t *testing.T, userID, key string) *domain.Order {
	t.Helper()
	items := []domain.OrderItem{
		{ProductID: 1, ProductName: "Laptop", UnitPrice: decimal.NewFromInt(100), Quantity: 2},
	}
	o, err := domain.NewOrder(userID, "", items, domain.Shipping{Name: "A", Phone: "1", Address: "addr"}, key)
	require.NoError(t, err)
	return o
}

func TestMemoryOrders_CreateAssignsMonotonicIDs(t *testing.T) {
	repo := NewMemoryOrderRepository()
	ctx := context.Background()

	a := newTestOrder(t, "u1", "k1")
	b := newTestOrder(t, "u2", "k2")
	require.NoError(t, repo.CreateOrder(ctx, a))
	require.NoError(t, repo.CreateOrder(ctx, b))

	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, int64(2), b.ID)
}

func TestMemoryOrders_ConcurrentCreatesNeverCollide(t *testing.T) {
	repo := NewMemoryOrderRepository()
	ctx := context.Background()

	const n = 50
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o := newTestOrder(t, fmt.Sprintf("u%d", i), fmt.Sprintf("k%d", i))
			if assert.NoError(t, repo.CreateOrder(ctx, o)) {
				ids <- o.ID
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestMemoryOrders_DuplicateIdempotencyKey(t *testing.T) {
	repo := NewMemoryOrderRepository()
	ctx := context.Background()

	first := newTestOrder(t, "u1", "cart-1:3")
	require.NoError(t, repo.CreateOrder(ctx, first))

	retry := newTestOrder(t, "u1", "cart-1:3")
	err := repo.CreateOrder(ctx, retry)
	assert.ErrorIs(t, err, ErrDuplicateCheckout)
	assert.Equal(t, first.ID, retry.ID)

	all, err := repo.ListOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryOrders_GetOrderByID(t *testing.T) {
	repo := NewMemoryOrderRepository()
	ctx := context.Background()

	o := newTestOrder(t, "u1", "k")
	require.NoError(t, repo.CreateOrder(ctx, o))

	got, err := repo.GetOrderByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.True(t, decimal.NewFromInt(200).Equal(got.TotalAmount))

	_, err = repo.GetOrderByID(ctx, 999)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryOrders_ListNewestFirst(t *testing.T) {
	repo := NewMemoryOrderRepository()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.CreateOrder(ctx, newTestOrder(t, "u1", fmt.Sprintf("a%d", i))))
	}
	require.NoError(t, repo.CreateOrder(ctx, newTestOrder(t, "u2", "b")))

	mine, err := repo.ListOrdersByUserID(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 3)
	assert.Equal(t, int64(3), mine[0].ID)
	assert.Equal(t, int64(1), mine[2].ID)

	none, err := repo.ListOrdersByUserID(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	all, err := repo.ListOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, int64(4), all[0].ID)
}

func TestMemoryOrders_UpdateStatus(t *testing.T) {
	repo := NewMemoryOrderRepository()
	ctx := context.Background()

	o := newTestOrder(t, "u1", "k")
	require.NoError(t, repo.CreateOrder(ctx, o))

	var seenFrom domain.OrderStatus
	updated, err := repo.UpdateStatus(ctx, o.ID, domain.OrderStatusShipped, func(from domain.OrderStatus) error {
		seenFrom = from
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPlaced, seenFrom)
	assert.Equal(t, domain.OrderStatusShipped, updated.Status)
	assert.True(t, o.TotalAmount.Equal(updated.TotalAmount))
	assert.Equal(t, o.Items, updated.Items)
	assert.Equal(t, o.Shipping, updated.Shipping)

	_, err = repo.UpdateStatus(ctx, 999, domain.OrderStatusShipped, nil)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestMemoryOrders_UpdateStatus_CheckRejects(t *testing.T) {
	repo := NewMemoryOrderRepository()
	ctx := context.Background()
	o := newTestOrder(t, "u1", "k")
	require.NoError(t, repo.CreateOrder(ctx, o))

	_, err := repo.UpdateStatus(ctx, o.ID, domain.OrderStatusDelivered, func(domain.OrderStatus) error {
		return domain.ErrIllegalTransition
	})
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	got, err := repo.GetOrderByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPlaced, got.Status)
}

func TestMemoryOrders_Outbox(t *testing.T) {
	repo := NewMemoryOrderRepository()
	ctx := context.Background()

	o := newTestOrder(t, "u1", "k")
	require.NoError(t, repo.CreateOrder(ctx, o))
	_, err := repo.UpdateStatus(ctx, o.ID, domain.OrderStatusProcessing, nil)
	require.NoError(t, err)
	// same status is a no-op and records nothing
	_, err = repo.UpdateStatus(ctx, o.ID, domain.OrderStatusProcessing, nil)
	require.NoError(t, err)

	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventOrderPlaced, events[0].EventType)
	assert.Equal(t, domain.EventOrderStatusChanged, events[1].EventType)
	assert.Less(t, events[0].ID, events[1].ID)

	require.NoError(t, repo.MarkEventAsProcessed(ctx, events[0].ID))
	events, err = repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventOrderStatusChanged, events[0].EventType)

	limited, err := repo.GetUnprocessedEvents(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, limited)
}
