package repository

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCartStore(t *testing.T) *MemoryCartRepository {
	store := NewMemoryCartRepository(time.Hour)
	t.Cleanup(func() { store.Close() })
	return store
}

func cartWithItem(userID string) *domain.Cart {
	c := domain.NewCart(userID)
	_, _ = c.AddItem(&domain.Product{ID: 1, Name: "Laptop", Price: decimal.NewFromInt(100)}, 2)
	return c
}

func TestMemoryCart_GetCart_NotFound(t *testing.T) {
	store := setupCartStore(t)
	cart, err := store.GetCart(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrCartNotFound)
	assert.Nil(t, cart)
}

func TestMemoryCart_SaveNewCart_AssignsIDAndVersion(t *testing.T) {
	store := setupCartStore(t)
	ctx := context.Background()

	cart := cartWithItem("u1")
	require.NoError(t, store.SaveCart(ctx, cart))
	assert.NotEmpty(t, cart.ID)
	assert.Equal(t, int64(1), cart.Version)

	got, err := store.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, cart.ID, got.ID)
	assert.Equal(t, int64(1), got.Version)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 2, got.Items[0].Quantity)
}

func TestMemoryCart_SaveStaleVersion_Conflicts(t *testing.T) {
	store := setupCartStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCart(ctx, cartWithItem("u1")))

	a, err := store.GetCart(ctx, "u1")
	require.NoError(t, err)
	b, err := store.GetCart(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, store.SaveCart(ctx, a))
	assert.ErrorIs(t, store.SaveCart(ctx, b), ErrVersionConflict)

	// second fresh cart for the same user also conflicts
	assert.ErrorIs(t, store.SaveCart(ctx, cartWithItem("u1")), ErrVersionConflict)
}

func TestMemoryCart_ReturnedCartIsACopy(t *testing.T) {
	store := setupCartStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveCart(ctx, cartWithItem("u1")))

	got, err := store.GetCart(ctx, "u1")
	require.NoError(t, err)
	got.Items[0].Quantity = 99

	again, err := store.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, again.Items[0].Quantity)
}

func TestMemoryCart_DeleteCart(t *testing.T) {
	store := setupCartStore(t)
	ctx := context.Background()

	cart := cartWithItem("u1")
	require.NoError(t, store.SaveCart(ctx, cart))

	stale := cart.Clone()
	stale.Version--
	assert.ErrorIs(t, store.DeleteCart(ctx, stale), ErrVersionConflict)

	require.NoError(t, store.DeleteCart(ctx, cart))
	assert.ErrorIs(t, store.DeleteCart(ctx, cart), ErrCartNotFound)

	_, err := store.GetCart(ctx, "u1")
	assert.ErrorIs(t, err, ErrCartNotFound)
}

func TestMemoryCart_NewCartAfterDeleteGetsNewID(t *testing.T) {
	store := setupCartStore(t)
	ctx := context.Background()

	first := cartWithItem("u1")
	require.NoError(t, store.SaveCart(ctx, first))
	require.NoError(t, store.DeleteCart(ctx, first))

	second := cartWithItem("u1")
	require.NoError(t, store.SaveCart(ctx, second))
	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.CheckoutKey(), second.CheckoutKey())
}

func TestMemoryCart_ExpireIdleCarts(t *testing.T) {
	store := setupCartStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCart(ctx, cartWithItem("old")))
	require.NoError(t, store.SaveCart(ctx, cartWithItem("fresh")))

	expired := store.expireCarts(time.Now().Add(2 * time.Hour))
	assert.Equal(t, 2, expired)

	require.NoError(t, store.SaveCart(ctx, cartWithItem("fresh")))
	assert.Equal(t, 0, store.expireCarts(time.Now()))
	_, err := store.GetCart(ctx, "fresh")
	assert.NoError(t, err)
	_, err = store.GetCart(ctx, "old")
	assert.ErrorIs(t, err, ErrCartNotFound)
}

func TestMemoryCart_CloseWithoutTTL(t *testing.T) {
	store := NewMemoryCartRepository(0)
	assert.NoError(t, store.Close())
}
