package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/auth"
	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/lock"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type mockCache struct {
	m       sync.RWMutex
	carts   map[string]*domain.Cart
	err     error
	sets    int
	deletes int
}

func newMockCache() *mockCache {
	return &mockCache{carts: make(map[string]*domain.Cart)}
}

func (m *mockCache) Get(_ context.Context, userID string) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	cart, ok := m.carts[userID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return cart.Clone(), nil
}

func (m *mockCache) Set(_ context.Context, userID string, cart *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.sets++
	if m.err != nil {
		return m.err
	}
	m.carts[userID] = cart.Clone()
	return nil
}

func (m *mockCache) Delete(_ context.Context, userID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.deletes++
	delete(m.carts, userID)
	return m.err
}

func (m *mockCache) cached(userID string) *domain.Cart {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.carts[userID]
}

// flakyCartRepo wraps a real store and injects failures.
type flakyCartRepo struct {
	repository.CartRepository

	m         sync.RWMutex
	conflicts int   // SaveCart calls to reject with ErrVersionConflict
	deleteErr error // returned by the next DeleteCart
	saves     int
}

func (f *flakyCartRepo) SaveCart(ctx context.Context, cart *domain.Cart) error {
	f.m.Lock()
	f.saves++
	if f.conflicts > 0 {
		f.conflicts--
		f.m.Unlock()
		return repository.ErrVersionConflict
	}
	f.m.Unlock()
	return f.CartRepository.SaveCart(ctx, cart)
}

func (f *flakyCartRepo) DeleteCart(ctx context.Context, cart *domain.Cart) error {
	f.m.Lock()
	err := f.deleteErr
	f.deleteErr = nil
	f.m.Unlock()
	if err != nil {
		return err
	}
	return f.CartRepository.DeleteCart(ctx, cart)
}

func (f *flakyCartRepo) saveCalls() int {
	f.m.RLock()
	defer f.m.RUnlock()
	return f.saves
}

type testEnv struct {
	carts    *flakyCartRepo
	cache    *mockCache
	products *repository.MemoryProductRepository
	orders   *repository.MemoryOrderRepository
	cart     *CartService
	checkout *CheckoutService
	orderSvc *OrderService
}

func newTestEnv(t *testing.T, policy domain.StatusPolicy) *testEnv {
	t.Helper()
	store := repository.NewMemoryCartRepository(0)
	t.Cleanup(func() { store.Close() })

	env := &testEnv{
		carts: &flakyCartRepo{CartRepository: store},
		cache: newMockCache(),
		products: repository.NewMemoryProductRepository(
			&domain.Product{ID: 1, Name: "Product X", Price: decimal.NewFromInt(100), Stock: 5, CreatedAt: time.Now()},
			&domain.Product{ID: 2, Name: "Product Y", Price: decimal.RequireFromString("19.99"), Stock: 5, CreatedAt: time.Now()},
			&domain.Product{ID: 3, Name: "Sold Out", Price: decimal.NewFromInt(7), Stock: 0, CreatedAt: time.Now()},
		),
		orders: repository.NewMemoryOrderRepository(),
	}
	locks := lock.NewKeyedMutex()
	env.cart = NewCartService(env.carts, env.cache, env.products, locks, zap.NewNop())
	env.checkout = NewCheckoutService(env.cart, env.orders, zap.NewNop())
	env.orderSvc = NewOrderService(env.orders, policy, zap.NewNop())
	return env
}

var (
	alice = auth.Principal{UserID: "alice", Name: "Alice"}
	bob   = auth.Principal{UserID: "bob", Name: "Bob"}
	staff = auth.Principal{UserID: "admin", Name: "Admin", Staff: true}

	validShipping = domain.Shipping{Name: "A", Phone: "1", Address: "addr"}
)
