package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/pkg/circuitbreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type flakyProducts struct {
	mu    sync.RWMutex
	err   error
	calls int
}

func (f *flakyProducts) GetAllProducts(context.Context) ([]*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return DefaultProducts(), nil
}

func (f *flakyProducts) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Product{ID: id, Name: "p"}, nil
}

func (f *flakyProducts) Calls() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.calls
}

func guardedConfig() circuitbreaker.Config {
	cfg := circuitbreaker.DefaultConfig("catalog")
	cfg.ConsecutiveFailures = 2
	cfg.OpenTimeout = time.Minute
	return cfg
}

func TestGuardedProducts_OpensAfterFailures(t *testing.T) {
	next := &flakyProducts{err: errors.New("db down")}
	repo := NewGuardedProductRepository(next, guardedConfig(), zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := repo.GetProduct(ctx, 1)
		require.Error(t, err)
	}

	_, err := repo.GetProduct(ctx, 1)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, 2, next.Calls())
}

func TestGuardedProducts_NotFoundDoesNotTrip(t *testing.T) {
	next := &flakyProducts{err: domain.ErrProductNotFound}
	repo := NewGuardedProductRepository(next, guardedConfig(), zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := repo.GetProduct(ctx, 42)
		assert.ErrorIs(t, err, domain.ErrProductNotFound)
	}
	assert.Equal(t, 5, next.Calls())
}

func TestGuardedProducts_PassesThrough(t *testing.T) {
	repo := NewGuardedProductRepository(&flakyProducts{}, guardedConfig(), zap.NewNop())

	products, err := repo.GetAllProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 6)

	p, err := repo.GetProduct(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.ID)
}
