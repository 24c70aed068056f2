package repository

import (
	"context"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/pkg/circuitbreaker"
	"go.uber.org/zap"
)

// guardedProductRepository stops hammering a failing catalog store. A missing
// product is an answer, not a failure, and never trips the breaker.
type guardedProductRepository struct {
	next ProductRepository
	one  *circuitbreaker.Breaker[*domain.Product]
	all  *circuitbreaker.Breaker[[]*domain.Product]
}

func NewGuardedProductRepository(next ProductRepository, cfg circuitbreaker.Config, log *zap.Logger) ProductRepository {
	cfg.Ignore = append([]error{domain.ErrProductNotFound, context.Canceled}, cfg.Ignore...)
	return &guardedProductRepository{
		next: next,
		one:  circuitbreaker.New[*domain.Product](cfg, log),
		all:  circuitbreaker.New[[]*domain.Product](cfg, log),
	}
}

func (g *guardedProductRepository) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return g.one.Execute(func() (*domain.Product, error) {
		return g.next.GetProduct(ctx, id)
	})
}

func (g *guardedProductRepository) GetAllProducts(ctx context.Context) ([]*domain.Product, error) {
	return g.all.Execute(func() ([]*domain.Product, error) {
		return g.next.GetAllProducts(ctx)
	})
}
