package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/lock"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// maxSaveAttempts bounds re-reads after another process saved the same cart.
const maxSaveAttempts = 3

type CartService struct {
	repo     repository.CartRepository
	cache    cache.CartCache
	products repository.ProductRepository
	locks    *lock.KeyedMutex
	sfg      singleflight.Group // Prevents cache stampede
	log      *zap.Logger
}

// NewCartService wires the cart store. locks must be shared with every other
// component that mutates carts, so checkout and cart edits serialize per user.
func NewCartService(
	repo repository.CartRepository,
	cartCache cache.CartCache,
	products repository.ProductRepository,
	locks *lock.KeyedMutex,
	log *zap.Logger,
) *CartService {
	return &CartService{
		repo:     repo,
		cache:    cartCache,
		products: products,
		locks:    locks,
		log:      log,
	}
}

// GetCart never fails for a missing user or cart; both read as empty.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	if userID == "" {
		return domain.NewCart(""), nil
	}

	cart, err := s.cache.Get(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		logger.FromContext(ctx, s.log).Warn("cache get failed", zap.String("user_id", userID), zap.Error(err))
	}

	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		// filled under the user lock so a concurrent mutation cannot be
		// overwritten by a stale read
		unlock, err := s.locks.Lock(ctx, userID)
		if err != nil {
			return nil, err
		}
		defer unlock()

		cart, err := s.load(ctx, userID)
		if err != nil {
			return nil, err
		}
		if cart.ID != "" {
			if err := s.cache.Set(ctx, userID, cart); err != nil {
				logger.FromContext(ctx, s.log).Warn("cache set failed", zap.String("user_id", userID), zap.Error(err))
			}
		}
		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart).Clone(), nil
}

// AddItem returns the updated cart. A product that cannot be resolved for
// pricing, for any reason, is reported as unavailable.
func (s *CartService) AddItem(ctx context.Context, userID string, productID int64, quantity int) (*domain.Cart, error) {
	if userID == "" {
		return nil, domain.ErrNotAuthenticated
	}
	if quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}

	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		logger.FromContext(ctx, s.log).Info("product lookup failed",
			zap.Int64("product_id", productID), zap.Error(err))
		return nil, fmt.Errorf("%w: product %d", domain.ErrProductUnavailable, productID)
	}

	return s.mutate(ctx, userID, func(cart *domain.Cart) error {
		_, err := cart.AddItem(product, quantity)
		return err
	})
}

// UpdateQuantity removes the line when quantity is zero or negative.
func (s *CartService) UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) (*domain.Cart, error) {
	if userID == "" {
		return nil, domain.ErrNotAuthenticated
	}
	return s.mutate(ctx, userID, func(cart *domain.Cart) error {
		return cart.SetQuantity(itemID, quantity)
	})
}

func (s *CartService) RemoveItem(ctx context.Context, userID, itemID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, domain.ErrNotAuthenticated
	}
	return s.mutate(ctx, userID, func(cart *domain.Cart) error {
		return cart.RemoveItem(itemID)
	})
}

// ClearCart deletes the cart. Clearing a missing cart succeeds.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	if userID == "" {
		return domain.ErrNotAuthenticated
	}
	return s.Drain(ctx, userID, func(*domain.Cart) error { return nil })
}

// Drain runs fn on the current cart under the user's exclusion scope and
// deletes the cart once fn succeeds. If fn fails the cart is left as it was.
// No cart mutation for the same user can interleave with fn.
func (s *CartService) Drain(ctx context.Context, userID string, fn func(cart *domain.Cart) error) error {
	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	cart, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if err := fn(cart.Clone()); err != nil {
		return err
	}
	if cart.ID == "" {
		return nil
	}

	defer s.invalidate(ctx, userID)
	err = s.repo.DeleteCart(ctx, cart)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

// mutate applies change to freshly read state under the user lock. A save
// that loses to another process re-reads and re-applies change.
func (s *CartService) mutate(ctx context.Context, userID string, change func(*domain.Cart) error) (*domain.Cart, error) {
	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	defer s.invalidate(ctx, userID)

	for attempt := 1; ; attempt++ {
		cart, err := s.load(ctx, userID)
		if err != nil {
			return nil, err
		}
		if err := change(cart); err != nil {
			return nil, err
		}

		err = s.repo.SaveCart(ctx, cart)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) || attempt == maxSaveAttempts {
			return nil, fmt.Errorf("save cart: %w", err)
		}
		logger.FromContext(ctx, s.log).Debug("cart version conflict, retrying",
			zap.String("user_id", userID), zap.Int("attempt", attempt))
	}
}

func (s *CartService) load(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.repo.GetCart(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return domain.NewCart(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return cart, nil
}

// invalidate runs while the user lock is still held. It uses its own
// deadline so a cancelled request still clears the entry.
func (s *CartService) invalidate(ctx context.Context, userID string) {
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.cache.Delete(delCtx, userID); err != nil {
		logger.FromContext(ctx, s.log).Warn("cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}
