package repository

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/google/uuid"
)

// CleanupInterval is how often idle carts are swept.
const CleanupInterval = time.Minute

// MemoryCartRepository keeps carts in process memory. Carts untouched for
// longer than the TTL are dropped by a background sweep.
type MemoryCartRepository struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart // userID -> cart
	ttl   time.Duration

	stopCleanup chan struct{}
	wg          sync.WaitGroup
}

func NewMemoryCartRepository(ttl time.Duration) *MemoryCartRepository {
	r := &MemoryCartRepository{
		carts:       make(map[string]*domain.Cart),
		ttl:         ttl,
		stopCleanup: make(chan struct{}),
	}

	if ttl > 0 {
		r.wg.Add(1)
		go r.cleanupLoop()
	}
	return r
}

func (r *MemoryCartRepository) cleanupLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.expireCarts(time.Now())
		case <-r.stopCleanup:
			return
		}
	}
}

func (r *MemoryCartRepository) expireCarts(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	expired := 0
	for userID, cart := range r.carts {
		if now.Sub(cart.UpdatedAt) > r.ttl {
			delete(r.carts, userID)
			expired++
		}
	}
	return expired
}

func (r *MemoryCartRepository) GetCart(_ context.Context, userID string) (*domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.carts[userID]
	if !ok {
		return nil, ErrCartNotFound
	}
	return cart.Clone(), nil
}

func (r *MemoryCartRepository) SaveCart(_ context.Context, cart *domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.carts[cart.UserID]
	if cart.ID == "" {
		if exists {
			return ErrVersionConflict
		}
		cart.ID = uuid.NewString()
	} else if !exists || stored.ID != cart.ID || stored.Version != cart.Version {
		return ErrVersionConflict
	}

	now := time.Now().UTC()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now
	cart.Version++
	r.carts[cart.UserID] = cart.Clone()
	return nil
}

func (r *MemoryCartRepository) DeleteCart(_ context.Context, cart *domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.carts[cart.UserID]
	if !exists {
		return ErrCartNotFound
	}
	if stored.ID != cart.ID || stored.Version != cart.Version {
		return ErrVersionConflict
	}
	delete(r.carts, cart.UserID)
	return nil
}

// Close stops the background cleanup and waits for it to finish
func (r *MemoryCartRepository) Close() error {
	if r.ttl > 0 {
		close(r.stopCleanup)
		r.wg.Wait()
	}
	return nil
}
