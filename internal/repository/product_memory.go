package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// MemoryProductRepository is a fixed catalog used when no catalog database
// is configured, and in tests.
type MemoryProductRepository struct {
	mu       sync.RWMutex
	products map[int64]*domain.Product
}

func NewMemoryProductRepository(products ...*domain.Product) *MemoryProductRepository {
	r := &MemoryProductRepository{products: make(map[int64]*domain.Product)}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

// DefaultProducts mirrors the seeded SQLite catalog.
func DefaultProducts() []*domain.Product {
	now := time.Now().UTC()
	mk := func(id int64, name, desc, price string, stock int, image string) *domain.Product {
		return &domain.Product{
			ID:          id,
			Name:        name,
			Description: desc,
			Price:       decimal.RequireFromString(price),
			Stock:       stock,
			ImageURL:    image,
			CreatedAt:   now,
		}
	}
	return []*domain.Product{
		mk(1, "UltraBook Pro 14", "14-inch laptop, 16GB RAM, 512GB SSD", "1299.99", 15, "/images/products/ultrabook-pro-14.jpg"),
		mk(2, "Wireless Mouse", "Ergonomic 2.4GHz mouse", "24.99", 120, "/images/products/wireless-mouse.jpg"),
		mk(3, "Mechanical Keyboard", "Hot-swappable switches, RGB", "89.50", 40, "/images/products/mechanical-keyboard.jpg"),
		mk(4, "Noise Cancelling Headphones", "Over-ear, 30h battery", "199.00", 25, "/images/products/nc-headphones.jpg"),
		mk(5, `27" 4K Monitor`, "IPS panel, USB-C", "349.95", 0, "/images/products/monitor-27-4k.jpg"),
		mk(6, "USB-C Hub", "7-in-1 hub with HDMI", "39.90", 75, "/images/products/usb-c-hub.jpg"),
	}
}

func (r *MemoryProductRepository) GetAllProducts(context.Context) ([]*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	products := make([]*domain.Product, 0, len(r.products))
	for _, p := range r.products {
		cp := *p
		products = append(products, &cp)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (r *MemoryProductRepository) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

// SetPrice changes the live price. Existing carts and orders keep theirs.
func (r *MemoryProductRepository) SetPrice(id int64, price decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.products[id]; ok {
		cp := *p
		cp.Price = price
		r.products[id] = &cp
	}
}
