package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a read-only catalog entry. Price is the live price; carts and
// orders keep their own copies.
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	ImageURL    string
	CreatedAt   time.Time
}

func (p *Product) InStock() bool {
	return p.Stock > 0
}
