package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Shipping struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

func (s Shipping) Validate() error {
	if strings.TrimSpace(s.Name) == "" ||
		strings.TrimSpace(s.Phone) == "" ||
		strings.TrimSpace(s.Address) == "" {
		return ErrInvalidShipping
	}
	return nil
}

// OrderItem is a frozen copy of a cart line. Later catalog changes never
// reach it.
type OrderItem struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	ImageURL    string          `json:"image_url"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is immutable once created except for Status and UpdatedAt.
type Order struct {
	ID             int64
	UserID         string
	CustomerName   string
	Items          []OrderItem
	TotalAmount    decimal.Decimal
	Shipping       Shipping
	Status         OrderStatus
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type OrderSummary struct {
	ID           int64
	UserID       string
	CustomerName string
	TotalAmount  decimal.Decimal
	Status       OrderStatus
	ItemCount    int
	CreatedAt    time.Time
}

// NewOrder prices the order once from the frozen items. The ledger assigns
// the ID.
func NewOrder(userID, customerName string, items []OrderItem, shipping Shipping, idempotencyKey string) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	if err := shipping.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(customerName) == "" {
		customerName = strings.TrimSpace(shipping.Name)
	}

	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}

	now := time.Now().UTC()
	return &Order{
		UserID:         userID,
		CustomerName:   customerName,
		Items:          items,
		TotalAmount:    total,
		Shipping:       shipping,
		Status:         OrderStatusPlaced,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (o *Order) ItemCount() int {
	return len(o.Items)
}

func (o *Order) Summary() OrderSummary {
	return OrderSummary{
		ID:           o.ID,
		UserID:       o.UserID,
		CustomerName: o.CustomerName,
		TotalAmount:  o.TotalAmount,
		Status:       o.Status,
		ItemCount:    o.ItemCount(),
		CreatedAt:    o.CreatedAt,
	}
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Items = make([]OrderItem, len(o.Items))
	copy(cp.Items, o.Items)
	return &cp
}
