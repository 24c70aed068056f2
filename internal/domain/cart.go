package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Cart struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Items     []CartItem `json:"items"`
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type CartItem struct {
	ID          string          `json:"id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	ImageURL    string          `json:"image_url"`
	AddedAt     time.Time       `json:"added_at"`
}

func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// NewCart returns an empty, not yet persisted cart.
func NewCart(userID string) *Cart {
	now := time.Now().UTC()
	return &Cart{
		UserID:    userID,
		Items:     []CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Total is always derived from the items.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// AddItem merges into an existing line for the same product, keeping that
// line's price snapshot, or appends a new line priced from p.
func (c *Cart) AddItem(p *Product, quantity int) (*CartItem, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	now := time.Now().UTC()
	c.UpdatedAt = now

	for i := range c.Items {
		if c.Items[i].ProductID == p.ID {
			c.Items[i].Quantity += quantity
			return &c.Items[i], nil
		}
	}

	c.Items = append(c.Items, CartItem{
		ID:          uuid.NewString(),
		ProductID:   p.ID,
		ProductName: p.Name,
		UnitPrice:   p.Price,
		Quantity:    quantity,
		ImageURL:    p.ImageURL,
		AddedAt:     now,
	})
	return &c.Items[len(c.Items)-1], nil
}

// SetQuantity removes the line when quantity drops to zero or below.
func (c *Cart) SetQuantity(itemID string, quantity int) error {
	idx := c.indexOf(itemID)
	if idx < 0 {
		return ErrItemNotFound
	}
	if quantity <= 0 {
		c.removeAt(idx)
		return nil
	}
	c.Items[idx].Quantity = quantity
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (c *Cart) RemoveItem(itemID string) error {
	idx := c.indexOf(itemID)
	if idx < 0 {
		return ErrItemNotFound
	}
	c.removeAt(idx)
	return nil
}

// Snapshot freezes the current lines into order items.
func (c *Cart) Snapshot() []OrderItem {
	items := make([]OrderItem, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			ImageURL:    item.ImageURL,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
		})
	}
	return items
}

// CheckoutKey identifies this exact cart state. A new cart gets a new ID and
// every save bumps the version.
func (c *Cart) CheckoutKey() string {
	return c.ID + ":" + strconv.FormatInt(c.Version, 10)
}

func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Items = make([]CartItem, len(c.Items))
	copy(cp.Items, c.Items)
	return &cp
}

func (c *Cart) indexOf(itemID string) int {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(idx int) {
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	c.UpdatedAt = time.Now().UTC()
}
