package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"
)

// OutboxEvent is recorded in the same write as the order change it describes
// and published later by the outbox poller.
type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

type orderPlacedPayload struct {
	OrderID     int64           `json:"order_id"`
	UserID      string          `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ItemCount   int             `json:"item_count"`
	Status      OrderStatus     `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

type statusChangedPayload struct {
	OrderID   int64       `json:"order_id"`
	UserID    string      `json:"user_id"`
	From      OrderStatus `json:"from"`
	To        OrderStatus `json:"to"`
	ChangedAt time.Time   `json:"changed_at"`
}

func NewOrderPlacedEvent(o *Order) (*OutboxEvent, error) {
	return newOrderEvent(o, EventOrderPlaced, orderPlacedPayload{
		OrderID:     o.ID,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount,
		ItemCount:   o.ItemCount(),
		Status:      o.Status,
		CreatedAt:   o.CreatedAt,
	})
}

func NewStatusChangedEvent(o *Order, from OrderStatus) (*OutboxEvent, error) {
	return newOrderEvent(o, EventOrderStatusChanged, statusChangedPayload{
		OrderID:   o.ID,
		UserID:    o.UserID,
		From:      from,
		To:        o.Status,
		ChangedAt: o.UpdatedAt,
	})
}

func newOrderEvent(o *Order, eventType string, payload any) (*OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &OutboxEvent{
		AggregateID: strconv.FormatInt(o.ID, 10),
		EventType:   eventType,
		Payload:     data,
		CreatedAt:   time.Now().UTC(),
	}, nil
}
