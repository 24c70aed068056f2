package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/auth"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CheckoutService interface {
	Checkout(ctx context.Context, principal auth.Principal, shipping domain.Shipping) (*domain.Order, error)
}

type OrderService interface {
	GetOrder(ctx context.Context, principal auth.Principal, id int64) (*domain.Order, error)
	ListForUser(ctx context.Context, principal auth.Principal) ([]domain.OrderSummary, error)
	ListAll(ctx context.Context, principal auth.Principal) ([]domain.OrderSummary, error)
	Transition(ctx context.Context, principal auth.Principal, id int64, status domain.OrderStatus) (domain.OrderSummary, error)
}

type OrdersHandler struct {
	checkout CheckoutService
	orders   OrderService
	timeout  time.Duration
	log      *zap.Logger
}

func NewOrdersHandler(checkout CheckoutService, orders OrderService, timeout time.Duration, log *zap.Logger) *OrdersHandler {
	return &OrdersHandler{
		checkout: checkout,
		orders:   orders,
		timeout:  timeout,
		log:      log,
	}
}

type CheckoutRequestDTO struct {
	Shipping domain.Shipping `json:"shipping"`
}

type CheckoutResponseDTO struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

type UpdateStatusRequestDTO struct {
	Status string `json:"status"`
}

type OrderItemDTO struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   money  `json:"unit_price"`
	Total       money  `json:"total"`
	ImageURL    string `json:"image_url"`
}

type OrderResponseDTO struct {
	ID           int64           `json:"id"`
	CustomerName string          `json:"customer_name"`
	TotalAmount  money           `json:"total_amount"`
	Status       string          `json:"status"`
	Shipping     domain.Shipping `json:"shipping"`
	Items        []OrderItemDTO  `json:"items"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
}

type OrderSummaryDTO struct {
	ID           int64  `json:"id"`
	CustomerName string `json:"customer_name,omitempty"`
	TotalAmount  money  `json:"total_amount"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
	ItemCount    int    `json:"item_count"`
}

func convertOrder(o *domain.Order) OrderResponseDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemDTO{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   money(item.UnitPrice),
			Total:       money(item.LineTotal()),
			ImageURL:    item.ImageURL,
		})
	}
	return OrderResponseDTO{
		ID:           o.ID,
		CustomerName: o.CustomerName,
		TotalAmount:  money(o.TotalAmount),
		Status:       o.Status.String(),
		Shipping:     o.Shipping,
		Items:        items,
		CreatedAt:    o.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    o.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func convertSummary(s domain.OrderSummary, withCustomer bool) OrderSummaryDTO {
	dto := OrderSummaryDTO{
		ID:          s.ID,
		TotalAmount: money(s.TotalAmount),
		Status:      s.Status.String(),
		CreatedAt:   s.CreatedAt.UTC().Format(time.RFC3339),
		ItemCount:   s.ItemCount,
	}
	if withCustomer {
		dto.CustomerName = s.CustomerName
	}
	return dto
}

// POST /api/orders
func (h *OrdersHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	principal := auth.PrincipalFromContext(r.Context())
	if !principal.IsAuthenticated() {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req CheckoutRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	order, err := h.checkout.Checkout(ctx, principal, req.Shipping)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, CheckoutResponseDTO{
		ID:      order.ID,
		Message: "Order placed successfully",
	})
}

// GET /api/orders
// Staff get the fulfillment view of every order, everyone else their own.
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	principal := auth.PrincipalFromContext(r.Context())
	if !principal.IsAuthenticated() {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var (
		list []domain.OrderSummary
		err  error
	)
	if principal.Staff {
		list, err = h.orders.ListAll(ctx, principal)
	} else {
		list, err = h.orders.ListForUser(ctx, principal)
	}
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	dtos := make([]OrderSummaryDTO, 0, len(list))
	for _, s := range list {
		dtos = append(dtos, convertSummary(s, principal.Staff))
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GET /api/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	principal := auth.PrincipalFromContext(r.Context())
	if !principal.IsAuthenticated() {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, principal, orderID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, convertOrder(order))
}

// PUT /api/orders/{order_id}/status
func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	principal := auth.PrincipalFromContext(r.Context())
	if !principal.IsAuthenticated() {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		respondError(w, http.StatusBadRequest, "missing_status", "status is required")
		return
	}
	status, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	summary, err := h.orders.Transition(ctx, principal, orderID, status)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, convertSummary(summary, true))
}

func parseOrderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "order_id"), 10, 64)
	if err != nil || orderID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a positive integer")
		return 0, false
	}
	return orderID, true
}
