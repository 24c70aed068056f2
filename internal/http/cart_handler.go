package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/auth"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CartService interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	AddItem(ctx context.Context, userID string, productID int64, quantity int) (*domain.Cart, error)
	UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, userID, itemID string) (*domain.Cart, error)
}

type CartHandler struct {
	carts   CartService
	timeout time.Duration
	log     *zap.Logger
}

func NewCartHandler(carts CartService, timeout time.Duration, log *zap.Logger) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
		log:     log,
	}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  *int  `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity"`
}

type CartItemDTO struct {
	ID          string `json:"id"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Price       money  `json:"price"`
	Quantity    int    `json:"quantity"`
	ImageURL    string `json:"image_url"`
}

type CartResponseDTO struct {
	Items []CartItemDTO `json:"items"`
	Total money         `json:"total"`
}

func convertCart(c *domain.Cart) CartResponseDTO {
	items := make([]CartItemDTO, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, CartItemDTO{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Price:       money(item.UnitPrice),
			Quantity:    item.Quantity,
			ImageURL:    item.ImageURL,
		})
	}
	return CartResponseDTO{Items: items, Total: money(c.Total())}
}

// GET /api/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	// anonymous callers get an empty cart
	principal := auth.PrincipalFromContext(r.Context())
	cart, err := h.carts.GetCart(ctx, principal.UserID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, convertCart(cart))
}

// POST /api/cart
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	principal := auth.PrincipalFromContext(r.Context())
	if !principal.IsAuthenticated() {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	cart, err := h.carts.AddItem(ctx, principal.UserID, req.ProductID, quantity)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, convertCart(cart))
}

// PUT /api/cart/{item_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	principal := auth.PrincipalFromContext(r.Context())
	if !principal.IsAuthenticated() {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		respondError(w, http.StatusBadRequest, "missing_quantity", "quantity is required")
		return
	}

	cart, err := h.carts.UpdateQuantity(ctx, principal.UserID, chi.URLParam(r, "item_id"), *req.Quantity)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, convertCart(cart))
}

// DELETE /api/cart/{item_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	principal := auth.PrincipalFromContext(r.Context())
	if !principal.IsAuthenticated() {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	cart, err := h.carts.RemoveItem(ctx, principal.UserID, chi.URLParam(r, "item_id"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, convertCart(cart))
}
