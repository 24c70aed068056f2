package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ProductCatalog interface {
	GetAllProducts(ctx context.Context) ([]*domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
}

type ProductHandler struct {
	products ProductCatalog
	timeout  time.Duration
	log      *zap.Logger
}

func NewProductHandler(products ProductCatalog, timeout time.Duration, log *zap.Logger) *ProductHandler {
	return &ProductHandler{
		products: products,
		timeout:  timeout,
		log:      log,
	}
}

type ProductResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       money  `json:"price"`
	Stock       int    `json:"stock"`
	InStock     bool   `json:"in_stock"`
	ImageURL    string `json:"image_url"`
}

func convertProduct(p *domain.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       money(p.Price),
		Stock:       p.Stock,
		InStock:     p.InStock(),
		ImageURL:    p.ImageURL,
	}
}

// GET /api/products
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.products.GetAllProducts(ctx)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	res := make([]ProductResponse, len(products))
	for i, p := range products {
		res[i] = convertProduct(p)
	}
	respondJSON(w, http.StatusOK, res)
}

// GET /api/products/{product_id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}

	product, err := h.products.GetProduct(ctx, productID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, convertProduct(product))
}
