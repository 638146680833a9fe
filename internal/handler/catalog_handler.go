package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/techasaurus/internal/catalog"
	"github.com/hitoshi/techasaurus/internal/middleware"
	"github.com/hitoshi/techasaurus/internal/model"
)

// CatalogServiceInterface はカタログハンドラーが必要とするサービスインターフェース。
type CatalogServiceInterface interface {
	List(ctx context.Context) []model.Product
	Search(ctx context.Context, term string) []model.Product
	Get(ctx context.Context, id int) (*model.Product, error)
	Colors(ctx context.Context, productID int) []model.Color
	AllColors(ctx context.Context) []model.Color

	Create(ctx context.Context, form catalog.ProductForm) (*model.Product, error)
	Update(ctx context.Context, id int, form catalog.ProductForm) (*model.Product, error)
	Delete(ctx context.Context, id int) error
	AdjustStock(ctx context.Context, id, delta int) (*model.Product, error)
	SetColors(ctx context.Context, id int, names []string) ([]model.Color, error)
	ToggleColor(ctx context.Context, id int, name string) ([]model.Color, error)
	AddCatalogColor(ctx context.Context, name string) ([]model.Color, error)
}

// CatalogHandler は商品閲覧と管理者向け商品編集のHTTPハンドラー。
type CatalogHandler struct {
	service CatalogServiceInterface
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(service CatalogServiceInterface) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// ListProducts は GET /api/products
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.service.List(r.Context()))
}

// SearchProducts は GET /api/products/search?q=
func (h *CatalogHandler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.service.Search(r.Context(), r.URL.Query().Get("q")))
}

// GetProduct は GET /api/products/{id}
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, p)
}

// ProductColors は GET /api/products/{id}/colors
func (h *CatalogHandler) ProductColors(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.service.Colors(r.Context(), id))
}

// AllColors は GET /api/colors
func (h *CatalogHandler) AllColors(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.service.AllColors(r.Context()))
}

// CreateProduct は POST /api/admin/products
func (h *CatalogHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var form catalog.ProductForm
	if !decodeJSON(w, r, &form) {
		return
	}
	p, err := h.service.Create(r.Context(), form)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, p)
}

// UpdateProduct は PUT /api/admin/products/{id}
func (h *CatalogHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var form catalog.ProductForm
	if !decodeJSON(w, r, &form) {
		return
	}
	p, err := h.service.Update(r.Context(), id, form)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, p)
}

// DeleteProduct は DELETE /api/admin/products/{id}
func (h *CatalogHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type stockRequest struct {
	Delta int `json:"delta"`
}

// AdjustStock は PUT /api/admin/products/{id}/stock
func (h *CatalogHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var req stockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.service.AdjustStock(r.Context(), id, req.Delta)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, p)
}

type colorsRequest struct {
	Colors []string `json:"colors"`
}

// SetColors は PUT /api/admin/products/{id}/colors
func (h *CatalogHandler) SetColors(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var req colorsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	colors, err := h.service.SetColors(r.Context(), id, req.Colors)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, colors)
}

type colorRequest struct {
	Color string `json:"color"`
}

// ToggleColor は POST /api/admin/products/{id}/colors/toggle
func (h *CatalogHandler) ToggleColor(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var req colorRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	colors, err := h.service.ToggleColor(r.Context(), id, req.Color)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, colors)
}

// AddCatalogColor は POST /api/admin/colors
func (h *CatalogHandler) AddCatalogColor(w http.ResponseWriter, r *http.Request) {
	var req colorRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	colors, err := h.service.AddCatalogColor(r.Context(), req.Color)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, colors)
}
