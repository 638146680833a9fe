package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/techasaurus/internal/cart"
	"github.com/hitoshi/techasaurus/internal/middleware"
	"github.com/hitoshi/techasaurus/internal/model"
)

// CartServiceInterface はカートハンドラーが必要とするサービスインターフェース。
type CartServiceInterface interface {
	View(ctx context.Context, acct model.Account) *cart.View
	Add(ctx context.Context, acct model.Account, productID int, color string) (*cart.View, error)
	Increment(ctx context.Context, acct model.Account, lineID string) (*cart.View, error)
	Decrement(ctx context.Context, acct model.Account, lineID string) (*cart.View, error)
	Remove(ctx context.Context, acct model.Account, lineID string) (*cart.View, error)
}

// CartHandler はカート操作のHTTPハンドラー。
type CartHandler struct {
	service CartServiceInterface
}

// NewCartHandler はCartHandlerを生成する。
func NewCartHandler(service CartServiceInterface) *CartHandler {
	return &CartHandler{service: service}
}

// GetCart は GET /api/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	_, acct, ok := currentSession(w, r)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.service.View(r.Context(), acct))
}

type addToCartRequest struct {
	ProductID int    `json:"productId"`
	Color     string `json:"color"`
}

// AddItem は POST /api/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	_, acct, ok := currentSession(w, r)
	if !ok {
		return
	}
	var req addToCartRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := h.service.Add(r.Context(), acct, req.ProductID, req.Color)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, view)
}

// IncrementItem は POST /api/cart/items/{lineID}/increment
func (h *CartHandler) IncrementItem(w http.ResponseWriter, r *http.Request) {
	h.mutateLine(w, r, h.service.Increment)
}

// DecrementItem は POST /api/cart/items/{lineID}/decrement
func (h *CartHandler) DecrementItem(w http.ResponseWriter, r *http.Request) {
	h.mutateLine(w, r, h.service.Decrement)
}

// RemoveItem は DELETE /api/cart/items/{lineID}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	h.mutateLine(w, r, h.service.Remove)
}

func (h *CartHandler) mutateLine(
	w http.ResponseWriter,
	r *http.Request,
	mutate func(ctx context.Context, acct model.Account, lineID string) (*cart.View, error),
) {
	_, acct, ok := currentSession(w, r)
	if !ok {
		return
	}
	lineID, ok := pathString(w, r, "lineID")
	if !ok {
		return
	}
	view, err := mutate(r.Context(), acct, lineID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, view)
}
