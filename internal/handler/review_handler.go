package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/techasaurus/internal/middleware"
	"github.com/hitoshi/techasaurus/internal/model"
	"github.com/hitoshi/techasaurus/internal/review"
)

// ReviewServiceInterface はレビューハンドラーが必要とするサービスインターフェース。
type ReviewServiceInterface interface {
	Submit(ctx context.Context, acct model.Account, productID, rating int, body string) (*model.Review, error)
	ListForProduct(ctx context.Context, productID int) *review.ProductReviews
	ListByUser(ctx context.Context, userID int) []model.Review
	Delete(ctx context.Context, acct model.Account, productID, userID int) error
}

// ReviewHandler はレビューのHTTPハンドラー。
type ReviewHandler struct {
	service ReviewServiceInterface
}

// NewReviewHandler はReviewHandlerを生成する。
func NewReviewHandler(service ReviewServiceInterface) *ReviewHandler {
	return &ReviewHandler{service: service}
}

// ListReviews は GET /api/products/{id}/reviews
func (h *ReviewHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.service.ListForProduct(r.Context(), id))
}

type reviewRequest struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

// SubmitReview は POST /api/products/{id}/reviews
func (h *ReviewHandler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	_, acct, ok := currentSession(w, r)
	if !ok {
		return
	}
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var req reviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.service.Submit(r.Context(), acct, id, req.Rating, req.Review)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, created)
}

// DeleteReview は DELETE /api/products/{id}/reviews[?userId=]
// userId を省略した場合は自分のレビューを削除する。
func (h *ReviewHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	_, acct, ok := currentSession(w, r)
	if !ok {
		return
	}
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}

	userID := acct.ID
	if v := r.URL.Query().Get("userId"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
			return
		}
		userID = n
	}

	if err := h.service.Delete(r.Context(), acct, id, userID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
