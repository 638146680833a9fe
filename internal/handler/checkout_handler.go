package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/techasaurus/internal/cart"
	"github.com/hitoshi/techasaurus/internal/checkout"
	"github.com/hitoshi/techasaurus/internal/middleware"
	"github.com/hitoshi/techasaurus/internal/model"
)

// CheckoutServiceInterface はチェックアウトハンドラーが必要とするサービスインターフェース。
type CheckoutServiceInterface interface {
	Checkout(ctx context.Context, acct model.Account, opts checkout.Options) *checkout.Result
}

// CheckoutHandler はチェックアウトのHTTPハンドラー。
type CheckoutHandler struct {
	service CheckoutServiceInterface
}

// NewCheckoutHandler はCheckoutHandlerを生成する。
func NewCheckoutHandler(service CheckoutServiceInterface) *CheckoutHandler {
	return &CheckoutHandler{service: service}
}

// checkoutResponse はチェックアウト結果のレスポンス。
// 失敗時は error に統一エラーフォーマットの内容が入る。
type checkoutResponse struct {
	State    model.CheckoutState           `json:"state"`
	Path     []model.CheckoutState         `json:"path"`
	Redirect string                        `json:"redirect,omitempty"`
	Cart     *cart.View                    `json:"cart"`
	Error    *middleware.ErrorResponseBody `json:"error,omitempty"`
}

// Checkout は POST /api/checkout[?await=true]
// 成功は200、失敗はエラーコードに応じたステータスで、いずれも最新のカートを含める。
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	_, acct, ok := currentSession(w, r)
	if !ok {
		return
	}

	await, _ := strconv.ParseBool(r.URL.Query().Get("await"))
	result := h.service.Checkout(r.Context(), acct, checkout.Options{Await: await})

	resp := checkoutResponse{
		State:    result.State,
		Path:     result.Path,
		Redirect: result.Redirect,
		Cart:     result.Cart,
	}
	status := http.StatusOK
	if result.Err != nil {
		var apiErr *model.APIError
		status, apiErr = resolveError(result.Err)
		resp.Error = &middleware.ErrorResponseBody{
			Code:     apiErr.Code,
			Message:  apiErr.Message,
			Category: apiErr.Category,
			Action:   apiErr.Action,
		}
	}
	middleware.WriteJSON(w, status, resp)
}
