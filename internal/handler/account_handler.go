package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/techasaurus/internal/account"
	"github.com/hitoshi/techasaurus/internal/middleware"
	"github.com/hitoshi/techasaurus/internal/model"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// AccountServiceInterface はアカウントハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	UpdatePayment(ctx context.Context, sessionID string, acct model.Account, form account.PaymentForm) (*model.Account, error)
	ClearPayment(ctx context.Context, sessionID string, acct model.Account) (*model.Account, error)
	UpdateAddress(ctx context.Context, sessionID string, acct model.Account, form account.AddressForm) (*model.Account, error)
	ClearAddress(ctx context.Context, sessionID string, acct model.Account) (*model.Account, error)
	ChangePassword(ctx context.Context, sessionID string, acct model.Account, form account.PasswordForm) (*model.Account, error)
	UpdateProfile(ctx context.Context, sessionID string, acct model.Account, form account.ProfileForm) (*model.Account, error)
	Delete(ctx context.Context, acct model.Account) error
	OrderHistory(ctx context.Context, acct model.Account) ([]model.OrderLine, error)
}

// CheckoutHistoryLister はチェックアウト記録の参照に使う。
type CheckoutHistoryLister interface {
	History(ctx context.Context, acct model.Account, limit int) ([]model.CheckoutAudit, error)
}

// UserReviewLister はアカウントが投稿したレビューの参照に使う。
type UserReviewLister interface {
	ListByUser(ctx context.Context, userID int) []model.Review
}

// AccountHandler はログイン中アカウントの管理ハンドラー。
type AccountHandler struct {
	service       AccountServiceInterface
	history       CheckoutHistoryLister
	reviews       UserReviewLister
	cookie        middleware.CookieConfig
	adminUsername string
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(
	service AccountServiceInterface,
	history CheckoutHistoryLister,
	reviews UserReviewLister,
	cookie middleware.CookieConfig,
	adminUsername string,
) *AccountHandler {
	return &AccountHandler{
		service:       service,
		history:       history,
		reviews:       reviews,
		cookie:        cookie,
		adminUsername: adminUsername,
	}
}

// GetAccount は GET /api/account
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	_, acct, ok := currentSession(w, r)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toAccountResponse(acct, h.adminUsername))
}

// UpdatePayment は PUT /api/account/payment
func (h *AccountHandler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	sessionID, acct, ok := currentSession(w, r)
	if !ok {
		return
	}
	var form account.PaymentForm
	if !decodeJSON(w, r, &form) {
		return
	}
	h.writeAccount(w)(h.service.UpdatePayment(r.Context(), sessionID, acct, form))
}

// ClearPayment は DELETE /api/account/payment
func (h *AccountHandler) ClearPayment(w http.ResponseWriter, r *http.Request) {
	sessionID, acct, ok := currentSession(w, r)
	if !ok {
		return
	}
	h.writeAccount(w)(h.service.ClearPayment(r.Context(), sessionID, acct))
}

// UpdateAddress は PUT /api/account/address
func (h *AccountHandler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	sessionID, acct, ok := currentSession(w, r)
	if !ok {
		return
	}
	var form account.AddressForm
	if !decodeJSON(w, r, &form) {
		return
	}
	h.writeAccount(w)(h.service.UpdateAddress(r.Context(), sessionID, acct, form))
}

// ClearAddress は DELETE /api/account/address
func (h *AccountHandler) ClearAddress(w http.ResponseWriter, r *http.Request) {
	sessionID, acct, ok := currentSession(w, r)
	if !ok {
		return
	}
	h.writeAccount(w)(h.service.ClearAddress(r.Context(), sessionID, acct))
}

// ChangePassword は PUT /api/account/password
func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	sessionID, acct, ok := currentSession(w, r)
	if !ok {
		return
	}
	var form account.PasswordForm
	if !decodeJSON(w, r, &form) {
		return
	}
	h.writeAccount(w)(h.service.ChangePassword(r.Context(), sessionID, acct, form))
}

// UpdateProfile は PUT /api/account/profile
func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	sessionID, acct, ok := currentSession(w, r)
	if !ok {
		return
	}
	var form account.ProfileForm
	if !decodeJSON(w, r, &form) {
		return
	}
	h.writeAccount(w)(h.service.UpdateProfile(r.Context(), sessionID, acct, form))
}

// DeleteAccount は DELETE /api/account
// 削除に成功したらセッションCookieも消す。
func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	_, acct, ok := currentSession(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), acct); err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.ClearSessionCookie(w, h.cookie)
	w.WriteHeader(http.StatusNoContent)
}

// OrderHistory は GET /api/account/orders
func (h *AccountHandler) OrderHistory(w http.ResponseWriter, r *http.Request) {
	_, acct, ok := currentSession(w, r)
	if !ok {
		return
	}
	lines, err := h.service.OrderHistory(r.Context(), acct)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, lines)
}

// Reviews は GET /api/account/reviews
func (h *AccountHandler) Reviews(w http.ResponseWriter, r *http.Request) {
	_, acct, ok := currentSession(w, r)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.reviews.ListByUser(r.Context(), acct.ID))
}

// Checkouts は GET /api/account/checkouts?limit=
func (h *AccountHandler) Checkouts(w http.ResponseWriter, r *http.Request) {
	_, acct, ok := currentSession(w, r)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("limit", "must be a positive integer"))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	audits, err := h.history.History(r.Context(), acct, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toCheckoutAuditResponses(audits))
}

// writeAccount はアカウント更新系の結果を書き込む関数を返す。
func (h *AccountHandler) writeAccount(w http.ResponseWriter) func(*model.Account, error) {
	return func(acct *model.Account, err error) {
		if err != nil {
			handleServiceError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, toAccountResponse(*acct, h.adminUsername))
	}
}
