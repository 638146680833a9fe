// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/techasaurus/internal/auth"
	"github.com/hitoshi/techasaurus/internal/middleware"
	"github.com/hitoshi/techasaurus/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, username, password string) (*auth.ResolvedSession, error)
	Logout(ctx context.Context, sessionID string) error
	SignUp(ctx context.Context, form auth.SignUpForm) (*auth.ResolvedSession, error)
	HasActiveSession(ctx context.Context) (*auth.ActiveSessions, error)
	Accounts(ctx context.Context) ([]model.Account, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	Cookie        middleware.CookieConfig
	SessionMaxAge int // セッションCookieの有効期間（秒）
	AdminUsername string
}

// AuthHandler はログイン・ログアウト・サインアップのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login は店舗APIで認証し、セッションCookieを発行する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resolved, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.SetSessionCookie(w, h.config.Cookie, resolved.Session.ID, h.config.SessionMaxAge)
	middleware.WriteJSON(w, http.StatusOK, toAccountResponse(resolved.Account, h.config.AdminUsername))
}

// Logout はセッションを破棄する。セッションが無くてもCookieは消す。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.service.Logout(r.Context(), cookie.Value); err != nil {
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}

	middleware.ClearSessionCookie(w, h.config.Cookie)
	w.WriteHeader(http.StatusNoContent)
}

// SignUp はアカウントを作成し、そのままログインさせる。
// POST /api/auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var form auth.SignUpForm
	if !decodeJSON(w, r, &form) {
		return
	}

	resolved, err := h.service.SignUp(r.Context(), form)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.SetSessionCookie(w, h.config.Cookie, resolved.Session.ID, h.config.SessionMaxAge)
	middleware.WriteJSON(w, http.StatusCreated, toAccountResponse(resolved.Account, h.config.AdminUsername))
}

// Me はログイン中のアカウントを返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	acct, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toAccountResponse(acct, h.config.AdminUsername))
}

// ListAccounts は管理者向けに全アカウントを返す。
// GET /api/admin/accounts
func (h *AuthHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.Accounts(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toAccountResponses(accounts, h.config.AdminUsername))
}

// ActiveSessions は管理者向けにセッションの概況を返す。
// GET /api/admin/sessions/active
func (h *AuthHandler) ActiveSessions(w http.ResponseWriter, r *http.Request) {
	active, err := h.service.HasActiveSession(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, active)
}
