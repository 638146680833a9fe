// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/techasaurus/internal/auth"
	"github.com/hitoshi/techasaurus/internal/model"
)

// SessionCookieName はストアフロントセッションIDを保持するCookieの名前。
const SessionCookieName = "techasaurus_session"

type contextKey string

var sessionContextKey = contextKey("storefront_session")

// SessionResolver はCookieのセッションIDからログイン中アカウントを解決する。
// auth.Service が実装する。
type SessionResolver interface {
	Resolve(ctx context.Context, sessionID string) (*auth.ResolvedSession, error)
}

// CookieConfig はCookie発行時の属性。
type CookieConfig struct {
	Secure bool
	Domain string
}

// NewSessionMiddleware はCookieからセッションを読み込み、リクエストコンテキストに注入する。
// セッションが無い・失効している・解決に失敗した場合は匿名として後続に渡す。
// 認証の要否は RequireAccount / RequireAdmin で判断する。
func NewSessionMiddleware(resolver SessionResolver, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			resolved, err := resolver.Resolve(r.Context(), cookie.Value)
			if err != nil {
				logger.Error("failed to resolve session",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if resolved == nil {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), resolved)))
		})
	}
}

// RequireAccount はログイン済みでないリクエストを401で拒否する。
func RequireAccount() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := AccountFromContext(r.Context()); !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin は管理者アカウント以外のリクエストを拒否する。
// 未ログインは401、一般アカウントは403。
func RequireAdmin(adminUsername string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acct, ok := AccountFromContext(r.Context())
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if !acct.IsAdmin(adminUsername) {
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionFromContext はコンテキストから解決済みセッションを取得する。
func SessionFromContext(ctx context.Context) (*auth.ResolvedSession, bool) {
	resolved, ok := ctx.Value(sessionContextKey).(*auth.ResolvedSession)
	if !ok || resolved == nil || resolved.Session == nil {
		return nil, false
	}
	return resolved, true
}

// AccountFromContext はコンテキストからログイン中アカウントを取得する。
func AccountFromContext(ctx context.Context) (model.Account, bool) {
	resolved, ok := SessionFromContext(ctx)
	if !ok {
		return model.Account{}, false
	}
	return resolved.Account, true
}

// ContextWithSession はコンテキストに解決済みセッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, resolved *auth.ResolvedSession) context.Context {
	return context.WithValue(ctx, sessionContextKey, resolved)
}

// SetSessionCookie はセッションCookieを発行する。
func SetSessionCookie(w http.ResponseWriter, config CookieConfig, sessionID string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie はセッションCookieを失効させる。
func ClearSessionCookie(w http.ResponseWriter, config CookieConfig) {
	SetSessionCookie(w, config, "", -1)
}
