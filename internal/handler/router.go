package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/techasaurus/internal/middleware"
)

// HealthChecker はヘルスチェックで依存先の疎通を確認する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionResolver   middleware.SessionResolver
	CORSAllowedOrigin string
	Cookie            middleware.CookieConfig
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	LoggingMiddleware func(http.Handler) http.Handler

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	SessionMaxAge int
	AdminUsername string

	AuthService     AuthServiceInterface
	CatalogService  CatalogServiceInterface
	AccountService  AccountServiceInterface
	CartService     CartServiceInterface
	CheckoutService CheckoutServiceInterface
	CheckoutHistory CheckoutHistoryLister
	ReviewService   ReviewServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// /api 配下のミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Session → Logging → RateLimit(General) → CSRF
//
// /health と /metrics はミドルウェアチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	authHandler := NewAuthHandler(deps.AuthService, AuthHandlerConfig{
		Cookie:        deps.Cookie,
		SessionMaxAge: deps.SessionMaxAge,
		AdminUsername: deps.AdminUsername,
	})
	catalogHandler := NewCatalogHandler(deps.CatalogService)
	accountHandler := NewAccountHandler(deps.AccountService, deps.CheckoutHistory, deps.ReviewService, deps.Cookie, deps.AdminUsername)
	cartHandler := NewCartHandler(deps.CartService)
	checkoutHandler := NewCheckoutHandler(deps.CheckoutService)
	reviewHandler := NewReviewHandler(deps.ReviewService)

	requireAccount := middleware.RequireAccount()
	limitCheckout := deps.RateLimiter.CheckoutMiddleware()

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
		r.Use(middleware.NewSessionMiddleware(deps.SessionResolver, logger))
		if deps.LoggingMiddleware != nil {
			r.Use(deps.LoggingMiddleware)
		}
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.Cookie))

		r.Get("/csrf-token", middleware.NewCSRFTokenHandler(deps.Cookie).ServeHTTP)

		// 認証
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.With(limitCheckout).Post("/signup", authHandler.SignUp)
			r.Get("/me", authHandler.Me)
		})

		// カタログ（ログイン不要）
		r.Get("/colors", catalogHandler.AllColors)
		r.Route("/products", func(r chi.Router) {
			r.Get("/", catalogHandler.ListProducts)
			r.Get("/search", catalogHandler.SearchProducts)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", catalogHandler.GetProduct)
				r.Get("/colors", catalogHandler.ProductColors)
				r.Get("/reviews", reviewHandler.ListReviews)
				r.With(requireAccount).Post("/reviews", reviewHandler.SubmitReview)
				r.With(requireAccount).Delete("/reviews", reviewHandler.DeleteReview)
			})
		})

		// ログイン必須
		r.Group(func(r chi.Router) {
			r.Use(requireAccount)

			r.Route("/account", func(r chi.Router) {
				r.Get("/", accountHandler.GetAccount)
				r.Delete("/", accountHandler.DeleteAccount)
				r.Put("/payment", accountHandler.UpdatePayment)
				r.Delete("/payment", accountHandler.ClearPayment)
				r.Put("/address", accountHandler.UpdateAddress)
				r.Delete("/address", accountHandler.ClearAddress)
				r.Put("/password", accountHandler.ChangePassword)
				r.Put("/profile", accountHandler.UpdateProfile)
				r.Get("/orders", accountHandler.OrderHistory)
				r.Get("/reviews", accountHandler.Reviews)
				r.Get("/checkouts", accountHandler.Checkouts)
			})

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartHandler.GetCart)
				r.Post("/items", cartHandler.AddItem)
				r.Post("/items/{lineID}/increment", cartHandler.IncrementItem)
				r.Post("/items/{lineID}/decrement", cartHandler.DecrementItem)
				r.Delete("/items/{lineID}", cartHandler.RemoveItem)
			})

			r.With(limitCheckout).Post("/checkout", checkoutHandler.Checkout)
		})

		// 管理者
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(deps.AdminUsername))

			r.Post("/products", catalogHandler.CreateProduct)
			r.Route("/products/{id}", func(r chi.Router) {
				r.Put("/", catalogHandler.UpdateProduct)
				r.Delete("/", catalogHandler.DeleteProduct)
				r.Put("/stock", catalogHandler.AdjustStock)
				r.Put("/colors", catalogHandler.SetColors)
				r.Post("/colors/toggle", catalogHandler.ToggleColor)
			})
			r.Post("/colors", catalogHandler.AddCatalogColor)
			r.Get("/accounts", authHandler.ListAccounts)
			r.Get("/sessions/active", authHandler.ActiveSessions)
		})
	})

	return r
}

// healthHandler は GET /health のハンドラーを返す。
// DBに疎通できない場合は503を返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
