package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/hitoshi/techasaurus/internal/account"
	"github.com/hitoshi/techasaurus/internal/auth"
	"github.com/hitoshi/techasaurus/internal/cache"
	"github.com/hitoshi/techasaurus/internal/cart"
	"github.com/hitoshi/techasaurus/internal/catalog"
	"github.com/hitoshi/techasaurus/internal/checkout"
	"github.com/hitoshi/techasaurus/internal/config"
	"github.com/hitoshi/techasaurus/internal/database"
	"github.com/hitoshi/techasaurus/internal/handler"
	"github.com/hitoshi/techasaurus/internal/logger"
	"github.com/hitoshi/techasaurus/internal/metrics"
	"github.com/hitoshi/techasaurus/internal/middleware"
	"github.com/hitoshi/techasaurus/internal/repository"
	"github.com/hitoshi/techasaurus/internal/review"
	"github.com/hitoshi/techasaurus/internal/security"
	"github.com/hitoshi/techasaurus/internal/storeapi"
	"github.com/hitoshi/techasaurus/internal/validation"
	"github.com/hitoshi/techasaurus/internal/worker/cleanup"
	"github.com/hitoshi/techasaurus/internal/worker/warm"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再設定
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("store_api_url", cfg.StoreAPIURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(w, cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(context.Background(), db, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newStoreClient は送信側レートリミッタとメトリクスを設定した店舗APIクライアントを生成する。
func newStoreClient(cfg *config.Config, log *slog.Logger, m metrics.MetricsCollector) *storeapi.Client {
	return storeapi.NewClient(
		storeapi.NewHTTPClient(cfg.StoreAPITimeout),
		logger.Component(log, "storeapi"),
		cfg.StoreAPIURL,
		storeapi.WithLimiter(rate.NewLimiter(rate.Limit(cfg.StoreAPIRate), cfg.StoreAPIBurst)),
		storeapi.WithMetrics(m),
	)
}

// newCatalogCache はREDIS_URLが設定されていればRedisキャッシュを、
// 未設定または接続できない場合はキャッシュなしを返す。
func newCatalogCache(ctx context.Context, cfg *config.Config, log *slog.Logger) (cache.CatalogCache, func() error) {
	noop := func() error { return nil }
	if cfg.RedisURL == "" {
		log.Info("catalog cache disabled")
		return cache.NopCatalogCache{}, noop
	}
	c, err := cache.NewRedisCatalogCache(ctx, cfg.RedisURL, cfg.CatalogCacheTTL)
	if err != nil {
		log.Warn("catalog cache unavailable, continuing without cache",
			slog.String("error", err.Error()),
		)
		return cache.NopCatalogCache{}, noop
	}
	log.Info("catalog cache connected", slog.Duration("ttl", cfg.CatalogCacheTTL))
	return c, c.Close
}

// newMetricsRegistry はランタイム系のコレクターを含むレジストリを生成する。
func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// server はAPIサーバーの構成要素。
type server struct {
	handler     http.Handler
	rateLimiter *middleware.RateLimiter
	closeCache  func() error
}

// buildServer は全依存関係をワイヤリングし、HTTPハンドラーを構築する。
func buildServer(ctx context.Context, cfg *config.Config, db *sql.DB, log *slog.Logger, reg *prometheus.Registry) *server {
	collector := metrics.NewCollector(reg)

	// 1. リポジトリ
	sessionRepo := repository.NewPostgresSessionRepo(db)
	auditRepo := repository.NewPostgresCheckoutAuditRepo(db)

	// 2. 外部依存
	store := newStoreClient(cfg, log, collector)
	catalogCache, closeCache := newCatalogCache(ctx, cfg, log)

	// 3. 共通部品
	validate := validation.New()
	sanitizer := security.NewTextSanitizer()
	imageGuard := security.NewImageGuard(cfg.ImageCheckTimeout, cfg.ImageCheckEnabled)

	// 4. ドメインサービス
	authService := auth.NewService(store, sessionRepo, validate,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
		logger.Component(log, "auth"),
	)
	accountService := account.NewService(store, sessionRepo, validate, logger.Component(log, "account"))
	catalogService := catalog.NewService(store, catalogCache, sanitizer, imageGuard, validate, collector,
		logger.Component(log, "catalog"),
	)
	cartService := cart.NewService(store, cfg.AdminUsername, collector, logger.Component(log, "cart"))
	checkoutService := checkout.NewService(store, cartService, auditRepo, catalogCache, collector,
		checkout.Config{
			PollInterval: cfg.CheckoutPollInterval,
			PollTimeout:  cfg.CheckoutPollTimeout,
		},
		logger.Component(log, "checkout"),
	)
	reviewService := review.NewService(store, sanitizer, cfg.AdminUsername, logger.Component(log, "review"))

	// 5. ルーター
	rateLimiter := middleware.NewRateLimiter(
		middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitCheckout),
	)
	httpLogger := logger.Component(log, "http")

	router := handler.NewRouter(&handler.RouterDeps{
		SessionResolver:   authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Cookie: middleware.CookieConfig{
			Secure: cfg.CookieSecure,
			Domain: cfg.CookieDomain,
		},
		RateLimiter:       rateLimiter,
		Logger:            httpLogger,
		LoggingMiddleware: middleware.NewLoggingMiddleware(httpLogger, collector),

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),

		SessionMaxAge: cfg.SessionMaxAge,
		AdminUsername: cfg.AdminUsername,

		AuthService:     authService,
		CatalogService:  catalogService,
		AccountService:  accountService,
		CartService:     cartService,
		CheckoutService: checkoutService,
		CheckoutHistory: checkoutService,
		ReviewService:   reviewService,
	})

	return &server{
		handler:     otelhttp.NewHandler(router, "techasaurus"),
		rateLimiter: rateLimiter,
		closeCache:  closeCache,
	}
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(w io.Writer, cfg *config.Config) error {
	log := slog.Default()

	// 1. トレーシング
	shutdownTracing, err := setupTracing(w, cfg.EnableTracing)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Warn("tracing shutdown failed", slog.String("error", err.Error()))
		}
	}()

	// 2. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("database connection established")

	// 3. ワイヤリング
	srv := buildServer(context.Background(), cfg, db, log, newMetricsRegistry())
	defer srv.rateLimiter.Stop()
	defer srv.closeCache()

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// チェックアウトの入力待ちを含むため書き込みタイムアウトはポーリング上限より長くする
		WriteTimeout: cfg.CheckoutPollTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	log.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れデータのクリーンアップと、カタログキャッシュのウォームアップを実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	log := slog.Default()

	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("database connection established (worker)")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. クリーンアップジョブ（期限切れセッションは店舗API側もログアウトさせる）
	store := newStoreClient(cfg, log, metrics.Nop{})
	cleanupJob := cleanup.NewCleanupJob(db, store, logger.Component(log, "cleanup"), cfg.CheckoutAuditRetention)

	// 3. カタログウォームアップ（キャッシュが無い場合は起動しない）
	catalogCache, closeCache := newCatalogCache(ctx, cfg, log)
	defer closeCache()

	var scheduler *warm.Scheduler
	if _, ok := catalogCache.(cache.NopCatalogCache); !ok {
		catalogService := catalog.NewService(store, catalogCache,
			security.NewTextSanitizer(),
			security.NewImageGuard(cfg.ImageCheckTimeout, false),
			validation.New(),
			metrics.Nop{},
			logger.Component(log, "catalog"),
		)
		scheduler = warm.NewScheduler(catalogService, logger.Component(log, "warm"), cfg.CatalogWarmInterval)
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		log.Info("shutting down worker...")
		cancel()
	}()

	log.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
		slog.Duration("audit_retention", cfg.CheckoutAuditRetention),
		slog.Bool("catalog_warm", scheduler != nil),
	)

	if scheduler != nil {
		go scheduler.Start(ctx)
	}

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx, cfg.SessionCleanupInterval)

	log.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL, logger.Component(slog.Default(), "migrate"))
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(port string) error {
	return checkHealth(fmt.Sprintf("http://localhost:%s/health", port))
}

func checkHealth(url string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
