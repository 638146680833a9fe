// Package checkout はチェックアウトの状態遷移と在庫確定を提供する。
//
// 状態は Idle → ValidatingPayment → ValidatingAddress → ValidatingStock → Submitting → Done|Failed
// の順に進む。在庫の減算と注文確定は補償付きの一連の処理として実行し、
// 途中で失敗した場合は減算済みの在庫を元に戻して注文確定を呼び出さない。
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/techasaurus/internal/cart"
	"github.com/hitoshi/techasaurus/internal/metrics"
	"github.com/hitoshi/techasaurus/internal/model"
	"github.com/hitoshi/techasaurus/internal/repository"
	"github.com/hitoshi/techasaurus/internal/storeapi"
)

// 未設定のガードで誘導する編集画面。
const (
	RedirectPayment = "payment"
	RedirectAddress = "address"
)

// ResultDone はメトリクスに記録する成功時の結果ラベル。
const ResultDone = "done"

// errCodeInternal は APIError 以外のエラーで終了した場合の記録用コード。
const errCodeInternal = "INTERNAL"

// StoreAPI はチェックアウトが必要とする店舗APIの操作。
type StoreAPI interface {
	GetAccount(ctx context.Context, id int) (*model.Account, error)
	GetCart(ctx context.Context, accountID int) (*model.ShoppingCart, error)
	GetProduct(ctx context.Context, id int) (*model.Product, error)
	UpdateProduct(ctx context.Context, p model.Product) (*model.Product, error)
	PlaceOrder(ctx context.Context, accountID int) (*model.ShoppingCart, error)
}

// Locker はアカウント単位のカート操作ロック。
type Locker interface {
	Lock(ctx context.Context, accountID int) (func(), error)
}

// CacheInvalidator は商品カタログキャッシュの無効化。
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Config はチェックアウトの設定。
type Config struct {
	PollInterval time.Duration // 支払い・住所の入力待ちのポーリング間隔
	PollTimeout  time.Duration // 入力待ちの上限
}

// Options はチェックアウト1回分のオプション。
type Options struct {
	// Await が true の場合、支払い・住所が未設定でも失敗せずに入力を待つ。
	Await bool
}

// Result はチェックアウトの結果。
type Result struct {
	State    model.CheckoutState   `json:"state"`
	Path     []model.CheckoutState `json:"path"`
	Redirect string                `json:"redirect,omitempty"`
	Cart     *cart.View            `json:"cart"`
	Err      error                 `json:"-"`
}

// Service はチェックアウトのビジネスロジックを提供する。
type Service struct {
	store   StoreAPI
	locker  Locker
	audits  repository.CheckoutAuditRepository
	cache   CacheInvalidator
	metrics metrics.MetricsCollector
	config  Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	store StoreAPI,
	locker Locker,
	audits repository.CheckoutAuditRepository,
	cache CacheInvalidator,
	m metrics.MetricsCollector,
	config Config,
	logger *slog.Logger,
) *Service {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{
		store:   store,
		locker:  locker,
		audits:  audits,
		cache:   cache,
		metrics: m,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// run は1回のチェックアウトの状態遷移を追跡する。
type run struct {
	acct      model.Account
	path      []model.CheckoutState
	redirect  string
	itemCount int
	total     float64
}

func (r *run) enter(state model.CheckoutState) {
	r.path = append(r.path, state)
}

// Checkout はアカウントのカートで注文を確定する。
// 成功・失敗のいずれの場合も最後にカートを取得し直して結果に含める。
func (s *Service) Checkout(ctx context.Context, acct model.Account, opts Options) *Result {
	r := &run{acct: acct, path: []model.CheckoutState{model.CheckoutIdle}}

	err := s.execute(ctx, r, opts)

	final := model.CheckoutDone
	if err != nil {
		final = model.CheckoutFailed
	}
	r.enter(final)

	s.finish(ctx, r, final, err)

	return &Result{
		State:    final,
		Path:     r.path,
		Redirect: r.redirect,
		Cart:     s.refetchCart(ctx, acct.ID),
		Err:      err,
	}
}

func (s *Service) execute(ctx context.Context, r *run, opts Options) error {
	// 1. 支払い情報のガード
	r.enter(model.CheckoutValidatingPayment)
	acct, err := s.guard(ctx, r, opts, RedirectPayment,
		func(a model.Account) bool { return a.Payment.IsSet() },
		model.NewPaymentRequiredError,
	)
	if err != nil {
		return err
	}

	// 2. 住所のガード
	r.enter(model.CheckoutValidatingAddress)
	if _, err := s.guard(ctx, r, opts, RedirectAddress,
		func(a model.Account) bool { return a.Address.IsSet() },
		model.NewAddressRequiredError,
	); err != nil {
		return err
	}

	// 3. 在庫の確認。ここから先はカート変更と並行させない
	r.enter(model.CheckoutValidatingStock)
	unlock, err := s.locker.Lock(ctx, acct.ID)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := s.store.GetCart(ctx, acct.ID)
	if err != nil {
		return fmt.Errorf("failed to get cart: %w", err)
	}
	if current.IsEmpty() {
		return model.NewCartEmptyError()
	}
	r.itemCount = current.ItemCount()
	r.total = current.Total()

	reservations, err := s.checkStock(ctx, *current)
	if err != nil {
		return err
	}

	// 4. 在庫の減算と注文確定
	r.enter(model.CheckoutSubmitting)
	return s.commit(ctx, acct.ID, reservations)
}

// guard は支払い・住所が設定済みかを確認する。
// 待機モードでは設定されるまでポーリングし、上限に達した場合は CHECKOUT_TIMEOUT とする。
func (s *Service) guard(
	ctx context.Context,
	r *run,
	opts Options,
	redirect string,
	ready func(model.Account) bool,
	notReady func() *model.APIError,
) (model.Account, error) {
	acct, err := s.store.GetAccount(ctx, r.acct.ID)
	if err != nil {
		return model.Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	if ready(*acct) {
		return *acct, nil
	}

	r.redirect = redirect
	if !opts.Await {
		return model.Account{}, notReady()
	}

	s.logger.Info("awaiting checkout details",
		slog.Int("account_id", r.acct.ID),
		slog.String("field", redirect),
	)
	awaited, err := s.await(ctx, r.acct.ID, ready)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return model.Account{}, model.NewCheckoutTimeoutError()
		}
		return model.Account{}, err
	}
	r.redirect = ""
	return *awaited, nil
}

// await は条件を満たすまでアカウントを一定間隔で取得し直す。
// 呼び出し元のコンテキストと PollTimeout の早い方で打ち切る。
func (s *Service) await(ctx context.Context, accountID int, ready func(model.Account) bool) (*model.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.PollTimeout)
	defer cancel()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			acct, err := s.store.GetAccount(ctx, accountID)
			if err != nil {
				s.logger.Warn("poll account failed",
					slog.Int("account_id", accountID),
					slog.String("error", err.Error()),
				)
				continue
			}
			if ready(*acct) {
				return acct, nil
			}
		}
	}
}

// reservation は商品1件分の減算予定。
type reservation struct {
	product   model.Product
	requested int
}

// checkStock は商品ごとの要求数量と現在の在庫を比較する。
// 同一商品の異なるカラーの行は数量を合算する。
func (s *Service) checkStock(ctx context.Context, c model.ShoppingCart) ([]reservation, error) {
	needs := c.QuantitiesByProduct()

	ids := make([]int, 0, len(needs))
	for id := range needs {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	reservations := make([]reservation, 0, len(ids))
	for _, id := range ids {
		product, err := s.store.GetProduct(ctx, id)
		if err != nil {
			if storeapi.IsNotFound(err) {
				return nil, model.NewProductNotFoundError(id)
			}
			return nil, fmt.Errorf("failed to get product %d: %w", id, err)
		}
		if needs[id] > product.Quantity {
			return nil, model.NewInsufficientStockError(product.Name, needs[id], product.Quantity)
		}
		reservations = append(reservations, reservation{product: *product, requested: needs[id]})
	}
	return reservations, nil
}

// commit は商品ごとに在庫を減算し、全て成功した場合のみ注文を確定する。
func (s *Service) commit(ctx context.Context, accountID int, reservations []reservation) error {
	applied := make([]reservation, 0, len(reservations))

	for _, rsv := range reservations {
		next := rsv.product
		next.Quantity -= rsv.requested
		if _, err := s.store.UpdateProduct(ctx, next); err != nil {
			s.logger.Error("stock decrement failed",
				slog.Int("account_id", accountID),
				slog.Int("product_id", rsv.product.ID),
				slog.String("error", err.Error()),
			)
			s.restore(ctx, accountID, applied)
			return model.NewCheckoutFailedError()
		}
		applied = append(applied, rsv)
	}

	if _, err := s.store.PlaceOrder(ctx, accountID); err != nil {
		s.logger.Error("order clear failed",
			slog.Int("account_id", accountID),
			slog.String("error", err.Error()),
		)
		s.restore(ctx, accountID, applied)
		return model.NewCheckoutFailedError()
	}
	return nil
}

// restore は減算済みの在庫を戻す。
// 最新の在庫に減算分を加算し、取得に失敗した場合は減算前の値を書き戻す。
func (s *Service) restore(ctx context.Context, accountID int, applied []reservation) {
	// 呼び出し元のキャンセルで補償が中断されないようにする
	ctx = context.WithoutCancel(ctx)

	for i := len(applied) - 1; i >= 0; i-- {
		rsv := applied[i]
		next := rsv.product
		if fresh, err := s.store.GetProduct(ctx, rsv.product.ID); err == nil {
			next = *fresh
			next.Quantity += rsv.requested
		}
		if _, err := s.store.UpdateProduct(ctx, next); err != nil {
			s.logger.Error("stock restore failed",
				slog.Int("account_id", accountID),
				slog.Int("product_id", rsv.product.ID),
				slog.Int("quantity", rsv.requested),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.logger.Warn("stock restored",
			slog.Int("account_id", accountID),
			slog.Int("product_id", rsv.product.ID),
			slog.Int("quantity", rsv.requested),
		)
	}
}

// finish は結果の記録・メトリクス・キャッシュ無効化を行う。いずれの失敗も結果には影響しない。
func (s *Service) finish(ctx context.Context, r *run, final model.CheckoutState, err error) {
	ctx = context.WithoutCancel(ctx)

	code := ""
	if err != nil {
		code = errCodeInternal
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			code = apiErr.Code
		}
	}

	result := ResultDone
	if code != "" {
		result = code
	}
	s.metrics.RecordCheckout(result)

	if final == model.CheckoutDone && s.cache != nil {
		if cerr := s.cache.Invalidate(ctx); cerr != nil {
			s.logger.Warn("failed to invalidate catalog cache", slog.String("error", cerr.Error()))
		}
	}

	audit := &model.CheckoutAudit{
		ID:         uuid.New().String(),
		AccountID:  r.acct.ID,
		FinalState: final,
		Path:       r.path,
		ErrorCode:  code,
		ItemCount:  r.itemCount,
		Total:      r.total,
		CreatedAt:  s.now(),
	}
	if aerr := s.audits.Record(ctx, audit); aerr != nil {
		s.logger.Error("failed to record checkout audit",
			slog.Int("account_id", r.acct.ID),
			slog.String("error", aerr.Error()),
		)
	}

	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "checkout finished",
		slog.Int("account_id", r.acct.ID),
		slog.String("state", string(final)),
		slog.String("code", code),
		slog.Int("item_count", r.itemCount),
	)
}

// History はアカウントのチェックアウト記録を新しい順に返す。
func (s *Service) History(ctx context.Context, acct model.Account, limit int) ([]model.CheckoutAudit, error) {
	audits, err := s.audits.ListByAccount(ctx, acct.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkout history: %w", err)
	}
	return audits, nil
}

func (s *Service) refetchCart(ctx context.Context, accountID int) *cart.View {
	c, err := s.store.GetCart(context.WithoutCancel(ctx), accountID)
	if err != nil {
		s.logger.Warn("failed to refetch cart after checkout",
			slog.Int("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return cart.NewView(model.ShoppingCart{})
	}
	return cart.NewView(*c)
}
