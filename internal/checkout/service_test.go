package checkout

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/techasaurus/internal/model"
	"github.com/hitoshi/techasaurus/internal/storeapi"
)

// --- モック定義 ---

type fakeStore struct {
	mu       sync.Mutex
	account  model.Account
	cart     model.ShoppingCart
	products map[int]model.Product

	// accountAfter 回目以降の GetAccount で account を置き換える
	accountAfter  int
	nextAccount   model.Account
	accountCalls  int
	failUpdateFor map[int]bool
	placeOrderErr error

	updates      []model.Product
	placeOrders  int
	getCartCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		account: model.Account{
			ID:       7,
			Username: "rex",
			Payment:  model.Payment{CardHolder: "Rex Saur"},
			Address:  model.Address{City: "Austin"},
		},
		cart: model.ShoppingCart{
			Products:   []model.Product{{ID: 1, Name: "Mouse", Price: 20}, {ID: 2, Name: "Mic", Price: 50}, {ID: 1, Name: "Mouse", Price: 20}},
			Colors:     []model.Color{{Name: "Red"}, {Name: "Black"}, {Name: "Blue"}},
			Quantities: []int{1, 2, 1},
		},
		products: map[int]model.Product{
			1: {ID: 1, Name: "Mouse", Price: 20, Quantity: 5},
			2: {ID: 2, Name: "Mic", Price: 50, Quantity: 2},
		},
		failUpdateFor: map[int]bool{},
	}
}

func (f *fakeStore) GetAccount(_ context.Context, _ int) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accountCalls++
	if f.accountAfter > 0 && f.accountCalls >= f.accountAfter {
		f.account = f.nextAccount
	}
	a := f.account
	return &a, nil
}

func (f *fakeStore) GetCart(_ context.Context, _ int) (*model.ShoppingCart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCartCalls++
	c := f.cart
	return &c, nil
}

func (f *fakeStore) GetProduct(_ context.Context, id int) (*model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, &storeapi.StatusError{Operation: "get_product", StatusCode: http.StatusNotFound}
	}
	return &p, nil
}

func (f *fakeStore) UpdateProduct(_ context.Context, p model.Product) (*model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, p)
	if f.failUpdateFor[p.ID] {
		return nil, errors.New("update failed")
	}
	f.products[p.ID] = p
	return &p, nil
}

func (f *fakeStore) PlaceOrder(_ context.Context, _ int) (*model.ShoppingCart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placeOrders++
	if f.placeOrderErr != nil {
		return nil, f.placeOrderErr
	}
	f.cart = model.ShoppingCart{}
	return &f.cart, nil
}

type noopLocker struct{ locked int }

func (l *noopLocker) Lock(context.Context, int) (func(), error) {
	l.locked++
	return func() {}, nil
}

type memAudits struct {
	records []model.CheckoutAudit
}

func (m *memAudits) Record(_ context.Context, a *model.CheckoutAudit) error {
	m.records = append(m.records, *a)
	return nil
}

func (m *memAudits) ListByAccount(_ context.Context, accountID, limit int) ([]model.CheckoutAudit, error) {
	var out []model.CheckoutAudit
	for _, a := range m.records {
		if a.AccountID == accountID {
			out = append(out, a)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type countingCache struct{ invalidations int }

func (c *countingCache) Invalidate(context.Context) error {
	c.invalidations++
	return nil
}

type recordingMetrics struct{ results []string }

func (m *recordingMetrics) RecordStoreAPICall(string, string, time.Duration) {}
func (m *recordingMetrics) RecordCartMutation(string, string)                {}
func (m *recordingMetrics) RecordHTTPStatus(int)                             {}
func (m *recordingMetrics) RecordCatalogCache(string)                        {}
func (m *recordingMetrics) RecordCheckout(result string)                     { m.results = append(m.results, result) }

type fixture struct {
	svc     *Service
	store   *fakeStore
	audits  *memAudits
	cache   *countingCache
	metrics *recordingMetrics
	logs    *bytes.Buffer
}

func newFixture(cfg Config) *fixture {
	f := &fixture{
		store:   newFakeStore(),
		audits:  &memAudits{},
		cache:   &countingCache{},
		metrics: &recordingMetrics{},
		logs:    &bytes.Buffer{},
	}
	if cfg.PollInterval == 0 {
		cfg = Config{PollInterval: 5 * time.Millisecond, PollTimeout: 200 * time.Millisecond}
	}
	logger := slog.New(slog.NewJSONHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f.svc = NewService(f.store, &noopLocker{}, f.audits, f.cache, f.metrics, cfg, logger)
	return f
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIError を返すべき: %v", err)
	}
	if apiErr.Code != code {
		t.Errorf("Code = %q, want %q", apiErr.Code, code)
	}
}

func assertPath(t *testing.T, got []model.CheckoutState, want ...model.CheckoutState) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("Path = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Path = %v, want %v", got, want)
		}
	}
}

var shopper = model.Account{ID: 7, Username: "rex"}

// --- テスト ---

func TestCheckout_Success(t *testing.T) {
	f := newFixture(Config{})

	res := f.svc.Checkout(context.Background(), shopper, Options{})
	if res.Err != nil {
		t.Fatalf("Checkout() error = %v", res.Err)
	}
	if res.State != model.CheckoutDone {
		t.Errorf("State = %q, want done", res.State)
	}
	assertPath(t, res.Path,
		model.CheckoutIdle, model.CheckoutValidatingPayment, model.CheckoutValidatingAddress,
		model.CheckoutValidatingStock, model.CheckoutSubmitting, model.CheckoutDone)

	// 同一商品の2行は合算して1回だけ更新する
	if len(f.store.updates) != 2 {
		t.Fatalf("在庫更新は商品ごとに1回であるべき: %+v", f.store.updates)
	}
	if f.store.products[1].Quantity != 3 || f.store.products[2].Quantity != 0 {
		t.Errorf("在庫が減算されるべき: %+v", f.store.products)
	}
	if f.store.placeOrders != 1 {
		t.Errorf("注文確定は1回呼ばれるべき: %d", f.store.placeOrders)
	}
	if f.cache.invalidations != 1 {
		t.Error("成功時にカタログキャッシュを無効化するべき")
	}
	if len(res.Cart.Lines) != 0 {
		t.Error("確定後のカートを取得し直して返すべき")
	}
	if len(f.audits.records) != 1 || f.audits.records[0].FinalState != model.CheckoutDone {
		t.Errorf("成功の記録が残るべき: %+v", f.audits.records)
	}
	if f.audits.records[0].ItemCount != 4 || f.audits.records[0].Total != 140 {
		t.Errorf("記録の件数・金額が不正: %+v", f.audits.records[0])
	}
	if f.metrics.results[0] != ResultDone {
		t.Errorf("メトリクス = %v", f.metrics.results)
	}
}

// 支払い情報の名義が空の場合は在庫に触れずに支払い画面へ誘導することを検証
func TestCheckout_PaymentGuard(t *testing.T) {
	f := newFixture(Config{})
	f.store.account.Payment = model.EmptyPayment()

	res := f.svc.Checkout(context.Background(), shopper, Options{})
	assertAPIErrorCode(t, res.Err, model.ErrCodePaymentRequired)
	if res.Redirect != RedirectPayment {
		t.Errorf("Redirect = %q, want payment", res.Redirect)
	}
	assertPath(t, res.Path, model.CheckoutIdle, model.CheckoutValidatingPayment, model.CheckoutFailed)
	if len(f.store.updates) != 0 || f.store.placeOrders != 0 {
		t.Error("ガード失敗時に在庫・注文を変更してはならない")
	}
	if f.store.getCartCalls != 1 {
		t.Errorf("失敗時もカートを取得し直すべき: %d", f.store.getCartCalls)
	}
	if f.audits.records[0].ErrorCode != model.ErrCodePaymentRequired {
		t.Errorf("失敗コードが記録されるべき: %+v", f.audits.records[0])
	}
}

func TestCheckout_AddressGuard(t *testing.T) {
	f := newFixture(Config{})
	f.store.account.Address = model.Address{Street: "Main"}

	res := f.svc.Checkout(context.Background(), shopper, Options{})
	assertAPIErrorCode(t, res.Err, model.ErrCodeAddressRequired)
	if res.Redirect != RedirectAddress {
		t.Errorf("Redirect = %q, want address", res.Redirect)
	}
	if len(f.store.updates) != 0 || f.store.placeOrders != 0 {
		t.Error("ガード失敗時に在庫・注文を変更してはならない")
	}
}

// 待機モードでは支払い情報が設定されるまで待って再開することを検証
func TestCheckout_AwaitResumesWhenPopulated(t *testing.T) {
	f := newFixture(Config{})
	populated := f.store.account
	f.store.account.Payment = model.EmptyPayment()
	f.store.accountAfter = 3
	f.store.nextAccount = populated

	res := f.svc.Checkout(context.Background(), shopper, Options{Await: true})
	if res.Err != nil {
		t.Fatalf("Checkout() error = %v", res.Err)
	}
	if res.State != model.CheckoutDone || res.Redirect != "" {
		t.Errorf("入力後に完了するべき: %+v", res)
	}
	if !strings.Contains(f.logs.String(), "awaiting checkout details") {
		t.Error("待機開始がログに記録されるべき")
	}
}

func TestCheckout_AwaitTimesOut(t *testing.T) {
	f := newFixture(Config{PollInterval: 5 * time.Millisecond, PollTimeout: 30 * time.Millisecond})
	f.store.account.Address = model.EmptyAddress()

	res := f.svc.Checkout(context.Background(), shopper, Options{Await: true})
	assertAPIErrorCode(t, res.Err, model.ErrCodeCheckoutTimeout)
	if res.Redirect != RedirectAddress {
		t.Errorf("Redirect = %q, want address", res.Redirect)
	}
}

// 呼び出し元のキャンセルで待機が終了することを検証
func TestCheckout_AwaitHonoursCallerContext(t *testing.T) {
	f := newFixture(Config{PollInterval: 5 * time.Millisecond, PollTimeout: time.Minute})
	f.store.account.Payment = model.EmptyPayment()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	res := f.svc.Checkout(ctx, shopper, Options{Await: true})
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("呼び出し元の期限切れを返すべき: %v", res.Err)
	}
	if res.State != model.CheckoutFailed {
		t.Errorf("State = %q, want failed", res.State)
	}
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newFixture(Config{})
	f.store.cart = model.ShoppingCart{}

	res := f.svc.Checkout(context.Background(), shopper, Options{})
	assertAPIErrorCode(t, res.Err, model.ErrCodeCartEmpty)
	if f.store.placeOrders != 0 {
		t.Error("空のカートで注文を確定してはならない")
	}
}

// 在庫2に対して3個要求した場合は商品名付きで拒否し、注文確定を呼ばないことを検証
func TestCheckout_InsufficientStock(t *testing.T) {
	f := newFixture(Config{})
	f.store.cart.Quantities = []int{1, 3, 1}

	res := f.svc.Checkout(context.Background(), shopper, Options{})
	assertAPIErrorCode(t, res.Err, model.ErrCodeInsufficientStock)
	if !strings.Contains(res.Err.Error(), "Mic") {
		t.Errorf("エラーに商品名を含むべき: %v", res.Err)
	}
	assertPath(t, res.Path,
		model.CheckoutIdle, model.CheckoutValidatingPayment, model.CheckoutValidatingAddress,
		model.CheckoutValidatingStock, model.CheckoutFailed)
	if len(f.store.updates) != 0 || f.store.placeOrders != 0 {
		t.Error("在庫不足時に在庫・注文を変更してはならない")
	}
}

// 同一商品の複数行の合計が在庫を超える場合も拒否することを検証
func TestCheckout_InsufficientStockAcrossColors(t *testing.T) {
	f := newFixture(Config{})
	f.store.cart.Quantities = []int{3, 1, 3}

	res := f.svc.Checkout(context.Background(), shopper, Options{})
	assertAPIErrorCode(t, res.Err, model.ErrCodeInsufficientStock)
	if !strings.Contains(res.Err.Error(), "Mouse") {
		t.Errorf("エラーに商品名を含むべき: %v", res.Err)
	}
}

// 在庫減算の途中で失敗した場合は減算済みの在庫を戻し、注文確定を呼ばないことを検証
func TestCheckout_StockUpdateFailureCompensates(t *testing.T) {
	f := newFixture(Config{})
	f.store.failUpdateFor[2] = true

	res := f.svc.Checkout(context.Background(), shopper, Options{})
	assertAPIErrorCode(t, res.Err, model.ErrCodeCheckoutFailed)
	if f.store.placeOrders != 0 {
		t.Error("在庫更新の失敗後に注文確定を呼んではならない")
	}
	if f.store.products[1].Quantity != 5 {
		t.Errorf("減算済みの在庫は戻るべき: %d", f.store.products[1].Quantity)
	}
	assertPath(t, res.Path,
		model.CheckoutIdle, model.CheckoutValidatingPayment, model.CheckoutValidatingAddress,
		model.CheckoutValidatingStock, model.CheckoutSubmitting, model.CheckoutFailed)
	if f.cache.invalidations != 0 {
		t.Error("失敗時にキャッシュを無効化する必要はない")
	}
}

// 注文確定に失敗した場合は全ての減算を戻すことを検証
func TestCheckout_PlaceOrderFailureCompensates(t *testing.T) {
	f := newFixture(Config{})
	f.store.placeOrderErr = errors.New("clear failed")

	res := f.svc.Checkout(context.Background(), shopper, Options{})
	assertAPIErrorCode(t, res.Err, model.ErrCodeCheckoutFailed)
	if f.store.products[1].Quantity != 5 || f.store.products[2].Quantity != 2 {
		t.Errorf("全ての在庫が戻るべき: %+v", f.store.products)
	}
	if !strings.Contains(f.logs.String(), "stock restored") {
		t.Error("補償がログに記録されるべき")
	}
}

func TestCheckout_ProductMissing(t *testing.T) {
	f := newFixture(Config{})
	delete(f.store.products, 2)

	res := f.svc.Checkout(context.Background(), shopper, Options{})
	assertAPIErrorCode(t, res.Err, model.ErrCodeProductNotFound)
}

func TestHistory(t *testing.T) {
	f := newFixture(Config{})
	f.svc.Checkout(context.Background(), shopper, Options{})
	f.svc.Checkout(context.Background(), shopper, Options{})

	audits, err := f.svc.History(context.Background(), shopper, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(audits) != 2 {
		t.Fatalf("件数 = %d, want 2", len(audits))
	}
	if audits[1].ErrorCode != model.ErrCodeCartEmpty {
		t.Errorf("2回目は空のカートで失敗するべき: %+v", audits[1])
	}
}
