package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/techasaurus/internal/account"
	"github.com/hitoshi/techasaurus/internal/auth"
	"github.com/hitoshi/techasaurus/internal/cart"
	"github.com/hitoshi/techasaurus/internal/catalog"
	"github.com/hitoshi/techasaurus/internal/checkout"
	"github.com/hitoshi/techasaurus/internal/middleware"
	"github.com/hitoshi/techasaurus/internal/model"
	"github.com/hitoshi/techasaurus/internal/review"
)

// --- モック定義 ---

type mockAuthService struct {
	loginFn    func(ctx context.Context, username, password string) (*auth.ResolvedSession, error)
	logoutFn   func(ctx context.Context, sessionID string) error
	signUpFn   func(ctx context.Context, form auth.SignUpForm) (*auth.ResolvedSession, error)
	activeFn   func(ctx context.Context) (*auth.ActiveSessions, error)
	accountsFn func(ctx context.Context) ([]model.Account, error)
}

func (m *mockAuthService) Login(ctx context.Context, username, password string) (*auth.ResolvedSession, error) {
	return m.loginFn(ctx, username, password)
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) SignUp(ctx context.Context, form auth.SignUpForm) (*auth.ResolvedSession, error) {
	return m.signUpFn(ctx, form)
}

func (m *mockAuthService) HasActiveSession(ctx context.Context) (*auth.ActiveSessions, error) {
	if m.activeFn != nil {
		return m.activeFn(ctx)
	}
	return &auth.ActiveSessions{}, nil
}

func (m *mockAuthService) Accounts(ctx context.Context) ([]model.Account, error) {
	if m.accountsFn != nil {
		return m.accountsFn(ctx)
	}
	return nil, nil
}

type mockCatalogService struct {
	listFn        func(ctx context.Context) []model.Product
	searchFn      func(ctx context.Context, term string) []model.Product
	getFn         func(ctx context.Context, id int) (*model.Product, error)
	createFn      func(ctx context.Context, form catalog.ProductForm) (*model.Product, error)
	adjustStockFn func(ctx context.Context, id, delta int) (*model.Product, error)
	toggleColorFn func(ctx context.Context, id int, name string) ([]model.Color, error)
}

func (m *mockCatalogService) List(ctx context.Context) []model.Product {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return []model.Product{}
}

func (m *mockCatalogService) Search(ctx context.Context, term string) []model.Product {
	if m.searchFn != nil {
		return m.searchFn(ctx, term)
	}
	return []model.Product{}
}

func (m *mockCatalogService) Get(ctx context.Context, id int) (*model.Product, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return &model.Product{ID: id}, nil
}

func (m *mockCatalogService) Colors(context.Context, int) []model.Color { return []model.Color{} }
func (m *mockCatalogService) AllColors(context.Context) []model.Color  { return []model.Color{} }

func (m *mockCatalogService) Create(ctx context.Context, form catalog.ProductForm) (*model.Product, error) {
	if m.createFn != nil {
		return m.createFn(ctx, form)
	}
	return &model.Product{ID: 1, Name: form.Name}, nil
}

func (m *mockCatalogService) Update(_ context.Context, id int, form catalog.ProductForm) (*model.Product, error) {
	return &model.Product{ID: id, Name: form.Name}, nil
}

func (m *mockCatalogService) Delete(context.Context, int) error { return nil }

func (m *mockCatalogService) AdjustStock(ctx context.Context, id, delta int) (*model.Product, error) {
	if m.adjustStockFn != nil {
		return m.adjustStockFn(ctx, id, delta)
	}
	return &model.Product{ID: id}, nil
}

func (m *mockCatalogService) SetColors(context.Context, int, []string) ([]model.Color, error) {
	return []model.Color{}, nil
}

func (m *mockCatalogService) ToggleColor(ctx context.Context, id int, name string) ([]model.Color, error) {
	if m.toggleColorFn != nil {
		return m.toggleColorFn(ctx, id, name)
	}
	return []model.Color{}, nil
}

func (m *mockCatalogService) AddCatalogColor(_ context.Context, name string) ([]model.Color, error) {
	return []model.Color{{Name: name}}, nil
}

type mockAccountService struct {
	updatePaymentFn func(ctx context.Context, sessionID string, acct model.Account, form account.PaymentForm) (*model.Account, error)
	deleteFn        func(ctx context.Context, acct model.Account) error
	orderHistoryFn  func(ctx context.Context, acct model.Account) ([]model.OrderLine, error)
}

func (m *mockAccountService) UpdatePayment(ctx context.Context, sessionID string, acct model.Account, form account.PaymentForm) (*model.Account, error) {
	return m.updatePaymentFn(ctx, sessionID, acct, form)
}

func (m *mockAccountService) ClearPayment(_ context.Context, _ string, acct model.Account) (*model.Account, error) {
	acct.Payment = model.EmptyPayment()
	return &acct, nil
}

func (m *mockAccountService) UpdateAddress(_ context.Context, _ string, acct model.Account, form account.AddressForm) (*model.Account, error) {
	acct.Address = model.Address{City: form.City, Street: form.Street, State: form.State, HouseNumber: form.HouseNumber, Zip: form.Zip}
	return &acct, nil
}

func (m *mockAccountService) ClearAddress(_ context.Context, _ string, acct model.Account) (*model.Account, error) {
	acct.Address = model.EmptyAddress()
	return &acct, nil
}

func (m *mockAccountService) ChangePassword(_ context.Context, _ string, acct model.Account, _ account.PasswordForm) (*model.Account, error) {
	return &acct, nil
}

func (m *mockAccountService) UpdateProfile(_ context.Context, _ string, acct model.Account, form account.ProfileForm) (*model.Account, error) {
	acct.Email = form.Email
	return &acct, nil
}

func (m *mockAccountService) Delete(ctx context.Context, acct model.Account) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, acct)
	}
	return nil
}

func (m *mockAccountService) OrderHistory(ctx context.Context, acct model.Account) ([]model.OrderLine, error) {
	if m.orderHistoryFn != nil {
		return m.orderHistoryFn(ctx, acct)
	}
	return []model.OrderLine{}, nil
}

type mockCartService struct {
	addFn    func(ctx context.Context, acct model.Account, productID int, color string) (*cart.View, error)
	mutateFn func(ctx context.Context, acct model.Account, lineID string) (*cart.View, error)
}

func (m *mockCartService) View(context.Context, model.Account) *cart.View {
	return cart.NewView(model.ShoppingCart{})
}

func (m *mockCartService) Add(ctx context.Context, acct model.Account, productID int, color string) (*cart.View, error) {
	return m.addFn(ctx, acct, productID, color)
}

func (m *mockCartService) Increment(ctx context.Context, acct model.Account, lineID string) (*cart.View, error) {
	return m.mutateFn(ctx, acct, lineID)
}

func (m *mockCartService) Decrement(ctx context.Context, acct model.Account, lineID string) (*cart.View, error) {
	return m.mutateFn(ctx, acct, lineID)
}

func (m *mockCartService) Remove(ctx context.Context, acct model.Account, lineID string) (*cart.View, error) {
	return m.mutateFn(ctx, acct, lineID)
}

type mockCheckoutService struct {
	checkoutFn func(ctx context.Context, acct model.Account, opts checkout.Options) *checkout.Result
	historyFn  func(ctx context.Context, acct model.Account, limit int) ([]model.CheckoutAudit, error)
}

func (m *mockCheckoutService) Checkout(ctx context.Context, acct model.Account, opts checkout.Options) *checkout.Result {
	return m.checkoutFn(ctx, acct, opts)
}

func (m *mockCheckoutService) History(ctx context.Context, acct model.Account, limit int) ([]model.CheckoutAudit, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, acct, limit)
	}
	return nil, nil
}

type mockReviewService struct {
	submitFn func(ctx context.Context, acct model.Account, productID, rating int, body string) (*model.Review, error)
	deleteFn func(ctx context.Context, acct model.Account, productID, userID int) error
}

func (m *mockReviewService) Submit(ctx context.Context, acct model.Account, productID, rating int, body string) (*model.Review, error) {
	return m.submitFn(ctx, acct, productID, rating, body)
}

func (m *mockReviewService) ListForProduct(context.Context, int) *review.ProductReviews {
	return &review.ProductReviews{Entries: []review.Entry{}}
}

func (m *mockReviewService) ListByUser(context.Context, int) []model.Review {
	return []model.Review{}
}

func (m *mockReviewService) Delete(ctx context.Context, acct model.Account, productID, userID int) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, acct, productID, userID)
	}
	return nil
}

// mockResolver はCookieのセッションIDをアカウントに対応付ける。
type mockResolver struct {
	sessions map[string]model.Account
}

func (m *mockResolver) Resolve(_ context.Context, sessionID string) (*auth.ResolvedSession, error) {
	acct, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return &auth.ResolvedSession{
		Session: &model.StoreSession{ID: sessionID, AccountID: acct.ID, ExpiresAt: time.Now().Add(time.Hour)},
		Account: acct,
	}, nil
}

// --- compile-time interface checks ---
var (
	_ AuthServiceInterface     = (*mockAuthService)(nil)
	_ CatalogServiceInterface  = (*mockCatalogService)(nil)
	_ AccountServiceInterface  = (*mockAccountService)(nil)
	_ CartServiceInterface     = (*mockCartService)(nil)
	_ CheckoutServiceInterface = (*mockCheckoutService)(nil)
	_ CheckoutHistoryLister    = (*mockCheckoutService)(nil)
	_ ReviewServiceInterface   = (*mockReviewService)(nil)
)

// --- テストヘルパー ---

const (
	testCSRFToken    = "csrf-test-token"
	customerSession  = "customer-session"
	adminSession     = "admin-session"
	testAdminAccount = "admin"
)

var (
	customer = model.Account{
		ID:        7,
		Username:  "rex",
		FirstName: "Rex",
		Payment:   model.Payment{CardNumber: "4111111111111111", CardHolder: "Rex", ExpDate: "01/30", CVV: 123},
		Address:   model.Address{City: "Austin"},
	}
	admin = model.Account{ID: 1, Username: testAdminAccount}
)

type testDeps struct {
	auth     *mockAuthService
	catalog  *mockCatalogService
	account  *mockAccountService
	cart     *mockCartService
	checkout *mockCheckoutService
	review   *mockReviewService
}

func newTestDeps() *testDeps {
	return &testDeps{
		auth:     &mockAuthService{},
		catalog:  &mockCatalogService{},
		account:  &mockAccountService{},
		cart:     &mockCartService{},
		checkout: &mockCheckoutService{},
		review:   &mockReviewService{},
	}
}

// newTestRouter はモックサービスで完全なルーターを構築する。
func newTestRouter(t *testing.T, d *testDeps) http.Handler {
	t.Helper()
	rl := middleware.NewRateLimiter(middleware.PerMinuteRateLimiterConfig(1000, 1000))
	t.Cleanup(rl.Stop)

	return NewRouter(&RouterDeps{
		SessionResolver: &mockResolver{sessions: map[string]model.Account{
			customerSession: customer,
			adminSession:    admin,
		}},
		CORSAllowedOrigin: "http://localhost:4200",
		RateLimiter:       rl,
		SessionMaxAge:     3600,
		AdminUsername:     testAdminAccount,
		AuthService:       d.auth,
		CatalogService:    d.catalog,
		AccountService:    d.account,
		CartService:       d.cart,
		CheckoutService:   d.checkout,
		CheckoutHistory:   d.checkout,
		ReviewService:     d.review,
	})
}

// newRequest はCSRFトークンと（指定があれば）セッションCookieを付けたリクエストを作る。
func newRequest(method, target, sessionID string, body any) *http.Request {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "techasaurus_csrf", Value: testCSRFToken})
	req.Header.Set(middleware.CSRFHeaderName, testCSRFToken)
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: sessionID})
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	return v
}

func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Errorf("status = %d, want %d (body=%s)", w.Code, status, w.Body.String())
	}
	body := decodeBody[middleware.ErrorResponseBody](t, w)
	if body.Code != code {
		t.Errorf("code = %q, want %q", body.Code, code)
	}
}
