package account

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"

	"github.com/hitoshi/techasaurus/internal/model"
	"github.com/hitoshi/techasaurus/internal/repository"
	"github.com/hitoshi/techasaurus/internal/storeapi"
	"github.com/hitoshi/techasaurus/internal/storeapi/storeapitest"
	"github.com/hitoshi/techasaurus/internal/validation"
)

// --- モック定義 ---

type mockStore struct {
	loginFn              func(ctx context.Context, username, password string) (*model.Account, error)
	logoutFn             func(ctx context.Context, username string) (*model.Account, error)
	getAccountFn         func(ctx context.Context, id int) (*model.Account, error)
	updateAccountFn      func(ctx context.Context, acct model.Account) (*model.Account, error)
	deleteAccountFn      func(ctx context.Context, id int) error
	updatePaymentFn      func(ctx context.Context, id int, p model.Payment) (*model.Payment, error)
	updateAddressFn      func(ctx context.Context, id int, a model.Address) (*model.Address, error)
	getOrderHistoryFn    func(ctx context.Context, id int) ([]model.Product, error)
	getOrderQuantitiesFn func(ctx context.Context, id int) ([]int, error)
}

func (m *mockStore) Login(ctx context.Context, username, password string) (*model.Account, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return &model.Account{Username: username}, nil
}

func (m *mockStore) Logout(ctx context.Context, username string) (*model.Account, error) {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, username)
	}
	return &model.Account{Username: username}, nil
}

func (m *mockStore) GetAccount(ctx context.Context, id int) (*model.Account, error) {
	if m.getAccountFn != nil {
		return m.getAccountFn(ctx, id)
	}
	return &model.Account{ID: id}, nil
}

func (m *mockStore) UpdateAccount(ctx context.Context, acct model.Account) (*model.Account, error) {
	if m.updateAccountFn != nil {
		return m.updateAccountFn(ctx, acct)
	}
	return &acct, nil
}

func (m *mockStore) DeleteAccount(ctx context.Context, id int) error {
	if m.deleteAccountFn != nil {
		return m.deleteAccountFn(ctx, id)
	}
	return nil
}

func (m *mockStore) UpdatePayment(ctx context.Context, id int, p model.Payment) (*model.Payment, error) {
	if m.updatePaymentFn != nil {
		return m.updatePaymentFn(ctx, id, p)
	}
	return &p, nil
}

func (m *mockStore) UpdateAddress(ctx context.Context, id int, a model.Address) (*model.Address, error) {
	if m.updateAddressFn != nil {
		return m.updateAddressFn(ctx, id, a)
	}
	return &a, nil
}

func (m *mockStore) GetOrderHistory(ctx context.Context, id int) ([]model.Product, error) {
	if m.getOrderHistoryFn != nil {
		return m.getOrderHistoryFn(ctx, id)
	}
	return nil, nil
}

func (m *mockStore) GetOrderQuantities(ctx context.Context, id int) ([]int, error) {
	if m.getOrderQuantitiesFn != nil {
		return m.getOrderQuantitiesFn(ctx, id)
	}
	return nil, nil
}

type mockSessionRepo struct {
	repository.SessionRepository
	updated         *model.Account
	deletedSessions []string
	deletedAccounts []int
}

func (m *mockSessionRepo) DeleteByID(_ context.Context, id string) error {
	m.deletedSessions = append(m.deletedSessions, id)
	return nil
}

func (m *mockSessionRepo) UpdateAccount(_ context.Context, _ string, acct model.Account) error {
	m.updated = &acct
	return nil
}

func (m *mockSessionRepo) DeleteByAccountID(_ context.Context, accountID int) error {
	m.deletedAccounts = append(m.deletedAccounts, accountID)
	return nil
}

var _ StoreAPI = (*mockStore)(nil)

// newSingleSessionStore は店舗APIのアカウント操作を SessionStore に委ねるモックを返す。
func newSingleSessionStore(fake *storeapitest.SessionStore) *mockStore {
	return &mockStore{
		loginFn:         fake.Login,
		logoutFn:        fake.Logout,
		getAccountFn:    fake.GetAccount,
		updateAccountFn: fake.UpdateAccount,
	}
}

// loginSeeded は店舗API側にアカウントを登録してログインし、ログイン中のアカウントを返す。
func loginSeeded(t *testing.T, fake *storeapitest.SessionStore, username, password string) model.Account {
	t.Helper()
	fake.Seed(model.Account{Username: username, Password: password})
	acct, err := fake.Login(context.Background(), username, password)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	return acct.Sanitized()
}

func newTestService(store StoreAPI, repo repository.SessionRepository) *Service {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	return NewService(store, repo, validation.New(), logger)
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

var testAccount = model.Account{ID: 7, Username: "rex"}

func validPayment() PaymentForm {
	return PaymentForm{
		CardNumber: "4111111111111111",
		CardHolder: "Rex Saur",
		ExpMonth:   3,
		ExpYear:    2029,
		CVV:        123,
	}
}

// --- テスト ---

func TestUpdatePayment_Valid(t *testing.T) {
	repo := &mockSessionRepo{}
	var sent model.Payment
	store := &mockStore{
		updatePaymentFn: func(_ context.Context, _ int, p model.Payment) (*model.Payment, error) {
			sent = p
			return &p, nil
		},
	}
	svc := newTestService(store, repo)

	got, err := svc.UpdatePayment(context.Background(), "sess-1", testAccount, validPayment())
	if err != nil {
		t.Fatalf("UpdatePayment() error = %v", err)
	}
	if sent.ExpDate != "03/29" {
		t.Errorf("ExpDate = %q, want 03/29", sent.ExpDate)
	}
	if got.Payment.CardHolder != "Rex Saur" {
		t.Errorf("更新後のアカウントに支払い情報が反映されるべき: %+v", got.Payment)
	}
	if repo.updated == nil || repo.updated.Payment.CardNumber != "4111111111111111" {
		t.Error("セッションのアカウントも更新されるべき")
	}
}

// カード番号とCVVの境界値で店舗APIを呼ばずに拒否されることを検証
func TestUpdatePayment_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *PaymentForm)
		code   string
	}{
		{name: "15桁", mutate: func(f *PaymentForm) { f.CardNumber = "411111111111111" }, code: model.ErrCodeInvalidCardNumber},
		{name: "17桁", mutate: func(f *PaymentForm) { f.CardNumber = "41111111111111111" }, code: model.ErrCodeInvalidCardNumber},
		{name: "数字以外", mutate: func(f *PaymentForm) { f.CardNumber = "4111-1111-1111-11" }, code: model.ErrCodeInvalidCardNumber},
		{name: "CVV 99", mutate: func(f *PaymentForm) { f.CVV = 99 }, code: model.ErrCodeInvalidCVV},
		{name: "CVV 1000", mutate: func(f *PaymentForm) { f.CVV = 1000 }, code: model.ErrCodeInvalidCVV},
		{name: "名義なし", mutate: func(f *PaymentForm) { f.CardHolder = "" }, code: model.ErrCodeValidationFailed},
		{name: "月が範囲外", mutate: func(f *PaymentForm) { f.ExpMonth = 13 }, code: model.ErrCodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{
				updatePaymentFn: func(context.Context, int, model.Payment) (*model.Payment, error) {
					t.Error("検証失敗時に店舗APIを呼び出してはならない")
					return nil, nil
				},
			}
			svc := newTestService(store, &mockSessionRepo{})
			form := validPayment()
			tt.mutate(&form)

			_, err := svc.UpdatePayment(context.Background(), "sess-1", testAccount, form)
			assertAPIErrorCode(t, err, tt.code)
		})
	}
}

// CVV の境界内の値は受け付けられることを検証
func TestUpdatePayment_CVVBoundsInclusive(t *testing.T) {
	svc := newTestService(&mockStore{}, &mockSessionRepo{})
	for _, cvv := range []int{100, 999} {
		form := validPayment()
		form.CVV = cvv
		if _, err := svc.UpdatePayment(context.Background(), "sess-1", testAccount, form); err != nil {
			t.Errorf("CVV %d は受け付けられるべき: %v", cvv, err)
		}
	}
}

func TestClearPayment_WritesEmptySentinel(t *testing.T) {
	var sent *model.Payment
	store := &mockStore{
		updatePaymentFn: func(_ context.Context, _ int, p model.Payment) (*model.Payment, error) {
			sent = &p
			return &p, nil
		},
	}
	svc := newTestService(store, &mockSessionRepo{})
	acct := testAccount
	acct.Payment = model.Payment{CardHolder: "Rex"}

	got, err := svc.ClearPayment(context.Background(), "sess-1", acct)
	if err != nil {
		t.Fatalf("ClearPayment() error = %v", err)
	}
	if sent == nil || !sent.IsEmpty() || got.Payment.IsSet() {
		t.Error("空の支払い情報が書き込まれるべき")
	}
}

func TestUpdateAddress_ZipBounds(t *testing.T) {
	tests := []struct {
		zip     int
		wantErr bool
	}{
		{zip: 0, wantErr: true},
		{zip: 1},
		{zip: 99999},
		{zip: 100000, wantErr: true},
	}

	for _, tt := range tests {
		svc := newTestService(&mockStore{}, &mockSessionRepo{})
		form := AddressForm{City: "Austin", Street: "Main", State: "TX", HouseNumber: "12", Zip: tt.zip}
		_, err := svc.UpdateAddress(context.Background(), "sess-1", testAccount, form)
		if tt.wantErr {
			assertAPIErrorCode(t, err, model.ErrCodeInvalidZip)
		} else if err != nil {
			t.Errorf("zip %d は受け付けられるべき: %v", tt.zip, err)
		}
	}
}

func TestClearAddress(t *testing.T) {
	repo := &mockSessionRepo{}
	svc := newTestService(&mockStore{}, repo)
	acct := testAccount
	acct.Address = model.Address{City: "Austin"}

	got, err := svc.ClearAddress(context.Background(), "sess-1", acct)
	if err != nil {
		t.Fatalf("ClearAddress() error = %v", err)
	}
	if !got.Address.IsEmpty() || !repo.updated.Address.IsEmpty() {
		t.Error("住所は空に戻るべき")
	}
}

func TestChangePassword_Mismatch(t *testing.T) {
	store := &mockStore{
		loginFn: func(context.Context, string, string) (*model.Account, error) {
			t.Error("確認不一致で店舗APIを呼び出してはならない")
			return nil, nil
		},
		logoutFn: func(context.Context, string) (*model.Account, error) {
			t.Error("確認不一致で店舗APIのセッションを終了してはならない")
			return nil, nil
		},
	}
	svc := newTestService(store, &mockSessionRepo{})

	_, err := svc.ChangePassword(context.Background(), "sess-1", testAccount, PasswordForm{
		OldPassword: "old", NewPassword: "new1", ConfirmPassword: "new2",
	})
	assertAPIErrorCode(t, err, model.ErrCodePasswordMismatch)
}

// ログイン中のアカウントでも、店舗API側のセッションを終了してから現在のパスワードを検証できることを検証
func TestChangePassword_Success(t *testing.T) {
	fake := storeapitest.NewSessionStore()
	acct := loginSeeded(t, fake, "rex", "old")
	repo := &mockSessionRepo{}
	svc := newTestService(newSingleSessionStore(fake), repo)

	got, err := svc.ChangePassword(context.Background(), "sess-1", acct, PasswordForm{
		OldPassword: "old", NewPassword: "new", ConfirmPassword: "new",
	})
	if err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if fake.Password(acct.ID) != "new" {
		t.Error("新しいパスワードが店舗APIに保存されるべき")
	}
	if !fake.Active("rex") {
		t.Error("変更後も店舗API側のセッションは有効であるべき")
	}
	if got.Password != "" || repo.updated == nil || repo.updated.Password != "" {
		t.Fatal("返却・保存するアカウントにパスワードを含めてはならない")
	}
	if repo.updated.SessionID == 0 || repo.updated.SessionID == acct.SessionID {
		t.Errorf("再ログインで払い出されたセッションIDを保存するべき: got %d, old %d", repo.updated.SessionID, acct.SessionID)
	}
	if len(repo.deletedSessions) != 0 {
		t.Error("成功時にセッションを破棄してはならない")
	}
}

// 現在のパスワードが誤っている場合は更新せず、終了したセッションを破棄することを検証
func TestChangePassword_WrongOldPassword(t *testing.T) {
	fake := storeapitest.NewSessionStore()
	acct := loginSeeded(t, fake, "rex", "old")
	store := newSingleSessionStore(fake)
	store.updateAccountFn = func(context.Context, model.Account) (*model.Account, error) {
		t.Error("検証失敗時に更新してはならない")
		return nil, nil
	}
	repo := &mockSessionRepo{}
	svc := newTestService(store, repo)

	_, err := svc.ChangePassword(context.Background(), "sess-1", acct, PasswordForm{
		OldPassword: "bad", NewPassword: "new", ConfirmPassword: "new",
	})
	assertAPIErrorCode(t, err, model.ErrCodeInvalidCredentials)

	if fake.Password(acct.ID) != "old" {
		t.Error("パスワードは変更されてはならない")
	}
	if len(repo.deletedSessions) != 1 || repo.deletedSessions[0] != "sess-1" {
		t.Errorf("店舗API側で終了したセッションを破棄するべき: %v", repo.deletedSessions)
	}
}

// 店舗API側のセッションが既に無い場合でも変更できることを検証
func TestChangePassword_RemoteAlreadyLoggedOut(t *testing.T) {
	fake := storeapitest.NewSessionStore()
	id := fake.Seed(model.Account{Username: "rex", Password: "old"})
	store := newSingleSessionStore(fake)
	store.logoutFn = func(context.Context, string) (*model.Account, error) {
		return nil, &storeapi.StatusError{Operation: "logout", StatusCode: http.StatusNotFound}
	}
	svc := newTestService(store, &mockSessionRepo{})

	_, err := svc.ChangePassword(context.Background(), "sess-1", model.Account{ID: id, Username: "rex"}, PasswordForm{
		OldPassword: "old", NewPassword: "new", ConfirmPassword: "new",
	})
	if err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if fake.Password(id) != "new" {
		t.Error("新しいパスワードが保存されるべき")
	}
}

func TestChangePassword_RemoteLogoutFailure(t *testing.T) {
	store := &mockStore{
		logoutFn: func(context.Context, string) (*model.Account, error) {
			return nil, errors.New("connection refused")
		},
		loginFn: func(context.Context, string, string) (*model.Account, error) {
			t.Error("セッション終了に失敗した場合はログインしてはならない")
			return nil, nil
		},
	}
	repo := &mockSessionRepo{}
	svc := newTestService(store, repo)

	_, err := svc.ChangePassword(context.Background(), "sess-1", testAccount, PasswordForm{
		OldPassword: "old", NewPassword: "new", ConfirmPassword: "new",
	})
	if err == nil {
		t.Fatal("店舗APIの失敗はエラーになるべき")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("通信失敗を資格情報エラーにしてはならない: %v", err)
	}
	if len(repo.deletedSessions) != 0 {
		t.Error("通信失敗でセッションを破棄してはならない")
	}
}

func TestUpdateProfile(t *testing.T) {
	store := &mockStore{
		getAccountFn: func(_ context.Context, id int) (*model.Account, error) {
			return &model.Account{ID: id, Username: "rex", Email: "old@example.com", ProfilePicture: "https://img.example.com/a.png"}, nil
		},
	}
	svc := newTestService(store, &mockSessionRepo{})

	got, err := svc.UpdateProfile(context.Background(), "sess-1", testAccount, ProfileForm{
		Email: "new@example.com", FirstName: "Rex", LastName: "Saur",
	})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if got.Email != "new@example.com" || got.FirstName != "Rex" {
		t.Errorf("プロフィールが更新されるべき: %+v", got)
	}
	if got.ProfilePicture != "https://img.example.com/a.png" {
		t.Error("画像未指定の場合は既存の画像を維持するべき")
	}
}

func TestDelete_RemovesAllSessions(t *testing.T) {
	repo := &mockSessionRepo{}
	svc := newTestService(&mockStore{}, repo)

	if err := svc.Delete(context.Background(), testAccount); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(repo.deletedAccounts) != 1 || repo.deletedAccounts[0] != 7 {
		t.Errorf("アカウントの全セッションを削除するべき: %v", repo.deletedAccounts)
	}
}

func TestDelete_RemoteFailureKeepsSessions(t *testing.T) {
	repo := &mockSessionRepo{}
	store := &mockStore{
		deleteAccountFn: func(context.Context, int) error { return errors.New("boom") },
	}
	svc := newTestService(store, repo)

	if err := svc.Delete(context.Background(), testAccount); err == nil {
		t.Fatal("店舗APIの失敗はエラーになるべき")
	}
	if len(repo.deletedAccounts) != 0 {
		t.Error("削除失敗時にセッションを破棄してはならない")
	}
}

// 数量配列が短い場合は数量0で埋めることを検証
func TestOrderHistory_MismatchedLengths(t *testing.T) {
	store := &mockStore{
		getOrderHistoryFn: func(context.Context, int) ([]model.Product, error) {
			return []model.Product{{ID: 1, Name: "Mouse"}, {ID: 2, Name: "Mic"}}, nil
		},
		getOrderQuantitiesFn: func(context.Context, int) ([]int, error) {
			return []int{3}, nil
		},
	}
	svc := newTestService(store, &mockSessionRepo{})

	lines, err := svc.OrderHistory(context.Background(), testAccount)
	if err != nil {
		t.Fatalf("OrderHistory() error = %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("行数 = %d, want 2", len(lines))
	}
	if lines[0].Quantity != 3 || lines[1].Quantity != 0 {
		t.Errorf("数量が不正: %+v", lines)
	}
}
