// Package account はログイン中の顧客アカウントの管理を提供する。
package account

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/techasaurus/internal/model"
	"github.com/hitoshi/techasaurus/internal/repository"
	"github.com/hitoshi/techasaurus/internal/storeapi"
	"github.com/hitoshi/techasaurus/internal/validation"
)

// カード番号の桁数とCVV・郵便番号の許容範囲（いずれも境界値を含まない）。
const (
	cardNumberLength = 16
	minCVVExclusive  = 99
	maxCVVExclusive  = 1000
	maxZipExclusive  = 100000
)

// StoreAPI はアカウントサービスが必要とする店舗APIの操作。
type StoreAPI interface {
	Login(ctx context.Context, username, password string) (*model.Account, error)
	Logout(ctx context.Context, username string) (*model.Account, error)
	GetAccount(ctx context.Context, id int) (*model.Account, error)
	UpdateAccount(ctx context.Context, acct model.Account) (*model.Account, error)
	DeleteAccount(ctx context.Context, id int) error
	UpdatePayment(ctx context.Context, accountID int, p model.Payment) (*model.Payment, error)
	UpdateAddress(ctx context.Context, accountID int, a model.Address) (*model.Address, error)
	GetOrderHistory(ctx context.Context, accountID int) ([]model.Product, error)
	GetOrderQuantities(ctx context.Context, accountID int) ([]int, error)
}

// PaymentForm は支払い情報の入力。有効期限は月と年から MM/YY を組み立てる。
type PaymentForm struct {
	CardNumber string `json:"cardNumber"`
	CardHolder string `json:"cardHolder" validate:"required"`
	ExpMonth   int    `json:"expMonth" validate:"gte=1,lte=12"`
	ExpYear    int    `json:"expYear" validate:"gte=0"`
	CVV        int    `json:"cvv"`
}

// AddressForm は配送先住所の入力。
type AddressForm struct {
	City        string `json:"city" validate:"required"`
	Street      string `json:"street" validate:"required"`
	State       string `json:"state" validate:"required"`
	HouseNumber string `json:"houseNumber" validate:"required"`
	Zip         int    `json:"zip"`
}

// PasswordForm はパスワード変更の入力。
type PasswordForm struct {
	OldPassword     string `json:"oldPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

// ProfileForm はプロフィール更新の入力。
type ProfileForm struct {
	Email          string `json:"email" validate:"required,email"`
	FirstName      string `json:"firstName" validate:"required"`
	LastName       string `json:"lastName" validate:"required"`
	ProfilePicture string `json:"profilePicture" validate:"omitempty,url"`
}

// Service はアカウント管理のビジネスロジックを提供する。
type Service struct {
	store       StoreAPI
	sessionRepo repository.SessionRepository
	validate    *validation.Validator
	logger      *slog.Logger
}

// NewService はServiceを生成する。
func NewService(store StoreAPI, sessionRepo repository.SessionRepository, validate *validation.Validator, logger *slog.Logger) *Service {
	return &Service{
		store:       store,
		sessionRepo: sessionRepo,
		validate:    validate,
		logger:      logger,
	}
}

// UpdatePayment は支払い情報を検証して更新する。検証に失敗した場合は店舗APIを呼ばない。
func (s *Service) UpdatePayment(ctx context.Context, sessionID string, acct model.Account, form PaymentForm) (*model.Account, error) {
	if err := s.validate.Struct(form); err != nil {
		return nil, err
	}

	number := strings.ReplaceAll(strings.TrimSpace(form.CardNumber), " ", "")
	if len(number) != cardNumberLength || !isDigits(number) {
		return nil, model.NewInvalidCardNumberError()
	}
	if form.CVV <= minCVVExclusive || form.CVV >= maxCVVExclusive {
		return nil, model.NewInvalidCVVError()
	}

	payment := model.Payment{
		CardNumber: number,
		CardHolder: strings.TrimSpace(form.CardHolder),
		ExpDate:    fmt.Sprintf("%02d/%02d", form.ExpMonth, form.ExpYear%100),
		CVV:        form.CVV,
	}
	return s.writePayment(ctx, sessionID, acct, payment)
}

// ClearPayment は支払い情報を未設定に戻す。
func (s *Service) ClearPayment(ctx context.Context, sessionID string, acct model.Account) (*model.Account, error) {
	return s.writePayment(ctx, sessionID, acct, model.EmptyPayment())
}

// UpdateAddress は住所を検証して更新する。
func (s *Service) UpdateAddress(ctx context.Context, sessionID string, acct model.Account, form AddressForm) (*model.Account, error) {
	if err := s.validate.Struct(form); err != nil {
		return nil, err
	}
	if form.Zip <= 0 || form.Zip >= maxZipExclusive {
		return nil, model.NewInvalidZipError()
	}

	addr := model.Address{
		City:        strings.TrimSpace(form.City),
		Street:      strings.TrimSpace(form.Street),
		State:       strings.TrimSpace(form.State),
		HouseNumber: strings.TrimSpace(form.HouseNumber),
		Zip:         form.Zip,
	}
	return s.writeAddress(ctx, sessionID, acct, addr)
}

// ClearAddress は住所を未設定に戻す。
func (s *Service) ClearAddress(ctx context.Context, sessionID string, acct model.Account) (*model.Account, error) {
	return s.writeAddress(ctx, sessionID, acct, model.EmptyAddress())
}

// ChangePassword はパスワードを変更する。
// 店舗APIは1アカウントにつき1セッションのみ許可するため、現在のセッションを終了してから
// 現在のパスワードでログインし直し、その成否で検証する。本サービスでは比較しない。
// 検証に失敗した場合は店舗API側のセッションが終了しているため、ローカルのセッションも破棄する。
func (s *Service) ChangePassword(ctx context.Context, sessionID string, acct model.Account, form PasswordForm) (*model.Account, error) {
	if err := s.validate.Struct(form); err != nil {
		return nil, err
	}
	if form.NewPassword != form.ConfirmPassword {
		return nil, model.NewPasswordMismatchError()
	}

	if _, err := s.store.Logout(ctx, acct.Username); err != nil && !storeapi.IsNotFound(err) {
		return nil, fmt.Errorf("failed to end remote session: %w", err)
	}

	current, err := s.store.Login(ctx, acct.Username, form.OldPassword)
	if err != nil || current == nil || current.ID == 0 {
		if err != nil && !storeapi.IsNotFound(err) {
			return nil, fmt.Errorf("failed to verify password: %w", err)
		}
		if delErr := s.sessionRepo.DeleteByID(ctx, sessionID); delErr != nil {
			s.logger.Error("failed to delete session after password check",
				slog.String("session_id", sessionID),
				slog.String("error", delErr.Error()),
			)
		}
		s.logger.Warn("password change rejected", slog.Int("account_id", acct.ID))
		return nil, model.NewInvalidCredentialsError()
	}

	next := *current
	next.Password = form.NewPassword
	updated, err := s.store.UpdateAccount(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("failed to update password: %w", err)
	}
	if updated.SessionID == 0 {
		updated.SessionID = current.SessionID
	}

	s.logger.Info("password changed",
		slog.Int("account_id", acct.ID),
		slog.String("session_id", sessionID),
	)
	// 再ログインで払い出されたセッションIDもセッションに保存される
	return s.refresh(ctx, sessionID, *updated)
}

// UpdateProfile はメールアドレス・氏名・プロフィール画像を更新する。
func (s *Service) UpdateProfile(ctx context.Context, sessionID string, acct model.Account, form ProfileForm) (*model.Account, error) {
	if err := s.validate.Struct(form); err != nil {
		return nil, err
	}

	current, err := s.store.GetAccount(ctx, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	next := *current
	next.Email = strings.TrimSpace(form.Email)
	next.FirstName = strings.TrimSpace(form.FirstName)
	next.LastName = strings.TrimSpace(form.LastName)
	if form.ProfilePicture != "" {
		next.ProfilePicture = form.ProfilePicture
	}

	updated, err := s.store.UpdateAccount(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return s.refresh(ctx, sessionID, *updated)
}

// Delete はアカウントを削除し、そのアカウントの全セッションを破棄する。
func (s *Service) Delete(ctx context.Context, acct model.Account) error {
	if err := s.store.DeleteAccount(ctx, acct.ID); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if err := s.sessionRepo.DeleteByAccountID(ctx, acct.ID); err != nil {
		return fmt.Errorf("failed to delete account sessions: %w", err)
	}

	s.logger.Info("account deleted", slog.Int("account_id", acct.ID))
	return nil
}

// OrderHistory は注文履歴の商品と数量を行単位にまとめる。
// 数量配列が短い場合の数量は0とする。
func (s *Service) OrderHistory(ctx context.Context, acct model.Account) ([]model.OrderLine, error) {
	products, err := s.store.GetOrderHistory(ctx, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order history: %w", err)
	}
	quantities, err := s.store.GetOrderQuantities(ctx, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order quantities: %w", err)
	}

	history := model.ShoppingCart{Products: products, Quantities: quantities}
	lines := make([]model.OrderLine, 0, history.Len())
	for i := 0; i < history.Len(); i++ {
		lines = append(lines, model.OrderLine{
			Product:  history.ProductAt(i),
			Quantity: history.QuantityAt(i),
		})
	}
	return lines, nil
}

func (s *Service) writePayment(ctx context.Context, sessionID string, acct model.Account, p model.Payment) (*model.Account, error) {
	saved, err := s.store.UpdatePayment(ctx, acct.ID, p)
	if err != nil {
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}
	if saved != nil {
		p = *saved
	}
	acct.Payment = p
	return s.refresh(ctx, sessionID, acct)
}

func (s *Service) writeAddress(ctx context.Context, sessionID string, acct model.Account, a model.Address) (*model.Account, error) {
	saved, err := s.store.UpdateAddress(ctx, acct.ID, a)
	if err != nil {
		return nil, fmt.Errorf("failed to update address: %w", err)
	}
	if saved != nil {
		a = *saved
	}
	acct.Address = a
	return s.refresh(ctx, sessionID, acct)
}

// refresh はセッションに保存したアカウントを置き換え、パスワードを除去して返す。
func (s *Service) refresh(ctx context.Context, sessionID string, acct model.Account) (*model.Account, error) {
	clean := acct.Sanitized()
	if err := s.sessionRepo.UpdateAccount(ctx, sessionID, clean); err != nil {
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}
	return &clean, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
