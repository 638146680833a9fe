// Package auth はストアフロントのログイン、サインアップ、セッション解決を提供する。
// 認証そのものは店舗APIが行い、本パッケージは資格情報を比較も保存もしない。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/techasaurus/internal/model"
	"github.com/hitoshi/techasaurus/internal/repository"
	"github.com/hitoshi/techasaurus/internal/storeapi"
	"github.com/hitoshi/techasaurus/internal/validation"
)

// StoreAPI は認証サービスが必要とする店舗APIの操作。
type StoreAPI interface {
	Login(ctx context.Context, username, password string) (*model.Account, error)
	Logout(ctx context.Context, username string) (*model.Account, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)
	GetAccount(ctx context.Context, id int) (*model.Account, error)
	GetCurrentAccount(ctx context.Context, sessionID int) (*model.Account, error)
	CreateAccount(ctx context.Context, acct model.Account) (*model.Account, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// SignUpForm はサインアップの入力。
type SignUpForm struct {
	Username        string `json:"username" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	FirstName       string `json:"firstName" validate:"required"`
	LastName        string `json:"lastName" validate:"required"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

// ResolvedSession はリクエストに紐づくセッションと最新のアカウント。
type ResolvedSession struct {
	Session *model.StoreSession
	Account model.Account
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	store       StoreAPI
	sessionRepo repository.SessionRepository
	validate    *validation.Validator
	config      ServiceConfig
	logger      *slog.Logger
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	store StoreAPI,
	sessionRepo repository.SessionRepository,
	validate *validation.Validator,
	config ServiceConfig,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:       store,
		sessionRepo: sessionRepo,
		validate:    validate,
		config:      config,
		logger:      logger,
		now:         time.Now,
	}
}

// Login は店舗APIで認証し、成功時にストアフロントセッションを発行する。
func (s *Service) Login(ctx context.Context, username, password string) (*ResolvedSession, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, model.NewInvalidCredentialsError()
	}

	acct, err := s.store.Login(ctx, username, password)
	if err != nil {
		if storeapi.IsNotFound(err) {
			return nil, model.NewInvalidCredentialsError()
		}
		return nil, fmt.Errorf("failed to login: %w", err)
	}
	if acct == nil || acct.ID == 0 {
		return nil, model.NewInvalidCredentialsError()
	}

	resolved, err := s.openSession(ctx, *acct)
	if err != nil {
		return nil, err
	}

	s.logger.Info("account logged in",
		slog.Int("account_id", acct.ID),
		slog.String("session_id", resolved.Session.ID),
	)
	return resolved, nil
}

// Logout は店舗API側のログアウトを行い、ストアフロントセッションを破棄する。
// 店舗API側の失敗はログに残し、ローカルのセッションは必ず破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to find session: %w", err)
	}
	if session != nil && session.Account.Username != "" {
		if _, err := s.store.Logout(ctx, session.Account.Username); err != nil {
			s.logger.Warn("remote logout failed",
				slog.Int("account_id", session.AccountID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.logger.Info("account logged out", slog.String("session_id", sessionID))
	return nil
}

// SignUp はアカウントを作成し、そのままログイン状態にする。
// 店舗APIへの再ログインは行わない。
// パスワード確認が一致しない場合は店舗APIを呼び出さない。
func (s *Service) SignUp(ctx context.Context, form SignUpForm) (*ResolvedSession, error) {
	if err := s.validate.Struct(form); err != nil {
		return nil, err
	}
	if form.Password != form.ConfirmPassword {
		return nil, model.NewPasswordMismatchError()
	}

	created, err := s.store.CreateAccount(ctx, model.Account{
		Username:       strings.TrimSpace(form.Username),
		Email:          strings.TrimSpace(form.Email),
		FirstName:      strings.TrimSpace(form.FirstName),
		LastName:       strings.TrimSpace(form.LastName),
		Password:       form.Password,
		Payment:        model.EmptyPayment(),
		Address:        model.EmptyAddress(),
		ShoppingCart:   model.ShoppingCart{},
		ProfilePicture: model.DefaultProfilePicture,
	})
	if err != nil {
		if storeapi.IsConflict(err) {
			return nil, model.NewUsernameTakenError(form.Username)
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	if created == nil || created.ID == 0 {
		return nil, fmt.Errorf("failed to create account: empty response")
	}

	// 店舗APIは作成と同時にログインさせるため、返却されたセッションIDをそのまま使う
	resolved, err := s.openSession(ctx, *created)
	if err != nil {
		return nil, err
	}

	s.logger.Info("account created",
		slog.Int("account_id", created.ID),
		slog.String("session_id", resolved.Session.ID),
	)
	return resolved, nil
}

// Resolve はセッションIDから最新のアカウントを解決する。
// セッションが無い場合と店舗APIからの再取得に失敗した場合は nil を返し、未ログインとして扱う。
// 店舗API側のセッションが終了している場合はローカルのセッションも削除する。
func (s *Service) Resolve(ctx context.Context, sessionID string) (*ResolvedSession, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	acct, err := s.fetchCurrent(ctx, session)
	if err != nil {
		s.logger.Warn("failed to refresh session account",
			slog.String("session_id", session.ID),
			slog.Int("account_id", session.AccountID),
			slog.String("error", err.Error()),
		)
		if s.remoteSessionEnded(ctx, session, err) {
			if delErr := s.sessionRepo.DeleteByID(ctx, session.ID); delErr != nil {
				s.logger.Error("failed to delete stale session",
					slog.String("session_id", session.ID),
					slog.String("error", delErr.Error()),
				)
			}
		}
		return nil, nil
	}

	return &ResolvedSession{Session: session, Account: acct.Sanitized()}, nil
}

// Refresh はアカウント更新後にセッションへ保存したアカウントを置き換える。
func (s *Service) Refresh(ctx context.Context, sessionID string, acct model.Account) error {
	if err := s.sessionRepo.UpdateAccount(ctx, sessionID, acct); err != nil {
		return fmt.Errorf("failed to refresh session: %w", err)
	}
	return nil
}

// ActiveSessions は管理者向けのセッション概況。
type ActiveSessions struct {
	RemoteActive   bool `json:"remoteActive"`
	RemoteAccounts int  `json:"remoteAccounts"`
	LocalSessions  int  `json:"localSessions"`
}

// HasActiveSession は全アカウントを走査し、sessionID が 0 でないアカウントがあるかを返す。
// 管理者向けの概況表示にのみ使用し、リクエストのセッション解決には使わない。
func (s *Service) HasActiveSession(ctx context.Context) (*ActiveSessions, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	result := &ActiveSessions{}
	for _, a := range accounts {
		if a.HasSession() {
			result.RemoteActive = true
			result.RemoteAccounts++
		}
	}

	n, err := s.sessionRepo.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	result.LocalSessions = n
	return result, nil
}

// Accounts は管理者向けに全アカウントを返す。
// パスワードは除去し、カード番号は末尾4桁以外を伏せる。
func (s *Service) Accounts(ctx context.Context) ([]model.Account, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	result := make([]model.Account, len(accounts))
	for i, a := range accounts {
		a = a.Sanitized()
		a.Payment = a.Payment.Masked()
		result[i] = a
	}
	return result, nil
}

// openSession はストアフロントセッションを作成し永続化する。
func (s *Service) openSession(ctx context.Context, acct model.Account) (*ResolvedSession, error) {
	now := s.now()
	clean := acct.Sanitized()
	session := &model.StoreSession{
		ID:              uuid.New().String(),
		AccountID:       clean.ID,
		RemoteSessionID: clean.SessionID,
		Account:         clean,
		ExpiresAt:       now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return &ResolvedSession{Session: session, Account: clean}, nil
}

// fetchCurrent はセッションに対応する最新のアカウントを取得する。
// 店舗API側のセッションIDが無い場合はアカウントIDで取得する。
func (s *Service) fetchCurrent(ctx context.Context, session *model.StoreSession) (*model.Account, error) {
	if session.RemoteSessionID != 0 {
		return s.store.GetCurrentAccount(ctx, session.RemoteSessionID)
	}
	return s.store.GetAccount(ctx, session.AccountID)
}

// remoteSessionEnded は再取得の失敗が店舗API側のセッション終了によるものかを判定する。
// 店舗APIは未知のセッションIDに500を返すため、5xxの場合はアカウントIDで取得し直して
// 保存したセッションIDと一致しなければ終了済みとみなす。
func (s *Service) remoteSessionEnded(ctx context.Context, session *model.StoreSession, err error) bool {
	if storeapi.IsNotFound(err) {
		return true
	}
	if session.RemoteSessionID == 0 || !storeapi.IsServerError(err) {
		return false
	}

	acct, getErr := s.store.GetAccount(ctx, session.AccountID)
	if getErr != nil {
		return storeapi.IsNotFound(getErr)
	}
	return acct != nil && acct.ID != 0 && acct.SessionID != session.RemoteSessionID
}
