// Package storeapitest は店舗APIのアカウント操作を模したテスト用の実装を提供する。
package storeapitest

import (
	"context"
	"net/http"
	"sync"

	"github.com/hitoshi/techasaurus/internal/model"
	"github.com/hitoshi/techasaurus/internal/storeapi"
)

// SessionStore は店舗APIのアカウント操作をメモリ上で再現する。
// 店舗APIと同じく1アカウントにつき有効なセッションは1つだけで、
// ログイン中のアカウントへの再ログインは404になる。
type SessionStore struct {
	mu            sync.Mutex
	accounts      map[int]*model.Account
	nextID        int
	nextSessionID int

	// LoginCalls はLoginの呼び出し回数。
	LoginCalls int
	// LogoutCalls はLogoutで指定されたユーザー名。
	LogoutCalls []string
}

// NewSessionStore は空のSessionStoreを生成する。
func NewSessionStore() *SessionStore {
	return &SessionStore{
		accounts:      make(map[int]*model.Account),
		nextID:        1,
		nextSessionID: 1,
	}
}

// Seed はログアウト状態のアカウントを登録し、IDを返す。
func (s *SessionStore) Seed(acct model.Account) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct.ID = s.nextID
	acct.SessionID = 0
	s.nextID++
	s.accounts[acct.ID] = &acct
	return acct.ID
}

// Active はユーザー名のアカウントが店舗API側でログイン中かを返す。
func (s *SessionStore) Active(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.byUsername(username)
	return a != nil && a.SessionID != 0
}

// Password は保存されているパスワードを返す。
func (s *SessionStore) Password(id int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.accounts[id]; ok {
		return a.Password
	}
	return ""
}

// Login は資格情報を照合し、新しいセッションIDを払い出す。
func (s *SessionStore) Login(_ context.Context, username, password string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.LoginCalls++
	a := s.byUsername(username)
	if a == nil || a.Password != password || a.SessionID != 0 {
		return nil, notFound("login")
	}
	a.SessionID = s.issueSessionID()
	out := *a
	return &out, nil
}

// Logout はユーザー名のセッションを終了する。
func (s *SessionStore) Logout(_ context.Context, username string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.LogoutCalls = append(s.LogoutCalls, username)
	a := s.byUsername(username)
	if a == nil {
		return nil, notFound("logout")
	}
	a.SessionID = 0
	out := *a
	return &out, nil
}

// CreateAccount はアカウントを作成し、作成と同時にログイン状態にする。
func (s *SessionStore) CreateAccount(_ context.Context, acct model.Account) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.byUsername(acct.Username) != nil {
		return nil, &storeapi.StatusError{Operation: "create_account", StatusCode: http.StatusConflict}
	}
	acct.ID = s.nextID
	s.nextID++
	acct.SessionID = s.issueSessionID()
	s.accounts[acct.ID] = &acct
	out := acct
	return &out, nil
}

// UpdateAccount はログイン中のアカウントのみ更新する。セッションIDは保存値を維持する。
func (s *SessionStore) UpdateAccount(_ context.Context, acct model.Account) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[acct.ID]
	if !ok || a.SessionID == 0 {
		return nil, notFound("update_account")
	}
	acct.SessionID = a.SessionID
	*a = acct
	out := acct
	return &out, nil
}

// GetAccount はIDでアカウントを返す。
func (s *SessionStore) GetAccount(_ context.Context, id int) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, notFound("get_account")
	}
	out := *a
	return &out, nil
}

// GetCurrentAccount はセッションIDに紐づくアカウントを返す。
// 該当が無い場合は店舗APIと同じく500を返す。
func (s *SessionStore) GetCurrentAccount(_ context.Context, sessionID int) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if sessionID != 0 && a.SessionID == sessionID {
			out := *a
			return &out, nil
		}
	}
	return nil, &storeapi.StatusError{Operation: "get_current_account", StatusCode: http.StatusInternalServerError}
}

// ListAccounts は全アカウントを返す。
func (s *SessionStore) ListAccounts(context.Context) ([]model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Account, 0, len(s.accounts))
	for id := 1; id < s.nextID; id++ {
		if a, ok := s.accounts[id]; ok {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *SessionStore) byUsername(username string) *model.Account {
	for _, a := range s.accounts {
		if a.Username == username {
			return a
		}
	}
	return nil
}

func (s *SessionStore) issueSessionID() int {
	id := s.nextSessionID
	s.nextSessionID++
	return id
}

func notFound(op string) error {
	return &storeapi.StatusError{Operation: op, StatusCode: http.StatusNotFound}
}
