package model

import (
	"strings"
	"time"
)

// DefaultProfilePicture は新規アカウントに設定されるプロフィール画像URL。
const DefaultProfilePicture = "https://upload.wikimedia.org/wikipedia/commons/a/ac/Default_pfp.jpg"

// Account は店舗APIが管理する顧客アカウントを表す。
// JSONフィールド名は店舗APIのワイヤーフォーマットに一致させる。
type Account struct {
	ID             int          `json:"id"`
	Username       string       `json:"username"`
	Email          string       `json:"email"`
	FirstName      string       `json:"firstName"`
	LastName       string       `json:"lastName"`
	Password       string       `json:"password,omitempty"`
	IsLoggedIn     bool         `json:"isLoggedIn"`
	SessionID      int          `json:"sessionID"`
	Payment        Payment      `json:"payment"`
	ShoppingCart   ShoppingCart `json:"shoppingCart"`
	Address        Address      `json:"address"`
	ProfilePicture string       `json:"profilePicture"`
}

// Sanitized はパスワードを除去したコピーを返す。
// クライアント側に永続化・返却するアカウントは必ずこれを通す。
func (a Account) Sanitized() Account {
	a.Password = ""
	return a
}

// HasSession はサーバー側でセッションが払い出されているかを返す。
func (a Account) HasSession() bool {
	return a.SessionID != 0
}

// IsAdmin は管理者アカウントかどうかを返す。
func (a Account) IsAdmin(adminUsername string) bool {
	return adminUsername != "" && strings.EqualFold(a.Username, adminUsername)
}

// Payment は支払い情報を表す。
// 空値（IsEmpty）は「未設定」を意味するセンチネル。
type Payment struct {
	CardNumber string `json:"cardNumber"`
	CardHolder string `json:"cardHolder"`
	ExpDate    string `json:"expDate"`
	CVV        int    `json:"cvv"`
}

// EmptyPayment は未設定を表す支払い情報を返す。
func EmptyPayment() Payment {
	return Payment{}
}

// IsEmpty は支払い情報が未設定かどうかを返す。
func (p Payment) IsEmpty() bool {
	return p == Payment{}
}

// IsSet はチェックアウト可能な支払い情報かを返す。
// カード名義が空でないことだけを条件とする。
func (p Payment) IsSet() bool {
	return strings.TrimSpace(p.CardHolder) != ""
}

// Masked はカード番号の末尾4桁以外を伏せたコピーを返す。
func (p Payment) Masked() Payment {
	if n := len(p.CardNumber); n > 4 {
		p.CardNumber = strings.Repeat("*", n-4) + p.CardNumber[n-4:]
	}
	p.CVV = 0
	return p
}

// Address は配送先住所を表す。
type Address struct {
	City        string `json:"city"`
	Street      string `json:"street"`
	State       string `json:"state"`
	HouseNumber string `json:"houseNumber"`
	Zip         int    `json:"zip"`
}

// EmptyAddress は未設定を表す住所を返す。
func EmptyAddress() Address {
	return Address{}
}

// IsEmpty は住所が未設定かどうかを返す。
func (a Address) IsEmpty() bool {
	return a == Address{}
}

// IsSet はチェックアウト可能な住所かを返す。市区町村が空でないことを条件とする。
func (a Address) IsSet() bool {
	return strings.TrimSpace(a.City) != ""
}

// OrderLine は注文履歴の1行を表す。
type OrderLine struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// StoreSession はブラウザとアカウントを結びつけるストアフロント側のセッション。
// Account はパスワードを除去した状態でのみ保持する。
type StoreSession struct {
	ID              string
	AccountID       int
	RemoteSessionID int
	Account         Account
	ExpiresAt       time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsExpired は指定時刻時点で期限切れかを返す。
func (s *StoreSession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
