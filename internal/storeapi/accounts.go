package storeapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hitoshi/techasaurus/internal/model"
)

func accountPath(elems ...string) string {
	p := "/account"
	for _, e := range elems {
		p += "/" + e
	}
	return p
}

func itoa(i int) string { return strconv.Itoa(i) }

// Login は資格情報をサーバーに渡して認証する。
// 資格情報の検証はすべてサーバー側で行われ、不一致の場合は404が返る。
func (c *Client) Login(ctx context.Context, username, password string) (*model.Account, error) {
	q := url.Values{}
	q.Set("username", username)
	q.Set("password", password)

	var acct model.Account
	if err := c.do(ctx, "login", http.MethodGet, accountPath("login"), q, nil, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// Logout はユーザー名でサーバー側セッションを終了する。
func (c *Client) Logout(ctx context.Context, username string) (*model.Account, error) {
	q := url.Values{}
	q.Set("username", username)

	var acct model.Account
	if err := c.do(ctx, "logout", http.MethodGet, accountPath("logout"), q, nil, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// ListAccounts は全アカウントを取得する。
func (c *Client) ListAccounts(ctx context.Context) ([]model.Account, error) {
	var accts []model.Account
	if err := c.do(ctx, "list_accounts", http.MethodGet, accountPath(), nil, nil, &accts); err != nil {
		return nil, err
	}
	return accts, nil
}

// GetAccount はIDでアカウントを取得する。
func (c *Client) GetAccount(ctx context.Context, id int) (*model.Account, error) {
	var acct model.Account
	if err := c.do(ctx, "get_account", http.MethodGet, accountPath(itoa(id)), nil, nil, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// GetCurrentAccount はサーバー側セッションIDに紐づくアカウントを取得する。
func (c *Client) GetCurrentAccount(ctx context.Context, sessionID int) (*model.Account, error) {
	var acct model.Account
	if err := c.do(ctx, "get_current_account", http.MethodGet, accountPath("current", itoa(sessionID)), nil, nil, &acct); err != nil {
		return nil, err
	}
	if acct.ID == 0 && acct.Username == "" {
		return nil, &StatusError{Operation: "get_current_account", StatusCode: http.StatusNotFound}
	}
	return &acct, nil
}

// CreateAccount はアカウントを作成する。ユーザー名が重複する場合は409が返る。
func (c *Client) CreateAccount(ctx context.Context, acct model.Account) (*model.Account, error) {
	var created model.Account
	if err := c.do(ctx, "create_account", http.MethodPost, accountPath("create"), nil, acct, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateAccount はアカウントを更新する。
func (c *Client) UpdateAccount(ctx context.Context, acct model.Account) (*model.Account, error) {
	var updated model.Account
	if err := c.do(ctx, "update_account", http.MethodPost, accountPath("update"), nil, acct, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteAccount はアカウントを削除する。
func (c *Client) DeleteAccount(ctx context.Context, id int) error {
	return c.do(ctx, "delete_account", http.MethodDelete, accountPath(itoa(id)), nil, nil, nil)
}

// UpdatePayment は支払い情報を更新する。
func (c *Client) UpdatePayment(ctx context.Context, accountID int, p model.Payment) (*model.Payment, error) {
	var out model.Payment
	if err := c.do(ctx, "update_payment", http.MethodPost, accountPath(itoa(accountID), "payment"), nil, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateAddress は住所を更新する。
func (c *Client) UpdateAddress(ctx context.Context, accountID int, a model.Address) (*model.Address, error) {
	var out model.Address
	// 店舗APIのルートは末尾スラッシュ付きで定義されている
	if err := c.do(ctx, "update_address", http.MethodPost, accountPath(itoa(accountID), "address")+"/", nil, a, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCart はカートを取得する。
func (c *Client) GetCart(ctx context.Context, accountID int) (*model.ShoppingCart, error) {
	return c.cartCall(ctx, "get_cart", http.MethodGet, accountPath("cart", itoa(accountID)), nil)
}

// AddProductToCart はカート末尾に商品を追加する。同一商品・同一カラーはサーバー側で数量加算にまとめられる。
func (c *Client) AddProductToCart(ctx context.Context, accountID int, p model.Product) (*model.ShoppingCart, error) {
	return c.cartCall(ctx, "cart_add_product", http.MethodPost, accountPath("cart", itoa(accountID), "add", "product"), p)
}

// AddColorToCart は直前に追加した行のカラーを追加する。
func (c *Client) AddColorToCart(ctx context.Context, accountID int, color model.Color) (*model.ShoppingCart, error) {
	return c.cartCall(ctx, "cart_add_color", http.MethodPost, accountPath("cart", itoa(accountID), "add", "color"), color)
}

// RemoveCartLine は指定インデックスの行を削除する。
func (c *Client) RemoveCartLine(ctx context.Context, accountID, index int) (*model.ShoppingCart, error) {
	return c.cartCall(ctx, "cart_remove", http.MethodPost, accountPath("cart", itoa(accountID), "remove", itoa(index)), nil)
}

// IncrementCartLine は指定インデックスの行の数量を1増やす。
func (c *Client) IncrementCartLine(ctx context.Context, accountID, index int) (*model.ShoppingCart, error) {
	return c.cartCall(ctx, "cart_increment", http.MethodPost, accountPath("cart", itoa(accountID), "increment", itoa(index)), nil)
}

// DecrementCartLine は指定インデックスの行の数量を1減らす。数量1の行は削除される。
func (c *Client) DecrementCartLine(ctx context.Context, accountID, index int) (*model.ShoppingCart, error) {
	return c.cartCall(ctx, "cart_decrement", http.MethodPost, accountPath("cart", itoa(accountID), "decrement", itoa(index)), nil)
}

// UpdateCart はカート全体を置き換える。
func (c *Client) UpdateCart(ctx context.Context, accountID int, cart model.ShoppingCart) (*model.ShoppingCart, error) {
	return c.cartCall(ctx, "cart_update", http.MethodPut, accountPath("cart", itoa(accountID), "update"), cart)
}

// PlaceOrder はカートの内容を注文履歴へ移してカートを空にする。
func (c *Client) PlaceOrder(ctx context.Context, accountID int) (*model.ShoppingCart, error) {
	return c.cartCall(ctx, "place_order", http.MethodPost, accountPath("cart", itoa(accountID), "clear"), nil)
}

func (c *Client) cartCall(ctx context.Context, op, method, path string, in any) (*model.ShoppingCart, error) {
	var cart model.ShoppingCart
	if err := c.do(ctx, op, method, path, nil, in, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// GetOrderHistory は注文済み商品の一覧を取得する。
func (c *Client) GetOrderHistory(ctx context.Context, accountID int) ([]model.Product, error) {
	var products []model.Product
	if err := c.do(ctx, "get_order_history", http.MethodGet, accountPath("order-history", itoa(accountID)), nil, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetOrderQuantities は注文履歴の各行の数量を取得する。
func (c *Client) GetOrderQuantities(ctx context.Context, accountID int) ([]int, error) {
	var quantities []int
	if err := c.do(ctx, "get_order_quantities", http.MethodGet, accountPath("order-history", itoa(accountID), "quantity"), nil, nil, &quantities); err != nil {
		return nil, err
	}
	return quantities, nil
}
