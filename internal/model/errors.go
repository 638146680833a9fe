// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, cart, checkout, catalog, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodePasswordMismatch   = "PASSWORD_MISMATCH"
	ErrCodeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	ErrCodeUsernameTaken      = "USERNAME_TAKEN"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeInvalidCardNumber  = "INVALID_CARD_NUMBER"
	ErrCodeInvalidCVV         = "INVALID_CVV"
	ErrCodeInvalidZip         = "INVALID_ZIP"
	ErrCodeColorRequired      = "COLOR_REQUIRED"
	ErrCodeColorNotAvailable  = "COLOR_NOT_AVAILABLE"
	ErrCodeAdminCannotShop    = "ADMIN_CANNOT_SHOP"
	ErrCodeOutOfStock         = "OUT_OF_STOCK"
	ErrCodeCartLineNotFound   = "CART_LINE_NOT_FOUND"
	ErrCodeCartEmpty          = "CART_EMPTY"
	ErrCodePaymentRequired    = "PAYMENT_REQUIRED"
	ErrCodeAddressRequired    = "ADDRESS_REQUIRED"
	ErrCodeInsufficientStock  = "INSUFFICIENT_STOCK"
	ErrCodeCheckoutFailed     = "CHECKOUT_FAILED"
	ErrCodeCheckoutTimeout    = "CHECKOUT_TIMEOUT"
	ErrCodeProductNotFound    = "PRODUCT_NOT_FOUND"
	ErrCodeInvalidProduct     = "INVALID_PRODUCT"
	ErrCodeDuplicateColor     = "DUPLICATE_COLOR"
	ErrCodeUnknownColor       = "UNKNOWN_COLOR"
	ErrCodeInvalidRating      = "INVALID_RATING"
	ErrCodeDuplicateReview    = "DUPLICATE_REVIEW"
	ErrCodeReviewNotFound     = "REVIEW_NOT_FOUND"
	ErrCodeInvalidURL         = "INVALID_URL"
	ErrCodeSSRFBlocked        = "SSRF_BLOCKED"
	ErrCodeStoreUnavailable   = "STORE_UNAVAILABLE"
)

// NewUnauthorizedError はログインが必要な操作を未ログインで呼んだ場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者アカウントでログインしてください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewPasswordMismatchError は確認用パスワード不一致エラーを生成する。
func NewPasswordMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordMismatch,
		Message:  "パスワードと確認用パスワードが一致しません。",
		Category: "validation",
		Action:   "同じパスワードを2回入力してください。",
	}
}

// NewAccountNotFoundError はアカウント未検出エラーを生成する。
func NewAccountNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotFound,
		Message:  "アカウントが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewUsernameTakenError はユーザー名重複エラーを生成する。
func NewUsernameTakenError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeUsernameTaken,
		Message:  fmt.Sprintf("ユーザー名は既に使用されています: %s", username),
		Category: "auth",
		Action:   "別のユーザー名を入力してください。",
	}
}

// NewInvalidRequestError はリクエストボディ不正エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力値が不正です: %s (%s)", field, reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidCardNumberError はカード番号不正エラーを生成する。
func NewInvalidCardNumberError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCardNumber,
		Message:  "カード番号は16桁で入力してください。",
		Category: "validation",
		Action:   "カード番号を確認してください。",
	}
}

// NewInvalidCVVError はセキュリティコード不正エラーを生成する。
func NewInvalidCVVError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCVV,
		Message:  "セキュリティコードは3桁（100〜999）で入力してください。",
		Category: "validation",
		Action:   "カード裏面のセキュリティコードを確認してください。",
	}
}

// NewInvalidZipError は郵便番号不正エラーを生成する。
func NewInvalidZipError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidZip,
		Message:  "郵便番号は5桁以内の数値で入力してください。",
		Category: "validation",
		Action:   "郵便番号を確認してください。",
	}
}

// NewColorRequiredError はカラー未選択エラーを生成する。
func NewColorRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeColorRequired,
		Message:  "カラーが選択されていません。",
		Category: "cart",
		Action:   "カラーを選択してからカートに追加してください。",
	}
}

// NewColorNotAvailableError は商品に存在しないカラーを指定した場合のエラーを生成する。
func NewColorNotAvailableError(product, color string) *APIError {
	return &APIError{
		Code:     ErrCodeColorNotAvailable,
		Message:  fmt.Sprintf("%s には %s のカラーがありません。", product, color),
		Category: "cart",
		Action:   "商品ページに表示されているカラーから選択してください。",
	}
}

// NewAdminCannotShopError は管理者アカウントでの購入操作エラーを生成する。
func NewAdminCannotShopError() *APIError {
	return &APIError{
		Code:     ErrCodeAdminCannotShop,
		Message:  "管理者アカウントではカートを利用できません。",
		Category: "cart",
		Action:   "購入には一般アカウントでログインしてください。",
	}
}

// NewOutOfStockError は在庫切れエラーを生成する。
func NewOutOfStockError(product string) *APIError {
	return &APIError{
		Code:     ErrCodeOutOfStock,
		Message:  fmt.Sprintf("%s は在庫切れです。", product),
		Category: "cart",
		Action:   "入荷をお待ちください。",
	}
}

// NewCartLineNotFoundError はカート行未検出エラーを生成する。
func NewCartLineNotFoundError(lineID string) *APIError {
	return &APIError{
		Code:     ErrCodeCartLineNotFound,
		Message:  fmt.Sprintf("カートに該当する商品がありません: %s", lineID),
		Category: "cart",
		Action:   "カートを再読み込みしてください。",
	}
}

// NewCartEmptyError は空カートでのチェックアウトエラーを生成する。
func NewCartEmptyError() *APIError {
	return &APIError{
		Code:     ErrCodeCartEmpty,
		Message:  "カートが空です。",
		Category: "checkout",
		Action:   "商品をカートに追加してください。",
	}
}

// NewPaymentRequiredError は支払い情報未設定エラーを生成する。
func NewPaymentRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodePaymentRequired,
		Message:  "支払い情報が登録されていません。",
		Category: "checkout",
		Action:   "支払い情報を登録してから再度お試しください。",
	}
}

// NewAddressRequiredError は住所未設定エラーを生成する。
func NewAddressRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAddressRequired,
		Message:  "配送先住所が登録されていません。",
		Category: "checkout",
		Action:   "配送先住所を登録してから再度お試しください。",
	}
}

// NewInsufficientStockError は在庫不足エラーを生成する。
func NewInsufficientStockError(product string, requested, available int) *APIError {
	return &APIError{
		Code:     ErrCodeInsufficientStock,
		Message:  fmt.Sprintf("%s の在庫が不足しています（注文数 %d / 在庫 %d）。", product, requested, available),
		Category: "checkout",
		Action:   "カートの数量を減らしてから再度お試しください。",
	}
}

// NewCheckoutFailedError は注文確定処理の失敗エラーを生成する。
func NewCheckoutFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeCheckoutFailed,
		Message:  "注文を確定できませんでした。在庫の変更は取り消されました。",
		Category: "checkout",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewCheckoutTimeoutError は支払い・住所の登録待ちがタイムアウトした場合のエラーを生成する。
func NewCheckoutTimeoutError() *APIError {
	return &APIError{
		Code:     ErrCodeCheckoutTimeout,
		Message:  "支払い情報または住所の登録を待機中にタイムアウトしました。",
		Category: "checkout",
		Action:   "登録を完了してから再度チェックアウトしてください。",
	}
}

// NewProductNotFoundError は商品未検出エラーを生成する。
func NewProductNotFoundError(productID int) *APIError {
	return &APIError{
		Code:     ErrCodeProductNotFound,
		Message:  fmt.Sprintf("指定された商品が見つかりません: %d", productID),
		Category: "catalog",
		Action:   "商品一覧から選択し直してください。",
	}
}

// NewInvalidProductError は商品登録・更新時の入力不正エラーを生成する。
func NewInvalidProductError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidProduct,
		Message:  fmt.Sprintf("商品情報が不正です: %s", reason),
		Category: "validation",
		Action:   "商品名・価格・在庫数を確認してください。",
	}
}

// NewDuplicateColorError はカラー重複エラーを生成する。
func NewDuplicateColorError(color string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateColor,
		Message:  fmt.Sprintf("カラーが重複しています: %s", color),
		Category: "validation",
		Action:   "同じカラーは1回だけ選択してください。",
	}
}

// NewUnknownColorError はカタログに存在しないカラーのエラーを生成する。
func NewUnknownColorError(color string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownColor,
		Message:  fmt.Sprintf("カタログに存在しないカラーです: %s", color),
		Category: "validation",
		Action:   "カラー一覧から選択してください。",
	}
}

// NewInvalidRatingError は評価値不正エラーを生成する。
func NewInvalidRatingError(rating int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRating,
		Message:  fmt.Sprintf("評価は%dから%dの範囲で指定してください: %d", MinRating, MaxRating, rating),
		Category: "validation",
		Action:   "星の数を選び直してください。",
	}
}

// NewDuplicateReviewError は同じ商品への2回目のレビュー投稿エラーを生成する。
func NewDuplicateReviewError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateReview,
		Message:  "この商品には既にレビューを投稿しています。",
		Category: "review",
		Action:   "既存のレビューを削除してから投稿し直してください。",
	}
}

// NewReviewNotFoundError はレビュー未検出エラーを生成する。
func NewReviewNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeReviewNotFound,
		Message:  "レビューが見つかりません。",
		Category: "review",
		Action:   "ページを再読み込みしてください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されている画像のURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewStoreUnavailableError は店舗APIの呼び出し失敗エラーを生成する。
func NewStoreUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "ストアサーバーとの通信に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
