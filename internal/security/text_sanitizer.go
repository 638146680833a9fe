// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はユーザーや管理者が入力したテキストからHTMLを除去するインターフェース。
// レビュー本文と商品説明の保存前および応答前に使用される。
type TextSanitizer interface {
	// Sanitize は全てのタグを除去したテキストを返す。前後の空白は取り除く。
	Sanitize(raw string) string
}

type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はbluemondayのストリクトポリシーを使用するTextSanitizerを生成する。
// ポリシーはスレッドセーフで、複数のgoroutineから共有できる。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize は全てのタグを除去したテキストを返す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
