// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/techasaurus/internal/model"
)

// SessionRepository はストアフロントセッションの永続化インターフェース。
// 保存されるアカウントは常にパスワードを除去したもの。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.StoreSession) error
	// FindByID は指定IDのセッションを取得する。存在しないか期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.StoreSession, error)
	// UpdateAccount はセッションに保存したアカウントを置き換える。
	UpdateAccount(ctx context.Context, id string, account model.Account) error
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByAccountID は指定アカウントの全セッションを削除する。
	DeleteByAccountID(ctx context.Context, accountID int) error
	// CountActive は有効期限内のセッション数を返す。
	CountActive(ctx context.Context) (int, error)
}

// CheckoutAuditRepository はチェックアウト結果記録の永続化インターフェース。
type CheckoutAuditRepository interface {
	// Record は結果を1件記録する。
	Record(ctx context.Context, audit *model.CheckoutAudit) error
	// ListByAccount はアカウントの記録を新しい順に最大limit件返す。
	ListByAccount(ctx context.Context, accountID, limit int) ([]model.CheckoutAudit, error)
}
