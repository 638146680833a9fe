package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hitoshi/techasaurus/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したストアフロントセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。アカウントはパスワードを除去してから保存する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.StoreSession) error {
	blob, err := json.Marshal(session.Account.Sanitized())
	if err != nil {
		return fmt.Errorf("failed to encode session account: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO storefront_sessions (id, account_id, remote_session_id, account, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.ID, session.AccountID, session.RemoteSessionID, blob,
		session.ExpiresAt, session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.StoreSession, error) {
	session := &model.StoreSession{}
	var blob []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, remote_session_id, account, expires_at, created_at, updated_at
		 FROM storefront_sessions
		 WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&session.ID, &session.AccountID, &session.RemoteSessionID, &blob,
		&session.ExpiresAt, &session.CreatedAt, &session.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	if err := json.Unmarshal(blob, &session.Account); err != nil {
		return nil, fmt.Errorf("failed to decode session account: %w", err)
	}
	return session, nil
}

// UpdateAccount はセッションのアカウントを置き換える。
func (r *PostgresSessionRepo) UpdateAccount(ctx context.Context, id string, account model.Account) error {
	blob, err := json.Marshal(account.Sanitized())
	if err != nil {
		return fmt.Errorf("failed to encode session account: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE storefront_sessions
		 SET account = $2, account_id = $3, remote_session_id = $4, updated_at = now()
		 WHERE id = $1`,
		id, blob, account.ID, account.SessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session account: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM storefront_sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByAccountID は指定アカウントの全セッションを削除する。
func (r *PostgresSessionRepo) DeleteByAccountID(ctx context.Context, accountID int) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM storefront_sessions WHERE account_id = $1`,
		accountID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete account sessions: %w", err)
	}
	return nil
}

// CountActive は有効期限内のセッション数を返す。
func (r *PostgresSessionRepo) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM storefront_sessions WHERE expires_at > now()`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
