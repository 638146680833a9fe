package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/techasaurus/internal/model"
)

const pathSeparator = ","

// PostgresCheckoutAuditRepo はPostgreSQLを使用したチェックアウト結果リポジトリ。
type PostgresCheckoutAuditRepo struct {
	db *sql.DB
}

// NewPostgresCheckoutAuditRepo はPostgresCheckoutAuditRepoを生成する。
func NewPostgresCheckoutAuditRepo(db *sql.DB) *PostgresCheckoutAuditRepo {
	return &PostgresCheckoutAuditRepo{db: db}
}

// Record は結果を1件記録する。
func (r *PostgresCheckoutAuditRepo) Record(ctx context.Context, audit *model.CheckoutAudit) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO checkout_audits (id, account_id, final_state, path, error_code, item_count, total, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		audit.ID, audit.AccountID, string(audit.FinalState), encodePath(audit.Path),
		audit.ErrorCode, audit.ItemCount, audit.Total, audit.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record checkout audit: %w", err)
	}
	return nil
}

// ListByAccount はアカウントの記録を新しい順に返す。
func (r *PostgresCheckoutAuditRepo) ListByAccount(ctx context.Context, accountID, limit int) ([]model.CheckoutAudit, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, account_id, final_state, path, error_code, item_count, total, created_at
		 FROM checkout_audits
		 WHERE account_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		accountID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkout audits: %w", err)
	}
	defer rows.Close()

	var audits []model.CheckoutAudit
	for rows.Next() {
		var a model.CheckoutAudit
		var state, path string
		if err := rows.Scan(&a.ID, &a.AccountID, &state, &path, &a.ErrorCode, &a.ItemCount, &a.Total, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkout audit: %w", err)
		}
		a.FinalState = model.CheckoutState(state)
		a.Path = decodePath(path)
		audits = append(audits, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate checkout audits: %w", err)
	}
	return audits, nil
}

func encodePath(path []model.CheckoutState) string {
	parts := make([]string, len(path))
	for i, s := range path {
		parts[i] = string(s)
	}
	return strings.Join(parts, pathSeparator)
}

func decodePath(s string) []model.CheckoutState {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, pathSeparator)
	out := make([]model.CheckoutState, len(parts))
	for i, p := range parts {
		out[i] = model.CheckoutState(p)
	}
	return out
}

// compile-time interface check
var _ CheckoutAuditRepository = (*PostgresCheckoutAuditRepo)(nil)
