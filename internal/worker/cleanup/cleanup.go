// Package cleanup はストアフロントが保持するデータの定期削除ジョブを提供する。
// 期限切れのセッションと、保持期間を過ぎたチェックアウト記録を削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/techasaurus/internal/model"
	"github.com/hitoshi/techasaurus/internal/storeapi"
)

// Executor はSQLの実行と問い合わせを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付ける。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// RemoteSessions は期限切れセッションに対応する店舗API側のセッションを終了させる操作。
type RemoteSessions interface {
	GetAccount(ctx context.Context, id int) (*model.Account, error)
	Logout(ctx context.Context, username string) (*model.Account, error)
}

const (
	selectExpiredSessionsSQL = `SELECT id, account_id, account->>'username', remote_session_id FROM storefront_sessions WHERE expires_at <= now()`
	deleteSessionSQL         = `DELETE FROM storefront_sessions WHERE id = $1`
	deleteOldAuditsSQL       = `DELETE FROM checkout_audits WHERE created_at < $1`
)

// Report は1回の実行で削除した件数。
type Report struct {
	ExpiredSessions int64
	RemoteLogouts   int64
	OldAudits       int64
}

// CleanupJob は期限切れデータの削除ジョブ。削除対象が無くてもエラーにならない。
type CleanupJob struct {
	db             Executor
	remote         RemoteSessions
	logger         *slog.Logger
	auditRetention time.Duration
	now            func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// auditRetention が0以下の場合はチェックアウト記録を削除しない。
func NewCleanupJob(db Executor, remote RemoteSessions, logger *slog.Logger, auditRetention time.Duration) *CleanupJob {
	return &CleanupJob{
		db:             db,
		remote:         remote,
		logger:         logger,
		auditRetention: auditRetention,
		now:            time.Now,
	}
}

// expiredSession は期限切れセッションの1行。
type expiredSession struct {
	id              string
	accountID       int
	username        string
	remoteSessionID int
}

// Run は期限切れセッションと古いチェックアウト記録を削除する。
// 店舗API側のセッションは1アカウントにつき1つのため、期限切れセッションの
// 店舗API側セッションが残っていればログアウトさせてから削除する。
func (j *CleanupJob) Run(ctx context.Context) (*Report, error) {
	start := j.now()
	report := &Report{}

	expired, err := j.findExpired(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired sessions: %w", err)
	}
	for _, e := range expired {
		loggedOut, err := j.endRemoteSession(ctx, e)
		if err != nil {
			// 店舗APIに届かない場合は行を残し、次回の実行で再試行する
			j.logger.Warn("店舗API側のセッション終了に失敗しました",
				slog.String("session_id", e.id),
				slog.Int("account_id", e.accountID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if loggedOut {
			report.RemoteLogouts++
		}

		n, err := j.exec(ctx, deleteSessionSQL, e.id)
		if err != nil {
			return nil, fmt.Errorf("failed to delete expired session: %w", err)
		}
		report.ExpiredSessions += n
	}

	if j.auditRetention > 0 {
		n, err := j.exec(ctx, deleteOldAuditsSQL, start.Add(-j.auditRetention))
		if err != nil {
			return nil, fmt.Errorf("failed to delete old checkout audits: %w", err)
		}
		report.OldAudits = n
	}

	j.logger.Info("クリーンアップが完了しました",
		slog.Int64("expired_sessions", report.ExpiredSessions),
		slog.Int64("remote_logouts", report.RemoteLogouts),
		slog.Int64("old_audits", report.OldAudits),
		slog.Duration("audit_retention", j.auditRetention),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return report, nil
}

func (j *CleanupJob) findExpired(ctx context.Context) ([]expiredSession, error) {
	rows, err := j.db.QueryContext(ctx, selectExpiredSessionsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []expiredSession
	for rows.Next() {
		var e expiredSession
		var username sql.NullString
		if err := rows.Scan(&e.id, &e.accountID, &username, &e.remoteSessionID); err != nil {
			return nil, err
		}
		e.username = username.String
		expired = append(expired, e)
	}
	return expired, rows.Err()
}

// endRemoteSession は店舗API側のセッションがこの行のものとして残っていればログアウトさせる。
// 別のセッションIDで再ログイン済みの場合は何もしない。
func (j *CleanupJob) endRemoteSession(ctx context.Context, e expiredSession) (bool, error) {
	if j.remote == nil || e.remoteSessionID == 0 || e.username == "" {
		return false, nil
	}

	acct, err := j.remote.GetAccount(ctx, e.accountID)
	if err != nil {
		if storeapi.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if acct == nil || acct.SessionID != e.remoteSessionID {
		return false, nil
	}

	if _, err := j.remote.Logout(ctx, e.username); err != nil && !storeapi.IsNotFound(err) {
		return false, err
	}
	return true, nil
}

func (j *CleanupJob) exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Start は起動直後に1回、その後 interval ごとに Run を実行する。
// コンテキストがキャンセルされるまで戻らない。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := j.Run(ctx); err != nil {
			j.logger.Error("クリーンアップに失敗しました", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
		}
	}
}
