// Package warm は商品カタログキャッシュの定期ウォームアップを提供する。
package warm

import (
	"context"
	"log/slog"
	"time"
)

// Warmer はカタログキャッシュを再構築するインターフェース。
type Warmer interface {
	Warm(ctx context.Context) error
}

// Scheduler は一定間隔でカタログキャッシュを再構築する。
// 一時的な失敗は指数バックオフで再試行し、成功すると通常間隔に戻る。
type Scheduler struct {
	warmer   Warmer
	logger   *slog.Logger
	interval time.Duration

	// after はテストで待機を差し替えるためのフック。
	after func(d time.Duration) <-chan time.Time
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// intervalが0以下の場合はデフォルト値5分を使用する。
func NewScheduler(warmer Warmer, logger *slog.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		warmer:   warmer,
		logger:   logger,
		interval: interval,
		after:    time.After,
	}
}

// Start は起動直後に1回ウォームアップし、以降は結果に応じた間隔で繰り返す。
// コンテキストがキャンセルされるまで戻らない。
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("カタログウォームアップを開始しました",
		slog.Duration("interval", s.interval),
	)

	consecutiveErrors := 0
	for {
		wait := s.interval
		if s.RunOnce(ctx) == OutcomeBackoff {
			wait = CalculateBackoff(consecutiveErrors)
			consecutiveErrors++
		} else {
			consecutiveErrors = 0
		}

		select {
		case <-ctx.Done():
			s.logger.Info("カタログウォームアップを停止しました")
			return
		case <-s.after(wait):
		}
	}
}

// RunOnce は1回ウォームアップを実行し、結果の分類を返す。
func (s *Scheduler) RunOnce(ctx context.Context) Outcome {
	start := time.Now()
	err := s.warmer.Warm(ctx)
	outcome := Classify(err)

	switch outcome {
	case OutcomeOK:
		s.logger.Info("カタログキャッシュを再構築しました",
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
	case OutcomeBackoff:
		s.logger.Warn("カタログの再構築に失敗しました。バックオフ後に再試行します",
			slog.String("error", err.Error()),
		)
	case OutcomeStop:
		s.logger.Error("カタログの再構築に失敗しました。次の定期実行まで待機します",
			slog.String("error", err.Error()),
		)
	}
	return outcome
}
