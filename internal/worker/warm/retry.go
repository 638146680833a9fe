package warm

import (
	"errors"
	"net/http"
	"time"

	"github.com/hitoshi/techasaurus/internal/storeapi"
)

// Outcome はウォームアップ失敗時の扱いの分類。
type Outcome int

const (
	// OutcomeOK は成功。
	OutcomeOK Outcome = iota
	// OutcomeBackoff は一時的な失敗。間隔を広げて再試行する（429/5xx/通信エラー）。
	OutcomeBackoff
	// OutcomeStop は再試行しても回復しない失敗（401/403/404など）。
	// 次の定期実行まで待機する。
	OutcomeStop
)

const (
	initialBackoff = 10 * time.Second
	maxBackoff     = 5 * time.Minute
)

// Classify はウォームアップのエラーを分類する。
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}
	var se *storeapi.StatusError
	if !errors.As(err, &se) {
		return OutcomeBackoff
	}
	switch {
	case se.StatusCode == http.StatusTooManyRequests:
		return OutcomeBackoff
	case se.StatusCode >= 500:
		return OutcomeBackoff
	default:
		return OutcomeStop
	}
}

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回10秒、2倍ずつ増加、最大5分。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
