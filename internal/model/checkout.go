package model

import "time"

// CheckoutState はチェックアウト処理の状態。
type CheckoutState string

// チェックアウトの状態遷移:
// Idle → ValidatingPayment → ValidatingAddress → ValidatingStock → Submitting → Done|Failed
const (
	CheckoutIdle              CheckoutState = "idle"
	CheckoutValidatingPayment CheckoutState = "validating_payment"
	CheckoutValidatingAddress CheckoutState = "validating_address"
	CheckoutValidatingStock   CheckoutState = "validating_stock"
	CheckoutSubmitting        CheckoutState = "submitting"
	CheckoutDone              CheckoutState = "done"
	CheckoutFailed            CheckoutState = "failed"
)

// IsTerminal は終端状態かを返す。
func (s CheckoutState) IsTerminal() bool {
	return s == CheckoutDone || s == CheckoutFailed
}

// CheckoutAudit はチェックアウト1回分の結果記録。
type CheckoutAudit struct {
	ID         string
	AccountID  int
	FinalState CheckoutState
	Path       []CheckoutState
	ErrorCode  string
	ItemCount  int
	Total      float64
	CreatedAt  time.Time
}
