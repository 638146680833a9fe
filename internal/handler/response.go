package handler

import (
	"time"

	"github.com/hitoshi/techasaurus/internal/model"
)

// accountResponse はSPAに返すアカウント情報。
// パスワードは含めず、カード番号は末尾4桁以外を伏せる。
type accountResponse struct {
	ID             int           `json:"id"`
	Username       string        `json:"username"`
	Email          string        `json:"email"`
	FirstName      string        `json:"firstName"`
	LastName       string        `json:"lastName"`
	ProfilePicture string        `json:"profilePicture"`
	Payment        model.Payment `json:"payment"`
	Address        model.Address `json:"address"`
	PaymentSet     bool          `json:"paymentSet"`
	AddressSet     bool          `json:"addressSet"`
	IsAdmin        bool          `json:"isAdmin"`
}

func toAccountResponse(a model.Account, adminUsername string) accountResponse {
	return accountResponse{
		ID:             a.ID,
		Username:       a.Username,
		Email:          a.Email,
		FirstName:      a.FirstName,
		LastName:       a.LastName,
		ProfilePicture: a.ProfilePicture,
		Payment:        a.Payment.Masked(),
		Address:        a.Address,
		PaymentSet:     a.Payment.IsSet(),
		AddressSet:     a.Address.IsSet(),
		IsAdmin:        a.IsAdmin(adminUsername),
	}
}

func toAccountResponses(accounts []model.Account, adminUsername string) []accountResponse {
	result := make([]accountResponse, len(accounts))
	for i, a := range accounts {
		result[i] = toAccountResponse(a, adminUsername)
	}
	return result
}

// checkoutAuditResponse はチェックアウト記録のレスポンス。
type checkoutAuditResponse struct {
	ID         string                `json:"id"`
	FinalState model.CheckoutState   `json:"finalState"`
	Path       []model.CheckoutState `json:"path"`
	ErrorCode  string                `json:"errorCode,omitempty"`
	ItemCount  int                   `json:"itemCount"`
	Total      float64               `json:"total"`
	CreatedAt  time.Time             `json:"createdAt"`
}

func toCheckoutAuditResponses(audits []model.CheckoutAudit) []checkoutAuditResponse {
	result := make([]checkoutAuditResponse, len(audits))
	for i, a := range audits {
		result[i] = checkoutAuditResponse{
			ID:         a.ID,
			FinalState: a.FinalState,
			Path:       a.Path,
			ErrorCode:  a.ErrorCode,
			ItemCount:  a.ItemCount,
			Total:      a.Total,
			CreatedAt:  a.CreatedAt,
		}
	}
	return result
}
