package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/techasaurus/internal/middleware"
	"github.com/hitoshi/techasaurus/internal/model"
	"github.com/hitoshi/techasaurus/internal/storeapi"
)

// maxRequestBody はJSONリクエストボディの上限（バイト）。
const maxRequestBody = 1 << 20

// handleServiceError はサービス層のエラーを統一エラーフォーマットのレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	status, apiErr := resolveError(err)
	middleware.WriteErrorResponse(w, status, apiErr)
}

// resolveError はエラーからHTTPステータスと利用者向けエラーを決める。
// 店舗APIの非2xxは502、それ以外の想定外のエラーは500として扱う。
func resolveError(err error) (int, *model.APIError) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return mapAPIErrorToHTTPStatus(apiErr), apiErr
	}

	var statusErr *storeapi.StatusError
	if errors.As(err, &statusErr) {
		slog.Error("store API error",
			slog.String("operation", statusErr.Operation),
			slog.Int("status", statusErr.StatusCode),
			slog.String("error", err.Error()),
		)
		return http.StatusBadGateway, model.NewStoreUnavailableError()
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	return http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden, model.ErrCodeAdminCannotShop, model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	case model.ErrCodeAccountNotFound, model.ErrCodeProductNotFound,
		model.ErrCodeCartLineNotFound, model.ErrCodeReviewNotFound:
		return http.StatusNotFound
	case model.ErrCodeUsernameTaken, model.ErrCodeDuplicateColor, model.ErrCodeDuplicateReview,
		model.ErrCodeOutOfStock, model.ErrCodeInsufficientStock, model.ErrCodeCartEmpty,
		model.ErrCodePaymentRequired, model.ErrCodeAddressRequired:
		return http.StatusConflict
	case model.ErrCodeInvalidRequest, model.ErrCodeValidationFailed, model.ErrCodePasswordMismatch,
		model.ErrCodeInvalidCardNumber, model.ErrCodeInvalidCVV, model.ErrCodeInvalidZip,
		model.ErrCodeColorRequired, model.ErrCodeColorNotAvailable, model.ErrCodeInvalidProduct,
		model.ErrCodeUnknownColor, model.ErrCodeInvalidRating, model.ErrCodeInvalidURL:
		return http.StatusBadRequest
	case model.ErrCodeCheckoutTimeout:
		return http.StatusRequestTimeout
	case model.ErrCodeCheckoutFailed, model.ErrCodeStoreUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON はリクエストボディをvに読み込む。失敗時は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return false
	}
	return true
}

// pathInt はURLパスパラメータを整数として読む。失敗時は400を書き込みfalseを返す。
func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return 0, false
	}
	return v, true
}

// pathString はパスパラメータを復号して返す。
// chiはRawPathがある場合に未復号のセグメントを返すため、その場合のみ復号する。
// 復号できない場合は400を書き込みfalseを返す。
func pathString(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v, true
	}
	decoded, err := url.PathUnescape(v)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return "", false
	}
	return decoded, true
}

// currentSession はRequireAccount配下のハンドラーでセッションを取り出す。
// 取り出せない場合は401を書き込みfalseを返す。
func currentSession(w http.ResponseWriter, r *http.Request) (sessionID string, acct model.Account, ok bool) {
	resolved, found := middleware.SessionFromContext(r.Context())
	if !found {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", model.Account{}, false
	}
	return resolved.Session.ID, resolved.Account, true
}
