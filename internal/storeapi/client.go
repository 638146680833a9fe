// Package storeapi は店舗API（アカウント・カート・商品・レビュー）のHTTP JSONクライアントを提供する。
package storeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/techasaurus/internal/metrics"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	// maxResponseSize はレスポンスボディの最大読み取りサイズ。
	maxResponseSize = 5 << 20
	// maxErrorMessageLen はエラーボディから抜き出すメッセージの最大長。
	maxErrorMessageLen = 200
	userAgent          = "Techasaurus-Storefront/1.0"
)

// StatusError は店舗APIが2xx以外を返した場合のエラー。
type StatusError struct {
	Operation  string
	StatusCode int
	Message    string
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("store api %s: status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("store api %s: status %d: %s", e.Operation, e.StatusCode, e.Message)
}

// IsNotFound は店舗APIが404を返したエラーかを判定する。
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsConflict は店舗APIが409を返したエラーかを判定する。
func IsConflict(err error) bool {
	return hasStatus(err, http.StatusConflict)
}

// IsServerError は店舗APIが5xxを返したエラーかを判定する。
func IsServerError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode >= http.StatusInternalServerError
}

func hasStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Client は店舗APIのクライアント。
// すべての呼び出しは送信側レートリミッタを通過してから実行される。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	limiter    *rate.Limiter
	metrics    metrics.MetricsCollector
}

// Option はClientの任意設定。
type Option func(*Client)

// WithLimiter は送信側レートリミッタを設定する。
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithMetrics はメトリクスコレクターを設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURL は末尾スラッシュなしの店舗APIルート（例: http://localhost:8090）。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    rate.NewLimiter(rate.Inf, 0),
		metrics:    metrics.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewHTTPClient はOpenTelemetryで計装したトランスポートを持つhttp.Clientを生成する。
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// do はリクエストを実行し、2xxの場合にレスポンスをoutへデコードする。
// query は呼び出し元でのみ構築し、ログには出力しない（ログイン時の資格情報を含むため）。
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	start := time.Now()
	err := c.roundTrip(ctx, op, method, path, query, in, out)

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
	}
	c.metrics.RecordStoreAPICall(op, outcome, time.Since(start))
	return err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	// 1. 送信側レート制限
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("store api %s: rate limiter: %w", op, err)
	}

	// 2. リクエスト構築
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("store api %s: リクエストのエンコードに失敗しました: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("store api %s: HTTPリクエストの作成に失敗しました: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// 3. 実行
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("店舗APIの呼び出しに失敗しました",
			slog.String("operation", op),
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("store api %s: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("store api %s: レスポンスボディの読み取りに失敗しました: %w", op, err)
	}

	// 4. ステータスチェック
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    extractErrorMessage(respBody),
		}
		level := slog.LevelError
		if resp.StatusCode < 500 {
			level = slog.LevelWarn
		}
		c.logger.Log(ctx, level, "店舗APIがエラーステータスを返しました",
			slog.String("operation", op),
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
			slog.String("message", se.Message),
		)
		return se
	}

	// 5. デコード
	if out == nil || isEmptyBody(respBody) {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		c.logger.Error("店舗APIのレスポンスのパースに失敗しました",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("store api %s: レスポンスJSONのパースに失敗しました: %w", op, err)
	}
	return nil
}

// extractErrorMessage はエラーボディから人間向けメッセージを取り出す。
// Spring系のエラーJSON（message/error/detail）を優先し、JSONでなければ本文を切り詰めて返す。
func extractErrorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if gjson.ValidBytes(body) {
		for _, key := range []string{"message", "error", "detail", "title"} {
			if v := gjson.GetBytes(body, key); v.Exists() && v.Type == gjson.String && v.String() != "" {
				return truncate(v.String())
			}
		}
		return ""
	}
	return truncate(strings.TrimSpace(string(body)))
}

func truncate(s string) string {
	if len(s) <= maxErrorMessageLen {
		return s
	}
	return s[:maxErrorMessageLen]
}

func isEmptyBody(b []byte) bool {
	t := bytes.TrimSpace(b)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
