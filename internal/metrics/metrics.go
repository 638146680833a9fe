// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 結果ラベル
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 店舗APIクライアント・サービス層・ミドルウェアから利用する。
type MetricsCollector interface {
	RecordStoreAPICall(operation, outcome string, duration time.Duration)
	RecordCheckout(result string)
	RecordCartMutation(kind, outcome string)
	RecordHTTPStatus(statusCode int)
	RecordCatalogCache(result string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	storeAPIRequests *prometheus.CounterVec
	storeAPILatency  *prometheus.HistogramVec
	checkouts        *prometheus.CounterVec
	cartMutations    *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
	catalogCache     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		storeAPIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "techasaurus_store_api_requests_total",
			Help: "店舗API呼び出しの合計数（操作・結果別）",
		}, []string{"operation", "outcome"}),
		storeAPILatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "techasaurus_store_api_latency_seconds",
			Help:    "店舗API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "techasaurus_checkout_total",
			Help: "チェックアウトの結果別合計数",
		}, []string{"result"}),
		cartMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "techasaurus_cart_mutations_total",
			Help: "カート操作の合計数（種類・結果別）",
		}, []string{"kind", "outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "techasaurus_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		catalogCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "techasaurus_catalog_cache_total",
			Help: "カタログキャッシュの参照結果（hit/miss/error）",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.storeAPIRequests,
		c.storeAPILatency,
		c.checkouts,
		c.cartMutations,
		c.httpStatus,
		c.catalogCache,
	)

	return c
}

// RecordStoreAPICall は店舗API呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordStoreAPICall(operation, outcome string, duration time.Duration) {
	c.storeAPIRequests.WithLabelValues(operation, outcome).Inc()
	c.storeAPILatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCheckout はチェックアウトの最終結果を記録する。
func (c *Collector) RecordCheckout(result string) {
	c.checkouts.WithLabelValues(result).Inc()
}

// RecordCartMutation はカート操作を記録する。
func (c *Collector) RecordCartMutation(kind, outcome string) {
	c.cartMutations.WithLabelValues(kind, outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordCatalogCache はカタログキャッシュの参照結果を記録する。
func (c *Collector) RecordCatalogCache(result string) {
	c.catalogCache.WithLabelValues(result).Inc()
}

// Nop は何も記録しないMetricsCollector。テストや計測無効時に使う。
type Nop struct{}

func (Nop) RecordStoreAPICall(string, string, time.Duration) {}
func (Nop) RecordCheckout(string)                            {}
func (Nop) RecordCartMutation(string, string)                {}
func (Nop) RecordHTTPStatus(int)                             {}
func (Nop) RecordCatalogCache(string)                        {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
