package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は名前とラベルが一致するメトリクスを探す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	return nil
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordStoreAPICall_CountsAndObserves は店舗API呼び出しのカウンタとヒストグラムを検証する。
func TestRecordStoreAPICall_CountsAndObserves(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordStoreAPICall("get_cart", OutcomeSuccess, 20*time.Millisecond)
	c.RecordStoreAPICall("get_cart", OutcomeSuccess, 30*time.Millisecond)
	c.RecordStoreAPICall("get_cart", OutcomeFailure, time.Second)

	m := findMetric(t, reg, "techasaurus_store_api_requests_total", map[string]string{"operation": "get_cart", "outcome": "success"})
	if m == nil {
		t.Fatal("techasaurus_store_api_requests_total{success} not found")
	}
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("success count = %v, want 2", v)
	}

	h := findMetric(t, reg, "techasaurus_store_api_latency_seconds", map[string]string{"operation": "get_cart"})
	if h == nil {
		t.Fatal("techasaurus_store_api_latency_seconds not found")
	}
	if n := h.GetHistogram().GetSampleCount(); n != 3 {
		t.Errorf("latency sample count = %d, want 3", n)
	}
}

// TestRecordCheckout_ByResult はチェックアウト結果別のカウンタを検証する。
func TestRecordCheckout_ByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCheckout("done")
	c.RecordCheckout("insufficient_stock")
	c.RecordCheckout("done")

	m := findMetric(t, reg, "techasaurus_checkout_total", map[string]string{"result": "done"})
	if m == nil {
		t.Fatal("techasaurus_checkout_total{done} not found")
	}
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("checkout done = %v, want 2", v)
	}
}

// TestRecordCartMutation_ByKind はカート操作カウンタを検証する。
func TestRecordCartMutation_ByKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCartMutation("add", OutcomeFailure)

	m := findMetric(t, reg, "techasaurus_cart_mutations_total", map[string]string{"kind": "add", "outcome": "failure"})
	if m == nil || m.GetCounter().GetValue() != 1 {
		t.Error("techasaurus_cart_mutations_total{add,failure} = 1 であるべき")
	}
}

// TestRecordHTTPStatus_IncrementsByStatusCode はHTTPステータスコード別カウンタを検証する。
func TestRecordHTTPStatus_IncrementsByStatusCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(409)

	if m := findMetric(t, reg, "techasaurus_http_status_total", map[string]string{"status_code": "200"}); m == nil || m.GetCounter().GetValue() != 2 {
		t.Error("status_code=200 のカウントは2であるべき")
	}
	if m := findMetric(t, reg, "techasaurus_http_status_total", map[string]string{"status_code": "409"}); m == nil || m.GetCounter().GetValue() != 1 {
		t.Error("status_code=409 のカウントは1であるべき")
	}
}

// TestRecordCatalogCache_ByResult はキャッシュ参照結果のカウンタを検証する。
func TestRecordCatalogCache_ByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCatalogCache("hit")
	c.RecordCatalogCache("miss")
	c.RecordCatalogCache("hit")

	if m := findMetric(t, reg, "techasaurus_catalog_cache_total", map[string]string{"result": "hit"}); m == nil || m.GetCounter().GetValue() != 2 {
		t.Error("hit のカウントは2であるべき")
	}
}

// TestNop_ImplementsInterface はNopがインターフェースを満たすことを検証する。
func TestNop_ImplementsInterface(t *testing.T) {
	var m MetricsCollector = Nop{}
	m.RecordStoreAPICall("x", OutcomeSuccess, 0)
	m.RecordCheckout("done")
}
