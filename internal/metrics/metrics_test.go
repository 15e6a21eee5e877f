package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RecordInbound(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordInbound(InboundProcessed, 20*time.Millisecond)
	m.RecordInbound(InboundProcessed, 30*time.Millisecond)
	m.RecordInbound(InboundDuplicate, 0)

	if got := testutil.ToFloat64(m.InboundMessagesTotal.WithLabelValues(InboundProcessed)); got != 2 {
		t.Errorf("processed count = %f, expected 2", got)
	}
	if got := testutil.ToFloat64(m.InboundMessagesTotal.WithLabelValues(InboundDuplicate)); got != 1 {
		t.Errorf("duplicate count = %f, expected 1", got)
	}
}

func TestMetrics_RecordSendAndQuote(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordSend(true)
	m.RecordSend(false)
	m.RecordQuote(true)
	m.RecordTransfer()
	m.RecordReactivation()
	m.RecordCatalog("suppressed")

	if got := testutil.ToFloat64(m.OutboundSendsTotal.WithLabelValues("failure")); got != 1 {
		t.Errorf("send failures = %f, expected 1", got)
	}
	if got := testutil.ToFloat64(m.QuotesGeneratedTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("quotes = %f, expected 1", got)
	}
	if got := testutil.ToFloat64(m.HumanTransfersTotal); got != 1 {
		t.Errorf("transfers = %f, expected 1", got)
	}
	if got := testutil.ToFloat64(m.CatalogSendsTotal.WithLabelValues("suppressed")); got != 1 {
		t.Errorf("suppressed catalogs = %f, expected 1", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordInbound(InboundProcessed, time.Second)
	m.RecordSend(true)
	m.TrackInFlight()()
}

func TestMetrics_InFlight(t *testing.T) {
	m := NewMetricsWithRegistry(prometheus.NewRegistry())
	done := m.TrackInFlight()
	if got := testutil.ToFloat64(m.ConversationsInFlight); got != 1 {
		t.Errorf("in flight = %f, expected 1", got)
	}
	done()
	if got := testutil.ToFloat64(m.ConversationsInFlight); got != 0 {
		t.Errorf("in flight = %f, expected 0", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetricsWithRegistry(prometheus.NewRegistry())
	m.RecordHTTPRequest("/health", http.StatusOK)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "gimmicks_crm_http_requests_total") {
		t.Error("expected http request counter in exposition")
	}
}
