// Package metrics provides Prometheus metrics collection for the CRM engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values for inbound messages.
const (
	InboundProcessed = "processed"
	InboundDuplicate = "duplicate"
	InboundIgnored   = "ignored"
	InboundSilenced  = "silenced"
	InboundFailed    = "failed"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics holds all Prometheus metrics of the engine.
type Metrics struct {
	InboundMessagesTotal *prometheus.CounterVec
	OutboundSendsTotal   *prometheus.CounterVec
	TurnDuration         prometheus.Histogram

	QuotesGeneratedTotal *prometheus.CounterVec
	CatalogSendsTotal    *prometheus.CounterVec
	HumanTransfersTotal  prometheus.Counter
	ReactivationsTotal   prometheus.Counter

	ConversationsInFlight prometheus.Gauge

	HTTPRequestsTotal *prometheus.CounterVec

	registry prometheus.Gatherer
}

// NewMetrics creates a new Metrics instance registered on the default registry.
func NewMetrics() *Metrics {
	m := newMetricsWithRegistry(prometheus.DefaultRegisterer)
	m.registry = prometheus.DefaultGatherer
	return m
}

// NewMetricsWithRegistry creates metrics using a custom registry (for testing).
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	m := newMetricsWithRegistry(reg)
	m.registry = reg
	return m
}

func newMetricsWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		InboundMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gimmicks_crm_inbound_messages_total",
				Help: "Inbound customer messages by handling outcome",
			},
			[]string{"outcome"},
		),
		OutboundSendsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gimmicks_crm_outbound_sends_total",
				Help: "Outbound messages by delivery outcome",
			},
			[]string{"outcome"},
		),
		TurnDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gimmicks_crm_turn_duration_seconds",
				Help:    "Time to handle one inbound message end to end",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		QuotesGeneratedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gimmicks_crm_quotes_generated_total",
				Help: "Quote generation attempts by outcome",
			},
			[]string{"outcome"},
		),
		CatalogSendsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gimmicks_crm_catalog_sends_total",
				Help: "Catalog requests by result (sent, suppressed, empty)",
			},
			[]string{"result"},
		),
		HumanTransfersTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gimmicks_crm_human_transfers_total",
				Help: "Conversations handed off to a human agent",
			},
		),
		ReactivationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gimmicks_crm_reactivations_total",
				Help: "Lost leads reactivated by a new inbound message",
			},
		),
		ConversationsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gimmicks_crm_conversations_in_flight",
				Help: "Inbound messages currently being handled",
			},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gimmicks_crm_http_requests_total",
				Help: "HTTP requests by route and status class",
			},
			[]string{"route", "status"},
		),
	}
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// The Record methods are nil-safe so components can run without metrics.

func (m *Metrics) RecordInbound(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.InboundMessagesTotal.WithLabelValues(outcome).Inc()
	if outcome == InboundProcessed || outcome == InboundFailed {
		m.TurnDuration.Observe(duration.Seconds())
	}
}

func (m *Metrics) RecordSend(success bool) {
	if m == nil {
		return
	}
	m.OutboundSendsTotal.WithLabelValues(outcome(success)).Inc()
}

func (m *Metrics) RecordQuote(success bool) {
	if m == nil {
		return
	}
	m.QuotesGeneratedTotal.WithLabelValues(outcome(success)).Inc()
}

// RecordCatalog counts a catalog request; result is sent, suppressed or empty.
func (m *Metrics) RecordCatalog(result string) {
	if m == nil {
		return
	}
	m.CatalogSendsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordTransfer() {
	if m == nil {
		return
	}
	m.HumanTransfersTotal.Inc()
}

func (m *Metrics) RecordReactivation() {
	if m == nil {
		return
	}
	m.ReactivationsTotal.Inc()
}

// TrackInFlight increments the in-flight gauge and returns its decrement.
func (m *Metrics) TrackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.ConversationsInFlight.Inc()
	return m.ConversationsInFlight.Dec
}

func (m *Metrics) RecordHTTPRequest(route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, statusClass(status)).Inc()
}

func outcome(success bool) string {
	if success {
		return outcomeSuccess
	}
	return outcomeFailure
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
