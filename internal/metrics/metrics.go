// Package metrics holds the gateway's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	QuotesTotal            *prometheus.CounterVec
	CheckoutsTotal         *prometheus.CounterVec
	VerificationAttempts   *prometheus.CounterVec
	VerificationsTerminal  *prometheus.CounterVec
	VerificationsActive    prometheus.Gauge
	LedgerExportRowsTotal  prometheus.Counter
	SessionExpirationTotal *prometheus.CounterVec
}

// New creates and registers all metrics on registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		QuotesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_quotes_total",
				Help: "Price quotes computed",
			},
			[]string{"cycle", "currency"},
		),
		CheckoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_checkouts_total",
				Help: "Checkout submissions by outcome",
			},
			[]string{"outcome"},
		),
		VerificationAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_verification_attempts_total",
				Help: "Verify calls issued against the backend, by resulting state",
			},
			[]string{"state"},
		),
		VerificationsTerminal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_verifications_terminal_total",
				Help: "Verifications that reached a terminal state",
			},
			[]string{"state", "reason"},
		),
		VerificationsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "billing_verifications_active",
			Help: "Verifications currently polling",
		}),
		LedgerExportRowsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_ledger_export_rows_total",
			Help: "Transactions written to ledger exports",
		}),
		SessionExpirationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_session_expirations_total",
				Help: "Credentials rejected by the backend, by operation",
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.QuotesTotal,
		m.CheckoutsTotal,
		m.VerificationAttempts,
		m.VerificationsTerminal,
		m.VerificationsActive,
		m.LedgerExportRowsTotal,
		m.SessionExpirationTotal,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) Quote(cycle, currency string) {
	if m == nil {
		return
	}
	m.QuotesTotal.WithLabelValues(cycle, currency).Inc()
}

func (m *Metrics) Checkout(outcome string) {
	if m == nil {
		return
	}
	m.CheckoutsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) VerifyAttempt(state string) {
	if m == nil {
		return
	}
	m.VerificationAttempts.WithLabelValues(state).Inc()
}

func (m *Metrics) VerifyTerminal(state, reason string) {
	if m == nil {
		return
	}
	m.VerificationsTerminal.WithLabelValues(state, reason).Inc()
}

func (m *Metrics) VerifyActive(delta float64) {
	if m == nil {
		return
	}
	m.VerificationsActive.Add(delta)
}

func (m *Metrics) ExportRows(n int) {
	if m == nil {
		return
	}
	m.LedgerExportRowsTotal.Add(float64(n))
}

func (m *Metrics) SessionExpired(operation string) {
	if m == nil {
		return
	}
	m.SessionExpirationTotal.WithLabelValues(operation).Inc()
}
