// Package metrics holds the Prometheus instruments of the verification
// pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for document verification.
type Metrics struct {
	QRAttempts       *prometheus.CounterVec
	FetchDuration    *prometheus.HistogramVec
	CrossValidations *prometheus.CounterVec
	Documents        *prometheus.CounterVec
	BlacklistRefresh *prometheus.CounterVec
	BlacklistSize    prometheus.Gauge
	BreakerOpen      *prometheus.GaugeVec
}

// New registers all instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		QRAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "supplier_qr_decode_attempts_total",
			Help: "QR decode attempts by outcome (hit, miss)",
		}, []string{"outcome"}),
		FetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "supplier_verification_fetch_duration_seconds",
			Help:    "Latency of verification page fetches",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}, []string{"mode", "outcome"}),
		CrossValidations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "supplier_cross_validations_total",
			Help: "Cross-validation results by verdict and reason code",
		}, []string{"verdict", "reason"}),
		Documents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "supplier_documents_processed_total",
			Help: "Processed document uploads by type and outcome",
		}, []string{"document", "outcome"}),
		BlacklistRefresh: f.NewCounterVec(prometheus.CounterOpts{
			Name: "supplier_blacklist_refresh_total",
			Help: "Blacklist refresh runs by outcome (imported, skipped, failed)",
		}, []string{"outcome"}),
		BlacklistSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "supplier_blacklist_entries",
			Help: "Identifiers in the current blacklist set",
		}),
		BreakerOpen: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "supplier_verification_breaker_open",
			Help: "1 while the intermediary breaker of a mode rejects calls",
		}, []string{"mode"}),
	}
}

// QRAttempt records one rasterize-and-decode attempt.
func (m *Metrics) QRAttempt(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.QRAttempts.WithLabelValues(outcome).Inc()
}

// ObserveFetch records the duration of a verification fetch.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveFetch(mode, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(mode, outcome).Observe(time.Since(start).Seconds())
}

// CrossValidation records a cross-validation verdict.
func (m *Metrics) CrossValidation(verdict, reason string) {
	if m == nil {
		return
	}
	m.CrossValidations.WithLabelValues(verdict, reason).Inc()
}

// Document records the outcome of processing one uploaded document.
func (m *Metrics) Document(document, outcome string) {
	if m == nil {
		return
	}
	m.Documents.WithLabelValues(document, outcome).Inc()
}

// Refresh records a blacklist refresh run. size is ignored unless the run
// imported a new set.
func (m *Metrics) Refresh(outcome string, size int) {
	if m == nil {
		return
	}
	m.BlacklistRefresh.WithLabelValues(outcome).Inc()
	if outcome == "imported" {
		m.BlacklistSize.Set(float64(size))
	}
}

// Breaker records whether the breaker of mode is rejecting calls.
func (m *Metrics) Breaker(mode string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.BreakerOpen.WithLabelValues(mode).Set(v)
}
