// Package metrics wires the pipeline's Prometheus collectors: request and
// error counters per vendor call, a request-duration histogram, an ingestion
// backlog gauge, a data-quality counter, and an event-loop lag gauge sampled
// by a background probe.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the pipeline emits to. A Metrics is safe for
// concurrent use across every worker in a job.
type Metrics struct {
	RequestsTotal           *prometheus.CounterVec
	ErrorsTotal             *prometheus.CounterVec
	RequestDuration         *prometheus.HistogramVec
	IngestionBacklog        *prometheus.GaugeVec
	DataQualityTotal        *prometheus.CounterVec
	EventLoopLagSeconds     prometheus.Gauge
	ValidationBarsProcessed *prometheus.CounterVec
	ValidationErrorsFound   *prometheus.CounterVec
	ValidationOutcomeTotal  *prometheus.CounterVec
}

// New builds a Metrics with every collector registered against registerer.
// Pass prometheus.DefaultRegisterer for the process-wide singleton, or a
// fresh prometheus.NewRegistry() in tests to avoid duplicate-registration
// panics across test cases.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "requests_total",
				Help: "Total vendor HTTP requests attempted.",
			},
			[]string{"vendor", "provider", "feed"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errors_total",
				Help: "Total vendor HTTP requests that failed, by status.",
			},
			[]string{"vendor", "provider", "feed", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "request_duration_seconds",
				Help:    "Vendor HTTP request latency in seconds.",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"vendor", "provider", "feed"},
		),
		IngestionBacklog: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ingestion_backlog",
				Help: "Work units queued or in flight for a symbol.",
			},
			[]string{"symbol"},
		),
		DataQualityTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "data_quality_total",
				Help: "Rows rejected by validation, by issue type.",
			},
			[]string{"symbol", "issue_type"},
		),
		EventLoopLagSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "event_loop_lag_seconds",
				Help: "Observed delay of a scheduled probe tick, sampled in the background.",
			},
		),
		ValidationBarsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validation_bars_processed_total",
				Help: "Bars examined by the validation engine.",
			},
			[]string{"provider", "feed"},
		),
		ValidationErrorsFound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validation_errors_found_total",
				Help: "Rule violations found by the validation engine.",
			},
			[]string{"provider", "feed"},
		),
		ValidationOutcomeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validation_outcome_total",
				Help: "Validation runs, by outcome (success or failure).",
			},
			[]string{"provider", "feed", "outcome"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal,
			m.ErrorsTotal,
			m.RequestDuration,
			m.IngestionBacklog,
			m.DataQualityTotal,
			m.EventLoopLagSeconds,
			m.ValidationBarsProcessed,
			m.ValidationErrorsFound,
			m.ValidationOutcomeTotal,
		)
	}

	return m
}

// RecordRequest records one vendor HTTP attempt and its latency.
func (m *Metrics) RecordRequest(vendor, provider, feed string, d time.Duration) {
	m.RequestsTotal.WithLabelValues(vendor, provider, feed).Inc()
	m.RequestDuration.WithLabelValues(vendor, provider, feed).Observe(d.Seconds())
}

// RecordError records a failed vendor HTTP attempt. status is the numeric
// HTTP status as a string, or "timeout"/"exception" for non-HTTP failures.
func (m *Metrics) RecordError(vendor, provider, feed, status string) {
	m.ErrorsTotal.WithLabelValues(vendor, provider, feed, status).Inc()
}

// RecordDataQualityIssue increments the counter for a rejected row.
func (m *Metrics) RecordDataQualityIssue(symbol, issueType string) {
	m.DataQualityTotal.WithLabelValues(symbol, issueType).Inc()
}

// SetBacklog reports the current queued-plus-in-flight unit count for a symbol.
func (m *Metrics) SetBacklog(symbol string, n int) {
	m.IngestionBacklog.WithLabelValues(symbol).Set(float64(n))
}

// RecordValidation records one symbol's validation run: bars examined,
// violations found, and the run's overall outcome.
func (m *Metrics) RecordValidation(provider, feed string, barsProcessed, errorsFound int, success bool) {
	m.ValidationBarsProcessed.WithLabelValues(provider, feed).Add(float64(barsProcessed))
	m.ValidationErrorsFound.WithLabelValues(provider, feed).Add(float64(errorsFound))
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.ValidationOutcomeTotal.WithLabelValues(provider, feed, outcome).Inc()
}

// ProbeLoopLag starts a background ticker that measures scheduling lag: the
// delta between the requested tick interval and the interval actually
// observed, reported via EventLoopLagSeconds. It returns when the caller
// closes stop.
func (m *Metrics) ProbeLoopLag(stop <-chan struct{}, interval time.Duration, now func() time.Time) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := now()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			cur := now()
			lag := cur.Sub(last) - interval
			if lag < 0 {
				lag = 0
			}
			m.EventLoopLagSeconds.Set(lag.Seconds())
			last = cur
		}
	}
}
