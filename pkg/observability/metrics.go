package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Metering metrics
	EventsRecordedTotal *prometheus.CounterVec
	EventAmountCents    *prometheus.CounterVec
	BufferDepth         prometheus.Gauge
	FlushesTotal        *prometheus.CounterVec
	FlushBatchSize      prometheus.Histogram
	FlushDuration       prometheus.Histogram

	// Budget metrics
	AdmissionChecksTotal *prometheus.CounterVec
	AlertsEmittedTotal   *prometheus.CounterVec

	// Realtime cache metrics
	CacheErrorsTotal *prometheus.CounterVec

	// Optimizer metrics
	DedupLookupsTotal *prometheus.CounterVec
	BatchesTotal      prometheus.Counter
	BatchSavingsCents prometheus.Counter

	// Ledger metrics
	LedgerRowsTotal  prometheus.Counter
	LedgerRequeues   prometheus.Counter
	PricingMissTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tally_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		EventsRecordedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_events_recorded_total",
				Help: "Total number of cost events recorded",
			},
			[]string{"service", "operation"},
		),
		EventAmountCents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_event_amount_cents_total",
				Help: "Total recorded spend in cents",
			},
			[]string{"service"},
		),
		BufferDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tally_buffer_depth",
				Help: "Number of cost events waiting in the in-memory buffer",
			},
		),
		FlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_ledger_flushes_total",
				Help: "Total number of ledger flush attempts",
			},
			[]string{"result"},
		),
		FlushBatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tally_ledger_flush_batch_size",
				Help:    "Number of events per ledger flush",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		FlushDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tally_ledger_flush_duration_seconds",
				Help:    "Ledger flush duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		AdmissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_admission_checks_total",
				Help: "Total admission-control decisions",
			},
			[]string{"decision"},
		),
		AlertsEmittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_budget_alerts_total",
				Help: "Total budget threshold alerts emitted",
			},
			[]string{"threshold"},
		),
		CacheErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_cache_errors_total",
				Help: "Realtime cache failures by operation",
			},
			[]string{"operation"},
		),
		DedupLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_dedup_lookups_total",
				Help: "Content dedup lookups by outcome",
			},
			[]string{"outcome"},
		),
		BatchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tally_batches_total",
				Help: "Total optimizer batches executed",
			},
		),
		BatchSavingsCents: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tally_batch_savings_cents_total",
				Help: "Advisory savings from batched invocation in cents",
			},
		),
		LedgerRowsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tally_ledger_rows_total",
				Help: "Total rows written to the cost ledger",
			},
		),
		LedgerRequeues: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tally_ledger_requeues_total",
				Help: "Failed flush batches requeued onto the live buffer",
			},
		),
		PricingMissTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_pricing_misses_total",
				Help: "Price table lookups for unknown service/operation pairs",
			},
			[]string{"service", "operation"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.EventsRecordedTotal,
		m.EventAmountCents,
		m.BufferDepth,
		m.FlushesTotal,
		m.FlushBatchSize,
		m.FlushDuration,
		m.AdmissionChecksTotal,
		m.AlertsEmittedTotal,
		m.CacheErrorsTotal,
		m.DedupLookupsTotal,
		m.BatchesTotal,
		m.BatchSavingsCents,
		m.LedgerRowsTotal,
		m.LedgerRequeues,
		m.PricingMissTotal,
	)

	return m
}

// Handler returns an HTTP handler for the /metrics endpoint
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps an HTTP handler with request metrics
func (m *Metrics) InstrumentHandler(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
