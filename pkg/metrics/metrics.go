// Package metrics exposes Prometheus collectors for scan progress.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the scan collectors registered on their own registry
type Metrics struct {
	registry *prometheus.Registry

	IDsProcessed    *prometheus.CounterVec
	BatchDuration   prometheus.Histogram
	RateLimitWaits  prometheus.Counter
	RateLimitWaited prometheus.Counter
	Flushes         prometheus.Counter
	FailedBatches   prometheus.Counter
	LastFlushedID   prometheus.Gauge
	EngineState     *prometheus.GaugeVec
}

// New creates and registers the scan collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		IDsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "giftparser_ids_processed_total",
				Help: "Total number of gift IDs resolved, labeled by outcome status and source.",
			},
			[]string{"status", "source"},
		),
		BatchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "giftparser_batch_duration_seconds",
				Help:    "Histogram of batch resolution latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		),
		RateLimitWaits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "giftparser_rate_limit_waits_total",
				Help: "Total number of provider-imposed waits.",
			},
		),
		RateLimitWaited: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "giftparser_rate_limit_wait_seconds_total",
				Help: "Total seconds spent waiting on provider rate limits.",
			},
		),
		Flushes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "giftparser_flushes_total",
				Help: "Total number of sink flushes.",
			},
		),
		FailedBatches: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "giftparser_failed_batches_total",
				Help: "Total number of batches whose records could not be committed.",
			},
		),
		LastFlushedID: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "giftparser_last_flushed_id",
				Help: "Highest gift ID made durable by a flush.",
			},
		),
		EngineState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "giftparser_engine_state",
				Help: "1 for the engine's current state, 0 otherwise.",
			},
			[]string{"state"},
		),
	}
}

// Registry returns the registry holding the collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler serving the collectors
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveResult counts one resolved ID
func (m *Metrics) ObserveResult(status, source string) {
	if m == nil {
		return
	}
	if source == "" {
		source = "none"
	}
	m.IDsProcessed.WithLabelValues(status, source).Inc()
}

// ObserveBatch records the duration of a batch
func (m *Metrics) ObserveBatch(d time.Duration) {
	if m == nil {
		return
	}
	m.BatchDuration.Observe(d.Seconds())
}

// ObserveRateLimit records a provider-imposed wait
func (m *Metrics) ObserveRateLimit(wait time.Duration) {
	if m == nil {
		return
	}
	m.RateLimitWaits.Inc()
	m.RateLimitWaited.Add(wait.Seconds())
}

// ObserveFlush records a flush up to lastID
func (m *Metrics) ObserveFlush(lastID int64) {
	if m == nil {
		return
	}
	m.Flushes.Inc()
	m.LastFlushedID.Set(float64(lastID))
}

// ObserveFailedBatch counts a batch that could not be committed
func (m *Metrics) ObserveFailedBatch() {
	if m == nil {
		return
	}
	m.FailedBatches.Inc()
}

// SetState marks state as current among all known states
func (m *Metrics) SetState(state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.EngineState.WithLabelValues(s).Set(v)
	}
}
