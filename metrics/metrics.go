// Package metrics exposes run counters on a private Prometheus registry. Batch
// jobs have no scrape endpoint, so the registry is dumped to a node-exporter
// textfile at the end of the run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors shared by every pipeline. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Fetched     *prometheus.CounterVec
	Written     *prometheus.CounterVec
	Skipped     *prometheus.CounterVec
	Watermark   *prometheus.GaugeVec
	RunDuration *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Fetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_records_fetched_total",
			Help: "Records that passed the window and filters",
		}, []string{"key"}),
		Written: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_records_written_total",
			Help: "Records persisted by a sink",
		}, []string{"key"}),
		Skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_records_skipped_total",
			Help: "Records skipped, by reason",
		}, []string{"key", "reason"}),
		Watermark: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "harvest_watermark_seconds",
			Help: "created_utc of the newest persisted record",
		}, []string{"key"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvest_run_duration_seconds",
			Help:    "Wall time of a pipeline run",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"key"}),
	}
	m.registry.MustRegister(m.Fetched, m.Written, m.Skipped, m.Watermark, m.RunDuration)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRun records the outcome of one pipeline run.
func (m *Metrics) ObserveRun(key string, fetched, written int, watermark int64, took time.Duration) {
	if m == nil {
		return
	}
	m.Fetched.WithLabelValues(key).Add(float64(fetched))
	m.Written.WithLabelValues(key).Add(float64(written))
	if watermark > 0 {
		m.Watermark.WithLabelValues(key).Set(float64(watermark))
	}
	m.RunDuration.WithLabelValues(key).Observe(took.Seconds())
}

// Skip counts one skipped record.
func (m *Metrics) Skip(key, reason string) {
	if m == nil {
		return
	}
	m.Skipped.WithLabelValues(key, reason).Inc()
}

// WriteTextfile dumps the registry in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
