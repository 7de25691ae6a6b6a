// Package telemetry exports Prometheus metrics for index maintenance and
// keeps a small in-memory record of search activity. Nothing is reported
// externally unless a metrics endpoint is configured.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Batch outcomes.
const (
	BatchOK     = "ok"
	BatchFailed = "failed"
	BatchRetry  = "retried"
)

// Metrics groups the collectors for one engine. Each instance owns its own
// registry so tests and embedded engines never collide.
type Metrics struct {
	registry *prometheus.Registry

	batches        *prometheus.CounterVec
	filesEmbedded  prometheus.Counter
	filesRemoved   prometheus.Counter
	cycles         *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	batchDuration  prometheus.Histogram
	tableSize      prometheus.Gauge
	vectorCount    prometheus.Gauge
	searchDuration prometheus.Histogram
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amanindex_batches_total",
				Help: "Embedding batches by outcome",
			},
			[]string{"outcome"},
		),
		filesEmbedded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "amanindex_files_embedded_total",
			Help: "Files embedded and committed to the metadata table",
		}),
		filesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "amanindex_files_removed_total",
			Help: "Index entries removed because their file no longer exists",
		}),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amanindex_cycles_total",
				Help: "Build and refresh cycles by outcome",
			},
			[]string{"outcome"},
		),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "amanindex_cycle_duration_seconds",
			Help:    "Duration of build and refresh cycles",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 16),
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "amanindex_batch_duration_seconds",
			Help:    "Duration of one embedding batch including retries",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		tableSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "amanindex_metadata_records",
			Help: "Records in the metadata table",
		}),
		vectorCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "amanindex_vector_entries",
			Help: "Live entries in the vector index",
		}),
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "amanindex_search_duration_seconds",
			Help:    "Search latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		m.batches, m.filesEmbedded, m.filesRemoved, m.cycles,
		m.cycleDuration, m.batchDuration, m.tableSize, m.vectorCount, m.searchDuration,
	)
	return m
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// A nil *Metrics is valid and records nothing.

func (m *Metrics) ObserveBatch(outcome string, files int, d time.Duration) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(outcome).Inc()
	m.batchDuration.Observe(d.Seconds())
	if outcome == BatchOK {
		m.filesEmbedded.Add(float64(files))
	}
}

func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(BatchRetry).Inc()
}

func (m *Metrics) ObserveRemoved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.filesRemoved.Add(float64(n))
}

func (m *Metrics) ObserveCycle(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome).Inc()
	m.cycleDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveSearch(d time.Duration) {
	if m == nil {
		return
	}
	m.searchDuration.Observe(d.Seconds())
}

// SetSizes records the current table and index sizes.
func (m *Metrics) SetSizes(records, vectors int) {
	if m == nil {
		return
	}
	m.tableSize.Set(float64(records))
	m.vectorCount.Set(float64(vectors))
}

// Handler returns the HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics_listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
