// Package metrics exposes Prometheus collectors for sitemap batches.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Sriram-PR/sitemap-stats/pkg/models"
)

const (
	// MetricsNamespace is the namespace for all sitemap-stats metrics.
	MetricsNamespace = "sitemap_stats"
)

// Metrics holds all Prometheus collectors of the pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	BatchesTotal    *prometheus.CounterVec
	URLsTotal       *prometheus.CounterVec
	FetchDuration   prometheus.Histogram
	BatchDuration   prometheus.Histogram
	InflightFetches prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewMetrics creates and registers all pipeline metrics.
// A nil registry falls back to the default registerer.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}

	factory := promauto.With(registerer)
	m := &Metrics{gatherer: gatherer}

	m.BatchesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "batches_total",
		Help:      "Total batches processed, by output mode",
	}, []string{"mode"})

	m.URLsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "urls_total",
		Help:      "Total sitemap URLs processed, by outcome (urlset, sitemapindex or failure reason)",
	}, []string{"outcome"})

	m.FetchDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "fetch_duration_seconds",
		Help:      "Time to fetch and parse a single sitemap",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
	})

	m.BatchDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "batch_duration_seconds",
		Help:      "Time to process a whole batch",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
	})

	m.InflightFetches = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "inflight_fetches",
		Help:      "Sitemap fetches currently holding a concurrency slot",
	})

	return m
}

// Handler returns the HTTP handler serving the registry this Metrics was registered on
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// FetchStarted marks a fetch slot as taken
func (m *Metrics) FetchStarted() {
	if m == nil {
		return
	}
	m.InflightFetches.Inc()
}

// FetchFinished releases a fetch slot and records how long the URL took
func (m *Metrics) FetchFinished(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.InflightFetches.Dec()
	m.FetchDuration.Observe(elapsed.Seconds())
}

// RecordOutcome counts one URL by its outcome label
func (m *Metrics) RecordOutcome(outcome models.ParseOutcome) {
	if m == nil {
		return
	}
	m.URLsTotal.WithLabelValues(OutcomeLabel(outcome)).Inc()
}

// RecordBatch counts a finished batch
func (m *Metrics) RecordBatch(mode models.OutputMode, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.BatchesTotal.WithLabelValues(mode.String()).Inc()
	m.BatchDuration.Observe(elapsed.Seconds())
}

// OutcomeLabel is the urls_total label for an outcome: its kind on success, its failure reason otherwise
func OutcomeLabel(outcome models.ParseOutcome) string {
	if outcome.Failure != nil {
		return outcome.Failure.Reason.String()
	}
	return outcome.Kind.String()
}
