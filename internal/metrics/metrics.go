// Package metrics provides Prometheus metrics for scheduled runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dipsim"

// Metrics holds the run metrics on their own registry.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal       *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	SymbolsTotal    *prometheus.CounterVec
	FetchDuration   *prometheus.HistogramVec
	BarsLoaded      prometheus.Counter
	EventsSimulated *prometheus.CounterVec
	DCAPurchases    *prometheus.CounterVec
	SinkErrors      *prometheus.CounterVec
	LastSuccess     prometheus.Gauge
}

// New creates a Metrics instance with every metric registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "total",
			Help:      "Total number of runs by status",
		}, []string{"status"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		SymbolsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "symbols_total",
			Help:      "Symbols processed by outcome",
		}, []string{"status"}),
		FetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "fetch_duration_seconds",
			Help:      "History fetch latency in seconds by source",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		BarsLoaded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "bars_loaded_total",
			Help:      "Total number of daily bars loaded",
		}),
		EventsSimulated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulator",
			Name:      "events_total",
			Help:      "Buy-on-dip fills by symbol",
		}, []string{"symbol"}),
		DCAPurchases: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dca",
			Name:      "purchases_total",
			Help:      "DCA purchases by strategy",
		}, []string{"strategy"}),
		SinkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "errors_total",
			Help:      "Export failures by sink",
		}, []string{"sink"}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "last_success_timestamp",
			Help:      "Unix timestamp of the last successful run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(status string, d time.Duration) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(d.Seconds())
	if status == "ok" {
		m.LastSuccess.Set(float64(time.Now().Unix()))
	}
}

// RecordFetch records one history fetch.
func (m *Metrics) RecordFetch(source string, d time.Duration, bars int) {
	m.FetchDuration.WithLabelValues(source).Observe(d.Seconds())
	m.BarsLoaded.Add(float64(bars))
}
