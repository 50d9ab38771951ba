// Package observability provides logging and Prometheus metrics for riverflow
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Refresh cycle outcomes used as the "outcome" label
const (
	OutcomeReady       = "ready"
	OutcomeNoData      = "no_data"
	OutcomeFetchFailed = "fetch_failed"
	OutcomeStoreFailed = "store_failed"
)

// Metrics holds the Prometheus collectors for the refresh cycle.
type Metrics struct {
	RefreshCycles   *prometheus.CounterVec // labels: outcome={ready,no_data,fetch_failed,store_failed}
	RefreshDuration prometheus.Histogram
	RefreshOverlaps prometheus.Counter
	EntriesSkipped  prometheus.Counter
	RiversReported  prometheus.Gauge
	LastSuccess     prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RefreshCycles,
		m.RefreshDuration,
		m.RefreshOverlaps,
		m.EntriesSkipped,
		m.RiversReported,
		m.LastSuccess,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build many instances.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RefreshCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riverflow",
			Name:      "refresh_cycles_total",
			Help:      "Completed refresh cycles by outcome.",
		}, []string{"outcome"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "riverflow",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a fetch-normalize-store cycle.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		RefreshOverlaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riverflow",
			Name:      "refresh_overlaps_total",
			Help:      "Refresh triggers ignored because a cycle was already running.",
		}),
		EntriesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riverflow",
			Name:      "entries_skipped_total",
			Help:      "Malformed time-series entries dropped during normalization.",
		}),
		RiversReported: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "riverflow",
			Name:      "rivers_reported",
			Help:      "Rivers in the latest ready status.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "riverflow",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last ready status.",
		}),
	}
}
