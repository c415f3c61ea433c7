// Package promexport publishes finished sweep levels as Prometheus metrics so
// a long sweep can be watched from an existing dashboard.
package promexport

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/torosent/vecsweep/internal/runner"
)

const namespace = "vecsweep"

// Exporter holds the collectors for one sweep. Every metric is labelled with
// the concurrency level it describes.
type Exporter struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	LevelQPS        *prometheus.GaugeVec
	LevelAvgLatency *prometheus.GaugeVec
	LevelP99Latency *prometheus.GaugeVec
	LevelLatency    *prometheus.GaugeVec
	LostWorkers     *prometheus.CounterVec
	LevelsCompleted prometheus.Counter
}

// New creates an Exporter with its own registry.
func New() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Search requests per concurrency level by result (ok, failed).",
			},
			[]string{"concurrency", "result"},
		),
		LevelQPS: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "level_qps",
				Help:      "Executed requests per wall-clock second.",
			},
			[]string{"concurrency"},
		),
		LevelAvgLatency: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "level_avg_latency_seconds",
				Help:      "Summed worker run time divided by executed requests.",
			},
			[]string{"concurrency"},
		),
		LevelP99Latency: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "level_p99_latency_seconds",
				Help:      "99th percentile request latency, millisecond resolution.",
			},
			[]string{"concurrency"},
		),
		LevelLatency: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "level_latency_seconds",
				Help:      "Sample latency distribution by quantile (0, 0.5, 0.9, 0.95, 0.99, 1).",
			},
			[]string{"concurrency", "quantile"},
		),
		LostWorkers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lost_workers_total",
				Help:      "Workers that panicked and contributed no results.",
			},
			[]string{"concurrency"},
		),
		LevelsCompleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "levels_completed_total",
				Help:      "Concurrency levels finished so far.",
			},
		),
	}

	e.registry.MustRegister(
		e.RequestsTotal,
		e.LevelQPS,
		e.LevelAvgLatency,
		e.LevelP99Latency,
		e.LevelLatency,
		e.LostWorkers,
		e.LevelsCompleted,
	)
	return e
}

// ObserveLevel records a finished level. It implements runner.LevelObserver.
func (e *Exporter) ObserveLevel(res runner.LevelResult) {
	conc := strconv.Itoa(res.Concurrency)

	e.RequestsTotal.WithLabelValues(conc, "ok").Add(float64(res.TotalExecuted))
	e.RequestsTotal.WithLabelValues(conc, "failed").Add(float64(res.TotalFailed))
	if res.LostWorkers > 0 {
		e.LostWorkers.WithLabelValues(conc).Add(float64(res.LostWorkers))
	}
	e.LevelsCompleted.Inc()

	if res.Degenerate {
		return
	}
	e.LevelQPS.WithLabelValues(conc).Set(res.QPS)
	e.LevelAvgLatency.WithLabelValues(conc).Set(res.AvgLatencyMs / 1000)
	e.LevelP99Latency.WithLabelValues(conc).Set(float64(res.P99LatencyMs) / 1000)

	s := res.Latency
	for _, q := range []struct {
		label string
		ms    float64
	}{
		{"0", s.MinMs},
		{"0.5", s.P50Ms},
		{"0.9", s.P90Ms},
		{"0.95", s.P95Ms},
		{"0.99", s.P99Ms},
		{"1", s.MaxMs},
	} {
		e.LevelLatency.WithLabelValues(conc, q.label).Set(q.ms / 1000)
	}
}

// Handler returns the Prometheus scrape HTTP handler for this exporter.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
