package runner

import (
	"slices"
	"time"

	"github.com/torosent/vecsweep/internal/metrics"
)

// LevelResult aggregates every worker of one concurrency level. It is built
// once after all workers have joined and never modified afterwards.
type LevelResult struct {
	Concurrency         int           `json:"concurrency" yaml:"concurrency"`
	RequestedDuration   time.Duration `json:"-" yaml:"-"`
	WallClock           time.Duration `json:"-" yaml:"-"`
	TotalWorkerDuration time.Duration `json:"-" yaml:"-"`
	TotalExecuted       int64         `json:"total_executed" yaml:"total_executed"`
	TotalFailed         int64         `json:"total_failed" yaml:"total_failed"`
	// AvgLatencyMs is the summed worker run time divided by executed requests.
	// It folds failed attempts into the figure; Latency.MeanMs is the sample mean.
	AvgLatencyMs float64          `json:"avg_latency_ms" yaml:"avg_latency_ms"`
	P99LatencyMs int64            `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	QPS          float64          `json:"qps" yaml:"qps"`
	Degenerate   bool             `json:"degenerate,omitempty" yaml:"degenerate,omitempty"`
	Interrupted  bool             `json:"interrupted,omitempty" yaml:"interrupted,omitempty"`
	LostWorkers  int              `json:"lost_workers,omitempty" yaml:"lost_workers,omitempty"`
	Latency      metrics.Summary  `json:"latency" yaml:"latency"`
	Errors       map[string]int64 `json:"errors,omitempty" yaml:"errors,omitempty"`

	// Serialization-friendly copies of the durations above.
	RequestedDurationS    float64 `json:"requested_duration_s" yaml:"requested_duration_s"`
	WallClockS            float64 `json:"wall_clock_s" yaml:"wall_clock_s"`
	TotalWorkerDurationMs int64   `json:"total_worker_duration_ms" yaml:"total_worker_duration_ms"`
}

// aggregate merges worker results. lost counts workers that produced nothing.
func aggregate(concurrency int, requested, wallClock time.Duration, results []RunResult, lost int) LevelResult {
	res := LevelResult{
		Concurrency:       concurrency,
		RequestedDuration: requested,
		WallClock:         wallClock,
		LostWorkers:       lost,
	}

	var samples int
	for i := range results {
		samples += len(results[i].Latencies)
	}
	all := make([]time.Duration, 0, samples)

	var workerMs int64
	for i := range results {
		r := &results[i]
		res.TotalExecuted += r.Executed
		res.TotalFailed += r.Failed
		res.TotalWorkerDuration += r.ActualDuration
		workerMs += r.ActualDuration.Milliseconds()
		all = append(all, r.Latencies...)
		if r.Interrupted {
			res.Interrupted = true
		}
		for key, n := range r.Errors {
			if res.Errors == nil {
				res.Errors = make(map[string]int64)
			}
			res.Errors[key] += n
		}
	}

	res.RequestedDurationS = requested.Seconds()
	res.WallClockS = wallClock.Seconds()
	res.TotalWorkerDurationMs = workerMs

	if res.TotalExecuted == 0 {
		res.Degenerate = true
		return res
	}

	res.AvgLatencyMs = float64(workerMs) / float64(res.TotalExecuted)
	res.P99LatencyMs = P99(all).Milliseconds()
	res.QPS = qps(res.TotalExecuted, wallClock)
	res.Latency = metrics.Summarize(all)
	return res
}

// P99 sorts latencies in place and returns the sample at floor(n*0.99),
// clamped to the largest sample. It returns 0 for no samples.
func P99(latencies []time.Duration) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	slices.Sort(latencies)
	return latencies[p99Index(len(latencies))]
}

func p99Index(n int) int {
	idx := n * 99 / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

func qps(executed int64, wallClock time.Duration) float64 {
	if executed <= 0 || wallClock <= 0 {
		return 0
	}
	return float64(executed) / wallClock.Seconds()
}
