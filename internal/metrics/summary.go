package metrics

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Track latencies from 1µs up to 60s with 3 significant figures.
const (
	lowestTrackableUs  = 1
	highestTrackableUs = 60_000_000
	significantFigures = 3
)

// Summary describes the latency distribution of one concurrency level.
// Values are in milliseconds.
type Summary struct {
	Count  int64   `json:"count" yaml:"count"`
	MinMs  float64 `json:"min_ms" yaml:"min_ms"`
	MeanMs float64 `json:"mean_ms" yaml:"mean_ms"`
	P50Ms  float64 `json:"p50_ms" yaml:"p50_ms"`
	P90Ms  float64 `json:"p90_ms" yaml:"p90_ms"`
	P95Ms  float64 `json:"p95_ms" yaml:"p95_ms"`
	P99Ms  float64 `json:"p99_ms" yaml:"p99_ms"`
	MaxMs  float64 `json:"max_ms" yaml:"max_ms"`
}

// Summarize folds the samples into an HDR histogram. Min, max and mean are
// exact; percentiles carry the histogram's precision.
func Summarize(latencies []time.Duration) Summary {
	if len(latencies) == 0 {
		return Summary{}
	}

	h := hdrhistogram.New(lowestTrackableUs, highestTrackableUs, significantFigures)
	var (
		sum    time.Duration
		lo, hi = latencies[0], latencies[0]
	)
	for _, latency := range latencies {
		sum += latency
		if latency < lo {
			lo = latency
		}
		if latency > hi {
			hi = latency
		}
		us := latency.Microseconds()
		if us < h.LowestTrackableValue() {
			us = h.LowestTrackableValue()
		}
		if us > h.HighestTrackableValue() {
			us = h.HighestTrackableValue()
		}
		_ = h.RecordValue(us) // in range after clamping
	}

	count := int64(len(latencies))
	return Summary{
		Count:  count,
		MinMs:  durationMs(lo),
		MeanMs: durationMs(sum / time.Duration(count)),
		P50Ms:  usToMs(h.ValueAtQuantile(50)),
		P90Ms:  usToMs(h.ValueAtQuantile(90)),
		P95Ms:  usToMs(h.ValueAtQuantile(95)),
		P99Ms:  usToMs(h.ValueAtQuantile(99)),
		MaxMs:  durationMs(hi),
	}
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func usToMs(us int64) float64 {
	return float64(us) / 1000
}
