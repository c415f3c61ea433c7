package runner

import (
	"context"
	"math/rand"
	"time"

	"github.com/torosent/vecsweep/internal/metrics"
)

// Executor performs one search request and reports its latency.
// Implementations must be safe for concurrent use.
type Executor interface {
	Execute(ctx context.Context, payload []byte) (time.Duration, error)
}

// Source hands out prebuilt payloads. Pick must not mutate shared state
// beyond the caller's rng.
type Source interface {
	Pick(rng *rand.Rand) []byte
}

// RunResult is what one worker observed during a level. It is owned by the
// worker until the level merges it.
type RunResult struct {
	WorkerID       int
	Executed       int64
	Failed         int64
	ActualDuration time.Duration
	// Latencies holds one sample per executed request, in completion order.
	Latencies   []time.Duration
	Errors      map[string]int64
	Interrupted bool
}

// RunWorker issues requests back to back until duration has elapsed or ctx is
// cancelled. Failed requests are counted and logged but never sampled.
func RunWorker(ctx context.Context, id int, src Source, exec Executor, rng *rand.Rand, duration time.Duration, failures FailureLogger) RunResult {
	res := RunResult{WorkerID: id}

	start := time.Now()
	for {
		if ctx.Err() != nil {
			res.Interrupted = true
			break
		}

		latency, err := exec.Execute(ctx, src.Pick(rng))
		switch {
		case err == nil:
			res.Latencies = append(res.Latencies, latency)
			res.Executed++
		case ctx.Err() != nil:
			// Cut short by the interrupt; not a failure of the target.
			res.Interrupted = true
		default:
			res.Failed++
			if res.Errors == nil {
				res.Errors = make(map[string]int64)
			}
			res.Errors[metrics.ErrorKey(err)]++
			if failures != nil {
				failures.LogFailure(id, err)
			}
		}

		if res.Interrupted || time.Since(start) >= duration {
			break
		}
	}
	res.ActualDuration = time.Since(start)
	return res
}
