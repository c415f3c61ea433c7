package runner

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/vecsweep/internal/logging"
	"github.com/torosent/vecsweep/internal/tracing"
)

// levelSeedStride separates the RNG seeds of consecutive levels so no two
// workers in a sweep share a stream.
const levelSeedStride = 1_000_003

// Options configure the Runner.
type Options struct {
	Source   Source   // payload pool (required)
	Executor Executor // request executor (required)
	// Seed is the base of every worker's RNG seed. Zero seeds from the clock.
	Seed     int64
	Failures FailureLogger // optional
	Logger   *slog.Logger  // optional
	Tracer   trace.Tracer  // optional
}

// Runner runs one concurrency level at a time.
type Runner struct {
	opt   Options
	level int64
}

func New(opt Options) (*Runner, error) {
	if opt.Source == nil {
		return nil, errors.New("runner: payload source is required")
	}
	if opt.Executor == nil {
		return nil, errors.New("runner: executor is required")
	}
	if opt.Seed == 0 {
		opt.Seed = time.Now().UnixNano()
	}
	if opt.Logger == nil {
		opt.Logger = logging.WithComponent("runner")
	}
	if opt.Tracer == nil {
		opt.Tracer = noop.NewTracerProvider().Tracer("vecsweep")
	}
	return &Runner{opt: opt}, nil
}

// RunLevel starts concurrency workers together, waits for all of them and
// returns the merged statistics. A worker that panics is logged and
// contributes nothing. RunLevel is not safe for concurrent use.
func (r *Runner) RunLevel(ctx context.Context, concurrency int, duration time.Duration) LevelResult {
	if concurrency < 1 {
		concurrency = 1
	}
	ctx, span := tracing.StartLevelSpan(ctx, r.opt.Tracer, concurrency, duration)

	base := r.opt.Seed + r.level*levelSeedStride
	r.level++

	results := make([]RunResult, concurrency)
	lost := make([]bool, concurrency)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	start := time.Now()
	for i := 0; i < concurrency; i++ {
		go func(id int) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					lost[id] = true
					r.opt.Logger.Warn("worker panicked; its results are dropped",
						"concurrency", concurrency, "worker", id, "panic", p)
				}
			}()
			rng := rand.New(rand.NewSource(base + int64(id)))
			results[id] = RunWorker(ctx, id, r.opt.Source, r.opt.Executor, rng, duration, r.opt.Failures)
		}(i)
	}
	wg.Wait()
	wallClock := time.Since(start)

	kept := results[:0]
	lostCount := 0
	for i := range results {
		if lost[i] {
			lostCount++
			continue
		}
		kept = append(kept, results[i])
	}

	res := aggregate(concurrency, duration, wallClock, kept, lostCount)
	tracing.EndSpan(span, nil,
		attribute.Int64("vecsweep.executed", res.TotalExecuted),
		attribute.Int64("vecsweep.failed", res.TotalFailed),
		attribute.Float64("vecsweep.qps", res.QPS),
		attribute.Bool("vecsweep.interrupted", res.Interrupted),
	)
	return res
}
