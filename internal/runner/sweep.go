package runner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/torosent/vecsweep/internal/logging"
)

// ErrInterrupted is returned by Sweep.Run when ctx was cancelled before every
// level finished. The results returned alongside it are still valid.
var ErrInterrupted = errors.New("sweep interrupted")

// SweepConfig lists the levels to run. Levels run in the given order.
type SweepConfig struct {
	Levels       []int
	Duration     time.Duration
	Intermission time.Duration
}

// LevelObserver is told about every completed level, in order.
type LevelObserver interface {
	ObserveLevel(res LevelResult)
}

// LevelRunner runs a single level. *Runner implements it.
type LevelRunner interface {
	RunLevel(ctx context.Context, concurrency int, duration time.Duration) LevelResult
}

// Sweep runs concurrency levels one after another.
type Sweep struct {
	runner    LevelRunner
	logger    *slog.Logger
	observers []LevelObserver
	// after runs once per level, after observers; used to flush failure logs.
	after func()
}

func NewSweep(r LevelRunner, logger *slog.Logger, observers ...LevelObserver) *Sweep {
	if logger == nil {
		logger = logging.WithComponent("sweep")
	}
	return &Sweep{runner: r, logger: logger, observers: observers}
}

// AfterLevel registers fn to run after each level has been observed.
func (s *Sweep) AfterLevel(fn func()) {
	s.after = fn
}

// Run executes every level and sleeps cfg.Intermission between levels, not
// after the last one. Cancelling ctx during a level keeps that level, marked
// interrupted, and stops; cancelling during a pause stops before the next one.
func (s *Sweep) Run(ctx context.Context, cfg SweepConfig) ([]LevelResult, error) {
	if len(cfg.Levels) == 0 {
		return nil, errors.New("sweep: no concurrency levels")
	}

	results := make([]LevelResult, 0, len(cfg.Levels))
	for i, concurrency := range cfg.Levels {
		if ctx.Err() != nil {
			return results, ErrInterrupted
		}

		s.logger.Info("starting level",
			"level", i+1, "of", len(cfg.Levels),
			"concurrency", concurrency, "duration", cfg.Duration)

		res := s.runner.RunLevel(ctx, concurrency, cfg.Duration)
		results = append(results, res)
		s.report(res)

		if res.Interrupted || ctx.Err() != nil {
			return results, ErrInterrupted
		}
		if i == len(cfg.Levels)-1 || cfg.Intermission <= 0 {
			continue
		}

		s.logger.Info("intermission", "pause", cfg.Intermission)
		if err := sleep(ctx, cfg.Intermission); err != nil {
			return results, ErrInterrupted
		}
	}
	return results, nil
}

func (s *Sweep) report(res LevelResult) {
	attrs := []any{
		"concurrency", res.Concurrency,
		"executed", res.TotalExecuted,
		"failed", res.TotalFailed,
		"qps", res.QPS,
		"avg_ms", res.AvgLatencyMs,
		"p99_ms", res.P99LatencyMs,
	}
	if res.Degenerate {
		s.logger.Warn("level executed no requests", attrs...)
	} else {
		s.logger.Info("level finished", attrs...)
	}
	if res.LostWorkers > 0 {
		s.logger.Warn("workers lost", "concurrency", res.Concurrency, "lost", res.LostWorkers)
	}
	for _, o := range s.observers {
		o.ObserveLevel(res)
	}
	if s.after != nil {
		s.after()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
