// Package runner drives the search load for a sweep of concurrency levels.
//
// A level spawns one goroutine per unit of concurrency. Each goroutine runs
// [RunWorker]: it draws a payload with its own *rand.Rand, executes it, and
// repeats back to back until the level duration has elapsed. The duration is
// checked between requests, so a worker always runs at least as long as asked.
// Workers share only the read-only payload pool and the HTTP client.
//
// [Runner.RunLevel] waits for every worker to finish, merges their private
// results and derives the level statistics. [Sweep.Run] walks the configured
// levels in order with a pause between them:
//
//	r, err := runner.New(runner.Options{Source: pool, Executor: exec})
//	sweep := runner.NewSweep(r, logger)
//	levels, err := sweep.Run(ctx, runner.SweepConfig{
//		Levels:       []int{1, 10, 20},
//		Duration:     5 * time.Minute,
//		Intermission: 30 * time.Second,
//	})
//
// Cancelling ctx stops the sweep early; the levels gathered so far are
// returned together with [ErrInterrupted].
package runner
