package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/vecsweep/internal/auth"
	"github.com/torosent/vecsweep/internal/config"
	"github.com/torosent/vecsweep/internal/httpclient"
	"github.com/torosent/vecsweep/internal/logging"
	"github.com/torosent/vecsweep/internal/output"
	"github.com/torosent/vecsweep/internal/payload"
	"github.com/torosent/vecsweep/internal/promexport"
	"github.com/torosent/vecsweep/internal/runner"
	"github.com/torosent/vecsweep/internal/tracing"
)

const (
	failureLogsPerSecond = 5
	failureLogBurst      = 20
	shutdownTimeout      = 5 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.Setup(stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	runID := ulid.Make().String()
	logger = logger.With("run_id", runID)

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	logger.Info("preparing search payloads",
		"target", cfg.SearchURL(), "collection", cfg.CollectionName,
		"dim", cfg.Dim, "topk", cfg.TopK, "pool_size", cfg.PoolSize, "seed", seed)

	pool, err := payload.NewPool(payload.Options{
		CollectionName: cfg.CollectionName,
		VectorField:    cfg.VectorField,
		Dim:            cfg.Dim,
		TopK:           cfg.TopK,
		Size:           cfg.PoolSize,
		Seed:           seed,
	})
	if err != nil {
		return fmt.Errorf("build payload pool: %w", err)
	}
	logger.Info("search payloads ready", "payloads", pool.Len(), "body_bytes", len(pool.At(0)))

	tp, err := tracing.Init(ctx, cfg.Tracing, tracing.Sweep{
		RunID:      runID,
		Target:     cfg.SearchURL(),
		Collection: cfg.CollectionName,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", "error", err)
		}
	}()

	client := httpclient.NewClient(cfg.Timeout, slices.Max(cfg.ConcList))
	defer client.CloseIdleConnections()

	exec, err := httpclient.NewExecutor(client, httpclient.Options{
		URL:               cfg.SearchURL(),
		Auth:              auth.NewStaticTokenProvider(cfg.Token),
		CheckResponseCode: cfg.CheckResponseCode,
		Tracing:           tp,
	})
	if err != nil {
		return err
	}

	var failureLog *runner.RateLimitedLogger
	opts := runner.Options{
		Source:   pool,
		Executor: exec,
		Seed:     seed,
		Logger:   logger,
		Tracer:   tp.Tracer(),
	}
	if cfg.LogErrors {
		failureLog = runner.NewRateLimitedLogger(logger.With("component", "worker"), failureLogsPerSecond, failureLogBurst)
		opts.Failures = failureLog
	}
	r, err := runner.New(opts)
	if err != nil {
		return err
	}

	var exporter *promexport.Exporter
	var observers []runner.LevelObserver
	if cfg.MetricsAddr != "" {
		exporter = promexport.New()
		observers = append(observers, exporter)
	}
	sweep := runner.NewSweep(r, logger, observers...)
	if failureLog != nil {
		sweep.AfterLevel(failureLog.Flush)
	}

	report := output.Report{
		RunID:      runID,
		Target:     cfg.SearchURL(),
		Collection: cfg.CollectionName,
		StartedAt:  time.Now().UTC(),
	}

	var sweepErr error
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		report.Levels, sweepErr = sweep.Run(gctx, runner.SweepConfig{
			Levels:       cfg.ConcList,
			Duration:     cfg.ConcDuration,
			Intermission: cfg.ConcIntermission,
		})
		if sweepErr != nil && !errors.Is(sweepErr, runner.ErrInterrupted) {
			return sweepErr
		}
		return nil
	})
	if exporter != nil {
		serveMetrics(g, done, cfg.MetricsAddr, exporter, logger)
	}
	waitErr := g.Wait()

	if errors.Is(sweepErr, runner.ErrInterrupted) {
		report.Interrupted = true
		logger.Warn("sweep interrupted; reporting partial results", "levels_completed", len(report.Levels))
	}
	if len(report.Levels) > 0 || report.Interrupted {
		if err := printReport(stdout, cfg.Output, report); err != nil {
			return err
		}
	}
	return waitErr
}

// serveMetrics exposes the exporter until the sweep is done.
func serveMetrics(g *errgroup.Group, done <-chan struct{}, addr string, exporter *promexport.Exporter, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", exporter.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		logger.Info("serving prometheus metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-done
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}

func printReport(w io.Writer, format config.OutputFormat, report output.Report) error {
	switch format {
	case config.OutputJSON:
		return output.PrintJSONReport(w, report)
	case config.OutputYAML:
		return output.PrintYAMLReport(w, report)
	default:
		output.PrintReport(w, report)
		return nil
	}
}
