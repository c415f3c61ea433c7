package runner

import (
	"log/slog"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/torosent/vecsweep/internal/logging"
)

// FailureLogger logs failed requests.
type FailureLogger interface {
	LogFailure(workerID int, err error)
}

// RateLimitedLogger logs request failures without flooding stderr when the
// target is down. Failures beyond the rate are counted and reported with the
// next line that gets through, or by Flush.
type RateLimitedLogger struct {
	logger     *slog.Logger
	limiter    *rate.Limiter
	suppressed atomic.Int64
}

// NewRateLimitedLogger allows perSecond lines with bursts of burst.
func NewRateLimitedLogger(logger *slog.Logger, perSecond float64, burst int) *RateLimitedLogger {
	if logger == nil {
		logger = logging.WithComponent("worker")
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedLogger{
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (l *RateLimitedLogger) LogFailure(workerID int, err error) {
	if err == nil {
		return
	}
	if !l.limiter.Allow() {
		l.suppressed.Add(1)
		return
	}
	attrs := []any{"worker", workerID, "error", err}
	if n := l.suppressed.Swap(0); n > 0 {
		attrs = append(attrs, "suppressed", n)
	}
	l.logger.Warn("request failed", attrs...)
}

// Flush reports failures that were dropped since the last logged line.
func (l *RateLimitedLogger) Flush() {
	if n := l.suppressed.Swap(0); n > 0 {
		l.logger.Warn("request failures suppressed", "count", n)
	}
}
