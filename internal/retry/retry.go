/*
Package retry provides exponential backoff and the caller-side resubmission
of records whose delivery failed.

The streamer never retries on its own: resubmitting a record is a decision
taken here, on behalf of the CLI, and bounded by Config.MaxAttempts.
*/
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/agbruneau/groupload/internal/config"
)

// Config holds the backoff configuration.
type Config struct {
	MaxAttempts  int           // Maximum number of attempts.
	InitialDelay time.Duration // Delay before the second attempt.
	MaxDelay     time.Duration // Upper bound of a single delay.
	Multiplier   float64       // Exponential backoff factor.
}

// DefaultConfig returns the resubmission defaults. MaxAttempts is zero:
// nothing is resubmitted unless the caller asks for it.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  config.ResubmitMaxAttempts,
		InitialDelay: config.ResubmitInitialDelay,
		MaxDelay:     config.ResubmitMaxDelay,
		Multiplier:   config.ResubmitMultiplier,
	}
}

// PermanentError wraps an error that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks err as not retryable. Permanent(nil) is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var permanentErr *PermanentError
	return errors.As(err, &permanentErr)
}

// Result holds the outcome of a retried operation.
type Result struct {
	Attempts int           // Attempts made.
	Duration time.Duration // Total time spent, delays included.
	Err      error         // Final error, nil on success.
}

// Do runs fn until it succeeds, returns a permanent error, the context is
// done or MaxAttempts is reached.
func Do(ctx context.Context, cfg Config, fn func() error) Result {
	return DoWithCallback(ctx, cfg, fn, nil)
}

// DoWithCallback is like Do but calls onRetry after each failed attempt
// that will be retried, with the delay before the next one.
func DoWithCallback(ctx context.Context, cfg Config, fn func() error, onRetry func(attempt int, err error, nextDelay time.Duration)) Result {
	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return Result{Attempts: attempt, Duration: time.Since(start), Err: ctx.Err()}
		default:
		}

		err := fn()
		if err == nil {
			return Result{Attempts: attempt, Duration: time.Since(start)}
		}
		lastErr = err

		if IsPermanent(err) {
			return Result{Attempts: attempt, Duration: time.Since(start), Err: err}
		}

		// No sleep after the last attempt.
		if attempt < cfg.MaxAttempts {
			delay := calculateDelay(attempt, cfg)
			if onRetry != nil {
				onRetry(attempt, err, delay)
			}
			select {
			case <-ctx.Done():
				return Result{Attempts: attempt, Duration: time.Since(start), Err: ctx.Err()}
			case <-time.After(delay):
			}
		}
	}

	return Result{Attempts: cfg.MaxAttempts, Duration: time.Since(start), Err: lastErr}
}

// calculateDelay returns the exponential delay for attempt, capped at
// MaxDelay, with ±25% jitter.
func calculateDelay(attempt int, cfg Config) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	jitter := delay * 0.25 * (rand.Float64()*2 - 1)
	delay += jitter

	return time.Duration(delay)
}
