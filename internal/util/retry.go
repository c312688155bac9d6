package util

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/typeguard/typedsets/internal/models"
)

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that Retry returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Backoff returns the delay before the given attempt (1-based; attempt 1 has no delay).
func Backoff(cfg models.RetryConfig, attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := float64(cfg.InitialDelayMs)
	for i := 2; i < attempt; i++ {
		delay *= cfg.Multiplier
	}
	if cfg.MaxDelayMs > 0 && delay > float64(cfg.MaxDelayMs) {
		delay = float64(cfg.MaxDelayMs)
	}
	return time.Duration(delay) * time.Millisecond
}

// Retry runs fn until it succeeds, returns a Permanent error, the attempts in cfg
// are exhausted, or ctx is done. The last error is returned.
func Retry(ctx context.Context, cfg models.RetryConfig, op string, fn func(context.Context) error) error {
	attempts := max(cfg.MaxAttempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if delay := Backoff(cfg, attempt); delay > 0 {
			slog.Debug("retrying", "op", op, "attempt", attempt, "max_attempts", attempts, "delay", delay)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(err, ctx.Err())
			case <-timer.C:
			}
		}

		err = fn(ctx)
		if err == nil {
			if attempt > 1 {
				slog.Info("succeeded after retries", "op", op, "attempts", attempt)
			}
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return errors.Join(err, ctx.Err())
		}
		slog.Warn("attempt failed", "op", op, "attempt", attempt, "error", err)
	}
	return err
}
