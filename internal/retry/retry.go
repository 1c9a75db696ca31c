// Package retry retries transient collaborator failures with capped
// exponential backoff and jitter.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
)

// Config defines retry behavior.
type Config struct {
	MaxRetries     int // 0 = single attempt
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultConfig returns the collaborator retry defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     2,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		BackoffFactor:  2.0,
	}
}

// TransientError marks an error as safe to retry, e.g. an HTTP 429 or 5xx
// reply.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsRetryable reports whether err is a transient failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrValidation) {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{"not verified", "invalid", "malformed"} {
		if strings.Contains(msg, s) {
			return false
		}
	}
	for _, s := range []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary",
		"rate limit",
		"throttl",
		"too many requests",
		"try again",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Do runs fn until it succeeds, fails permanently, or the retries run out.
// The last error is returned.
func Do(ctx context.Context, cfg Config, logger *slog.Logger, operation string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err = fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("operation succeeded after retry", "operation", operation, "attempt", attempt+1)
			}
			return nil
		}
		if !IsRetryable(err) || attempt == cfg.MaxRetries {
			return err
		}

		backoff := Backoff(cfg, attempt)
		logger.Warn("operation failed, retrying",
			"operation", operation,
			"attempt", attempt+1,
			"max_attempts", cfg.MaxRetries+1,
			"backoff", backoff,
			"error", err,
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// Backoff returns the wait before retry attempt+1: initial*factor^attempt,
// capped at MaxBackoff, with ±25% jitter.
func Backoff(cfg Config, attempt int) time.Duration {
	b := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffFactor, float64(attempt))
	b = min(b, float64(cfg.MaxBackoff))
	b += b * 0.25 * (rand.Float64()*2 - 1)
	return time.Duration(b)
}
