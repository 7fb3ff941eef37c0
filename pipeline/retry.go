package pipeline

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryConfig is an explicit retry policy injected into each
// network-calling component.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BackoffBase is the delay before the first retry.
	BackoffBase time.Duration

	// BackoffMultiplier is applied to the backoff on each retry.
	BackoffMultiplier float64

	// MaxBackoff caps the backoff duration.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns the pipeline-wide retry defaults:
// three attempts with exponential backoff from 1s capped at 16s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       1 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        16 * time.Second,
	}
}

// WithMaxAttempts returns a copy of the config with MaxAttempts set to
// attempts+1 (attempts counts retries after the first try).
func (c RetryConfig) WithMaxAttempts(attempts int) RetryConfig {
	c.MaxAttempts = attempts + 1
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	return c
}

// Do invokes fn up to cfg.MaxAttempts times, backing off between
// attempts. Only errors marked retryable are retried; fatal errors and
// context cancellation return immediately.
func Do(ctx context.Context, cfg RetryConfig, logger *slog.Logger, op string, fn func() error) error {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		backoff := cfg.backoff(attempt)
		logger.Debug("Retrying after transient failure",
			"op", op,
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"backoff", backoff,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}

// backoff computes the jittered exponential backoff for an attempt.
// Jitter (±25%) prevents synchronized retries across concurrent URLs.
func (c RetryConfig) backoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= c.BackoffMultiplier
	}

	backoff := time.Duration(float64(c.BackoffBase) * multiplier)
	if backoff > c.MaxBackoff {
		backoff = c.MaxBackoff
	}

	jitter := float64(backoff) * 0.25 * (rand.Float64()*2 - 1)
	return backoff + time.Duration(jitter)
}
