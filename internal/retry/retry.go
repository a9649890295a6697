// Package retry provides exponential backoff with jitter and a
// batch-coalescing debounce timer.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/codegraphhq/codegraph/internal/errors"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts  int              // Maximum number of attempts (0 = unlimited)
	InitialDelay time.Duration    // Initial delay between retries
	MaxDelay     time.Duration    // Cap on the backoff delay
	Multiplier   float64          // Backoff multiplier
	Jitter       float64          // Extra random delay, fraction of current delay (0-1)
	RetryIf      func(error) bool // Predicate deciding if an error is retryable
}

// DefaultConfig returns the standard policy: three attempts, exponential
// backoff from 100ms capped at 30s, jitter up to 50% of the current delay.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.5,
		RetryIf:      errors.IsRetryable,
	}
}

// Operation is a retryable unit of work.
type Operation func(ctx context.Context) error

// Retrier executes operations under a retry policy. The predicate reads the
// retryable flag carried on typed errors; it never inspects messages.
type Retrier struct {
	config *Config
}

// New creates a retrier, normalising out-of-range config values.
func New(config *Config) *Retrier {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Multiplier < 1 {
		config.Multiplier = 1
	}
	if config.Jitter < 0 {
		config.Jitter = 0
	} else if config.Jitter > 1 {
		config.Jitter = 1
	}
	if config.RetryIf == nil {
		config.RetryIf = errors.IsRetryable
	}
	return &Retrier{config: config}
}

// Do executes op until it succeeds, exhausts attempts, fails permanently,
// or the context is cancelled.
func (r *Retrier) Do(ctx context.Context, op Operation) error {
	var lastErr error
	delay := r.config.InitialDelay

	for attempt := 1; r.config.MaxAttempts == 0 || attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.config.RetryIf(err) {
			break
		}
		if r.config.MaxAttempts > 0 && attempt >= r.config.MaxAttempts {
			break
		}

		select {
		case <-time.After(r.withJitter(delay)):
			delay = r.nextDelay(delay)
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during retry delay: %w", ctx.Err())
		}
	}

	return lastErr
}

// withJitter adds up to Jitter*delay of random extra delay.
func (r *Retrier) withJitter(delay time.Duration) time.Duration {
	if r.config.Jitter == 0 {
		return delay
	}
	extra := rand.Float64() * r.config.Jitter * float64(delay)
	return delay + time.Duration(extra)
}

// nextDelay applies the multiplier, capped at MaxDelay.
func (r *Retrier) nextDelay(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * r.config.Multiplier)
	if next > r.config.MaxDelay {
		return r.config.MaxDelay
	}
	return next
}

// Do executes op with the default policy.
func Do(ctx context.Context, op Operation) error {
	return New(DefaultConfig()).Do(ctx, op)
}

// DoWithConfig executes op with a custom policy.
func DoWithConfig(ctx context.Context, config *Config, op Operation) error {
	return New(config).Do(ctx, op)
}
