package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config holds retry configuration for dependency start-up checks
type Config struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	MaxTotalTimeout time.Duration
}

// DefaultConfig returns a default retry configuration with 1 minute max timeout
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     10,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		BackoffFactor:   2.0,
		MaxTotalTimeout: 60 * time.Second,
	}
}

// DoWithLog executes fn with exponential backoff and reports each failed attempt
func DoWithLog(ctx context.Context, cfg Config, serviceName string, fn func() error, logFn func(attempt int, err error, nextDelay time.Duration)) error {
	if cfg.MaxTotalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.MaxTotalTimeout)
		defer cancel()
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = cfg.InitialDelay
	eb.MaxInterval = cfg.MaxDelay
	eb.Multiplier = cfg.BackoffFactor
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	eb.Reset()

	attempts := 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(max(cfg.MaxAttempts-1, 0))), ctx)
	err := backoff.RetryNotify(func() error {
		attempts++
		return fn()
	}, b, func(err error, next time.Duration) {
		if logFn != nil {
			logFn(attempts, err, next)
		}
	})
	if err != nil {
		return fmt.Errorf("%s: gave up after %d attempts: %w", serviceName, attempts, err)
	}
	return nil
}

// Policy retries transient failures with exponential backoff and jitter.
// The delay before attempt n+1 is BaseDelay*2^(n-1) scaled by a random
// factor in [0.5, 1.5], never exceeding MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// IsRetryable decides whether an error is worth another attempt.
	IsRetryable func(error) bool

	// OnRetry is called before sleeping ahead of the next attempt.
	OnRetry func(attempt int, err error, next time.Duration)
}

// Execute runs fn under the policy and returns the first success or the last error.
func Execute[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.IsRetryable == nil {
		p.IsRetryable = func(error) bool { return true }
	}

	attempt := 0
	var lastErr error
	op := func() (T, error) {
		attempt++
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !p.IsRetryable(err) {
			return zero, backoff.Permanent(err)
		}
		return zero, err
	}

	notify := func(err error, next time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, next)
		}
	}

	res, err := backoff.RetryNotifyWithData(op, p.backOff(ctx), notify)
	if err != nil {
		if ctx.Err() != nil && lastErr != nil && err == ctx.Err() {
			return zero, fmt.Errorf("retry aborted after %d attempts: %w (last error: %v)", attempt, err, lastErr)
		}
		return zero, err
	}
	return res, nil
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	eb.Multiplier = 2
	eb.RandomizationFactor = 0.5
	eb.MaxInterval = p.MaxDelay
	eb.MaxElapsedTime = 0
	eb.Reset()

	var b backoff.BackOff = &cappedBackOff{BackOff: eb, limit: p.MaxDelay}
	b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	return backoff.WithContext(b, ctx)
}

// cappedBackOff clamps jittered intervals, which can otherwise overshoot MaxInterval by the randomization factor.
type cappedBackOff struct {
	backoff.BackOff
	limit time.Duration
}

func (c *cappedBackOff) NextBackOff() time.Duration {
	next := c.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if c.limit > 0 && next > c.limit {
		return c.limit
	}
	return next
}
