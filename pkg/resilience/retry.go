package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig describes an exponential backoff with jitter
type RetryConfig struct {
	MaxAttempts         int
	InitialDelay        time.Duration
	MaxDelay            time.Duration
	Multiplier          float64
	RandomizationFactor float64
	// Retryable reports whether err is worth another attempt. nil retries everything.
	Retryable func(error) bool
}

// DefaultRetryConfig returns the defaults. A picker is waiting on the scan
// that triggered the call, so all retries finish well under half a second.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:         3,
		InitialDelay:        50 * time.Millisecond,
		MaxDelay:            250 * time.Millisecond,
		Multiplier:          2,
		RandomizationFactor: 0.5,
	}
}

// NewBackOff builds the backoff policy described by config, bound to ctx
func NewBackOff(ctx context.Context, config *RetryConfig) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = config.InitialDelay
	bo.MaxInterval = config.MaxDelay
	bo.Multiplier = config.Multiplier
	bo.RandomizationFactor = config.RandomizationFactor
	bo.MaxElapsedTime = 0
	bo.Reset()

	var policy backoff.BackOff = bo
	if config.MaxAttempts > 0 {
		policy = backoff.WithMaxRetries(policy, uint64(config.MaxAttempts-1))
	}
	return backoff.WithContext(policy, ctx)
}

// Retry runs fn until it succeeds, returns a non-retryable error, or attempts run out
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, config, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult is Retry for functions that produce a value
func RetryWithResult[T any](ctx context.Context, config *RetryConfig, fn func() (T, error)) (T, error) {
	return backoff.RetryWithData[T](func() (T, error) {
		result, err := fn()
		if err != nil && config.Retryable != nil && !config.Retryable(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}, NewBackOff(ctx, config))
}
