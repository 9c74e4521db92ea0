// Package retry wraps avast/retry-go with the SDK's error classification.
// Only failures classified as retryable are retried, and rate limit
// rejections wait out their advertised retry-after before the next attempt.
package retry

import (
	"context"
	"time"

	retrygo "github.com/avast/retry-go"

	"github.com/veiloq/cex-sdk/pkg/exchanges/interfaces"
)

type config struct {
	attempts uint
	delay    time.Duration
	maxDelay time.Duration
	onRetry  func(attempt uint, err error)
}

// Option customizes a Do call.
type Option func(*config)

// WithAttempts sets the total number of attempts, including the first.
func WithAttempts(attempts uint) Option {
	return func(c *config) { c.attempts = attempts }
}

// WithDelay sets the base delay between attempts.
func WithDelay(delay time.Duration) Option {
	return func(c *config) { c.delay = delay }
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay(maxDelay time.Duration) Option {
	return func(c *config) { c.maxDelay = maxDelay }
}

// WithOnRetry installs a callback invoked before each retry.
func WithOnRetry(fn func(attempt uint, err error)) Option {
	return func(c *config) { c.onRetry = fn }
}

// Do runs op, retrying transient failures with exponential backoff. A
// failure is transient when it is a normalized error whose kind is
// retryable; anything else fails immediately. Cancelling ctx stops the
// retries.
func Do(ctx context.Context, op func(context.Context) error, opts ...Option) error {
	cfg := config{
		attempts: 4,
		delay:    200 * time.Millisecond,
		maxDelay: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	options := []retrygo.Option{
		retrygo.Context(ctx),
		retrygo.Attempts(cfg.attempts),
		retrygo.Delay(cfg.delay),
		retrygo.MaxDelay(cfg.maxDelay),
		retrygo.LastErrorOnly(true),
		retrygo.RetryIf(Retryable),
		retrygo.DelayType(delayFor),
	}
	if cfg.onRetry != nil {
		options = append(options, retrygo.OnRetry(cfg.onRetry))
	}

	return retrygo.Do(func() error { return op(ctx) }, options...)
}

// Retryable reports whether err is worth retrying: rate limit, network and
// exchange availability failures are, everything else is not.
func Retryable(err error) bool {
	if normalized, ok := interfaces.AsError(err); ok {
		return normalized.Retryable()
	}
	return false
}

// delayFor prefers the retry-after advertised by a rate limit rejection
// over the generic backoff.
func delayFor(n uint, err error, cfg *retrygo.Config) time.Duration {
	if normalized, ok := interfaces.AsError(err); ok && normalized.RetryAfter > 0 {
		return normalized.RetryAfter
	}
	return retrygo.BackOffDelay(n, err, cfg)
}
