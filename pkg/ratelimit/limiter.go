// Package ratelimit gatekeeps outbound calls to exchange APIs.
//
// Two limiters are provided:
//
//   - RateLimiter: a token-bucket limiter (backed by Uber's rate limiter)
//     that smooths a flow of operations to a target rate. Used as the
//     permissive fallback for request categories without an explicit budget.
//
//   - CategoryLimiter: a fixed-window limiter that enforces an exact request
//     budget per category (e.g. separate budgets for market data and order
//     placement). Blocked callers are served in FIFO order when the window
//     rolls over, waits are cancellable, and a cancelled waiter never
//     consumes budget.
//
// Exchange connectors configure these limiters from their published API
// limits to avoid request throttling and IP bans.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/ratelimit"
)

// Rate describes a number of operations allowed within a time interval.
type Rate struct {
	// Limit is the maximum number of operations per Interval.
	Limit int

	// Interval is the time window the limit applies to.
	Interval time.Duration
}

// RateLimiter paces a flow of operations to a configured rate.
type RateLimiter interface {
	// Wait blocks until an operation is permitted or the context is
	// cancelled before a slot could be taken.
	Wait(ctx context.Context) error

	// SetLimit replaces the rate configuration at runtime. Returns an error
	// if the rate is invalid (non-positive limit or interval).
	SetLimit(limit Rate) error
}

// uberLimiter implements RateLimiter on top of Uber's token bucket.
type uberLimiter struct {
	limiter ratelimit.Limiter
	rate    Rate
}

// NewTokenBucketLimiter creates a RateLimiter with the given rate. The rate
// is converted to operations per second; rates below one per second are
// clamped to one.
func NewTokenBucketLimiter(rate Rate) RateLimiter {
	return &uberLimiter{
		limiter: ratelimit.New(perSecond(rate)),
		rate:    rate,
	}
}

func perSecond(rate Rate) int {
	rps := int(float64(rate.Limit) / rate.Interval.Seconds())
	if rps < 1 {
		rps = 1
	}
	return rps
}

func (l *uberLimiter) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limit wait cancelled: %w", ctx.Err())
	default:
		l.limiter.Take()
		return nil
	}
}

func (l *uberLimiter) SetLimit(rate Rate) error {
	if rate.Limit <= 0 || rate.Interval <= 0 {
		return fmt.Errorf("invalid rate limit: %+v", rate)
	}
	l.limiter = ratelimit.New(perSecond(rate))
	l.rate = rate
	return nil
}
