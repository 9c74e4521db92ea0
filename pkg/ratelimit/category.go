package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrBudgetExhausted is wrapped by every budget failure reported by a
// CategoryLimiter, so callers can classify them with errors.Is.
var ErrBudgetExhausted = errors.New("rate limit budget exhausted")

// BudgetError reports that a category's request budget could not be acquired
// within the configured wait policy.
type BudgetError struct {
	Category string

	// RetryAfter is the time until the current window rolls over and budget
	// becomes available again. Zero when unknown.
	RetryAfter time.Duration
}

func (e *BudgetError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit budget exhausted for category %q, retry after %s", e.Category, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit budget exhausted for category %q", e.Category)
}

func (e *BudgetError) Unwrap() error {
	return ErrBudgetExhausted
}

// Rule configures the budget for one request category. Exactly one rule may
// exist per category.
type Rule struct {
	// Category labels the requests the rule applies to, e.g. "market-data".
	Category string

	// Limit is the maximum number of acquisitions per Window.
	Limit int

	// Window is the length of the fixed window the limit applies to.
	Window time.Duration

	// MaxWait caps how long Acquire may block waiting for budget. Zero means
	// wait until the context is cancelled.
	MaxWait time.Duration
}

// Policy decides what happens to categories without a configured rule.
type Policy int

const (
	// AllowUnknown admits unconfigured categories through a shared
	// token-bucket fallback limiter.
	AllowUnknown Policy = iota

	// DenyUnknown fails unconfigured categories closed with a BudgetError.
	DenyUnknown
)

// Config configures a CategoryLimiter.
type Config struct {
	Rules  []Rule
	Policy Policy

	// Fallback is the token-bucket rate applied to unknown categories under
	// AllowUnknown. Defaults to 10 per second.
	Fallback Rate

	// Clock may be replaced in tests. Defaults to the wall clock.
	Clock clock.Clock
}

// CategoryLimiter enforces a fixed-window request budget per category.
//
// A window of length W with limit N admits at most N acquisitions between
// window start and window end. When the budget is exhausted, Acquire parks
// the caller in a FIFO queue; the window rollover grants queued waiters in
// arrival order up to the fresh budget.
type CategoryLimiter struct {
	mu         sync.Mutex
	categories map[string]*category
	policy     Policy
	fallback   RateLimiter
	clock      clock.Clock
}

type category struct {
	rule        Rule
	windowStart time.Time
	used        int
	waiters     []*waiter
	timerArmed  bool
}

type waiter struct {
	weight  int
	granted bool
	ch      chan struct{}
}

// NewCategoryLimiter builds a limiter from the given configuration. It
// returns an error if any rule is invalid or a category appears twice.
func NewCategoryLimiter(cfg Config) (*CategoryLimiter, error) {
	ck := cfg.Clock
	if ck == nil {
		ck = clock.New()
	}
	fallback := cfg.Fallback
	if fallback.Limit <= 0 || fallback.Interval <= 0 {
		fallback = Rate{Limit: 10, Interval: time.Second}
	}

	l := &CategoryLimiter{
		categories: make(map[string]*category, len(cfg.Rules)),
		policy:     cfg.Policy,
		fallback:   NewTokenBucketLimiter(fallback),
		clock:      ck,
	}
	now := ck.Now()
	for _, rule := range cfg.Rules {
		if rule.Category == "" {
			return nil, fmt.Errorf("rate limit rule without category: %+v", rule)
		}
		if rule.Limit <= 0 || rule.Window <= 0 {
			return nil, fmt.Errorf("invalid rate limit rule for category %q: %+v", rule.Category, rule)
		}
		if _, exists := l.categories[rule.Category]; exists {
			return nil, fmt.Errorf("duplicate rate limit rule for category %q", rule.Category)
		}
		l.categories[rule.Category] = &category{rule: rule, windowStart: now}
	}
	return l, nil
}

// Acquire blocks until one slot of the category's budget is granted, the
// rule's MaxWait elapses, or the context is cancelled.
func (l *CategoryLimiter) Acquire(ctx context.Context, cat string) error {
	return l.AcquireN(ctx, cat, 1)
}

// AcquireN acquires weight slots at once, for endpoints the exchange charges
// more than one request against the budget.
func (l *CategoryLimiter) AcquireN(ctx context.Context, cat string, weight int) error {
	if weight <= 0 {
		weight = 1
	}

	l.mu.Lock()
	c, ok := l.categories[cat]
	if !ok {
		l.mu.Unlock()
		return l.acquireUnknown(ctx, cat)
	}

	if weight > c.rule.Limit {
		l.mu.Unlock()
		return fmt.Errorf("acquire weight %d exceeds budget %d for category %q", weight, c.rule.Limit, cat)
	}

	now := l.clock.Now()
	l.rollLocked(c, now)
	if len(c.waiters) == 0 && c.used+weight <= c.rule.Limit {
		c.used += weight
		l.mu.Unlock()
		grantsTotal.WithLabelValues(cat).Inc()
		return nil
	}

	w := &waiter{weight: weight, ch: make(chan struct{})}
	c.waiters = append(c.waiters, w)
	l.armTimerLocked(c, now)
	maxWait := c.rule.MaxWait
	l.mu.Unlock()

	var expired <-chan time.Time
	if maxWait > 0 {
		timer := l.clock.Timer(maxWait)
		defer timer.Stop()
		expired = timer.C
	}

	waitStart := l.clock.Now()
	select {
	case <-w.ch:
		grantsTotal.WithLabelValues(cat).Inc()
		waitSeconds.WithLabelValues(cat).Observe(l.clock.Since(waitStart).Seconds())
		return nil
	case <-ctx.Done():
		l.abandon(c, w)
		return fmt.Errorf("rate limit wait cancelled for category %q: %w", cat, ctx.Err())
	case <-expired:
		// If the grant raced the deadline, abandon hands the slot back.
		l.abandon(c, w)
		rejectionsTotal.WithLabelValues(cat).Inc()
		return &BudgetError{Category: cat, RetryAfter: l.retryAfter(c)}
	}
}

// TryAcquire reports whether one slot is immediately available and consumes
// it if so. It never blocks.
func (l *CategoryLimiter) TryAcquire(cat string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.categories[cat]
	if !ok {
		return l.policy == AllowUnknown
	}
	l.rollLocked(c, l.clock.Now())
	if len(c.waiters) == 0 && c.used < c.rule.Limit {
		c.used++
		grantsTotal.WithLabelValues(cat).Inc()
		return true
	}
	return false
}

// RetryAfter returns the time until the category's current window rolls
// over. Zero for unknown categories.
func (l *CategoryLimiter) RetryAfter(cat string) time.Duration {
	l.mu.Lock()
	c, ok := l.categories[cat]
	l.mu.Unlock()
	if !ok {
		return 0
	}
	return l.retryAfter(c)
}

func (l *CategoryLimiter) acquireUnknown(ctx context.Context, cat string) error {
	if l.policy == DenyUnknown {
		rejectionsTotal.WithLabelValues(cat).Inc()
		return &BudgetError{Category: cat}
	}
	return l.fallback.Wait(ctx)
}

// rollLocked advances the category's window to contain now and replays the
// fresh budget to queued waiters in FIFO order.
func (l *CategoryLimiter) rollLocked(c *category, now time.Time) {
	if now.Sub(c.windowStart) < c.rule.Window {
		return
	}
	elapsed := now.Sub(c.windowStart)
	c.windowStart = c.windowStart.Add(elapsed - elapsed%c.rule.Window)
	c.used = 0
	l.promoteLocked(c)
}

// promoteLocked grants queued waiters, oldest first, while budget remains.
func (l *CategoryLimiter) promoteLocked(c *category) {
	for len(c.waiters) > 0 {
		w := c.waiters[0]
		if c.used+w.weight > c.rule.Limit {
			break
		}
		c.used += w.weight
		w.granted = true
		close(w.ch)
		c.waiters = c.waiters[1:]
	}
}

// armTimerLocked schedules a wake-up at the next window boundary so queued
// waiters are granted even when no new Acquire calls arrive.
func (l *CategoryLimiter) armTimerLocked(c *category, now time.Time) {
	if c.timerArmed {
		return
	}
	c.timerArmed = true
	until := c.windowStart.Add(c.rule.Window).Sub(now)
	if until <= 0 {
		until = time.Nanosecond
	}
	l.clock.AfterFunc(until, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		c.timerArmed = false
		l.rollLocked(c, l.clock.Now())
		if len(c.waiters) > 0 {
			l.armTimerLocked(c, l.clock.Now())
		}
	})
}

// abandon removes a waiter that gave up. If the grant already happened, the
// slot is returned to the window and offered to the next waiter, so a
// cancelled caller never consumes budget. Reports whether the waiter had
// been granted.
func (l *CategoryLimiter) abandon(c *category, w *waiter) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if w.granted {
		c.used -= w.weight
		l.promoteLocked(c)
		return true
	}
	for i, queued := range c.waiters {
		if queued == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			break
		}
	}
	return false
}

func (l *CategoryLimiter) retryAfter(c *category) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	remaining := c.windowStart.Add(c.rule.Window).Sub(l.clock.Now())
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}
