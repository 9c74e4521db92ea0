package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketLimiterPacing(t *testing.T) {
	l := NewTokenBucketLimiter(Rate{Limit: 100, Interval: time.Second})

	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	// 10 operations at 100/s take roughly 90ms of pacing.
	assert.Less(t, time.Since(start), time.Second)
}

func TestTokenBucketLimiterCancelledContext(t *testing.T) {
	l := NewTokenBucketLimiter(Rate{Limit: 1, Interval: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.Canceled)
}

func TestTokenBucketLimiterSetLimit(t *testing.T) {
	l := NewTokenBucketLimiter(Rate{Limit: 1, Interval: time.Second})
	assert.Error(t, l.SetLimit(Rate{Limit: 0, Interval: time.Second}))
	assert.Error(t, l.SetLimit(Rate{Limit: 1, Interval: 0}))
	assert.NoError(t, l.SetLimit(Rate{Limit: 50, Interval: time.Second}))
}

func TestPerSecondClampsLowRates(t *testing.T) {
	assert.Equal(t, 1, perSecond(Rate{Limit: 1, Interval: time.Minute}))
	assert.Equal(t, 10, perSecond(Rate{Limit: 10, Interval: time.Second}))
	assert.Equal(t, 2, perSecond(Rate{Limit: 120, Interval: time.Minute}))
}
