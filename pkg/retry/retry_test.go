package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veiloq/cex-sdk/pkg/exchanges/interfaces"
)

func networkErr() error {
	return &interfaces.Error{Kind: interfaces.KindNetwork, Message: "connection reset"}
}

func TestDoRetriesTransientFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return networkErr()
		}
		return nil
	}, WithDelay(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoStopsOnPermanentFailure(t *testing.T) {
	attempts := 0
	authErr := &interfaces.Error{Kind: interfaces.KindAuth, Message: "bad signature"}
	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return authErr
	}, WithDelay(time.Millisecond))
	require.Error(t, err)
	assert.ErrorIs(t, err, authErr)
	assert.Equal(t, 1, attempts)
}

func TestDoIgnoresUnclassifiedErrors(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("plain failure")
	}, WithDelay(time.Millisecond))
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoExhaustsAttempts(t *testing.T) {
	attempts := 0
	retries := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return networkErr()
	},
		WithAttempts(3),
		WithDelay(time.Millisecond),
		WithOnRetry(func(uint, error) { retries++ }),
	)
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 2, retries)
}

func TestDoHonorsRetryAfter(t *testing.T) {
	rateErr := &interfaces.Error{
		Kind:       interfaces.KindRateLimit,
		Message:    "budget exhausted",
		RetryAfter: 30 * time.Millisecond,
	}
	attempts := 0
	start := time.Now()
	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return rateErr
		}
		return nil
	}, WithDelay(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Do(ctx, func(ctx context.Context) error {
		attempts++
		cancel()
		return networkErr()
	}, WithDelay(time.Minute))
	require.Error(t, err)
	assert.LessOrEqual(t, attempts, 2)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&interfaces.Error{Kind: interfaces.KindRateLimit}))
	assert.True(t, Retryable(&interfaces.Error{Kind: interfaces.KindExchangeUnavailable}))
	assert.False(t, Retryable(&interfaces.Error{Kind: interfaces.KindInvalidOrder}))
	assert.False(t, Retryable(errors.New("plain")))
	assert.False(t, Retryable(nil))
}
