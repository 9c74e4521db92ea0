package interfaces

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	e := &Error{
		Kind:     KindRateLimit,
		Exchange: "binance",
		Op:       "get_ticker",
		Symbol:   "BTC/USDT:USDT",
		Message:  "budget exhausted",
	}
	s := e.Error()
	assert.Contains(t, s, "binance")
	assert.Contains(t, s, "get_ticker")
	assert.Contains(t, s, "rate_limit")
	assert.Contains(t, s, "budget exhausted")
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("tcp reset")
	e := &Error{Kind: KindNetwork, Message: "boom", Err: cause}
	assert.ErrorIs(t, e, cause)

	wrapped := fmt.Errorf("outer: %w", e)
	got, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindNetwork, got.Kind)
}

func TestErrorRetryable(t *testing.T) {
	retryable := []Kind{KindRateLimit, KindNetwork, KindExchangeUnavailable}
	for _, kind := range retryable {
		assert.True(t, (&Error{Kind: kind}).Retryable(), kind.String())
	}
	permanent := []Kind{KindUnknown, KindAuth, KindInsufficientFunds, KindInvalidOrder}
	for _, kind := range permanent {
		assert.False(t, (&Error{Kind: kind}).Retryable(), kind.String())
	}
}

func TestAsError(t *testing.T) {
	_, ok := AsError(errors.New("plain"))
	assert.False(t, ok)
	_, ok = AsError(nil)
	assert.False(t, ok)

	e := &Error{Kind: KindAuth, RetryAfter: time.Second}
	got, ok := AsError(e)
	require.True(t, ok)
	assert.Same(t, e, got)
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrMarketsNotLoaded,
		ErrClientClosed,
		ErrInvalidSymbol,
		ErrNotSupported,
		ErrUnknownExchange,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j {
				assert.NotErrorIs(t, a, b)
			}
		}
	}
}
