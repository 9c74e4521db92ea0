package interfaces

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for adapter state preconditions and contract misuse.
// These are not normalized exchange errors: they report that the caller used
// the SDK wrong, not that the exchange failed.
var (
	// ErrMarketsNotLoaded is returned when a data or trading operation is
	// attempted before LoadMarkets has completed.
	ErrMarketsNotLoaded = errors.New("markets not loaded")

	// ErrClientClosed is returned when any operation is attempted on a
	// closed client.
	ErrClientClosed = errors.New("exchange client closed")

	// ErrInvalidSymbol is returned when a trading pair symbol fails
	// validation.
	ErrInvalidSymbol = errors.New("invalid trading pair symbol")

	// ErrNotSupported is returned when the underlying gateway does not
	// implement an optional capability such as closed-position reports.
	ErrNotSupported = errors.New("operation not supported by this exchange")

	// ErrUnknownExchange is returned when opening a client for a name no
	// gateway was registered under.
	ErrUnknownExchange = errors.New("unknown exchange")
)

// Kind classifies a failure from an exchange into a small closed set. Every
// raw failure maps to exactly one kind.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth
	KindRateLimit
	KindInsufficientFunds
	KindInvalidOrder
	KindNetwork
	KindExchangeUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindInvalidOrder:
		return "invalid_order"
	case KindNetwork:
		return "network"
	case KindExchangeUnavailable:
		return "exchange_unavailable"
	default:
		return "unknown"
	}
}

// Error is the normalized error surface of the SDK. Instances are produced
// by the error mapper (pkg/exchanges/errmap); adapter logic never constructs
// one directly, so every underlying failure goes through classification
// exactly once.
type Error struct {
	// Kind is the classification of the failure.
	Kind Kind

	// Exchange, Op and Symbol describe where the failure happened. Empty
	// when the context is unavailable.
	Exchange string
	Op       string
	Symbol   string

	// Message carries the original failure text.
	Message string

	// RetryAfter hints when a retry may succeed. Only set for rate-limit
	// and availability failures; zero means no hint.
	RetryAfter time.Duration

	// Err is the underlying error, preserved for errors.Is/As.
	Err error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Exchange != "" && e.Op != "":
		return fmt.Sprintf("%s: %s %s: %s", e.Kind, e.Exchange, e.Op, msg)
	case e.Exchange != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Exchange, msg)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient: the caller may retry
// later, honoring RetryAfter when set. The SDK itself never retries.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindNetwork, KindExchangeUnavailable:
		return true
	default:
		return false
	}
}

// AsError unwraps err into the SDK's normalized error, if it is one.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
