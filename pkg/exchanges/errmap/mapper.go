// Package errmap translates raw exchange and transport failures into the
// SDK's normalized errors.
//
// The mapper is the only place raw failures are classified; everything above
// it treats interfaces.Error as the sole error surface. Classification is
// total (every input maps to exactly one kind, unmatched inputs map to
// KindUnknown) and deterministic (the rule list is fixed at construction and
// holds no state).
package errmap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/adshao/go-binance/v2/common"

	"github.com/veiloq/cex-sdk/pkg/exchanges/interfaces"
	"github.com/veiloq/cex-sdk/pkg/ratelimit"
)

// Context carries the location of a failure so the normalized error can be
// enriched with exchange, operation and symbol.
type Context struct {
	Exchange string
	Op       string
	Symbol   string
}

// Rule classifies a raw error. Returning nil passes the error to the next
// rule. Custom rules run before the built-in classification.
type Rule func(err error, ctx Context) *interfaces.Error

// HTTPError is a transport-level failure carrying an HTTP status, for
// integrations that talk to an exchange over plain HTTP or websocket
// handshakes.
type HTTPError struct {
	Status     int
	Message    string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Status, e.Message)
}

// Mapper classifies raw failures into normalized errors.
type Mapper struct {
	rules []Rule
}

// New builds a mapper. Custom rules are evaluated in order before the
// built-in rules; registering rules after construction is not possible, so
// the mapping stays deterministic for the mapper's lifetime.
func New(custom ...Rule) *Mapper {
	return &Mapper{rules: custom}
}

// Map translates err into a normalized error. Already-normalized errors are
// returned as-is with missing context filled in. Map never returns nil for a
// non-nil input.
func (m *Mapper) Map(err error, ctx Context) *interfaces.Error {
	if err == nil {
		return nil
	}

	if mapped, ok := interfaces.AsError(err); ok {
		// Work on a copy so filling in context never mutates the caller's
		// error instance.
		clone := *mapped
		return enrich(&clone, ctx)
	}

	for _, rule := range m.rules {
		if mapped := rule(err, ctx); mapped != nil {
			return enrich(mapped, ctx)
		}
	}

	return enrich(classify(err), ctx)
}

func enrich(e *interfaces.Error, ctx Context) *interfaces.Error {
	if e.Exchange == "" {
		e.Exchange = ctx.Exchange
	}
	if e.Op == "" {
		e.Op = ctx.Op
	}
	if e.Symbol == "" {
		e.Symbol = ctx.Symbol
	}
	return e
}

// classify applies the built-in rules: local rate limiter failures first,
// then typed transport errors, then exchange API codes, then HTTP statuses,
// then message substrings.
func classify(err error) *interfaces.Error {
	var budget *ratelimit.BudgetError
	if errors.As(err, &budget) {
		return &interfaces.Error{
			Kind:       interfaces.KindRateLimit,
			Message:    budget.Error(),
			RetryAfter: budget.RetryAfter,
			Err:        err,
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return normalized(interfaces.KindNetwork, err)
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return fromAPIError(apiErr, err)
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return fromHTTPStatus(httpErr, err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return normalized(interfaces.KindNetwork, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return normalized(interfaces.KindNetwork, err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return normalized(interfaces.KindNetwork, err)
	}

	return normalized(fromMessage(err.Error()), err)
}

func normalized(kind interfaces.Kind, err error) *interfaces.Error {
	return &interfaces.Error{Kind: kind, Message: err.Error(), Err: err}
}

// fromAPIError maps Binance-style numeric error codes. The codes are stable
// across the spot and futures APIs.
func fromAPIError(apiErr *common.APIError, err error) *interfaces.Error {
	kind := interfaces.KindUnknown
	switch apiErr.Code {
	case -1002, -1022, -2014, -2015, -1021:
		// unauthorized, bad signature, bad key format, key rejected,
		// timestamp outside recv window
		kind = interfaces.KindAuth
	case -1003, -1015:
		// too many requests, too many orders
		kind = interfaces.KindRateLimit
	case -2018, -2019:
		// balance or margin insufficient
		kind = interfaces.KindInsufficientFunds
	case -1013, -1102, -1106, -1111, -2011, -2013, -4164:
		// filter failures, bad params, bad precision, cancel rejected,
		// unknown order, notional too small
		kind = interfaces.KindInvalidOrder
	case -1001, -1016:
		// internal error, service shutting down
		kind = interfaces.KindExchangeUnavailable
	case -2010:
		// order rejected: the code alone does not say why
		if containsFold(apiErr.Message, "insufficient") {
			kind = interfaces.KindInsufficientFunds
		} else {
			kind = interfaces.KindInvalidOrder
		}
	default:
		kind = fromMessage(apiErr.Message)
	}
	return &interfaces.Error{Kind: kind, Message: apiErr.Message, Err: err}
}

func fromHTTPStatus(httpErr *HTTPError, err error) *interfaces.Error {
	kind := interfaces.KindUnknown
	switch {
	case httpErr.Status == 401 || httpErr.Status == 403:
		kind = interfaces.KindAuth
	case httpErr.Status == 408:
		kind = interfaces.KindNetwork
	case httpErr.Status == 418 || httpErr.Status == 429:
		kind = interfaces.KindRateLimit
	case httpErr.Status >= 500:
		kind = interfaces.KindExchangeUnavailable
	default:
		kind = fromMessage(httpErr.Message)
	}
	return &interfaces.Error{
		Kind:       kind,
		Message:    httpErr.Message,
		RetryAfter: httpErr.RetryAfter,
		Err:        err,
	}
}

// fromMessage is the last classification resort: substring matching against
// common exchange wordings. Order matters; the first match wins.
func fromMessage(msg string) interfaces.Kind {
	switch {
	case containsFold(msg, "insufficient"):
		return interfaces.KindInsufficientFunds
	case containsFold(msg, "rate limit"), containsFold(msg, "too many requests"):
		return interfaces.KindRateLimit
	case containsFold(msg, "api key"), containsFold(msg, "signature"), containsFold(msg, "unauthorized"):
		return interfaces.KindAuth
	case containsFold(msg, "maintenance"), containsFold(msg, "service unavailable"), containsFold(msg, "system busy"):
		return interfaces.KindExchangeUnavailable
	case containsFold(msg, "min notional"), containsFold(msg, "lot size"), containsFold(msg, "price filter"), containsFold(msg, "invalid order"):
		return interfaces.KindInvalidOrder
	case containsFold(msg, "timeout"), containsFold(msg, "connection"):
		return interfaces.KindNetwork
	default:
		return interfaces.KindUnknown
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}
