package interfaces

import (
	"context"
	"time"
)

// Gateway is the narrow capability surface an exchange integration must
// expose. It is the sole seam between the SDK and a concrete exchange
// library: a different underlying library can be substituted by implementing
// this interface and registering it under a name.
//
// Implementations normalize responses into the DTOs of this package and
// never leak library-specific response objects. They do not rate-limit and
// do not classify errors; both concerns are applied uniformly by the client
// adapter wrapping the gateway, so an implementation cannot accidentally
// bypass them.
type Gateway interface {
	// Name returns the exchange identifier the gateway was registered
	// under, used in logs and normalized errors.
	Name() string

	// LoadMarkets fetches the instrument catalogue, keyed by symbol.
	LoadMarkets(ctx context.Context) (map[string]Market, error)

	// FetchTicker returns the current ticker for a symbol.
	FetchTicker(ctx context.Context, symbol string) (Ticker, error)

	// FetchBalance returns the balance of one asset. A zero balance is
	// returned for assets the account has never held.
	FetchBalance(ctx context.Context, asset string) (Balance, error)

	// FetchPositions returns open positions, optionally filtered by symbol.
	// Positions with zero contracts are not reported.
	FetchPositions(ctx context.Context, symbols []string) ([]Position, error)

	// CreateOrder places an order and returns the exchange's acknowledgement.
	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)

	// CancelOrder cancels an open order by id.
	CancelOrder(ctx context.Context, symbol, orderID string) error

	// Close releases the gateway's network resources.
	Close() error
}

// Optional gateway capabilities. A gateway advertises a capability by
// implementing the interface; the client adapter routes the corresponding
// operations through the same rate-limiting and error-mapping plumbing as
// the core Gateway methods.

// FundingRateProvider exposes perpetual funding rates.
type FundingRateProvider interface {
	// FetchFundingRate returns the next funding rate for one instrument.
	FetchFundingRate(ctx context.Context, symbol string) (FundingRate, error)

	// FetchFundingRates returns the next funding rate of every active
	// USDT-settled perpetual instrument.
	FetchFundingRates(ctx context.Context) ([]FundingRate, error)
}

// AccountConfigurer adjusts per-symbol trading modes.
type AccountConfigurer interface {
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SetMarginMode(ctx context.Context, symbol string, mode MarginMode) error
	SetPositionMode(ctx context.Context, hedged bool) error
}

// TriggerOrderManager manages conditional orders resting on the exchange's
// trigger engine: stop and take-profit orders waiting for their trigger
// price. CancelOrder works on them too when the id is known; this capability
// covers enumerating the pending ones and clearing them wholesale.
type TriggerOrderManager interface {
	// FetchTriggerOrders returns the pending trigger orders for one
	// instrument. Resting book orders are not reported.
	FetchTriggerOrders(ctx context.Context, symbol string) ([]Order, error)

	// CancelTriggerOrders cancels every pending trigger order of one
	// instrument and returns the cancelled ids.
	CancelTriggerOrders(ctx context.Context, symbol string) ([]string, error)
}

// ClosedPositionReporter reconstructs closed position cycles from the
// account's trade and funding history.
type ClosedPositionReporter interface {
	ClosedPositionReports(ctx context.Context, symbol string, since, until time.Time) ([]ClosedPositionReport, error)
}

// TickerStreamer pushes real-time ticker updates over a streaming transport.
// The handler is invoked from a goroutine owned by the gateway until the
// context is cancelled.
type TickerStreamer interface {
	SubscribeTicker(ctx context.Context, symbols []string, handler func(Ticker)) error
}
