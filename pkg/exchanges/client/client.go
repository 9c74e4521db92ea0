// Package client implements the base exchange client adapter.
//
// A Client composes the per-category rate limiter and the error mapper
// around any interfaces.Gateway. The cross-cutting concerns are applied by
// the adapter, not by gateway implementations, so every operation, including
// the optional capabilities, goes through the same admission check and
// failure classification. Exchange-specific behavior is plugged in through the
// gateway interface, never by overriding adapter methods.
package client

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/veiloq/cex-sdk/pkg/exchanges/errmap"
	"github.com/veiloq/cex-sdk/pkg/exchanges/interfaces"
	"github.com/veiloq/cex-sdk/pkg/logging"
	"github.com/veiloq/cex-sdk/pkg/ratelimit"
)

// Request categories with separate rate limit budgets.
const (
	CategoryMarketData = "market-data"
	CategoryAccount    = "account"
	CategoryTrading    = "trading"
	CategoryStreaming  = "streaming"
)

// fundingRatesWeight is the budget charge of the all-instruments funding
// rate scan, which exchanges weight much heavier than a single lookup.
const fundingRatesWeight = 10

// DefaultRules returns the rate limit rules a client uses when the
// configuration does not override the limiter. The budgets are conservative
// enough for every supported exchange.
func DefaultRules() []ratelimit.Rule {
	return []ratelimit.Rule{
		{Category: CategoryMarketData, Limit: 20, Window: time.Second, MaxWait: 5 * time.Second},
		{Category: CategoryAccount, Limit: 10, Window: time.Second, MaxWait: 5 * time.Second},
		{Category: CategoryTrading, Limit: 10, Window: time.Second, MaxWait: 2 * time.Second},
		{Category: CategoryStreaming, Limit: 5, Window: time.Second, MaxWait: 5 * time.Second},
	}
}

type state int

const (
	stateUninitialized state = iota
	stateMarketsLoaded
	stateActive
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateMarketsLoaded:
		return "markets-loaded"
	case stateActive:
		return "active"
	case stateClosed:
		return "closed"
	default:
		return "uninitialized"
	}
}

// Client is the normalized entry point for one exchange connection.
//
// Lifecycle: Uninitialized → MarketsLoaded → Active → Closed. Data and
// trading operations require LoadMarkets to have completed; every operation
// fails with ErrClientClosed after Close.
type Client struct {
	gateway interfaces.Gateway
	config  interfaces.ClientConfig
	limiter *ratelimit.CategoryLimiter
	mapper  *errmap.Mapper
	logger  logging.Logger

	mu       sync.Mutex
	state    state
	markets  map[string]interfaces.Market
	inflight sync.WaitGroup
}

// Option customizes a Client.
type Option func(*Client)

// WithMapperRules prepends custom classification rules to the client's
// error mapper, e.g. for exchange-specific error codes.
func WithMapperRules(rules ...errmap.Rule) Option {
	return func(c *Client) {
		c.mapper = errmap.New(rules...)
	}
}

// New wraps a gateway in a client adapter. The configuration is validated
// and copied; later mutation by the caller has no effect.
func New(gateway interfaces.Gateway, config interfaces.ClientConfig, opts ...Option) (*Client, error) {
	if gateway == nil {
		return nil, fmt.Errorf("client: gateway is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.WithDefaults()

	limiter := config.RateLimiter
	if limiter == nil {
		var err error
		limiter, err = ratelimit.NewCategoryLimiter(ratelimit.Config{Rules: DefaultRules()})
		if err != nil {
			return nil, err
		}
	}

	c := &Client{
		gateway: gateway,
		config:  config,
		limiter: limiter,
		mapper:  errmap.New(),
		logger:  config.Logger.WithFields(logging.String("exchange", gateway.Name())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Exchange returns the name of the wrapped exchange.
func (c *Client) Exchange() string {
	return c.gateway.Name()
}

// State returns the lifecycle state, for logging and diagnostics.
func (c *Client) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.String()
}

// LoadMarkets fetches and caches the instrument catalogue, moving the client
// out of the uninitialized state. Calling it again returns the cached
// catalogue without another exchange round trip.
func (c *Client) LoadMarkets(ctx context.Context) (map[string]interfaces.Market, error) {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return nil, interfaces.ErrClientClosed
	}
	if c.markets != nil {
		cached := c.markets
		c.mu.Unlock()
		return maps.Clone(cached), nil
	}
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	mctx := errmap.Context{Exchange: c.gateway.Name(), Op: "load_markets"}
	if err := c.limiter.Acquire(ctx, CategoryMarketData); err != nil {
		return nil, c.mapper.Map(err, mctx)
	}

	markets, err := c.gateway.LoadMarkets(ctx)
	if err != nil {
		return nil, c.mapper.Map(err, mctx)
	}
	for symbol, market := range markets {
		if err := market.Validate(); err != nil {
			return nil, c.mapper.Map(fmt.Errorf("market %s: %w", symbol, err), mctx)
		}
	}

	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return nil, interfaces.ErrClientClosed
	}
	if c.state == stateUninitialized {
		c.state = stateMarketsLoaded
	}
	c.markets = markets
	c.mu.Unlock()

	c.logger.Info("markets loaded", logging.Int("count", len(markets)))
	return maps.Clone(markets), nil
}

// Market returns the cached instrument metadata for a symbol.
func (c *Client) Market(symbol string) (interfaces.Market, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return interfaces.Market{}, interfaces.ErrClientClosed
	}
	if c.markets == nil {
		return interfaces.Market{}, interfaces.ErrMarketsNotLoaded
	}
	market, ok := c.markets[symbol]
	if !ok {
		return interfaces.Market{}, fmt.Errorf("market %q: %w", symbol, interfaces.ErrInvalidSymbol)
	}
	return market, nil
}

// GetTicker returns the current ticker for a symbol.
func (c *Client) GetTicker(ctx context.Context, symbol string) (interfaces.Ticker, error) {
	if !interfaces.ValidSymbol(symbol) {
		return interfaces.Ticker{}, fmt.Errorf("ticker symbol %q: %w", symbol, interfaces.ErrInvalidSymbol)
	}
	var ticker interfaces.Ticker
	err := c.do(ctx, "get_ticker", CategoryMarketData, symbol, 1, func(ctx context.Context) error {
		t, err := c.gateway.FetchTicker(ctx, symbol)
		if err != nil {
			return err
		}
		if err := t.Validate(); err != nil {
			return err
		}
		ticker = t
		return nil
	})
	return ticker, err
}

// GetBalance returns the balance of one asset.
func (c *Client) GetBalance(ctx context.Context, asset string) (interfaces.Balance, error) {
	var balance interfaces.Balance
	err := c.do(ctx, "get_balance", CategoryAccount, "", 1, func(ctx context.Context) error {
		b, err := c.gateway.FetchBalance(ctx, asset)
		if err != nil {
			return err
		}
		if err := b.Validate(); err != nil {
			return err
		}
		balance = b
		return nil
	})
	return balance, err
}

// GetPositions returns open positions, optionally filtered by symbol.
func (c *Client) GetPositions(ctx context.Context, symbols ...string) ([]interfaces.Position, error) {
	var positions []interfaces.Position
	err := c.do(ctx, "get_positions", CategoryAccount, "", 1, func(ctx context.Context) error {
		ps, err := c.gateway.FetchPositions(ctx, symbols)
		if err != nil {
			return err
		}
		for _, p := range ps {
			if err := p.Validate(); err != nil {
				return err
			}
		}
		positions = ps
		return nil
	})
	return positions, err
}

// PlaceOrder validates and places an order.
func (c *Client) PlaceOrder(ctx context.Context, req interfaces.OrderRequest) (interfaces.Order, error) {
	if err := req.Validate(); err != nil {
		return interfaces.Order{}, err
	}
	var order interfaces.Order
	err := c.do(ctx, "place_order", CategoryTrading, req.Symbol, 1, func(ctx context.Context) error {
		o, err := c.gateway.CreateOrder(ctx, req)
		if err != nil {
			return err
		}
		if err := o.Validate(); err != nil {
			return err
		}
		order = o
		return nil
	})
	return order, err
}

// CancelOrder cancels an open order by id.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return c.do(ctx, "cancel_order", CategoryTrading, symbol, 1, func(ctx context.Context) error {
		return c.gateway.CancelOrder(ctx, symbol, orderID)
	})
}

// GetTriggerOrders returns the pending stop and take-profit orders for one
// instrument. Fails with ErrNotSupported when the gateway cannot enumerate
// trigger orders.
func (c *Client) GetTriggerOrders(ctx context.Context, symbol string) ([]interfaces.Order, error) {
	manager, ok := c.gateway.(interfaces.TriggerOrderManager)
	if !ok {
		return nil, interfaces.ErrNotSupported
	}
	if !interfaces.ValidSymbol(symbol) {
		return nil, fmt.Errorf("order symbol %q: %w", symbol, interfaces.ErrInvalidSymbol)
	}
	var orders []interfaces.Order
	err := c.do(ctx, "get_trigger_orders", CategoryTrading, symbol, 1, func(ctx context.Context) error {
		os, err := manager.FetchTriggerOrders(ctx, symbol)
		if err != nil {
			return err
		}
		for _, o := range os {
			if err := o.Validate(); err != nil {
				return err
			}
		}
		orders = os
		return nil
	})
	return orders, err
}

// CancelTriggerOrders cancels every pending trigger order of one instrument
// and returns the cancelled ids. Resting book orders are left untouched.
func (c *Client) CancelTriggerOrders(ctx context.Context, symbol string) ([]string, error) {
	manager, ok := c.gateway.(interfaces.TriggerOrderManager)
	if !ok {
		return nil, interfaces.ErrNotSupported
	}
	if !interfaces.ValidSymbol(symbol) {
		return nil, fmt.Errorf("order symbol %q: %w", symbol, interfaces.ErrInvalidSymbol)
	}
	var ids []string
	err := c.do(ctx, "cancel_trigger_orders", CategoryTrading, symbol, 1, func(ctx context.Context) error {
		cancelled, err := manager.CancelTriggerOrders(ctx, symbol)
		if err != nil {
			return err
		}
		ids = cancelled
		return nil
	})
	return ids, err
}

// GetFundingRate returns the next funding rate for a perpetual instrument.
// Fails with ErrNotSupported when the gateway has no funding data.
func (c *Client) GetFundingRate(ctx context.Context, symbol string) (interfaces.FundingRate, error) {
	provider, ok := c.gateway.(interfaces.FundingRateProvider)
	if !ok {
		return interfaces.FundingRate{}, interfaces.ErrNotSupported
	}
	var rate interfaces.FundingRate
	err := c.do(ctx, "get_funding_rate", CategoryMarketData, symbol, 1, func(ctx context.Context) error {
		r, err := provider.FetchFundingRate(ctx, symbol)
		if err != nil {
			return err
		}
		if err := r.Validate(); err != nil {
			return err
		}
		rate = r
		return nil
	})
	return rate, err
}

// GetFundingRates returns the next funding rate of every active
// USDT-settled perpetual. Charged against the market-data budget with the
// exchange's scan weight.
func (c *Client) GetFundingRates(ctx context.Context) ([]interfaces.FundingRate, error) {
	provider, ok := c.gateway.(interfaces.FundingRateProvider)
	if !ok {
		return nil, interfaces.ErrNotSupported
	}
	var rates []interfaces.FundingRate
	err := c.do(ctx, "get_funding_rates", CategoryMarketData, "", fundingRatesWeight, func(ctx context.Context) error {
		rs, err := provider.FetchFundingRates(ctx)
		if err != nil {
			return err
		}
		for _, r := range rs {
			if err := r.Validate(); err != nil {
				return err
			}
		}
		rates = rs
		return nil
	})
	return rates, err
}

// SetLeverage sets the leverage for one instrument.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	configurer, ok := c.gateway.(interfaces.AccountConfigurer)
	if !ok {
		return interfaces.ErrNotSupported
	}
	if leverage < 1 {
		return fmt.Errorf("leverage must be at least 1, got %d", leverage)
	}
	return c.do(ctx, "set_leverage", CategoryAccount, symbol, 1, func(ctx context.Context) error {
		return configurer.SetLeverage(ctx, symbol, leverage)
	})
}

// SetMarginMode sets the margin mode for one instrument.
func (c *Client) SetMarginMode(ctx context.Context, symbol string, mode interfaces.MarginMode) error {
	configurer, ok := c.gateway.(interfaces.AccountConfigurer)
	if !ok {
		return interfaces.ErrNotSupported
	}
	return c.do(ctx, "set_margin_mode", CategoryAccount, symbol, 1, func(ctx context.Context) error {
		return configurer.SetMarginMode(ctx, symbol, mode)
	})
}

// SetPositionMode switches between hedged and one-way position mode.
func (c *Client) SetPositionMode(ctx context.Context, hedged bool) error {
	configurer, ok := c.gateway.(interfaces.AccountConfigurer)
	if !ok {
		return interfaces.ErrNotSupported
	}
	return c.do(ctx, "set_position_mode", CategoryAccount, "", 1, func(ctx context.Context) error {
		return configurer.SetPositionMode(ctx, hedged)
	})
}

// ClosedPositionReports reconstructs position cycles closed between since
// and until. Fails with ErrNotSupported when the gateway cannot derive them.
func (c *Client) ClosedPositionReports(ctx context.Context, symbol string, since, until time.Time) ([]interfaces.ClosedPositionReport, error) {
	reporter, ok := c.gateway.(interfaces.ClosedPositionReporter)
	if !ok {
		return nil, interfaces.ErrNotSupported
	}
	var reports []interfaces.ClosedPositionReport
	err := c.do(ctx, "closed_position_reports", CategoryAccount, symbol, 1, func(ctx context.Context) error {
		rs, err := reporter.ClosedPositionReports(ctx, symbol, since, until)
		if err != nil {
			return err
		}
		for _, r := range rs {
			if err := r.Validate(); err != nil {
				return err
			}
		}
		reports = rs
		return nil
	})
	return reports, err
}

// SubscribeTicker streams ticker updates for the given symbols until the
// context is cancelled. Fails with ErrNotSupported when the gateway has no
// streaming transport.
func (c *Client) SubscribeTicker(ctx context.Context, symbols []string, handler func(interfaces.Ticker)) error {
	streamer, ok := c.gateway.(interfaces.TickerStreamer)
	if !ok {
		return interfaces.ErrNotSupported
	}
	for _, symbol := range symbols {
		if !interfaces.ValidSymbol(symbol) {
			return fmt.Errorf("ticker symbol %q: %w", symbol, interfaces.ErrInvalidSymbol)
		}
	}
	return c.do(ctx, "subscribe_ticker", CategoryStreaming, "", 1, func(ctx context.Context) error {
		return streamer.SubscribeTicker(ctx, symbols, handler)
	})
}

// Close releases the underlying connection. New operations fail immediately
// with ErrClientClosed; operations already in flight are drained before the
// gateway is closed. Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = stateClosed
	c.mu.Unlock()

	c.inflight.Wait()
	if err := c.gateway.Close(); err != nil {
		return c.mapper.Map(err, errmap.Context{Exchange: c.gateway.Name(), Op: "close"})
	}
	c.logger.Info("client closed")
	return nil
}

// do applies the cross-cutting pipeline: state guard, rate limit admission,
// gateway call, error normalization. The state lock is never held across
// the network call.
func (c *Client) do(ctx context.Context, op, category, symbol string, weight int, fn func(context.Context) error) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.inflight.Done()

	mctx := errmap.Context{Exchange: c.gateway.Name(), Op: op, Symbol: symbol}
	start := time.Now()
	if err := c.limiter.AcquireN(ctx, category, weight); err != nil {
		return c.mapper.Map(err, mctx)
	}
	if wait := time.Since(start); wait > time.Second {
		c.logger.Warn("rate limit wait", logging.String("op", op), logging.Duration("wait", wait))
	}

	if err := fn(ctx); err != nil {
		mapped := c.mapper.Map(err, mctx)
		c.logger.Debug("operation failed",
			logging.String("op", op),
			logging.String("kind", mapped.Kind.String()),
			logging.Error(mapped))
		return mapped
	}

	c.markActive()
	return nil
}

// begin checks the lifecycle preconditions and registers an in-flight
// operation so Close can drain.
func (c *Client) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case stateClosed:
		return interfaces.ErrClientClosed
	case stateUninitialized:
		return interfaces.ErrMarketsNotLoaded
	}
	c.inflight.Add(1)
	return nil
}

func (c *Client) markActive() {
	c.mu.Lock()
	if c.state == stateMarketsLoaded {
		c.state = stateActive
	}
	c.mu.Unlock()
}
