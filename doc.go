// Package cexsdk provides a unified client SDK for cryptocurrency exchange
// trading over USDT-margined perpetual futures.
//
// The SDK wraps exchange-specific libraries behind a single normalized
// surface, so applications can rate-limit, trade and classify failures the
// same way across venues.
//
// Core Features:
//
//   - Per-category rate limiting with exact fixed-window budgets, FIFO
//     queueing and cancellable waits
//   - Total and deterministic error classification into a small closed set
//     of kinds (auth, rate limit, insufficient funds, invalid order,
//     network, exchange unavailable, unknown)
//   - A lifecycle-managed client adapter: markets are loaded once, every
//     operation passes the same admission and classification pipeline, and
//     Close drains in-flight operations
//   - Decimal (never float) prices, amounts and rates in all data types
//   - Funding rates, closed-position reporting and real-time ticker
//     streaming as optional per-exchange capabilities
//
// # Packages
//
//   - pkg/exchanges: the name-based registry; Open builds a ready client
//   - pkg/exchanges/client: the adapter applying rate limits and error
//     mapping around any gateway
//   - pkg/exchanges/interfaces: the Gateway seam, data types and sentinel
//     errors
//   - pkg/exchanges/errmap: raw failure classification
//   - pkg/exchanges/binance: the Binance USDT-margined futures gateway
//   - pkg/ratelimit: the category budget limiter and token-bucket fallback
//   - pkg/retry: retries driven by the normalized error classification
//   - pkg/websocket: the reconnecting streaming transport
//   - pkg/logging: structured logging used across the SDK
//
// # Standard Errors
//
// Lifecycle and contract misuse is reported through sentinel errors:
//
//   - ErrMarketsNotLoaded: a data or trading operation was attempted before
//     LoadMarkets completed
//
//   - ErrClientClosed: an operation was attempted on a closed client
//
//   - ErrInvalidSymbol: an invalid trading pair symbol was provided
//
//   - ErrNotSupported: the exchange does not implement an optional
//     capability, e.g. closed-position reports
//
//   - ErrUnknownExchange: no gateway was registered under the given name
//
// Exchange and transport failures instead surface as *interfaces.Error with
// a Kind classification; AsError unwraps to it and Retryable reports
// whether waiting and retrying can help.
//
// # Examples
//
// Opening a client and loading markets:
//
//	import _ "github.com/veiloq/cex-sdk/pkg/exchanges/binance"
//
//	c, err := exchanges.Open(interfaces.ClientConfig{
//	    Exchange:  "binance",
//	    APIKey:    os.Getenv("BINANCE_API_KEY"),
//	    APISecret: os.Getenv("BINANCE_API_SECRET"),
//	})
//	if err != nil {
//	    log.Fatalf("open client: %v", err)
//	}
//	defer c.Close()
//
//	markets, err := c.LoadMarkets(ctx)
//	if err != nil {
//	    log.Fatalf("load markets: %v", err)
//	}
//
// Fetching data and placing an order:
//
//	ticker, err := c.GetTicker(ctx, "BTC/USDT:USDT")
//	if err != nil {
//	    if normalized, ok := interfaces.AsError(err); ok && normalized.Retryable() {
//	        // transient: back off and retry, or use pkg/retry
//	    }
//	    log.Fatalf("get ticker: %v", err)
//	}
//
//	market, _ := c.Market("BTC/USDT:USDT")
//	order, err := c.PlaceOrder(ctx, interfaces.OrderRequest{
//	    Symbol: "BTC/USDT:USDT",
//	    Side:   interfaces.SideBuy,
//	    Type:   interfaces.OrderTypeLimit,
//	    Amount: market.AmountToPrecision(decimal.RequireFromString("0.015")),
//	    Price:  market.PriceToPrecision(ticker.Last.Mul(decimal.RequireFromString("0.99"))),
//	})
//
// Streaming ticker updates:
//
//	err = c.SubscribeTicker(ctx, []string{"BTC/USDT:USDT"}, func(t interfaces.Ticker) {
//	    fmt.Printf("%s last=%s\n", t.Symbol, t.Last)
//	})
//
// Rate limit budgets are configured per request category; see
// pkg/exchanges/client.DefaultRules for the defaults and
// pkg/ratelimit.Rule for the knobs (window length, budget, maximum wait).
package cexsdk
