package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/veiloq/cex-sdk/pkg/exchanges"
	_ "github.com/veiloq/cex-sdk/pkg/exchanges/binance"
	"github.com/veiloq/cex-sdk/pkg/exchanges/client"
	"github.com/veiloq/cex-sdk/pkg/exchanges/interfaces"
	"github.com/veiloq/cex-sdk/pkg/logging"
	"github.com/veiloq/cex-sdk/pkg/ratelimit"
	"github.com/veiloq/cex-sdk/pkg/retry"
)

func main() {
	// Create logger
	logger := logging.NewZapLogger(logging.WithLogLevel(logging.DEBUG))
	if zl, ok := logger.(*logging.ZapLogger); ok {
		defer zl.Sync()
	}

	// A tighter budget than the defaults, to make the pacing visible.
	limiter, err := ratelimit.NewCategoryLimiter(ratelimit.Config{
		Rules: []ratelimit.Rule{
			{Category: client.CategoryMarketData, Limit: 2, Window: time.Second, MaxWait: 5 * time.Second},
			{Category: client.CategoryAccount, Limit: 5, Window: time.Second},
			{Category: client.CategoryTrading, Limit: 5, Window: time.Second},
			{Category: client.CategoryStreaming, Limit: 2, Window: time.Second},
		},
	})
	if err != nil {
		logger.Error("invalid rate limit rules", logging.Error(err))
		os.Exit(1)
	}

	// Open a client for Binance USDT-margined perpetuals. Credentials are
	// optional for public market data.
	c, err := exchanges.Open(interfaces.ClientConfig{
		Exchange:    "binance",
		APIKey:      os.Getenv("BINANCE_API_KEY"),
		APISecret:   os.Getenv("BINANCE_API_SECRET"),
		Testnet:     os.Getenv("BINANCE_TESTNET") != "",
		RateLimiter: limiter,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to open client", logging.Error(err))
		os.Exit(1)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load the instrument catalogue before issuing any other operation.
	logger.Info("loading markets")
	markets, err := c.LoadMarkets(ctx)
	if err != nil {
		logger.Error("failed to load markets", logging.Error(err))
		os.Exit(1)
	}
	logger.Info("markets loaded", logging.Int("count", len(markets)))

	// Three rapid ticker fetches: with a 2-per-second budget, the third
	// visibly waits for the next window.
	for i := 0; i < 3; i++ {
		start := time.Now()
		ticker, err := c.GetTicker(ctx, "BTC/USDT:USDT")
		if err != nil {
			logger.Error("failed to get ticker", logging.Error(err))
			os.Exit(1)
		}
		logger.Info("ticker",
			logging.String("symbol", ticker.Symbol),
			logging.String("last", ticker.Last.String()),
			logging.Duration("took", time.Since(start)),
		)
	}

	// Funding rates are a heavier scan; retry transient failures.
	var rates []interfaces.FundingRate
	err = retry.Do(ctx, func(ctx context.Context) error {
		var err error
		rates, err = c.GetFundingRates(ctx)
		return err
	})
	if err != nil {
		logger.Error("failed to get funding rates", logging.Error(err))
		os.Exit(1)
	}
	logger.Info("funding rates", logging.Int("count", len(rates)))

	// Stream ticker updates until interrupted.
	logger.Info("subscribing to ticker updates")
	err = c.SubscribeTicker(ctx, []string{"BTC/USDT:USDT", "ETH/USDT:USDT"},
		func(ticker interfaces.Ticker) {
			logger.Info("ticker update",
				logging.String("symbol", ticker.Symbol),
				logging.String("last", ticker.Last.String()),
				logging.String("volume_24h", ticker.Volume24h.String()),
			)
		})
	if err != nil {
		logger.Error("failed to subscribe to ticker", logging.Error(err))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("running... press Ctrl+C to exit")
	<-sigChan

	logger.Info("shutting down")
	cancel()
}
