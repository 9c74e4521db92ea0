package interfaces

import (
	"fmt"

	"github.com/veiloq/cex-sdk/pkg/logging"
	"github.com/veiloq/cex-sdk/pkg/ratelimit"
)

// AccountType selects the market segment a client trades on.
type AccountType string

const (
	AccountTypeSpot   AccountType = "spot"
	AccountTypeSwap   AccountType = "swap"
	AccountTypeFuture AccountType = "future"
)

// ClientConfig holds the connection parameters of one exchange client.
//
// The client copies the configuration at construction; mutating the caller's
// value afterwards has no effect on a running client.
type ClientConfig struct {
	// Exchange is the registered gateway name, e.g. "binance".
	Exchange string

	// API credentials. Optional for public market data.
	APIKey    string
	APISecret string
	Password  string
	UID       string

	// AccountType selects spot, swap (perpetual) or dated futures markets.
	// Defaults to swap.
	AccountType AccountType

	// Testnet routes all traffic to the exchange's sandbox environment.
	Testnet bool

	// RateLimiter overrides the client's default per-category limiter.
	RateLimiter *ratelimit.CategoryLimiter

	// Logger overrides the client's default logger.
	Logger logging.Logger
}

// Validate checks the configuration before a client is constructed.
func (c ClientConfig) Validate() error {
	if c.Exchange == "" {
		return fmt.Errorf("client config: exchange name is required")
	}
	switch c.AccountType {
	case "", AccountTypeSpot, AccountTypeSwap, AccountTypeFuture:
	default:
		return fmt.Errorf("client config: invalid account type %q", c.AccountType)
	}
	if c.APISecret != "" && c.APIKey == "" {
		return fmt.Errorf("client config: api secret without api key")
	}
	return nil
}

// WithDefaults returns a copy with zero fields replaced by defaults.
func (c ClientConfig) WithDefaults() ClientConfig {
	out := c
	if out.AccountType == "" {
		out.AccountType = AccountTypeSwap
	}
	if out.Logger == nil {
		out.Logger = logging.NewNopLogger()
	}
	return out
}
