// Package exchanges ties the exchange integrations together behind a
// name-based registry. Integrations register a constructor from an init
// function, and callers open clients by exchange name without importing the
// integration package directly:
//
//	import _ "github.com/veiloq/cex-sdk/pkg/exchanges/binance"
//
//	c, err := exchanges.Open(ctx, interfaces.ClientConfig{
//		Exchange:  "binance",
//		APIKey:    key,
//		APISecret: secret,
//	})
package exchanges

import (
	"fmt"
	"sort"
	"sync"

	"github.com/veiloq/cex-sdk/pkg/exchanges/client"
	"github.com/veiloq/cex-sdk/pkg/exchanges/interfaces"
)

// Constructor builds a gateway for one exchange from a validated
// configuration.
type Constructor func(config interfaces.ClientConfig) (interfaces.Gateway, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Constructor)
)

// Register makes an exchange constructor available under the given name.
// It is intended to be called from an integration package's init function
// and panics if the name is empty, the constructor is nil, or the name is
// already taken.
func Register(name string, constructor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if name == "" {
		panic("exchanges: Register with empty name")
	}
	if constructor == nil {
		panic("exchanges: Register with nil constructor for " + name)
	}
	if _, dup := registry[name]; dup {
		panic("exchanges: Register called twice for " + name)
	}
	registry[name] = constructor
}

// Registered returns the names of all registered exchanges, sorted.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open builds a gateway for config.Exchange and wraps it in a client
// adapter. The returned client is uninitialized; call LoadMarkets before
// issuing data or trading operations.
func Open(config interfaces.ClientConfig, opts ...client.Option) (*client.Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.WithDefaults()

	registryMu.RLock()
	constructor, ok := registry[config.Exchange]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("exchange %q: %w (registered: %v)",
			config.Exchange, interfaces.ErrUnknownExchange, Registered())
	}

	gateway, err := constructor(config)
	if err != nil {
		return nil, err
	}
	return client.New(gateway, config, opts...)
}
