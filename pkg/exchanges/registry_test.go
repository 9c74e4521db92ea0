package exchanges

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veiloq/cex-sdk/pkg/exchanges/interfaces"
)

// stubGateway is the minimal gateway needed to exercise the registry.
type stubGateway struct {
	name string
}

func (g *stubGateway) Name() string { return g.name }

func (g *stubGateway) LoadMarkets(ctx context.Context) (map[string]interfaces.Market, error) {
	return map[string]interfaces.Market{}, nil
}

func (g *stubGateway) FetchTicker(ctx context.Context, symbol string) (interfaces.Ticker, error) {
	return interfaces.Ticker{Symbol: symbol, Time: time.Now()}, nil
}

func (g *stubGateway) FetchBalance(ctx context.Context, asset string) (interfaces.Balance, error) {
	return interfaces.Balance{Asset: asset}, nil
}

func (g *stubGateway) FetchPositions(ctx context.Context, symbols []string) ([]interfaces.Position, error) {
	return nil, nil
}

func (g *stubGateway) CreateOrder(ctx context.Context, req interfaces.OrderRequest) (interfaces.Order, error) {
	return interfaces.Order{}, nil
}

func (g *stubGateway) CancelOrder(ctx context.Context, symbol, orderID string) error { return nil }

func (g *stubGateway) Close() error { return nil }

func TestRegisterAndOpen(t *testing.T) {
	Register("stub", func(config interfaces.ClientConfig) (interfaces.Gateway, error) {
		return &stubGateway{name: "stub"}, nil
	})

	assert.Contains(t, Registered(), "stub")

	c, err := Open(interfaces.ClientConfig{Exchange: "stub"})
	require.NoError(t, err)
	assert.Equal(t, "stub", c.Exchange())
	require.NoError(t, c.Close())
}

func TestOpenUnknownExchange(t *testing.T) {
	_, err := Open(interfaces.ClientConfig{Exchange: "no-such-venue"})
	assert.ErrorIs(t, err, interfaces.ErrUnknownExchange)
}

func TestOpenInvalidConfig(t *testing.T) {
	_, err := Open(interfaces.ClientConfig{})
	assert.Error(t, err)
}

func TestRegisterPanics(t *testing.T) {
	assert.Panics(t, func() { Register("", nil) })
	assert.Panics(t, func() { Register("nil-ctor", nil) })
	Register("dup", func(interfaces.ClientConfig) (interfaces.Gateway, error) {
		return &stubGateway{name: "dup"}, nil
	})
	assert.Panics(t, func() {
		Register("dup", func(interfaces.ClientConfig) (interfaces.Gateway, error) {
			return &stubGateway{name: "dup"}, nil
		})
	})
}
