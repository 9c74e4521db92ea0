package interfaces

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidSymbol(t *testing.T) {
	valid := []string{"BTCUSDT", "BTC/USDT", "BTC/USDT:USDT", "1000PEPE/USDT:USDT"}
	for _, s := range valid {
		assert.True(t, ValidSymbol(s), s)
	}
	invalid := []string{"", "btc/usdt", "BTC-USDT", "BTC/USDT:USDT:USDT", "BTC USDT", "BTC/"}
	for _, s := range invalid {
		assert.False(t, ValidSymbol(s), s)
	}
}

func TestNormalizeSymbol(t *testing.T) {
	cases := map[string]string{
		"BTCUSDT":       "BTC/USDT:USDT",
		"BTC/USDT":      "BTC/USDT:USDT",
		"BTC/USDT:USDT": "BTC/USDT:USDT",
		"ETHBTC":        "ETHBTC",
		"BTC/EUR":       "BTC/EUR",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeSymbol(in), in)
	}
}

func TestTickerValidate(t *testing.T) {
	ok := Ticker{Symbol: "BTC/USDT:USDT", Last: decimal.NewFromInt(50000), Time: time.Now()}
	require.NoError(t, ok.Validate())

	assert.Error(t, Ticker{Symbol: "bad symbol", Last: decimal.NewFromInt(1)}.Validate())
	assert.Error(t, Ticker{Symbol: "BTC/USDT:USDT"}.Validate(), "zero last price")
	assert.Error(t, Ticker{Symbol: "BTC/USDT:USDT", Last: decimal.NewFromInt(-1)}.Validate())
}

func TestBalanceValidate(t *testing.T) {
	ok := Balance{Asset: "USDT", Free: decimal.NewFromInt(10), Total: decimal.NewFromInt(10)}
	require.NoError(t, ok.Validate())

	assert.Error(t, Balance{}.Validate())
	assert.Error(t, Balance{Asset: "USDT", Free: decimal.NewFromInt(-1)}.Validate())
}

func TestPositionValidate(t *testing.T) {
	ok := Position{
		Symbol:     "BTC/USDT:USDT",
		Side:       PositionSideLong,
		Contracts:  decimal.NewFromInt(1),
		EntryPrice: decimal.NewFromInt(60000),
	}
	require.NoError(t, ok.Validate())

	bad := ok
	bad.Side = "sideways"
	assert.Error(t, bad.Validate())

	bad = ok
	bad.Contracts = decimal.Zero
	assert.Error(t, bad.Validate())

	bad = ok
	bad.EntryPrice = decimal.Zero
	assert.Error(t, bad.Validate())
}

func TestOrderRequestValidate(t *testing.T) {
	limit := OrderRequest{
		Symbol: "BTC/USDT:USDT",
		Side:   SideBuy,
		Type:   OrderTypeLimit,
		Amount: decimal.NewFromInt(1),
		Price:  decimal.NewFromInt(60000),
	}
	require.NoError(t, limit.Validate())

	t.Run("limit requires price", func(t *testing.T) {
		r := limit
		r.Price = decimal.Zero
		assert.Error(t, r.Validate())
	})
	t.Run("market requires no price", func(t *testing.T) {
		r := limit
		r.Type = OrderTypeMarket
		r.Price = decimal.Zero
		assert.NoError(t, r.Validate())
	})
	t.Run("stop market requires stop price", func(t *testing.T) {
		r := limit
		r.Type = OrderTypeStopMarket
		assert.Error(t, r.Validate())
		r.StopPrice = decimal.NewFromInt(55000)
		assert.NoError(t, r.Validate())
	})
	t.Run("rejects bad side and type", func(t *testing.T) {
		r := limit
		r.Side = "hold"
		assert.Error(t, r.Validate())

		r = limit
		r.Type = "iceberg"
		assert.Error(t, r.Validate())
	})
	t.Run("rejects non-positive amount", func(t *testing.T) {
		r := limit
		r.Amount = decimal.Zero
		assert.Error(t, r.Validate())
	})
}

func TestMarketPrecisionHelpers(t *testing.T) {
	m := Market{Symbol: "BTC/USDT:USDT", PricePrecision: 1, AmountPrecision: 3}

	price := m.PriceToPrecision(decimal.RequireFromString("64250.1789"))
	assert.True(t, price.Equal(decimal.RequireFromString("64250.1")))

	amount := m.AmountToPrecision(decimal.RequireFromString("0.123456"))
	assert.True(t, amount.Equal(decimal.RequireFromString("0.123")))

	// Truncation never rounds up.
	assert.True(t, m.PriceToPrecision(decimal.RequireFromString("0.19")).Equal(decimal.RequireFromString("0.1")))
}

func TestClosedPositionReportValidate(t *testing.T) {
	opened := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ok := ClosedPositionReport{
		Symbol:    "BTC/USDT:USDT",
		Side:      PositionSideLong,
		Contracts: decimal.NewFromInt(1),
		OpenedAt:  opened,
		ClosedAt:  opened.Add(time.Hour),
	}
	require.NoError(t, ok.Validate())

	bad := ok
	bad.ClosedAt = opened.Add(-time.Hour)
	assert.Error(t, bad.Validate())

	bad = ok
	bad.Contracts = decimal.Zero
	assert.Error(t, bad.Validate())
}
