package binance

import (
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veiloq/cex-sdk/pkg/exchanges/interfaces"
)

func hedgedTrade(id int64, at time.Time, posSide futures.PositionSideType, side futures.SideType, qty, price, pnl, fee string) *futures.AccountTrade {
	return &futures.AccountTrade{
		ID:              id,
		Symbol:          "BTCUSDT",
		Time:            at.UnixMilli(),
		PositionSide:    posSide,
		Side:            side,
		Quantity:        qty,
		Price:           price,
		RealizedPnl:     pnl,
		Commission:      fee,
		CommissionAsset: "USDT",
	}
}

func TestBuildHedgedCycles(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	trades := []*futures.AccountTrade{
		// First cycle: open 1.0 long in two fills, close in one.
		hedgedTrade(1, base, futures.PositionSideTypeLong, futures.SideTypeBuy, "0.4", "60000", "0", "0.96"),
		hedgedTrade(2, base.Add(time.Minute), futures.PositionSideTypeLong, futures.SideTypeBuy, "0.6", "61000", "0", "1.46"),
		hedgedTrade(3, base.Add(2*time.Hour), futures.PositionSideTypeLong, futures.SideTypeSell, "1.0", "62000", "1400", "2.48"),
		// Second cycle, still open.
		hedgedTrade(4, base.Add(3*time.Hour), futures.PositionSideTypeLong, futures.SideTypeBuy, "0.2", "62500", "0", "0.50"),
		// A short-side fill must not leak into long cycles.
		hedgedTrade(5, base.Add(time.Hour), futures.PositionSideTypeShort, futures.SideTypeSell, "1.0", "60500", "0", "2.42"),
	}

	cycles, err := buildHedgedCycles(interfaces.PositionSideLong, trades)
	require.NoError(t, err)
	require.Len(t, cycles, 2)

	closed := cycles[0]
	require.True(t, closed.closed)
	report := closed.report("BTC/USDT:USDT")
	assert.Equal(t, interfaces.PositionSideLong, report.Side)
	assert.True(t, report.Contracts.Equal(decimal.RequireFromString("1.0")))
	// 0.4*60000 + 0.6*61000 = 60600 average entry.
	assert.True(t, report.EntryPriceAvg.Equal(decimal.RequireFromString("60600")))
	assert.True(t, report.ExitPriceAvg.Equal(decimal.RequireFromString("62000")))
	assert.True(t, report.RealizedPnL.Equal(decimal.RequireFromString("1400")))
	// Fees are reported as a negative total: 0.96 + 1.46 + 2.48.
	assert.True(t, report.FeesTotal.Equal(decimal.RequireFromString("-4.9")))
	assert.Len(t, report.Fees, 3)
	assert.Equal(t, base, report.OpenedAt)
	assert.Equal(t, base.Add(2*time.Hour), report.ClosedAt)
	require.NoError(t, report.Validate())

	assert.False(t, cycles[1].closed)

	shortCycles, err := buildHedgedCycles(interfaces.PositionSideShort, trades)
	require.NoError(t, err)
	require.Len(t, shortCycles, 1)
	assert.False(t, shortCycles[0].closed)
}

func TestBuildHedgedCyclesDropsPreRangeClose(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	trades := []*futures.AccountTrade{
		// Closing fill of a position opened before the query range.
		hedgedTrade(1, base, futures.PositionSideTypeLong, futures.SideTypeSell, "0.5", "60000", "200", "1.20"),
		hedgedTrade(2, base.Add(time.Hour), futures.PositionSideTypeLong, futures.SideTypeBuy, "0.3", "61000", "0", "0.73"),
		hedgedTrade(3, base.Add(2*time.Hour), futures.PositionSideTypeLong, futures.SideTypeSell, "0.3", "61500", "150", "0.74"),
	}

	cycles, err := buildHedgedCycles(interfaces.PositionSideLong, trades)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.True(t, cycles[0].closed)
	assert.True(t, cycles[0].maxSize.Equal(decimal.RequireFromString("0.3")))
}

func oneWayTrade(id int64, at time.Time, side futures.SideType, qty, price string) *futures.AccountTrade {
	return hedgedTrade(id, at, futures.PositionSideTypeBoth, side, qty, price, "0", "0.1")
}

func TestBuildOneWayCycles(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("short cycle", func(t *testing.T) {
		trades := []*futures.AccountTrade{
			oneWayTrade(1, base, futures.SideTypeSell, "2", "3000"),
			oneWayTrade(2, base.Add(time.Hour), futures.SideTypeBuy, "2", "2900"),
		}
		cycles, err := buildOneWayCycles(trades)
		require.NoError(t, err)
		require.Len(t, cycles, 1)
		require.True(t, cycles[0].closed)
		report := cycles[0].report("ETH/USDT:USDT")
		assert.Equal(t, interfaces.PositionSideShort, report.Side)
		assert.True(t, report.EntryPriceAvg.Equal(decimal.RequireFromString("3000")))
		assert.True(t, report.ExitPriceAvg.Equal(decimal.RequireFromString("2900")))
	})

	t.Run("flip opens opposite cycle", func(t *testing.T) {
		trades := []*futures.AccountTrade{
			oneWayTrade(1, base, futures.SideTypeBuy, "1", "3000"),
			// Sell 3 when long 1: closes the long and opens a short of 2.
			oneWayTrade(2, base.Add(time.Hour), futures.SideTypeSell, "3", "3100"),
			oneWayTrade(3, base.Add(2*time.Hour), futures.SideTypeBuy, "2", "3050"),
		}
		cycles, err := buildOneWayCycles(trades)
		require.NoError(t, err)
		require.Len(t, cycles, 2)

		long := cycles[0]
		require.True(t, long.closed)
		assert.Equal(t, interfaces.PositionSideLong, long.side)
		assert.True(t, long.exitQty.Equal(decimal.RequireFromString("1")))

		short := cycles[1]
		require.True(t, short.closed)
		assert.Equal(t, interfaces.PositionSideShort, short.side)
		assert.True(t, short.maxSize.Equal(decimal.RequireFromString("2")))
		assert.True(t, short.entryValue.Equal(decimal.RequireFromString("6200")))
	})
}

func TestBuildOneWayCyclesDropsPreRangeClose(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	trades := []*futures.AccountTrade{
		// Closes a long opened before the query range. Realized PnL is only
		// booked on closing fills, so this must not be read as a fresh short.
		hedgedTrade(1, base, futures.PositionSideTypeBoth, futures.SideTypeSell, "1", "3100", "500", "0.31"),
		oneWayTrade(2, base.Add(time.Hour), futures.SideTypeBuy, "1", "3000"),
	}

	cycles, err := buildOneWayCycles(trades)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.False(t, cycles[0].closed)
	assert.Equal(t, interfaces.PositionSideLong, cycles[0].side)
	assert.True(t, cycles[0].entryValue.Equal(decimal.RequireFromString("3000")))
}

func TestFundingBetween(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	entries := []fundingEntry{
		{amount: decimal.RequireFromString("0.5"), time: base.Add(time.Hour)},
		{amount: decimal.RequireFromString("-0.2"), time: base.Add(2 * time.Hour)},
		{amount: decimal.RequireFromString("9.9"), time: base.Add(48 * time.Hour)},
	}
	total := fundingBetween(entries, base, base.Add(3*time.Hour))
	assert.True(t, total.Equal(decimal.RequireFromString("0.3")))
}
