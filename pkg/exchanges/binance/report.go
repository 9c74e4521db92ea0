package binance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/veiloq/cex-sdk/pkg/exchanges/interfaces"
)

// Binance limits trade and income queries to 7-day ranges with at most 1000
// rows per page.
const (
	historySliceDays = 7
	historyPageLimit = 1000
)

// ClosedPositionReports implements interfaces.ClosedPositionReporter. A
// report covers one position cycle, from the fill that opened the position
// to the fill that brought it back to flat, and folds in the funding fees
// paid or received while it was open. Cycles still open at until are not
// reported.
func (g *Gateway) ClosedPositionReports(ctx context.Context, symbol string, since, until time.Time) ([]interfaces.ClosedPositionReport, error) {
	if until.Before(since) {
		return nil, fmt.Errorf("report range: until %s before since %s", until, since)
	}
	native := nativeSymbol(symbol)

	trades, err := g.fetchTrades(ctx, native, since, until)
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return nil, nil
	}
	fundings, err := g.fetchFundingIncome(ctx, native, since, until)
	if err != nil {
		return nil, err
	}

	sort.Slice(trades, func(i, j int) bool { return trades[i].Time < trades[j].Time })

	// Hedge-mode fills carry an explicit position side; one-way fills are
	// reported as BOTH and the direction follows the running position sign.
	oneWay, hedged := lo.FilterReject(trades, func(t *futures.AccountTrade, _ int) bool {
		return t.PositionSide == futures.PositionSideTypeBoth
	})

	var cycles []*cycle
	for _, side := range []interfaces.PositionSide{interfaces.PositionSideLong, interfaces.PositionSideShort} {
		cs, err := buildHedgedCycles(side, hedged)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, cs...)
	}
	cs, err := buildOneWayCycles(oneWay)
	if err != nil {
		return nil, err
	}
	cycles = append(cycles, cs...)

	unified := interfaces.NormalizeSymbol(native)
	var reports []interfaces.ClosedPositionReport
	for _, c := range cycles {
		if !c.closed {
			continue
		}
		report := c.report(unified)
		report.FundingIncome = fundingBetween(fundings, report.OpenedAt, report.ClosedAt)
		reports = append(reports, report)
	}

	sort.Slice(reports, func(i, j int) bool { return reports[i].ClosedAt.Before(reports[j].ClosedAt) })
	return reports, nil
}

// fetchTrades pages through the account trade history. Ranges longer than
// the exchange's 7-day query window are fetched slice by slice.
func (g *Gateway) fetchTrades(ctx context.Context, native string, since, until time.Time) ([]*futures.AccountTrade, error) {
	var all []*futures.AccountTrade
	slice := historySliceDays * 24 * time.Hour

	for start := since; start.Before(until); start = start.Add(slice) {
		end := start.Add(slice)
		if end.After(until) {
			end = until
		}

		var fromID int64
		for {
			svc := g.client.NewListAccountTradeService().
				Symbol(native).
				StartTime(start.UnixMilli()).
				EndTime(end.UnixMilli()).
				Limit(historyPageLimit)
			if fromID > 0 {
				svc = svc.FromID(fromID)
			}
			page, err := svc.Do(ctx)
			if err != nil {
				return nil, fmt.Errorf("fetch trades %s to %s: %w",
					start.Format(time.DateOnly), end.Format(time.DateOnly), err)
			}
			all = append(all, page...)
			if len(page) < historyPageLimit {
				break
			}
			// FromID is exclusive of the given id.
			fromID = page[len(page)-1].ID + 1
		}
	}
	return all, nil
}

// fundingEntry is one funding fee settlement.
type fundingEntry struct {
	amount decimal.Decimal
	time   time.Time
}

// fetchFundingIncome pages through the FUNDING_FEE income history. The
// income endpoint has no cursor, so pages advance by timestamp.
func (g *Gateway) fetchFundingIncome(ctx context.Context, native string, since, until time.Time) ([]fundingEntry, error) {
	var all []fundingEntry
	slice := historySliceDays * 24 * time.Hour

	for start := since; start.Before(until); {
		end := start.Add(slice)
		if end.After(until) {
			end = until
		}

		page, err := g.client.NewGetIncomeHistoryService().
			Symbol(native).
			IncomeType("FUNDING_FEE").
			StartTime(start.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(historyPageLimit).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch funding income: %w", err)
		}
		for _, income := range page {
			amount, err := parseDecimal("funding income", income.Income)
			if err != nil {
				return nil, err
			}
			all = append(all, fundingEntry{amount: amount, time: time.UnixMilli(income.Time)})
		}
		if len(page) == historyPageLimit {
			start = time.UnixMilli(page[len(page)-1].Time).Add(time.Millisecond)
			continue
		}
		start = end
	}
	return all, nil
}

func fundingBetween(entries []fundingEntry, from, to time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if !e.time.Before(from) && !e.time.After(to) {
			total = total.Add(e.amount)
		}
	}
	return total
}

// fill is one account trade with its numeric fields parsed.
type fill struct {
	price      decimal.Decimal
	qty        decimal.Decimal
	realized   decimal.Decimal
	commission decimal.Decimal
	asset      string
	maker      bool
	buy        bool
	time       time.Time
}

func parseFill(trade *futures.AccountTrade) (fill, error) {
	price, err := parseDecimal("trade price", trade.Price)
	if err != nil {
		return fill{}, err
	}
	qty, err := parseDecimal("trade quantity", trade.Quantity)
	if err != nil {
		return fill{}, err
	}
	realized, err := parseDecimal("realized pnl", trade.RealizedPnl)
	if err != nil {
		return fill{}, err
	}
	commission, err := parseDecimal("commission", trade.Commission)
	if err != nil {
		return fill{}, err
	}
	return fill{
		price:      price,
		qty:        qty,
		realized:   realized,
		commission: commission,
		asset:      trade.CommissionAsset,
		maker:      trade.Maker,
		buy:        trade.Side == futures.SideTypeBuy,
		time:       time.UnixMilli(trade.Time),
	}, nil
}

// cycle accumulates the fills of one position, open to flat.
type cycle struct {
	side       interfaces.PositionSide
	contracts  decimal.Decimal // running position size
	maxSize    decimal.Decimal
	entryValue decimal.Decimal // sum of price*qty of opening fills
	entryQty   decimal.Decimal
	exitValue  decimal.Decimal
	exitQty    decimal.Decimal
	realized   decimal.Decimal
	fees       []interfaces.Fee
	feesTotal  decimal.Decimal
	openedAt   time.Time
	closedAt   time.Time
	closed     bool
}

func newCycle(side interfaces.PositionSide, openedAt time.Time) *cycle {
	return &cycle{side: side, openedAt: openedAt}
}

// apply folds one fill into the cycle and reports whether the position
// returned to flat.
func (c *cycle) apply(f fill, opening bool) bool {
	feeType := "taker"
	if f.maker {
		feeType = "maker"
	}
	c.fees = append(c.fees, interfaces.Fee{
		Type:     feeType,
		Currency: f.asset,
		Cost:     f.commission.Neg(),
	})
	c.feesTotal = c.feesTotal.Add(f.commission)
	c.realized = c.realized.Add(f.realized)

	if opening {
		c.contracts = c.contracts.Add(f.qty)
		c.entryValue = c.entryValue.Add(f.price.Mul(f.qty))
		c.entryQty = c.entryQty.Add(f.qty)
		if c.contracts.GreaterThan(c.maxSize) {
			c.maxSize = c.contracts
		}
		return false
	}

	closeQty := decimal.Min(f.qty, c.contracts)
	c.contracts = c.contracts.Sub(closeQty)
	c.exitValue = c.exitValue.Add(f.price.Mul(closeQty))
	c.exitQty = c.exitQty.Add(closeQty)
	if c.contracts.Sign() <= 0 {
		c.contracts = decimal.Zero
		c.closedAt = f.time
		c.closed = true
		return true
	}
	return false
}

func (c *cycle) report(symbol string) interfaces.ClosedPositionReport {
	entryAvg := decimal.Zero
	if !c.entryQty.IsZero() {
		entryAvg = c.entryValue.Div(c.entryQty)
	}
	exitAvg := decimal.Zero
	if !c.exitQty.IsZero() {
		exitAvg = c.exitValue.Div(c.exitQty)
	}
	return interfaces.ClosedPositionReport{
		Exchange:      exchangeName,
		Symbol:        symbol,
		Side:          c.side,
		Contracts:     c.maxSize,
		OpenedAt:      c.openedAt,
		ClosedAt:      c.closedAt,
		EntryPriceAvg: entryAvg,
		ExitPriceAvg:  exitAvg,
		RealizedPnL:   c.realized,
		FeesTotal:     c.feesTotal.Neg(),
		Fees:          c.fees,
	}
}

// buildHedgedCycles splits hedge-mode fills of one position side into
// cycles. Closing fills with no open position belong to a cycle opened
// before the query range and are dropped.
func buildHedgedCycles(side interfaces.PositionSide, trades []*futures.AccountTrade) ([]*cycle, error) {
	wantSide := futures.PositionSideTypeLong
	if side == interfaces.PositionSideShort {
		wantSide = futures.PositionSideTypeShort
	}

	var cycles []*cycle
	var current *cycle

	for _, trade := range trades {
		if trade.PositionSide != wantSide {
			continue
		}
		f, err := parseFill(trade)
		if err != nil {
			return nil, err
		}

		// Longs open with buys, shorts open with sells.
		opening := f.buy == (side == interfaces.PositionSideLong)
		if current == nil {
			if !opening {
				continue
			}
			current = newCycle(side, f.time)
			cycles = append(cycles, current)
		}
		if current.apply(f, opening) {
			current = nil
		}
	}
	return cycles, nil
}

// buildOneWayCycles splits one-way fills into cycles by tracking the signed
// position. A fill that flips the position closes the current cycle and
// opens a new one in the opposite direction with the remaining quantity.
func buildOneWayCycles(trades []*futures.AccountTrade) ([]*cycle, error) {
	var cycles []*cycle
	var current *cycle

	for _, trade := range trades {
		f, err := parseFill(trade)
		if err != nil {
			return nil, err
		}

		if current == nil {
			// Realized PnL is only booked on closing fills. With no open
			// position in the range, such a fill closes a cycle opened
			// before the query range and is dropped.
			if !f.realized.IsZero() {
				continue
			}
			side := interfaces.PositionSideShort
			if f.buy {
				side = interfaces.PositionSideLong
			}
			current = newCycle(side, f.time)
			cycles = append(cycles, current)
		}

		opening := f.buy == (current.side == interfaces.PositionSideLong)
		if opening {
			current.apply(f, true)
			continue
		}

		remainder := f.qty.Sub(current.contracts)
		if current.apply(f, false) {
			current = nil
			if remainder.Sign() > 0 {
				// Position flipped within one fill.
				side := interfaces.PositionSideShort
				if f.buy {
					side = interfaces.PositionSideLong
				}
				current = newCycle(side, f.time)
				cycles = append(cycles, current)
				flipped := f
				flipped.qty = remainder
				flipped.realized = decimal.Zero
				flipped.commission = decimal.Zero
				current.apply(flipped, true)
			}
		}
	}
	return cycles, nil
}
