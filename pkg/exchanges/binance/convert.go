package binance

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"github.com/veiloq/cex-sdk/pkg/exchanges/interfaces"
)

// nativeSymbol converts a unified symbol to Binance's concatenated form,
// e.g. "BTC/USDT:USDT" to "BTCUSDT".
func nativeSymbol(symbol string) string {
	if idx := strings.Index(symbol, ":"); idx >= 0 {
		symbol = symbol[:idx]
	}
	return strings.ReplaceAll(symbol, "/", "")
}

// streamSymbol is the lowercase form used in websocket stream names.
func streamSymbol(symbol string) string {
	return strings.ToLower(nativeSymbol(symbol))
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Decimal{}, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s %q: %w", field, value, err)
	}
	return d, nil
}

func toTicker(stats *futures.PriceChangeStats) (interfaces.Ticker, error) {
	last, err := parseDecimal("last price", stats.LastPrice)
	if err != nil {
		return interfaces.Ticker{}, err
	}
	volume, err := parseDecimal("volume", stats.Volume)
	if err != nil {
		return interfaces.Ticker{}, err
	}
	return interfaces.Ticker{
		Symbol:    interfaces.NormalizeSymbol(stats.Symbol),
		Last:      last,
		Volume24h: volume,
		Time:      time.UnixMilli(stats.CloseTime),
	}, nil
}

func toBalance(b *futures.Balance) (interfaces.Balance, error) {
	total, err := parseDecimal("balance", b.Balance)
	if err != nil {
		return interfaces.Balance{}, err
	}
	free, err := parseDecimal("available balance", b.AvailableBalance)
	if err != nil {
		return interfaces.Balance{}, err
	}
	used := total.Sub(free)
	if used.IsNegative() {
		used = decimal.Zero
	}
	return interfaces.Balance{
		Asset: b.Asset,
		Free:  free,
		Used:  used,
		Total: total,
	}, nil
}

func toPosition(p *futures.PositionRisk) (interfaces.Position, error) {
	amount, err := parseDecimal("position amount", p.PositionAmt)
	if err != nil {
		return interfaces.Position{}, err
	}
	entry, err := parseDecimal("entry price", p.EntryPrice)
	if err != nil {
		return interfaces.Position{}, err
	}
	mark, err := parseDecimal("mark price", p.MarkPrice)
	if err != nil {
		return interfaces.Position{}, err
	}
	liquidation, err := parseDecimal("liquidation price", p.LiquidationPrice)
	if err != nil {
		return interfaces.Position{}, err
	}
	unrealized, err := parseDecimal("unrealized profit", p.UnRealizedProfit)
	if err != nil {
		return interfaces.Position{}, err
	}
	collateral, err := parseDecimal("isolated margin", p.IsolatedMargin)
	if err != nil {
		return interfaces.Position{}, err
	}
	leverage, err := parseDecimal("leverage", p.Leverage)
	if err != nil {
		return interfaces.Position{}, err
	}

	// In one-way mode the side is reported as BOTH and the direction is the
	// sign of the position amount.
	hedged := true
	var side interfaces.PositionSide
	switch p.PositionSide {
	case "LONG":
		side = interfaces.PositionSideLong
	case "SHORT":
		side = interfaces.PositionSideShort
	default:
		hedged = false
		if amount.IsNegative() {
			side = interfaces.PositionSideShort
		} else {
			side = interfaces.PositionSideLong
		}
	}

	contracts := amount.Abs()
	mode := interfaces.MarginModeCross
	if strings.EqualFold(p.MarginType, "isolated") {
		mode = interfaces.MarginModeIsolated
	}

	return interfaces.Position{
		Symbol:           interfaces.NormalizeSymbol(p.Symbol),
		Side:             side,
		Contracts:        contracts,
		EntryPrice:       entry,
		MarkPrice:        mark,
		LiquidationPrice: liquidation,
		Leverage:         leverage,
		Notional:         contracts.Mul(mark),
		Collateral:       collateral,
		UnrealizedPnL:    unrealized,
		MarginMode:       mode,
		Hedged:           hedged,
		UpdatedAt:        time.Now(),
	}, nil
}

func toOrderStatus(status futures.OrderStatusType) interfaces.OrderStatus {
	switch status {
	case futures.OrderStatusTypeNew:
		return interfaces.OrderStatusNew
	case futures.OrderStatusTypePartiallyFilled:
		return interfaces.OrderStatusPartiallyFilled
	case futures.OrderStatusTypeFilled:
		return interfaces.OrderStatusFilled
	case futures.OrderStatusTypeCanceled, futures.OrderStatusTypeExpired:
		return interfaces.OrderStatusCanceled
	case futures.OrderStatusTypeRejected:
		return interfaces.OrderStatusRejected
	default:
		return interfaces.OrderStatusNew
	}
}

func toOrder(res *futures.CreateOrderResponse, req interfaces.OrderRequest) interfaces.Order {
	return interfaces.Order{
		ID:            strconv.FormatInt(res.OrderID, 10),
		ClientOrderID: res.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Price:         req.Price,
		StopPrice:     req.StopPrice,
		Amount:        req.Amount,
		Status:        toOrderStatus(res.Status),
		CreatedAt:     time.UnixMilli(res.UpdateTime),
	}
}

// toOpenOrder converts one row of the open-orders listing.
func toOpenOrder(o *futures.Order) (interfaces.Order, error) {
	price, err := parseDecimal("order price", o.Price)
	if err != nil {
		return interfaces.Order{}, err
	}
	stop, err := parseDecimal("stop price", o.StopPrice)
	if err != nil {
		return interfaces.Order{}, err
	}
	amount, err := parseDecimal("order quantity", o.OrigQuantity)
	if err != nil {
		return interfaces.Order{}, err
	}
	return interfaces.Order{
		ID:            strconv.FormatInt(o.OrderID, 10),
		ClientOrderID: o.ClientOrderID,
		Symbol:        interfaces.NormalizeSymbol(o.Symbol),
		Side:          fromOrderSide(o.Side),
		Type:          fromOrderType(o.Type),
		Price:         price,
		StopPrice:     stop,
		Amount:        amount,
		Status:        toOrderStatus(o.Status),
		CreatedAt:     time.UnixMilli(o.Time),
	}, nil
}

// isTriggerOrder reports whether an order rests on the trigger engine
// rather than in the book.
func isTriggerOrder(t futures.OrderType) bool {
	switch t {
	case futures.OrderTypeStop, futures.OrderTypeStopMarket,
		futures.OrderTypeTakeProfit, futures.OrderTypeTakeProfitMarket:
		return true
	}
	return false
}

func fromOrderSide(side futures.SideType) interfaces.Side {
	if side == futures.SideTypeSell {
		return interfaces.SideSell
	}
	return interfaces.SideBuy
}

func fromOrderType(t futures.OrderType) interfaces.OrderType {
	switch t {
	case futures.OrderTypeMarket:
		return interfaces.OrderTypeMarket
	case futures.OrderTypeStop:
		return interfaces.OrderTypeStopLimit
	case futures.OrderTypeStopMarket:
		return interfaces.OrderTypeStopMarket
	case futures.OrderTypeTakeProfit:
		return interfaces.OrderTypeTakeProfitLimit
	case futures.OrderTypeTakeProfitMarket:
		return interfaces.OrderTypeTakeProfitMarket
	default:
		return interfaces.OrderTypeLimit
	}
}

func toOrderSide(side interfaces.Side) futures.SideType {
	if side == interfaces.SideSell {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

func toOrderType(t interfaces.OrderType) futures.OrderType {
	switch t {
	case interfaces.OrderTypeMarket:
		return futures.OrderTypeMarket
	case interfaces.OrderTypeStopMarket:
		return futures.OrderTypeStopMarket
	case interfaces.OrderTypeTakeProfitMarket:
		return futures.OrderTypeTakeProfitMarket
	default:
		return futures.OrderTypeLimit
	}
}

func toFundingRate(p *futures.PremiumIndex) (interfaces.FundingRate, error) {
	rate, err := parseDecimal("funding rate", p.LastFundingRate)
	if err != nil {
		return interfaces.FundingRate{}, err
	}
	return interfaces.FundingRate{
		Symbol:      interfaces.NormalizeSymbol(p.Symbol),
		Exchange:    exchangeName,
		Rate:        rate,
		FundingTime: time.UnixMilli(p.NextFundingTime),
	}, nil
}

// toMarket converts one instrument of the exchange info response. Limits
// come from the LOT_SIZE, PRICE_FILTER and MIN_NOTIONAL filters; precisions
// are derived from the tick and step sizes, falling back to the instrument's
// display precision when a filter is missing.
func toMarket(s futures.Symbol) (interfaces.Market, error) {
	market := interfaces.Market{
		Symbol:          interfaces.NormalizeSymbol(s.Symbol),
		Base:            s.BaseAsset,
		Quote:           s.QuoteAsset,
		ContractSize:    decimal.NewFromInt(1),
		PricePrecision:  int32(s.PricePrecision),
		AmountPrecision: int32(s.QuantityPrecision),
	}

	for _, filter := range s.Filters {
		filterType, _ := filter["filterType"].(string)
		switch filterType {
		case "LOT_SIZE":
			minQty, err := filterDecimal(filter, "minQty")
			if err != nil {
				return interfaces.Market{}, err
			}
			maxQty, err := filterDecimal(filter, "maxQty")
			if err != nil {
				return interfaces.Market{}, err
			}
			stepSize, err := filterDecimal(filter, "stepSize")
			if err != nil {
				return interfaces.Market{}, err
			}
			market.MinAmount = minQty
			market.MaxAmount = maxQty
			if p := precisionOf(stepSize); p >= 0 {
				market.AmountPrecision = p
			}
		case "PRICE_FILTER":
			minPrice, err := filterDecimal(filter, "minPrice")
			if err != nil {
				return interfaces.Market{}, err
			}
			maxPrice, err := filterDecimal(filter, "maxPrice")
			if err != nil {
				return interfaces.Market{}, err
			}
			tickSize, err := filterDecimal(filter, "tickSize")
			if err != nil {
				return interfaces.Market{}, err
			}
			market.MinPrice = minPrice
			market.MaxPrice = maxPrice
			if p := precisionOf(tickSize); p >= 0 {
				market.PricePrecision = p
			}
		case "MIN_NOTIONAL":
			notional, err := filterDecimal(filter, "notional")
			if err != nil {
				return interfaces.Market{}, err
			}
			market.MinCost = notional
		}
	}
	return market, nil
}

func filterDecimal(filter map[string]interface{}, key string) (decimal.Decimal, error) {
	raw, ok := filter[key].(string)
	if !ok {
		return decimal.Decimal{}, nil
	}
	return parseDecimal(key, raw)
}

// precisionOf derives the decimal precision implied by a tick or step size,
// e.g. "0.001" is 3 and "1" is 0. Returns -1 for zero sizes.
func precisionOf(size decimal.Decimal) int32 {
	if size.Sign() <= 0 {
		return -1
	}
	s := size.String()
	if i := strings.Index(s, "."); i >= 0 {
		// Trailing zeros carry no precision: "0.0100" is 2.
		s = strings.TrimRight(s, "0")
		return int32(len(s) - i - 1)
	}
	return 0
}
