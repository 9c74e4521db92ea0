package interfaces

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// PositionSide is the direction of a derivatives position.
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// OrderType identifies how an order executes.
type OrderType string

const (
	OrderTypeLimit            OrderType = "limit"
	OrderTypeMarket           OrderType = "market"
	OrderTypeStopMarket       OrderType = "stop_market"
	OrderTypeTakeProfitMarket OrderType = "take_profit_market"

	// Limit-variant trigger orders appear in open-order listings but are not
	// placeable through OrderRequest.
	OrderTypeStopLimit       OrderType = "stop_limit"
	OrderTypeTakeProfitLimit OrderType = "take_profit_limit"
)

// OrderStatus is the lifecycle state of an order as reported by the exchange.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCanceled        OrderStatus = "canceled"
	OrderStatusRejected        OrderStatus = "rejected"
)

// MarginMode is the margin treatment of a derivatives position.
type MarginMode string

const (
	MarginModeIsolated MarginMode = "isolated"
	MarginModeCross    MarginMode = "cross"
)

// symbolPattern accepts exchange-native symbols ("BTCUSDT") and unified
// symbols with an optional settle suffix ("BTC/USDT", "BTC/USDT:USDT").
var symbolPattern = regexp.MustCompile(`^[A-Z0-9]+(/[A-Z0-9]+(:[A-Z0-9]+)?)?$`)

// ValidSymbol reports whether s is a well-formed trading pair symbol.
func ValidSymbol(s string) bool {
	return symbolPattern.MatchString(s)
}

// NormalizeSymbol converts a USDT-settled symbol to the unified
// BASE/USDT:USDT form. Symbols already carrying a settle suffix and symbols
// in other quote currencies are returned unchanged.
func NormalizeSymbol(raw string) string {
	if strings.Contains(raw, ":") {
		if strings.HasSuffix(raw, ":USDT") {
			return raw
		}
		return raw + ":USDT"
	}
	if strings.HasSuffix(raw, "/USDT") {
		return raw + ":USDT"
	}
	if strings.HasSuffix(raw, "USDT") && !strings.Contains(raw, "/") {
		return raw[:len(raw)-4] + "/USDT:USDT"
	}
	return raw
}

// Ticker is a snapshot of the most recent trading activity for a symbol.
type Ticker struct {
	Symbol    string
	Last      decimal.Decimal
	Volume24h decimal.Decimal
	Time      time.Time
}

// Validate checks the required fields of a ticker.
func (t Ticker) Validate() error {
	if !ValidSymbol(t.Symbol) {
		return fmt.Errorf("ticker symbol %q: %w", t.Symbol, ErrInvalidSymbol)
	}
	if t.Last.Sign() <= 0 {
		return fmt.Errorf("ticker %s: last price must be positive, got %s", t.Symbol, t.Last)
	}
	return nil
}

// Balance is a snapshot of one asset's balance on the exchange.
type Balance struct {
	Asset string
	Free  decimal.Decimal
	Used  decimal.Decimal
	Total decimal.Decimal
}

// Validate checks balance consistency.
func (b Balance) Validate() error {
	if b.Asset == "" {
		return fmt.Errorf("balance without asset")
	}
	if b.Free.IsNegative() || b.Used.IsNegative() || b.Total.IsNegative() {
		return fmt.Errorf("balance %s: negative amounts (free=%s used=%s total=%s)", b.Asset, b.Free, b.Used, b.Total)
	}
	return nil
}

// Position is a snapshot of an open derivatives position.
type Position struct {
	Symbol           string
	Side             PositionSide
	Contracts        decimal.Decimal
	EntryPrice       decimal.Decimal
	MarkPrice        decimal.Decimal
	LiquidationPrice decimal.Decimal
	Leverage         decimal.Decimal
	Notional         decimal.Decimal
	Collateral       decimal.Decimal
	UnrealizedPnL    decimal.Decimal
	MarginMode       MarginMode
	Hedged           bool
	UpdatedAt        time.Time
}

// Validate checks the required fields of a position.
func (p Position) Validate() error {
	if !ValidSymbol(p.Symbol) {
		return fmt.Errorf("position symbol %q: %w", p.Symbol, ErrInvalidSymbol)
	}
	if p.Side != PositionSideLong && p.Side != PositionSideShort {
		return fmt.Errorf("position %s: invalid side %q", p.Symbol, p.Side)
	}
	if p.Contracts.IsZero() {
		return fmt.Errorf("position %s: zero contracts", p.Symbol)
	}
	if p.EntryPrice.Sign() <= 0 {
		return fmt.Errorf("position %s: entry price must be positive, got %s", p.Symbol, p.EntryPrice)
	}
	return nil
}

// Order is a snapshot of an order as acknowledged by the exchange.
type Order struct {
	ID            string
	ClientOrderID string
	Symbol        string
	Side          Side
	Type          OrderType
	Price         decimal.Decimal
	StopPrice     decimal.Decimal // trigger price, zero for plain orders
	Amount        decimal.Decimal
	Status        OrderStatus
	CreatedAt     time.Time
}

// Validate checks the required fields of an order snapshot.
func (o Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("order without id")
	}
	if !ValidSymbol(o.Symbol) {
		return fmt.Errorf("order symbol %q: %w", o.Symbol, ErrInvalidSymbol)
	}
	return nil
}

// OrderRequest carries the parameters for placing an order.
type OrderRequest struct {
	Symbol     string
	Side       Side
	Type       OrderType
	Amount     decimal.Decimal
	Price      decimal.Decimal // required for limit orders
	StopPrice  decimal.Decimal // required for stop and take-profit orders
	ReduceOnly bool
	MarginMode MarginMode
}

// Validate checks the request before it is sent to the exchange.
func (r OrderRequest) Validate() error {
	if !ValidSymbol(r.Symbol) {
		return fmt.Errorf("order symbol %q: %w", r.Symbol, ErrInvalidSymbol)
	}
	if r.Side != SideBuy && r.Side != SideSell {
		return fmt.Errorf("order %s: invalid side %q", r.Symbol, r.Side)
	}
	if r.Amount.Sign() <= 0 {
		return fmt.Errorf("order %s: amount must be positive, got %s", r.Symbol, r.Amount)
	}
	switch r.Type {
	case OrderTypeLimit:
		if r.Price.Sign() <= 0 {
			return fmt.Errorf("limit order %s: price must be positive, got %s", r.Symbol, r.Price)
		}
	case OrderTypeStopMarket, OrderTypeTakeProfitMarket:
		if r.StopPrice.Sign() <= 0 {
			return fmt.Errorf("%s order %s: stop price must be positive, got %s", r.Type, r.Symbol, r.StopPrice)
		}
	case OrderTypeMarket:
	default:
		return fmt.Errorf("order %s: invalid type %q", r.Symbol, r.Type)
	}
	return nil
}

// Market holds instrument metadata: identification, precisions and limits.
// Optional limits are zero when the exchange does not publish them.
type Market struct {
	Symbol          string
	Base            string
	Quote           string
	ContractSize    decimal.Decimal
	PricePrecision  int32
	AmountPrecision int32
	MinAmount       decimal.Decimal
	MaxAmount       decimal.Decimal
	MinCost         decimal.Decimal
	MinPrice        decimal.Decimal
	MaxPrice        decimal.Decimal
}

// Validate checks the required fields of an instrument.
func (m Market) Validate() error {
	if !ValidSymbol(m.Symbol) {
		return fmt.Errorf("market symbol %q: %w", m.Symbol, ErrInvalidSymbol)
	}
	if m.PricePrecision < 0 || m.AmountPrecision < 0 {
		return fmt.Errorf("market %s: negative precision", m.Symbol)
	}
	return nil
}

// PriceToPrecision rounds a price down to the instrument's price precision.
func (m Market) PriceToPrecision(price decimal.Decimal) decimal.Decimal {
	return price.Truncate(m.PricePrecision)
}

// AmountToPrecision rounds an amount down to the instrument's amount
// precision.
func (m Market) AmountToPrecision(amount decimal.Decimal) decimal.Decimal {
	return amount.Truncate(m.AmountPrecision)
}

// FundingRate is the predicted funding rate of a perpetual instrument.
type FundingRate struct {
	Symbol      string
	Exchange    string
	Rate        decimal.Decimal
	FundingTime time.Time
}

// Validate checks the required fields of a funding rate.
func (f FundingRate) Validate() error {
	if !ValidSymbol(f.Symbol) {
		return fmt.Errorf("funding rate symbol %q: %w", f.Symbol, ErrInvalidSymbol)
	}
	if f.FundingTime.IsZero() {
		return fmt.Errorf("funding rate %s: missing funding time", f.Symbol)
	}
	return nil
}

// Fee is one line of the fee breakdown of a closed position.
type Fee struct {
	Type     string // maker, taker or other
	Currency string
	Cost     decimal.Decimal // negative values are charges
}

// ClosedPositionReport aggregates the fills, funding and fees of one closed
// position cycle (open to flat).
type ClosedPositionReport struct {
	Exchange      string
	Symbol        string
	Side          PositionSide
	Contracts     decimal.Decimal
	OpenedAt      time.Time
	ClosedAt      time.Time
	EntryPriceAvg decimal.Decimal
	ExitPriceAvg  decimal.Decimal
	RealizedPnL   decimal.Decimal
	FundingIncome decimal.Decimal
	FeesTotal     decimal.Decimal
	Fees          []Fee
}

// Validate checks the required fields of a closed-position report.
func (r ClosedPositionReport) Validate() error {
	if !ValidSymbol(r.Symbol) {
		return fmt.Errorf("report symbol %q: %w", r.Symbol, ErrInvalidSymbol)
	}
	if r.Contracts.Sign() <= 0 {
		return fmt.Errorf("report %s: contracts must be positive, got %s", r.Symbol, r.Contracts)
	}
	if r.ClosedAt.Before(r.OpenedAt) {
		return fmt.Errorf("report %s: closed before opened", r.Symbol)
	}
	return nil
}
