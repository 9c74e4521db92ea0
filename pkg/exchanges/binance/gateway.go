// Package binance implements the gateway for Binance USDT-margined
// perpetual futures, including funding rates, closed-position reporting and
// ticker streaming.
package binance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/samber/lo"

	"github.com/veiloq/cex-sdk/pkg/exchanges"
	"github.com/veiloq/cex-sdk/pkg/exchanges/interfaces"
	"github.com/veiloq/cex-sdk/pkg/logging"
	"github.com/veiloq/cex-sdk/pkg/websocket"
)

const exchangeName = "binance"

func init() {
	exchanges.Register(exchangeName, func(config interfaces.ClientConfig) (interfaces.Gateway, error) {
		return NewGateway(config)
	})
}

// Gateway talks to the Binance USDT-margined futures API.
type Gateway struct {
	client  *futures.Client
	logger  logging.Logger
	testnet bool

	streamMu sync.Mutex
	stream   websocket.Stream
}

// NewGateway builds a gateway from the client configuration. Only the swap
// account type is supported; spot and dated futures use different endpoints.
func NewGateway(config interfaces.ClientConfig) (*Gateway, error) {
	config = config.WithDefaults()
	if config.AccountType != interfaces.AccountTypeSwap {
		return nil, fmt.Errorf("binance: account type %q: %w", config.AccountType, interfaces.ErrNotSupported)
	}

	// The sandbox switch is package state in the underlying library, so it
	// has to be flipped before the client is constructed.
	futures.UseTestnet = config.Testnet
	client := futures.NewClient(config.APIKey, config.APISecret)

	return &Gateway{
		client:  client,
		logger:  config.Logger.WithFields(logging.String("exchange", exchangeName)),
		testnet: config.Testnet,
	}, nil
}

// Name implements interfaces.Gateway.
func (g *Gateway) Name() string { return exchangeName }

// LoadMarkets implements interfaces.Gateway. Only actively trading
// USDT-settled perpetuals are reported.
func (g *Gateway) LoadMarkets(ctx context.Context) (map[string]interfaces.Market, error) {
	info, err := g.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, err
	}

	perpetuals := lo.Filter(info.Symbols, func(s futures.Symbol, _ int) bool {
		return s.QuoteAsset == "USDT" &&
			s.ContractType == "PERPETUAL" &&
			s.Status == "TRADING"
	})

	markets := make(map[string]interfaces.Market, len(perpetuals))
	for _, s := range perpetuals {
		market, err := toMarket(s)
		if err != nil {
			return nil, err
		}
		markets[market.Symbol] = market
	}
	return markets, nil
}

// FetchTicker implements interfaces.Gateway.
func (g *Gateway) FetchTicker(ctx context.Context, symbol string) (interfaces.Ticker, error) {
	stats, err := g.client.NewListPriceChangeStatsService().Symbol(nativeSymbol(symbol)).Do(ctx)
	if err != nil {
		return interfaces.Ticker{}, err
	}
	if len(stats) == 0 {
		return interfaces.Ticker{}, fmt.Errorf("no ticker for %q: %w", symbol, interfaces.ErrInvalidSymbol)
	}
	return toTicker(stats[0])
}

// FetchBalance implements interfaces.Gateway. Assets the account never held
// are reported as a zero balance.
func (g *Gateway) FetchBalance(ctx context.Context, asset string) (interfaces.Balance, error) {
	balances, err := g.client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return interfaces.Balance{}, err
	}
	entry, found := lo.Find(balances, func(b *futures.Balance) bool {
		return b.Asset == asset
	})
	if !found {
		return interfaces.Balance{Asset: asset}, nil
	}
	return toBalance(entry)
}

// FetchPositions implements interfaces.Gateway.
func (g *Gateway) FetchPositions(ctx context.Context, symbols []string) ([]interfaces.Position, error) {
	var risks []*futures.PositionRisk
	if len(symbols) == 0 {
		var err error
		risks, err = g.client.NewGetPositionRiskService().Do(ctx)
		if err != nil {
			return nil, err
		}
	} else {
		for _, symbol := range symbols {
			rs, err := g.client.NewGetPositionRiskService().Symbol(nativeSymbol(symbol)).Do(ctx)
			if err != nil {
				return nil, err
			}
			risks = append(risks, rs...)
		}
	}

	positions := make([]interfaces.Position, 0, len(risks))
	for _, r := range risks {
		p, err := toPosition(r)
		if err != nil {
			return nil, err
		}
		// Binance reports flat symbols with a zero position amount.
		if p.Contracts.IsZero() {
			continue
		}
		positions = append(positions, p)
	}
	return positions, nil
}

// CreateOrder implements interfaces.Gateway.
func (g *Gateway) CreateOrder(ctx context.Context, req interfaces.OrderRequest) (interfaces.Order, error) {
	service := g.client.NewCreateOrderService().
		Symbol(nativeSymbol(req.Symbol)).
		Side(toOrderSide(req.Side)).
		Type(toOrderType(req.Type)).
		Quantity(req.Amount.String())

	switch req.Type {
	case interfaces.OrderTypeLimit:
		service = service.Price(req.Price.String()).TimeInForce(futures.TimeInForceTypeGTC)
	case interfaces.OrderTypeStopMarket, interfaces.OrderTypeTakeProfitMarket:
		service = service.StopPrice(req.StopPrice.String())
	}
	if req.ReduceOnly {
		service = service.ReduceOnly(true)
	}

	res, err := service.Do(ctx)
	if err != nil {
		return interfaces.Order{}, err
	}
	return toOrder(res, req), nil
}

// CancelOrder implements interfaces.Gateway.
func (g *Gateway) CancelOrder(ctx context.Context, symbol, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("order id %q: %w", orderID, err)
	}
	_, err = g.client.NewCancelOrderService().Symbol(nativeSymbol(symbol)).OrderID(id).Do(ctx)
	return err
}

// FetchTriggerOrders implements interfaces.TriggerOrderManager. Only orders
// resting on the trigger engine are reported; book orders are filtered out.
func (g *Gateway) FetchTriggerOrders(ctx context.Context, symbol string) ([]interfaces.Order, error) {
	open, err := g.client.NewListOpenOrdersService().Symbol(nativeSymbol(symbol)).Do(ctx)
	if err != nil {
		return nil, err
	}
	pending := lo.Filter(open, func(o *futures.Order, _ int) bool {
		return isTriggerOrder(o.Type)
	})

	orders := make([]interfaces.Order, 0, len(pending))
	for _, o := range pending {
		order, err := toOpenOrder(o)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// CancelTriggerOrders implements interfaces.TriggerOrderManager.
func (g *Gateway) CancelTriggerOrders(ctx context.Context, symbol string) ([]string, error) {
	orders, err := g.FetchTriggerOrders(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		id, err := strconv.ParseInt(o.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("order id %q: %w", o.ID, err)
		}
		ids = append(ids, id)
	}

	// The batch cancel endpoint takes at most 10 ids per request.
	for _, chunk := range lo.Chunk(ids, 10) {
		_, err := g.client.NewCancelMultipleOrdersService().
			Symbol(nativeSymbol(symbol)).
			OrderIDList(chunk).
			Do(ctx)
		if err != nil {
			return nil, err
		}
	}

	return lo.Map(orders, func(o interfaces.Order, _ int) string { return o.ID }), nil
}

// FetchFundingRate implements interfaces.FundingRateProvider.
func (g *Gateway) FetchFundingRate(ctx context.Context, symbol string) (interfaces.FundingRate, error) {
	indexes, err := g.client.NewPremiumIndexService().Symbol(nativeSymbol(symbol)).Do(ctx)
	if err != nil {
		return interfaces.FundingRate{}, err
	}
	if len(indexes) == 0 {
		return interfaces.FundingRate{}, fmt.Errorf("no funding data for %q: %w", symbol, interfaces.ErrInvalidSymbol)
	}
	return toFundingRate(indexes[0])
}

// FetchFundingRates implements interfaces.FundingRateProvider. Instruments
// without a scheduled funding time, e.g. delisting ones, are skipped.
func (g *Gateway) FetchFundingRates(ctx context.Context) ([]interfaces.FundingRate, error) {
	indexes, err := g.client.NewPremiumIndexService().Do(ctx)
	if err != nil {
		return nil, err
	}

	rates := make([]interfaces.FundingRate, 0, len(indexes))
	for _, index := range indexes {
		if index.NextFundingTime == 0 {
			continue
		}
		rate, err := toFundingRate(index)
		if err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	return rates, nil
}

// SetLeverage implements interfaces.AccountConfigurer.
func (g *Gateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := g.client.NewChangeLeverageService().
		Symbol(nativeSymbol(symbol)).
		Leverage(leverage).
		Do(ctx)
	return err
}

// SetMarginMode implements interfaces.AccountConfigurer. Setting the mode
// the symbol already has is not an error.
func (g *Gateway) SetMarginMode(ctx context.Context, symbol string, mode interfaces.MarginMode) error {
	marginType := futures.MarginTypeCrossed
	if mode == interfaces.MarginModeIsolated {
		marginType = futures.MarginTypeIsolated
	}
	err := g.client.NewChangeMarginTypeService().
		Symbol(nativeSymbol(symbol)).
		MarginType(marginType).
		Do(ctx)
	if isAPICode(err, -4046) { // no need to change margin type
		return nil
	}
	return err
}

// SetPositionMode implements interfaces.AccountConfigurer. Setting the mode
// the account already uses is not an error.
func (g *Gateway) SetPositionMode(ctx context.Context, hedged bool) error {
	err := g.client.NewChangePositionModeService().DualSide(hedged).Do(ctx)
	if isAPICode(err, -4059) { // no need to change position side
		return nil
	}
	return err
}

// Close implements interfaces.Gateway. The REST client is stateless; only
// an open market data stream needs shutting down.
func (g *Gateway) Close() error {
	g.streamMu.Lock()
	defer g.streamMu.Unlock()
	if g.stream == nil {
		return nil
	}
	err := g.stream.Close()
	g.stream = nil
	return err
}

func isAPICode(err error, code int64) bool {
	var apiErr *common.APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
