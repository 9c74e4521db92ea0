package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/veiloq/cex-sdk/pkg/exchanges/interfaces"
	"github.com/veiloq/cex-sdk/pkg/logging"
	"github.com/veiloq/cex-sdk/pkg/websocket"
)

const (
	mainnetStreamURL = "wss://fstream.binance.com/stream"
	testnetStreamURL = "wss://stream.binancefuture.com/stream"
)

// tickerEvent is the 24hr ticker payload of the combined stream.
type tickerEvent struct {
	Data struct {
		Symbol    string `json:"s"`
		LastPrice string `json:"c"`
		Volume    string `json:"v"`
		EventTime int64  `json:"E"`
	} `json:"data"`
}

// SubscribeTicker implements interfaces.TickerStreamer. It connects the
// combined market stream and routes 24hr ticker events for the given
// symbols to handler until ctx is cancelled. The method returns once the
// subscription is established.
func (g *Gateway) SubscribeTicker(ctx context.Context, symbols []string, handler func(interfaces.Ticker)) error {
	if len(symbols) == 0 {
		return fmt.Errorf("subscribe ticker: no symbols")
	}

	topics := make([]string, len(symbols))
	for i, symbol := range symbols {
		topics[i] = streamSymbol(symbol) + "@ticker"
	}

	base := mainnetStreamURL
	if g.testnet {
		base = testnetStreamURL
	}
	// Combined streams are requested in the URL; no subscribe frame needed.
	url := base + "?streams=" + strings.Join(topics, "/")

	stream := websocket.NewStream(websocket.Config{
		URL:    url,
		Logger: g.logger,
	})
	for _, topic := range topics {
		if err := stream.Subscribe(topic, g.tickerFrameHandler(handler)); err != nil {
			return err
		}
	}

	g.streamMu.Lock()
	defer g.streamMu.Unlock()
	if g.stream != nil {
		_ = g.stream.Close()
	}
	if err := stream.Connect(ctx); err != nil {
		return err
	}
	g.stream = stream
	return nil
}

// tickerFrameHandler decodes and validates a ticker frame before handing it
// to the subscriber. Frames that do not decode or do not validate are
// dropped, matching the validation the REST paths apply.
func (g *Gateway) tickerFrameHandler(handler func(interfaces.Ticker)) websocket.MessageHandler {
	return func(message []byte) {
		ticker, err := parseTickerEvent(message)
		if err == nil {
			err = ticker.Validate()
		}
		if err != nil {
			g.logger.Warn("drop invalid ticker frame", logging.Error(err))
			return
		}
		handler(ticker)
	}
}

func parseTickerEvent(message []byte) (interfaces.Ticker, error) {
	var event tickerEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return interfaces.Ticker{}, fmt.Errorf("decode ticker frame: %w", err)
	}
	last, err := parseDecimal("last price", event.Data.LastPrice)
	if err != nil {
		return interfaces.Ticker{}, err
	}
	volume, err := parseDecimal("volume", event.Data.Volume)
	if err != nil {
		return interfaces.Ticker{}, err
	}
	return interfaces.Ticker{
		Symbol:    interfaces.NormalizeSymbol(event.Data.Symbol),
		Last:      last,
		Volume24h: volume,
		Time:      time.UnixMilli(event.Data.EventTime),
	}, nil
}
