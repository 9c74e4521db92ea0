package binance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veiloq/cex-sdk/pkg/exchanges/interfaces"
	"github.com/veiloq/cex-sdk/pkg/logging"
)

func TestTickerFrameHandler(t *testing.T) {
	g := &Gateway{logger: logging.NewNopLogger()}
	var got []interfaces.Ticker
	handle := g.tickerFrameHandler(func(tk interfaces.Ticker) { got = append(got, tk) })

	handle([]byte(`{"stream":"btcusdt@ticker","data":{"e":"24hrTicker","E":1700000000000,"s":"BTCUSDT","c":"64250.10","v":"98021.432"}}`))
	require.Len(t, got, 1)
	assert.Equal(t, "BTC/USDT:USDT", got[0].Symbol)

	// Frames that do not decode and frames that decode but fail validation
	// are both dropped.
	handle([]byte(`{"stream":"x","data":{"c":"bad"}}`))
	handle([]byte(`{"stream":"btcusdt@ticker","data":{"s":"BTCUSDT","c":"0","v":"1","E":1700000000000}}`))
	assert.Len(t, got, 1)
}
