package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newEchoServer upgrades incoming connections and pushes every frame from
// the returned channel to the client.
func newEchoServer(t *testing.T) (*httptest.Server, chan []byte) {
	t.Helper()
	frames := make(chan []byte, 16)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server, frames
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestStreamRoutesCombinedFrames(t *testing.T) {
	server, frames := newEchoServer(t)

	s := NewStream(Config{URL: wsURL(server)})
	received := make(chan []byte, 1)
	require.NoError(t, s.Subscribe("btcusdt@ticker", func(msg []byte) {
		received <- msg
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Connect(ctx))
	assert.True(t, s.IsConnected())

	frames <- []byte(`{"stream":"ethusdt@ticker","data":{}}`)
	frames <- []byte(`{"stream":"btcusdt@ticker","data":{"c":"50000"}}`)

	select {
	case msg := <-received:
		assert.Contains(t, string(msg), "btcusdt@ticker")
	case <-time.After(2 * time.Second):
		t.Fatal("subscribed frame not delivered")
	}
	// The ethusdt frame had no handler and must not arrive here.
	select {
	case msg := <-received:
		t.Fatalf("unexpected frame: %s", msg)
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, s.Close())
}

func TestStreamCloseIdempotent(t *testing.T) {
	server, _ := newEchoServer(t)

	s := NewStream(Config{URL: wsURL(server)})
	// Close before connect is a no-op.
	require.NoError(t, s.Close())

	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.False(t, s.IsConnected())
}

func TestStreamConnectionFlagUnderConcurrency(t *testing.T) {
	server, _ := newEchoServer(t)

	s := NewStream(Config{URL: wsURL(server)})
	require.NoError(t, s.Connect(context.Background()))

	// Readers of the connection flag race against the shutdown path; the
	// race detector flags unsynchronized access here.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			s.IsConnected()
			_ = s.Send([]byte(`{"method":"PING"}`))
		}
	}()

	require.NoError(t, s.Close())
	<-done
	assert.False(t, s.IsConnected())
}

func TestStreamSendRequiresConnection(t *testing.T) {
	s := NewStream(Config{URL: "ws://127.0.0.1:0"})
	assert.Error(t, s.Send(map[string]string{"method": "SUBSCRIBE"}))
}

func TestStreamSubscribeValidation(t *testing.T) {
	s := NewStream(Config{URL: "ws://127.0.0.1:0"})
	assert.Error(t, s.Subscribe("", func([]byte) {}))
	assert.Error(t, s.Subscribe("topic", nil))
	assert.NoError(t, s.Subscribe("topic", func([]byte) {}))
	assert.NoError(t, s.Unsubscribe("topic"))
}
