// Package websocket provides the streaming transport used by exchange
// gateways for market data subscriptions. It handles dialing, heartbeats,
// automatic reconnection and per-stream message routing; gateways supply the
// exchange-specific subscribe frames and payload decoding.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"github.com/gorilla/websocket"

	"github.com/veiloq/cex-sdk/pkg/logging"
)

// MessageHandler receives the raw frames routed to one stream.
type MessageHandler func(message []byte)

// TopicFunc extracts the routing key from a raw frame. Returning an empty
// string drops the frame.
type TopicFunc func(message []byte) string

// Stream manages one websocket connection with multiplexed subscriptions.
type Stream interface {
	// Connect establishes the connection and starts the read loop.
	Connect(ctx context.Context) error

	// Close cleanly shuts the connection down. Safe to call twice.
	Close() error

	// Subscribe routes frames with the given topic to handler.
	Subscribe(topic string, handler MessageHandler) error

	// Unsubscribe removes the handler for a topic.
	Unsubscribe(topic string) error

	// Send writes a control frame, marshalling non-[]byte values as JSON.
	Send(message interface{}) error

	// IsConnected reports whether the connection is up.
	IsConnected() bool
}

// Config holds the connection parameters for a stream.
type Config struct {
	URL               string
	HeartbeatInterval time.Duration
	ReconnectInterval time.Duration
	MaxRetries        int

	// Topic extracts the routing key from incoming frames. Defaults to
	// reading the top-level "stream" field, the combined-stream envelope
	// used by Binance.
	Topic TopicFunc

	// OnReconnect runs after every successful reconnect, before handlers
	// receive frames again. Gateways use it to resend subscribe frames.
	OnReconnect func(Stream) error

	Logger logging.Logger
}

// Metrics holds connection and frame statistics.
type Metrics struct {
	ConnectedTime  time.Time
	MessageCount   int64
	ReconnectCount int64
	ErrorCount     int64
}

type stream struct {
	config Config
	conn   *websocket.Conn

	handlers   map[string]MessageHandler
	handlersMu sync.RWMutex
	writeMu    sync.Mutex

	connected atomic.Bool
	done      chan struct{}
	doneMu    sync.Mutex
	closed    bool
	stopped   bool // set by Close, suppresses reconnection

	reconnectMu  sync.Mutex
	reconnecting bool

	metrics   Metrics
	metricsMu sync.RWMutex

	logger logging.Logger
}

// NewStream creates a stream with the given configuration. Zero durations
// fall back to sensible defaults.
func NewStream(config Config) Stream {
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = 20 * time.Second
	}
	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 5
	}
	if config.Topic == nil {
		config.Topic = combinedStreamTopic
	}
	if config.Logger == nil {
		config.Logger = logging.NewNopLogger()
	}
	return &stream{
		config:   config,
		handlers: make(map[string]MessageHandler),
		logger:   config.Logger.WithFields(logging.String("url", config.URL)),
	}
}

// combinedStreamTopic reads the "stream" envelope field of combined-stream
// frames.
func combinedStreamTopic(message []byte) string {
	var envelope struct {
		Stream string `json:"stream"`
	}
	if err := json.Unmarshal(message, &envelope); err != nil {
		return ""
	}
	return envelope.Stream
}

// GetMetrics returns a snapshot of the connection statistics.
func (s *stream) GetMetrics() Metrics {
	s.metricsMu.RLock()
	defer s.metricsMu.RUnlock()
	return s.metrics
}

func (s *stream) Connect(ctx context.Context) error {
	s.reconnectMu.Lock()
	defer s.reconnectMu.Unlock()

	if s.connected.Load() {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("connect: %w", ctx.Err())
	}

	s.logger.Debug("dialing websocket",
		logging.Duration("heartbeat", s.config.HeartbeatInterval),
		logging.Duration("reconnect", s.config.ReconnectInterval),
	)

	var lastErr error
	for attempt := 1; attempt <= s.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		conn, _, err := dialer.DialContext(ctx, s.config.URL, nil)
		if err != nil {
			lastErr = err
			s.countError()
			s.logger.Warn("dial failed",
				logging.Int("attempt", attempt),
				logging.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.config.ReconnectInterval):
				continue
			}
		}

		s.conn = conn
		s.connected.Store(true)
		s.metricsMu.Lock()
		s.metrics.ConnectedTime = time.Now()
		s.metricsMu.Unlock()

		s.doneMu.Lock()
		s.done = make(chan struct{})
		s.closed = false
		s.stopped = false
		s.doneMu.Unlock()

		go s.readPump(ctx)
		go s.heartbeat()
		go func() {
			select {
			case <-ctx.Done():
				s.logger.Info("context cancelled, closing stream")
				_ = s.Close()
			case <-s.done:
			}
		}()

		s.logger.Info("websocket connected")
		if s.config.OnReconnect != nil {
			if err := s.config.OnReconnect(s); err != nil {
				s.logger.Warn("reconnect hook failed", logging.Error(err))
			}
		}
		return nil
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (s *stream) readPump(ctx context.Context) {
	defer func() {
		s.connected.Store(false)
		if s.conn != nil {
			_ = s.conn.Close()
		}

		s.doneMu.Lock()
		if !s.closed {
			close(s.done)
			s.closed = true
		}
		s.doneMu.Unlock()

		s.doneMu.Lock()
		stopped := s.stopped
		s.doneMu.Unlock()
		if !stopped && !s.reconnecting && ctx.Err() == nil {
			go s.reconnect()
		}
	}()

	readDeadline := s.config.HeartbeatInterval * 3
	_ = s.conn.SetReadDeadline(time.Now().Add(readDeadline))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_ = s.conn.SetReadDeadline(time.Now().Add(readDeadline))
			_, message, err := s.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					s.logger.Warn("read error", logging.Error(err))
					s.countError()
				}
				return
			}

			s.metricsMu.Lock()
			s.metrics.MessageCount++
			s.metricsMu.Unlock()

			s.dispatch(message)
		}
	}
}

// dispatch routes one frame to its subscriber. Handlers run on the read
// goroutine; slow consumers should hand off to their own channel.
func (s *stream) dispatch(message []byte) {
	topic := s.config.Topic(message)
	if topic == "" {
		return
	}

	s.handlersMu.RLock()
	handler, ok := s.handlers[topic]
	s.handlersMu.RUnlock()
	if !ok {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panic recovered",
				logging.String("topic", topic),
				logging.String("panic", fmt.Sprintf("%v", r)),
			)
		}
	}()
	handler(message)
}

func (s *stream) heartbeat() {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.writeMu.Lock()
			if !s.connected.Load() {
				s.writeMu.Unlock()
				return
			}
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *stream) reconnect() {
	s.reconnectMu.Lock()
	if s.reconnecting {
		s.reconnectMu.Unlock()
		return
	}
	s.reconnecting = true
	s.reconnectMu.Unlock()

	defer func() {
		s.reconnectMu.Lock()
		s.reconnecting = false
		s.reconnectMu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	s.metricsMu.Lock()
	s.metrics.ReconnectCount++
	s.metricsMu.Unlock()

	err := retry.Do(
		func() error {
			if ctx.Err() != nil {
				return retry.Unrecoverable(ctx.Err())
			}
			return s.Connect(ctx)
		},
		retry.Attempts(uint(s.config.MaxRetries)),
		retry.Delay(s.config.ReconnectInterval),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("reconnect attempt failed",
				logging.Int("attempt", int(n+1)),
				logging.Error(err))
		}),
	)
	if err != nil {
		s.logger.Error("reconnect failed", logging.Error(err))
		s.countError()
		return
	}
	s.logger.Info("reconnected")
}

func (s *stream) Subscribe(topic string, handler MessageHandler) error {
	if topic == "" {
		return fmt.Errorf("subscribe: empty topic")
	}
	if handler == nil {
		return fmt.Errorf("subscribe: nil handler for %q", topic)
	}
	s.handlersMu.Lock()
	s.handlers[topic] = handler
	s.handlersMu.Unlock()
	return nil
}

func (s *stream) Unsubscribe(topic string) error {
	s.handlersMu.Lock()
	delete(s.handlers, topic)
	s.handlersMu.Unlock()
	return nil
}

func (s *stream) Send(message interface{}) error {
	if !s.connected.Load() {
		return fmt.Errorf("websocket not connected")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if data, ok := message.([]byte); ok {
		return s.conn.WriteMessage(websocket.TextMessage, data)
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *stream) IsConnected() bool {
	return s.connected.Load()
}

func (s *stream) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.doneMu.Lock()
	s.stopped = true
	wasClosed := s.closed || s.done == nil
	if !wasClosed {
		close(s.done)
		s.closed = true
	}
	s.doneMu.Unlock()

	if wasClosed {
		return nil
	}

	s.connected.Store(false)
	if s.conn != nil {
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closed connection"))
		time.Sleep(100 * time.Millisecond)

		err := s.conn.Close()
		if err != nil && !strings.Contains(err.Error(), "use of closed network connection") {
			return err
		}
	}
	return nil
}

func (s *stream) countError() {
	s.metricsMu.Lock()
	s.metrics.ErrorCount++
	s.metricsMu.Unlock()
}
