package bybit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var streamJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// ConnState is the lifecycle state of a StreamConn.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed // retry budget exhausted, terminal
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// BackoffConfig bounds the reconnect schedule.
type BackoffConfig struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

// Delay returns the reconnect delay for the given attempt (1-based):
// min(Base * 2^(attempt-1), Max).
func (b BackoffConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

const pingInterval = 20 * time.Second

// StreamConn owns exactly one public stream subscription: one topic on one
// websocket. Inbound frames are decoded into StreamEnvelope and handed to the
// caller's handler; malformed frames are logged and dropped without touching
// the connection. Transport errors trigger exponential-backoff reconnection
// until the retry budget runs out, at which point the connection is terminal
// and the owner is notified through onState.
type StreamConn struct {
	url     string
	topic   string
	backoff BackoffConfig
	log     *zap.Logger

	handler func(StreamEnvelope)
	onState func(topic string, state ConnState, err error)

	state int32 // atomic ConnState

	mu      sync.Mutex
	conn    *websocket.Conn
	timer   *time.Timer // pending reconnect, nil when none
	attempt int
	closed  bool
	gen     uint64 // connection generation; stale pumps exit on mismatch
}

// NewStreamConn creates an unconnected stream for one topic.
func NewStreamConn(url, topic string, backoff BackoffConfig, handler func(StreamEnvelope), logger *zap.Logger) *StreamConn {
	return &StreamConn{
		url:     url,
		topic:   topic,
		backoff: backoff,
		handler: handler,
		log:     logger,
	}
}

// SetStateHandler registers the owner's state callback. Must be called before
// Connect.
func (c *StreamConn) SetStateHandler(h func(topic string, state ConnState, err error)) {
	c.onState = h
}

// Topic returns the subscribed topic.
func (c *StreamConn) Topic() string { return c.topic }

// State returns the current connection state.
func (c *StreamConn) State() ConnState {
	return ConnState(atomic.LoadInt32(&c.state))
}

// IsConnected reports whether the stream is currently connected.
func (c *StreamConn) IsConnected() bool {
	return c.State() == StateConnected
}

// Connect opens the transport and subscribes to the topic. It is idempotent:
// a stream that is already connecting or connected is left alone.
func (c *StreamConn) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("stream %s: already closed", c.topic)
	}
	switch c.State() {
	case StateConnecting, StateConnected:
		c.mu.Unlock()
		return nil
	case StateFailed:
		c.mu.Unlock()
		return fmt.Errorf("stream %s: terminally failed", c.topic)
	}
	c.setState(StateConnecting, nil)
	c.mu.Unlock()

	if err := c.dial(); err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return err
		}
		c.setState(StateDisconnected, err)
		return err
	}
	return nil
}

// dial opens the websocket, subscribes, and starts the pumps. On success the
// retry counter resets and any pending reconnect timer is cancelled.
func (c *StreamConn) dial() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	subMsg := map[string]interface{}{
		"op":   "subscribe",
		"args": []string{c.topic},
	}
	if err := conn.WriteJSON(subMsg); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe %s: %w", c.topic, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("stream %s: closed during dial", c.topic)
	}
	c.conn = conn
	c.attempt = 0
	c.stopTimerLocked()
	c.gen++
	gen := c.gen
	c.setState(StateConnected, nil)
	c.mu.Unlock()

	c.log.Info("stream connected", zap.String("topic", c.topic))

	go c.readPump(conn, gen)
	go c.pingPump(conn, gen)
	return nil
}

// readPump reads frames until the connection drops.
func (c *StreamConn) readPump(conn *websocket.Conn, gen uint64) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(gen, err)
			return
		}

		var env StreamEnvelope
		if err := streamJSON.Unmarshal(msg, &env); err != nil {
			// A malformed message is not fatal; drop it and keep reading.
			c.log.Warn("stream: dropping malformed message",
				zap.String("topic", c.topic), zap.Error(err))
			continue
		}
		if env.Op != "" {
			if env.Op == "subscribe" && !env.Success {
				c.log.Warn("stream: subscription rejected",
					zap.String("topic", c.topic), zap.String("ret_msg", env.RetMsg))
			}
			continue // control frame, not market data
		}
		if c.handler != nil {
			c.handler(env)
		}
	}
}

// pingPump keeps the connection alive; Bybit drops idle public streams.
func (c *StreamConn) pingPump(conn *websocket.Conn, gen uint64) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		stale := c.closed || gen != c.gen
		c.mu.Unlock()
		if stale {
			return
		}
		if err := conn.WriteJSON(map[string]string{"op": "ping"}); err != nil {
			c.handleDisconnect(gen, err)
			return
		}
	}
}

// handleDisconnect reacts to a transport error or abnormal close by
// scheduling a reconnect. Caller-initiated closes never reconnect.
func (c *StreamConn) handleDisconnect(gen uint64, err error) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return // explicit close, or an older pump waking up late
	}
	// Both pumps watch the same connection and report the same death; bumping
	// the generation here marks it consumed so the second report goes stale
	// and one drop costs exactly one attempt.
	c.gen++
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.scheduleReconnectLocked(err)
	c.mu.Unlock()
}

// scheduleReconnectLocked arms the backoff timer for the next attempt, or
// transitions to the terminal failed state when the budget is spent.
// Caller holds c.mu.
func (c *StreamConn) scheduleReconnectLocked(cause error) {
	c.attempt++
	if c.backoff.MaxAttempts > 0 && c.attempt > c.backoff.MaxAttempts {
		c.log.Error("stream: retry budget exhausted",
			zap.String("topic", c.topic),
			zap.Int("attempts", c.backoff.MaxAttempts),
			zap.Error(cause))
		c.setState(StateFailed, cause)
		return
	}

	delay := c.backoff.Delay(c.attempt)
	c.setState(StateReconnecting, cause)
	c.log.Warn("stream: reconnecting",
		zap.String("topic", c.topic),
		zap.Duration("delay", delay),
		zap.Int("attempt", c.attempt),
		zap.Error(cause))

	c.stopTimerLocked()
	c.timer = time.AfterFunc(delay, c.redial)
}

// redial is the timer callback for one reconnect attempt.
func (c *StreamConn) redial() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.setState(StateConnecting, nil)
	c.mu.Unlock()

	if err := c.dial(); err != nil {
		c.mu.Lock()
		if !c.closed {
			c.scheduleReconnectLocked(err)
		}
		c.mu.Unlock()
	}
}

// Close shuts the stream down for good: cancels any pending reconnect, sends
// a normal-closure frame, and resets retry state. A closed stream never
// reconnects.
func (c *StreamConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.stopTimerLocked()
	c.attempt = 0
	c.gen++
	c.setState(StateDisconnected, nil)

	if c.conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// stopTimerLocked cancels a pending reconnect timer. Caller holds c.mu.
func (c *StreamConn) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// setState updates the state and notifies the owner. Safe with or without
// c.mu held since the state itself is atomic.
func (c *StreamConn) setState(s ConnState, err error) {
	atomic.StoreInt32(&c.state, int32(s))
	if c.onState != nil {
		c.onState(c.topic, s, err)
	}
}
