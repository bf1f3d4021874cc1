// Package transport provides the WebSocket connection layer for market
// streams: dialing, keepalive, and exponential-backoff reconnection on top
// of github.com/lxzan/gws.
package transport

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/lxzan/gws"
	"github.com/rs/zerolog"
)

// ConnState represents the connection lifecycle state.
type ConnState int32

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected ConnState = iota
	// StateConnecting indicates a dial in progress.
	StateConnecting
	// StateConnected indicates an active connection.
	StateConnected
	// StateClosed indicates the client was permanently closed.
	StateClosed
)

// String returns the string representation of the connection state.
func (s ConnState) String() string {
	return [...]string{"disconnected", "connecting", "connected", "closed"}[s]
}

// WSConfig holds configuration for a WebSocket client.
type WSConfig struct {
	// URL is the endpoint to connect to.
	URL string
	// ReconnectEnabled turns on automatic reconnection after a drop.
	ReconnectEnabled bool
	// ReconnectBaseWait is the first reconnect delay; doubles per attempt.
	ReconnectBaseWait time.Duration
	// ReconnectMaxWait caps the reconnect delay.
	ReconnectMaxWait time.Duration
	// PingInterval is the keepalive ping period.
	PingInterval time.Duration
	// PongWait is the grace period for a pong before the deadline trips.
	PongWait time.Duration
}

// MessageHandler receives every text/binary frame from the connection.
type MessageHandler func(data []byte)

// ReconnectHandler runs after each successful reconnect, letting the owner
// replay its subscriptions.
type ReconnectHandler func()

// WSClient manages one WebSocket connection with keepalive and reconnect.
// Register handlers before calling Connect.
type WSClient struct {
	config WSConfig
	logger zerolog.Logger

	state atomic.Int32

	mu          sync.RWMutex
	conn        *gws.Conn
	onMessage   MessageHandler
	onReconnect ReconnectHandler

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type wsEventHandler struct {
	client *WSClient
}

// NewWSClient creates a WebSocket client. Zero-valued timing fields get
// defaults suited to exchange market streams.
func NewWSClient(config WSConfig, logger zerolog.Logger) *WSClient {
	if config.ReconnectBaseWait == 0 {
		config.ReconnectBaseWait = time.Second
	}
	if config.ReconnectMaxWait == 0 {
		config.ReconnectMaxWait = 30 * time.Second
	}
	if config.PingInterval == 0 {
		config.PingInterval = 3 * time.Minute
	}
	if config.PongWait == 0 {
		config.PongWait = 30 * time.Second
	}

	c := &WSClient{
		config:   config,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
	c.state.Store(int32(StateDisconnected))
	return c
}

// OnMessage registers the frame handler.
func (c *WSClient) OnMessage(handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = handler
}

// OnReconnect registers the post-reconnect handler.
func (c *WSClient) OnReconnect(handler ReconnectHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnect = handler
}

// State returns the current connection state.
func (c *WSClient) State() ConnState {
	return ConnState(c.state.Load())
}

// IsConnected reports whether the connection is currently up.
func (c *WSClient) IsConnected() bool {
	return c.State() == StateConnected
}

// Connect dials the configured URL and starts the read and keepalive loops.
func (c *WSClient) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		current := c.State()
		if current == StateConnected {
			return nil
		}
		return fmt.Errorf("invalid state for connect: %s", current)
	}

	if err := c.dial(); err != nil {
		c.state.Store(int32(StateDisconnected))
		return err
	}
	return nil
}

func (c *WSClient) dial() error {
	socket, _, err := gws.NewClient(&wsEventHandler{client: c}, &gws.ClientOption{
		Addr: c.config.URL,
	})
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.config.URL, err)
	}

	c.mu.Lock()
	c.conn = socket
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		socket.ReadLoop()
	}()

	c.wg.Add(1)
	go c.keepalive(socket)

	return nil
}

func (c *WSClient) keepalive(socket *gws.Conn) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			if !c.IsConnected() {
				return
			}
			if err := socket.WritePing(nil); err != nil {
				c.logger.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

// Close tears down the connection permanently; no reconnect follows.
func (c *WSClient) Close() error {
	c.stopOnce.Do(func() { close(c.stopChan) })
	c.state.Store(int32(StateClosed))

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteClose(1000, nil)
	}
	c.wg.Wait()
	return nil
}

// SendJSON marshals v with sonic and writes it as a text frame.
func (c *WSClient) SendJSON(v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return c.WriteMessage(data)
}

// WriteMessage writes a raw text frame.
func (c *WSClient) WriteMessage(data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !c.IsConnected() {
		return fmt.Errorf("websocket not connected")
	}
	return conn.WriteMessage(gws.OpcodeText, data)
}

func (c *WSClient) attemptReconnect() {
	for attempt := 0; ; attempt++ {
		select {
		case <-c.stopChan:
			return
		default:
		}

		wait := backoffDelay(attempt, c.config.ReconnectBaseWait, c.config.ReconnectMaxWait)
		c.logger.Info().
			Int("attempt", attempt+1).
			Dur("wait", wait).
			Msg("websocket reconnecting")

		select {
		case <-c.stopChan:
			return
		case <-time.After(wait):
		}

		if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
			return
		}
		if err := c.dial(); err != nil {
			c.state.Store(int32(StateDisconnected))
			c.logger.Warn().Err(err).Msg("reconnect failed")
			continue
		}
		return
	}
}

// backoffDelay doubles the base per attempt, capped at max.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > max || d <= 0 {
		return max
	}
	return d
}

func (h *wsEventHandler) OnOpen(socket *gws.Conn) {
	h.client.state.Store(int32(StateConnected))
	h.client.logger.Info().Str("url", h.client.config.URL).Msg("websocket connected")
	_ = socket.SetDeadline(time.Now().Add(h.client.config.PingInterval + h.client.config.PongWait))

	h.client.mu.RLock()
	onReconnect := h.client.onReconnect
	h.client.mu.RUnlock()
	if onReconnect != nil {
		go onReconnect()
	}
}

func (h *wsEventHandler) OnClose(socket *gws.Conn, err error) {
	if h.client.State() == StateClosed {
		return
	}
	h.client.state.Store(int32(StateDisconnected))
	h.client.logger.Warn().Err(err).Str("url", h.client.config.URL).Msg("websocket disconnected")

	if h.client.config.ReconnectEnabled {
		select {
		case <-h.client.stopChan:
		default:
			go h.client.attemptReconnect()
		}
	}
}

func (h *wsEventHandler) OnPing(socket *gws.Conn, payload []byte) {
	_ = socket.SetDeadline(time.Now().Add(h.client.config.PingInterval + h.client.config.PongWait))
	_ = socket.WritePong(nil)
}

func (h *wsEventHandler) OnPong(socket *gws.Conn, payload []byte) {
	_ = socket.SetDeadline(time.Now().Add(h.client.config.PingInterval + h.client.config.PongWait))
}

func (h *wsEventHandler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()

	data := message.Bytes()
	if len(data) == 0 {
		return
	}

	h.client.mu.RLock()
	handler := h.client.onMessage
	h.client.mu.RUnlock()

	if handler != nil {
		// Copy: gws recycles the message buffer after Close.
		buf := make([]byte, len(data))
		copy(buf, data)
		handler(buf)
	}
}
