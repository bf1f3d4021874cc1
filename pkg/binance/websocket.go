package binance

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/apd/v3"
	"github.com/rs/zerolog"

	"binancemcp/internal/transport"
)

// MiniTicker is one 24hr mini-ticker event from the market stream.
type MiniTicker struct {
	Symbol    string
	Close     apd.Decimal
	Open      apd.Decimal
	High      apd.Decimal
	Low       apd.Decimal
	Volume    apd.Decimal
	EventTime time.Time
}

// TickerHandler receives every mini-ticker event for subscribed symbols.
type TickerHandler func(MiniTicker)

// miniTickerEvent is the raw stream payload.
type miniTickerEvent struct {
	EventType string      `json:"e"`
	EventTime int64       `json:"E"`
	Symbol    string      `json:"s"`
	Close     apd.Decimal `json:"c"`
	Open      apd.Decimal `json:"o"`
	High      apd.Decimal `json:"h"`
	Low       apd.Decimal `json:"l"`
	Volume    apd.Decimal `json:"v"`
}

// subscribeFrame is the SUBSCRIBE/UNSUBSCRIBE control message.
type subscribeFrame struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// StreamClient maintains mini-ticker subscriptions over one WebSocket
// connection and replays them after every reconnect.
type StreamClient struct {
	ws     *transport.WSClient
	logger zerolog.Logger

	mu      sync.RWMutex
	streams map[string]struct{}
	handler TickerHandler

	nextID atomic.Int64
}

// NewStreamClient creates a stream client for the given market-stream URL.
func NewStreamClient(wsURL string, logger zerolog.Logger) *StreamClient {
	s := &StreamClient{
		ws: transport.NewWSClient(transport.WSConfig{
			URL:              wsURL,
			ReconnectEnabled: true,
		}, logger),
		logger:  logger.With().Str("component", "market_stream").Logger(),
		streams: make(map[string]struct{}),
	}
	s.ws.OnMessage(s.handleMessage)
	s.ws.OnReconnect(s.resubscribe)
	return s
}

// OnTicker registers the event handler. Call before Connect.
func (s *StreamClient) OnTicker(handler TickerHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Connect dials the stream endpoint.
func (s *StreamClient) Connect(ctx context.Context) error {
	return s.ws.Connect(ctx)
}

// Close tears the connection down permanently.
func (s *StreamClient) Close() error {
	return s.ws.Close()
}

// IsConnected reports whether the stream is up.
func (s *StreamClient) IsConnected() bool {
	return s.ws.IsConnected()
}

// Subscribe adds mini-ticker streams for the given symbols. Subscriptions
// survive reconnects.
func (s *StreamClient) Subscribe(symbols ...string) error {
	streams := make([]string, 0, len(symbols))
	s.mu.Lock()
	for _, sym := range symbols {
		name := streamName(sym)
		if _, ok := s.streams[name]; ok {
			continue
		}
		s.streams[name] = struct{}{}
		streams = append(streams, name)
	}
	s.mu.Unlock()

	if len(streams) == 0 {
		return nil
	}
	return s.ws.SendJSON(subscribeFrame{
		Method: "SUBSCRIBE",
		Params: streams,
		ID:     s.nextID.Add(1),
	})
}

// Unsubscribe removes mini-ticker streams for the given symbols.
func (s *StreamClient) Unsubscribe(symbols ...string) error {
	streams := make([]string, 0, len(symbols))
	s.mu.Lock()
	for _, sym := range symbols {
		name := streamName(sym)
		if _, ok := s.streams[name]; !ok {
			continue
		}
		delete(s.streams, name)
		streams = append(streams, name)
	}
	s.mu.Unlock()

	if len(streams) == 0 {
		return nil
	}
	return s.ws.SendJSON(subscribeFrame{
		Method: "UNSUBSCRIBE",
		Params: streams,
		ID:     s.nextID.Add(1),
	})
}

func (s *StreamClient) resubscribe() {
	s.mu.RLock()
	streams := make([]string, 0, len(s.streams))
	for name := range s.streams {
		streams = append(streams, name)
	}
	s.mu.RUnlock()

	if len(streams) == 0 {
		return
	}
	if err := s.ws.SendJSON(subscribeFrame{
		Method: "SUBSCRIBE",
		Params: streams,
		ID:     s.nextID.Add(1),
	}); err != nil {
		s.logger.Warn().Err(err).Msg("resubscribe failed")
		return
	}
	s.logger.Info().Int("streams", len(streams)).Msg("resubscribed after reconnect")
}

func (s *StreamClient) handleMessage(data []byte) {
	var event miniTickerEvent
	if err := sonic.Unmarshal(data, &event); err != nil {
		s.logger.Debug().Err(err).Msg("unparseable stream message")
		return
	}
	// Subscription acks and other control frames carry no event type.
	if event.EventType != "24hrMiniTicker" {
		return
	}

	s.mu.RLock()
	handler := s.handler
	s.mu.RUnlock()
	if handler == nil {
		return
	}

	handler(MiniTicker{
		Symbol:    event.Symbol,
		Close:     event.Close,
		Open:      event.Open,
		High:      event.High,
		Low:       event.Low,
		Volume:    event.Volume,
		EventTime: time.UnixMilli(event.EventTime),
	})
}

// streamName maps a symbol to its mini-ticker stream: "BTC/USDT" ->
// "btcusdt@miniTicker".
func streamName(symbol string) string {
	return strings.ToLower(formatSymbol(symbol)) + "@miniTicker"
}
