package binance

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamName(t *testing.T) {
	assert.Equal(t, "btcusdt@miniTicker", streamName("BTC/USDT"))
	assert.Equal(t, "ethusdt@miniTicker", streamName("ethusdt"))
}

func TestStreamClient_HandleMessage_RoutesTickerEvents(t *testing.T) {
	s := NewStreamClient("wss://example.com/ws", zerolog.Nop())

	var got MiniTicker
	s.OnTicker(func(mt MiniTicker) { got = mt })

	s.handleMessage([]byte(`{
		"e": "24hrMiniTicker",
		"E": 1700000000000,
		"s": "BTCUSDT",
		"c": "50000.12",
		"o": "49000.00",
		"h": "51000.00",
		"l": "48500.00",
		"v": "1234.5"
	}`))

	assert.Equal(t, "BTCUSDT", got.Symbol)
	assert.Equal(t, "50000.12", got.Close.String())
	assert.Equal(t, time.UnixMilli(1700000000000), got.EventTime)
}

func TestStreamClient_HandleMessage_IgnoresControlFrames(t *testing.T) {
	s := NewStreamClient("wss://example.com/ws", zerolog.Nop())

	called := false
	s.OnTicker(func(MiniTicker) { called = true })

	s.handleMessage([]byte(`{"result":null,"id":1}`))
	s.handleMessage([]byte(`not json`))

	assert.False(t, called)
}

func TestStreamClient_SubscribeDeduplicates(t *testing.T) {
	s := NewStreamClient("wss://example.com/ws", zerolog.Nop())

	// Disconnected, so the control frame cannot be written.
	err := s.Subscribe("BTCUSDT")
	require.Error(t, err)

	// Already tracked: no frame is attempted, so no error either.
	assert.NoError(t, s.Subscribe("BTCUSDT"))
	assert.NoError(t, s.Subscribe("btc/usdt"))
}

func TestStreamClient_UnsubscribeUnknownSymbolIsNoop(t *testing.T) {
	s := NewStreamClient("wss://example.com/ws", zerolog.Nop())
	assert.NoError(t, s.Unsubscribe("BTCUSDT"))
}
