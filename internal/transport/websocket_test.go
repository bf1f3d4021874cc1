package transport

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestConnState_String(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "closed", StateClosed.String())
}

func TestBackoffDelay(t *testing.T) {
	base := time.Second
	max := 30 * time.Second

	assert.Equal(t, time.Second, backoffDelay(0, base, max))
	assert.Equal(t, 2*time.Second, backoffDelay(1, base, max))
	assert.Equal(t, 4*time.Second, backoffDelay(2, base, max))
	assert.Equal(t, max, backoffDelay(10, base, max))
	assert.Equal(t, max, backoffDelay(100, base, max), "large attempts must not overflow")
}

func TestWSClient_DefaultsApplied(t *testing.T) {
	c := NewWSClient(WSConfig{URL: "wss://example.com/ws"}, zerolog.Nop())

	assert.Equal(t, time.Second, c.config.ReconnectBaseWait)
	assert.Equal(t, 30*time.Second, c.config.ReconnectMaxWait)
	assert.Equal(t, 3*time.Minute, c.config.PingInterval)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestWSClient_WriteWhileDisconnected(t *testing.T) {
	c := NewWSClient(WSConfig{URL: "wss://example.com/ws"}, zerolog.Nop())

	err := c.WriteMessage([]byte("hello"))
	assert.Error(t, err)

	err = c.SendJSON(map[string]string{"method": "SUBSCRIBE"})
	assert.Error(t, err)
}

func TestWSClient_CloseIsIdempotent(t *testing.T) {
	c := NewWSClient(WSConfig{URL: "wss://example.com/ws"}, zerolog.Nop())

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())
}
