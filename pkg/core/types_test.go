package core

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSide(t *testing.T) {
	s, ok := ParseSide("BUY")
	require.True(t, ok)
	assert.Equal(t, SideBuy, s)

	s, ok = ParseSide("sell")
	require.True(t, ok)
	assert.Equal(t, SideSell, s)

	_, ok = ParseSide("HOLD")
	assert.False(t, ok)
}

func TestSide_JSONRoundTrip(t *testing.T) {
	data, err := sonic.Marshal(SideSell)
	require.NoError(t, err)
	assert.Equal(t, `"SELL"`, string(data))

	var s Side
	require.NoError(t, sonic.Unmarshal([]byte(`"buy"`), &s))
	assert.Equal(t, SideBuy, s)
}

func TestParseTimeInForce(t *testing.T) {
	tif, ok := ParseTimeInForce("ioc")
	require.True(t, ok)
	assert.Equal(t, IOC, tif)

	_, ok = ParseTimeInForce("GTD")
	assert.False(t, ok)
}

func TestOrderStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusNew.IsTerminal())
	assert.False(t, StatusPartiallyFilled.IsTerminal())
	assert.True(t, StatusFilled.IsTerminal())
	assert.True(t, StatusCanceled.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
	assert.True(t, StatusExpired.IsTerminal())
}

func TestCredentials_NeverMarshaled(t *testing.T) {
	cfg := DefaultConfig().WithCredentials(&Credentials{
		APIKey:    "top",
		SecretKey: "secret",
	})

	data, err := sonic.Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "top")
	assert.NotContains(t, string(data), "secret")
}
