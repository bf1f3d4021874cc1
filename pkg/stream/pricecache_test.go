package stream

import (
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decimal(t *testing.T, s string) apd.Decimal {
	t.Helper()
	var d apd.Decimal
	_, _, err := d.SetString(s)
	require.NoError(t, err)
	return d
}

func TestPriceCache_UpdateAndRead(t *testing.T) {
	c := NewPriceCache(time.Minute)

	c.Update("BTCUSDT", decimal(t, "50000.25"), time.Now())

	price, ok := c.LastPrice("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, "50000.25", price.String())
	assert.Equal(t, 1, c.Len())
}

func TestPriceCache_MissingSymbol(t *testing.T) {
	c := NewPriceCache(time.Minute)

	_, ok := c.LastPrice("ETHUSDT")
	assert.False(t, ok)
}

func TestPriceCache_StalePriceIsAbsent(t *testing.T) {
	c := NewPriceCache(time.Minute)

	base := time.Now()
	c.now = func() time.Time { return base }
	c.Update("BTCUSDT", decimal(t, "50000"), base)

	_, ok := c.LastPrice("BTCUSDT")
	require.True(t, ok)

	c.now = func() time.Time { return base.Add(61 * time.Second) }
	_, ok = c.LastPrice("BTCUSDT")
	assert.False(t, ok, "price past maxAge must not be served")

	// A fresh update revives the symbol.
	c.Update("BTCUSDT", decimal(t, "51000"), base.Add(61*time.Second))
	price, ok := c.LastPrice("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, "51000", price.String())
}

func TestPriceCache_ReturnsCopy(t *testing.T) {
	c := NewPriceCache(time.Minute)
	c.Update("BTCUSDT", decimal(t, "50000"), time.Now())

	price, ok := c.LastPrice("BTCUSDT")
	require.True(t, ok)
	price.SetInt64(1)

	again, ok := c.LastPrice("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, "50000", again.String(), "callers must not mutate the cached value")
}

func TestPriceCache_DefaultMaxAge(t *testing.T) {
	c := NewPriceCache(0)
	assert.Equal(t, DefaultMaxAge, c.maxAge)
}
