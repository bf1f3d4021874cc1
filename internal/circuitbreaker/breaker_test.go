package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker() *Breaker {
	return New(Config{
		FailThreshold:    3,
		SuccessThreshold: 2,
		Timeout:          50 * time.Millisecond,
	})
}

func TestBreaker_StartsClosed(t *testing.T) {
	b := newTestBreaker()

	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreaker_OpensAfterFailThreshold(t *testing.T) {
	b := newTestBreaker()

	b.Record(false)
	b.Record(false)
	assert.Equal(t, StateClosed, b.State())

	b.Record(false)
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := newTestBreaker()

	b.Record(false)
	b.Record(false)
	b.Record(true)
	b.Record(false)
	b.Record(false)

	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenAfterTimeout(t *testing.T) {
	b := newTestBreaker()
	b.now = func() time.Time { return time.Unix(1000, 0) }

	for i := 0; i < 3; i++ {
		b.Record(false)
	}
	require.Equal(t, StateOpen, b.State())

	b.now = func() time.Time { return time.Unix(1000, 0).Add(time.Second) }
	assert.True(t, b.Allow(), "probe should be allowed after the cool-down")
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestBreaker_HalfOpenClosesAfterSuccesses(t *testing.T) {
	b := newTestBreaker()
	b.now = func() time.Time { return time.Unix(1000, 0) }

	for i := 0; i < 3; i++ {
		b.Record(false)
	}
	b.now = func() time.Time { return time.Unix(1000, 0).Add(time.Second) }
	require.True(t, b.Allow())

	b.Record(true)
	assert.Equal(t, StateHalfOpen, b.State())
	b.Record(true)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenReopensOnFailure(t *testing.T) {
	b := newTestBreaker()
	b.now = func() time.Time { return time.Unix(1000, 0) }

	for i := 0; i < 3; i++ {
		b.Record(false)
	}
	b.now = func() time.Time { return time.Unix(1000, 0).Add(time.Second) }
	require.True(t, b.Allow())

	b.Record(false)
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreaker_Reset(t *testing.T) {
	b := newTestBreaker()

	for i := 0; i < 3; i++ {
		b.Record(false)
	}
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreaker_Metrics(t *testing.T) {
	b := newTestBreaker()

	for i := 0; i < 3; i++ {
		b.Record(false)
	}
	b.Allow()

	m := b.Metrics()
	assert.Equal(t, "OPEN", m.CurrentState)
	assert.Equal(t, int64(1), m.Rejected)
	assert.Equal(t, int32(1), m.StateChanges)
}
