// Package circuitbreaker provides a three-state breaker that stops the
// exchange client from hammering an upstream that is already failing.
package circuitbreaker

import (
	"sync"
	"sync/atomic"
	"time"
)

// State is the breaker's position.
type State int

const (
	// StateClosed passes all calls through.
	StateClosed State = iota
	// StateOpen rejects all calls until the cool-down elapses.
	StateOpen
	// StateHalfOpen probes the upstream with live calls.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config holds breaker thresholds.
type Config struct {
	// FailThreshold is the consecutive-failure count that opens the breaker.
	FailThreshold int `json:"fail_threshold"`
	// SuccessThreshold is the consecutive-success count that closes a
	// half-open breaker.
	SuccessThreshold int `json:"success_threshold"`
	// Timeout is the cool-down before an open breaker allows a probe.
	Timeout time.Duration `json:"timeout"`
}

// Breaker is safe for concurrent use. State transitions happen under a
// single mutex; Allow on the closed path is a lock-free atomic read.
type Breaker struct {
	state atomic.Int32

	mu        sync.Mutex
	failures  int
	successes int
	openedAt  time.Time

	cfg     Config
	metrics *Metrics

	now func() time.Time
}

// Metrics tracks breaker statistics.
type Metrics struct {
	totalRequests atomic.Int64
	rejected      atomic.Int64
	stateChanges  atomic.Int32
}

// New creates a closed Breaker with the given thresholds.
func New(cfg Config) *Breaker {
	b := &Breaker{cfg: cfg, metrics: &Metrics{}, now: time.Now}
	b.state.Store(int32(StateClosed))
	return b
}

// Allow reports whether a call may proceed. An open breaker whose cool-down
// has elapsed transitions to half-open and allows the probe.
func (b *Breaker) Allow() bool {
	b.metrics.totalRequests.Add(1)

	if State(b.state.Load()) == StateClosed {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch State(b.state.Load()) {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cfg.Timeout {
			b.transition(StateHalfOpen)
			b.successes = 0
			return true
		}
		b.metrics.rejected.Add(1)
		return false
	}
	return false
}

// Record feeds a call outcome back into the breaker.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch State(b.state.Load()) {
	case StateClosed:
		if success {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.cfg.FailThreshold {
			b.openedAt = b.now()
			b.transition(StateOpen)
		}

	case StateHalfOpen:
		if success {
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.failures = 0
				b.successes = 0
				b.transition(StateClosed)
			}
			return
		}
		b.openedAt = b.now()
		b.successes = 0
		b.transition(StateOpen)

	case StateOpen:
		// A straggler finishing after the breaker opened; nothing to do.
	}
}

func (b *Breaker) transition(next State) {
	b.state.Store(int32(next))
	b.metrics.stateChanges.Add(1)
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	return State(b.state.Load())
}

// Reset forces the breaker closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.successes = 0
	b.state.Store(int32(StateClosed))
}

// Metrics returns a snapshot of the breaker statistics.
func (b *Breaker) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		TotalRequests: b.metrics.totalRequests.Load(),
		Rejected:      b.metrics.rejected.Load(),
		StateChanges:  b.metrics.stateChanges.Load(),
		CurrentState:  b.State().String(),
	}
}

// MetricsSnapshot is a point-in-time capture of breaker statistics.
type MetricsSnapshot struct {
	TotalRequests int64
	Rejected      int64
	StateChanges  int32
	CurrentState  string
}
