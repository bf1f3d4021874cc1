// Package ratelimit implements weight-budget admission control for exchange
// requests. Each endpoint class owns a fixed window of weight capacity that
// is checked and deducted atomically before any network call; a separate
// token-bucket limiter caps the raw request count.
package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"binancemcp/pkg/core"
)

// Ceiling is the weight capacity of one endpoint class per window.
type Ceiling struct {
	Weight int
	Window time.Duration
}

// Config holds per-class ceilings and the optional raw request cap.
type Config struct {
	Ceilings map[core.EndpointClass]Ceiling
	// RawRequests caps total admitted calls per RawPeriod regardless of
	// weight. Zero disables the raw limiter.
	RawRequests int
	RawPeriod   time.Duration
}

// DefaultConfig returns ceilings matching the published Binance spot limits.
func DefaultConfig() Config {
	return Config{
		Ceilings: map[core.EndpointClass]Ceiling{
			core.ClassRequest: {Weight: 6000, Window: time.Minute},
			core.ClassOrders:  {Weight: 100, Window: 10 * time.Second},
		},
		RawRequests: 61000,
		RawPeriod:   5 * time.Minute,
	}
}

// FromCoreConfig builds limiter ceilings from the exchange configuration.
func FromCoreConfig(cfg *core.Config) Config {
	return Config{
		Ceilings: map[core.EndpointClass]Ceiling{
			core.ClassRequest: {Weight: cfg.RequestWeightPerMinute, Window: time.Minute},
			core.ClassOrders:  {Weight: cfg.OrdersPer10s, Window: 10 * time.Second},
		},
		RawRequests: cfg.RawRequestsPerFiveMinutes,
		RawPeriod:   5 * time.Minute,
	}
}

// window is the budget state of one endpoint class. All fields are guarded
// by mu so concurrent admits can never jointly exceed the ceiling.
type window struct {
	mu      sync.Mutex
	ceiling Ceiling
	used    int
	start   time.Time
	epoch   uint64
}

// Token is proof of admission. It can be released once to refund the
// deducted weight when the request never consumed exchange-side budget.
type Token struct {
	class    core.EndpointClass
	weight   int
	epoch    uint64
	released atomic.Bool
}

// Weight returns the weight the token reserved.
func (t *Token) Weight() int { return t.weight }

// Class returns the endpoint class the token was admitted against.
func (t *Token) Class() core.EndpointClass { return t.class }

// Limiter tracks weight consumption per endpoint class against fixed
// windows refreshed lazily on each admission.
type Limiter struct {
	windows map[core.EndpointClass]*window
	raw     *rate.Limiter
	metrics *Metrics

	// now is the clock, injectable for tests.
	now func() time.Time
}

// Metrics tracks statistics about limiter usage.
type Metrics struct {
	totalRequests   atomic.Int64
	allowedRequests atomic.Int64
	deniedRequests  atomic.Int64
	refundedWeight  atomic.Int64
}

// New creates a Limiter with the given per-class ceilings.
func New(cfg Config) *Limiter {
	l := &Limiter{
		windows: make(map[core.EndpointClass]*window, len(cfg.Ceilings)),
		metrics: &Metrics{},
		now:     time.Now,
	}
	for class, ceiling := range cfg.Ceilings {
		l.windows[class] = &window{ceiling: ceiling}
	}
	if cfg.RawRequests > 0 && cfg.RawPeriod > 0 {
		rps := float64(cfg.RawRequests) / cfg.RawPeriod.Seconds()
		l.raw = rate.NewLimiter(rate.Limit(rps), cfg.RawRequests)
	}
	return l
}

// SetClock overrides the limiter's time source. Intended for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

// Admit atomically checks whether weight fits in the class's current window
// and deducts it. On success it returns a token that may be released to
// refund the weight. On denial it returns a rate-limit error whose
// retry-after is derived from the window reset time.
//
// A request arriving exactly at the window boundary is evaluated against
// the new window.
func (l *Limiter) Admit(class core.EndpointClass, weight int) (*Token, error) {
	l.metrics.totalRequests.Add(1)

	if weight <= 0 {
		l.metrics.deniedRequests.Add(1)
		return nil, core.NewError(core.KindInternal, fmt.Sprintf("non-positive admission weight %d", weight))
	}

	w, ok := l.windows[class]
	if !ok {
		l.metrics.deniedRequests.Add(1)
		return nil, core.NewError(core.KindInternal, fmt.Sprintf("no budget configured for class %s", class))
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now()
	if w.start.IsZero() || now.Sub(w.start) >= w.ceiling.Window {
		w.start = now
		w.used = 0
		w.epoch++
	}

	if weight > w.ceiling.Weight {
		l.metrics.deniedRequests.Add(1)
		return nil, core.NewRateLimitError(
			w.ceiling.Window,
			fmt.Sprintf("weight %d exceeds the %s ceiling of %d", weight, class, w.ceiling.Weight),
		)
	}

	if w.used+weight > w.ceiling.Weight {
		retryAfter := w.start.Add(w.ceiling.Window).Sub(now)
		l.metrics.deniedRequests.Add(1)
		return nil, core.NewRateLimitError(
			retryAfter,
			fmt.Sprintf("%s budget exhausted: %d of %d used", class, w.used, w.ceiling.Weight),
		)
	}

	if l.raw != nil {
		res := l.raw.Reserve()
		if !res.OK() {
			l.metrics.deniedRequests.Add(1)
			return nil, core.NewRateLimitError(time.Second, "raw request budget unavailable")
		}
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			l.metrics.deniedRequests.Add(1)
			return nil, core.NewRateLimitError(delay, "raw request budget exhausted")
		}
	}

	w.used += weight
	l.metrics.allowedRequests.Add(1)

	return &Token{class: class, weight: weight, epoch: w.epoch}, nil
}

// Release refunds the weight reserved by token, for calls that failed before
// consuming any exchange-side budget. Releasing twice, or after the window
// has rolled over, is a no-op. Counters never go negative.
func (l *Limiter) Release(token *Token) {
	if token == nil || !token.released.CompareAndSwap(false, true) {
		return
	}

	w, ok := l.windows[token.class]
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.epoch != token.epoch {
		return
	}

	w.used -= token.weight
	if w.used < 0 {
		w.used = 0
	}
	l.metrics.refundedWeight.Add(int64(token.weight))
}

// Remaining returns the unconsumed weight of the class's current window.
// A window that has elapsed reports the full ceiling.
func (l *Limiter) Remaining(class core.EndpointClass) int {
	w, ok := l.windows[class]
	if !ok {
		return 0
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.start.IsZero() || l.now().Sub(w.start) >= w.ceiling.Window {
		return w.ceiling.Weight
	}
	return w.ceiling.Weight - w.used
}

// Metrics returns a snapshot of the current limiter statistics.
func (l *Limiter) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		TotalRequests:   l.metrics.totalRequests.Load(),
		AllowedRequests: l.metrics.allowedRequests.Load(),
		DeniedRequests:  l.metrics.deniedRequests.Load(),
		RefundedWeight:  l.metrics.refundedWeight.Load(),
	}
}

// MetricsSnapshot is a point-in-time capture of limiter statistics.
type MetricsSnapshot struct {
	// TotalRequests is the total number of admission checks performed.
	TotalRequests int64
	// AllowedRequests is the number of admitted requests.
	AllowedRequests int64
	// DeniedRequests is the number of denied requests.
	DeniedRequests int64
	// RefundedWeight is the total weight returned via Release.
	RefundedWeight int64
}
