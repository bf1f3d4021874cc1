package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"resty.dev/v3"

	"binancemcp/internal/circuitbreaker"
	"binancemcp/internal/httpx"
	"binancemcp/pkg/core"
)

const apiKeyHeader = "X-MBX-APIKEY"

// Client executes exchange operations against the Binance spot REST API.
// It signs authenticated requests, keeps the local clock offset in sync
// with the exchange, and retries transient failures with bounded backoff.
type Client struct {
	config   *core.Config
	http     *httpx.Client
	protocol *Protocol
	breaker  *circuitbreaker.Breaker
	logger   zerolog.Logger

	// clockOffsetMs is serverTime minus local time, in milliseconds.
	clockOffsetMs atomic.Int64

	closed   atomic.Bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewClient validates the config and builds a client. Call Close when done.
func NewClient(config *core.Config, logger zerolog.Logger) (*Client, error) {
	if config == nil {
		config = core.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	httpClient, err := httpx.NewClient(&httpx.Config{
		BaseURL: config.ResolveBaseURL(),
		Timeout: config.Timeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	c := &Client{
		config:   config,
		http:     httpClient,
		protocol: NewProtocol(),
		logger:   logger.With().Str("component", "exchange_client").Logger(),
		stopChan: make(chan struct{}),
	}

	if config.CircuitBreakerEnabled {
		c.breaker = circuitbreaker.New(circuitbreaker.Config{
			FailThreshold:    config.CircuitBreakerFailThreshold,
			SuccessThreshold: config.CircuitBreakerSuccessThreshold,
			Timeout:          config.CircuitBreakerTimeout,
		})
	}
	return c, nil
}

// Start performs an initial clock sync and launches the periodic refresher.
// The refresher runs even when the initial sync fails, so a transient
// outage at startup heals on the next tick.
func (c *Client) Start(ctx context.Context) error {
	err := c.SyncTime(ctx)

	c.wg.Add(1)
	go c.timeSyncLoop()

	if err != nil {
		return fmt.Errorf("initial time sync: %w", err)
	}
	return nil
}

// Close stops background work and releases the transport.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.stopOnce.Do(func() { close(c.stopChan) })
	c.wg.Wait()
	return c.http.Close()
}

// ClockOffset returns the current local-to-server clock offset.
func (c *Client) ClockOffset() time.Duration {
	return time.Duration(c.clockOffsetMs.Load()) * time.Millisecond
}

// Protocol exposes the request builder, used to compute weights before
// rate-limiter admission.
func (c *Client) Protocol() *Protocol {
	return c.protocol
}

// BreakerState returns the circuit breaker state, or CLOSED when disabled.
func (c *Client) BreakerState() circuitbreaker.State {
	if c.breaker == nil {
		return circuitbreaker.StateClosed
	}
	return c.breaker.State()
}

// SyncTime fetches the exchange server time and updates the clock offset.
// The offset is measured against the midpoint of the round trip.
func (c *Client) SyncTime(ctx context.Context) error {
	before := time.Now()
	resp, err := c.http.Execute(ctx, http.MethodGet, "/api/v3/time")
	if err != nil {
		return core.NewError(core.KindTransient, "time sync: "+err.Error())
	}
	after := time.Now()

	if resp.StatusCode() >= 400 {
		return c.protocol.ParseError(resp)
	}

	var data binanceServerTime
	if err := sonic.Unmarshal(resp.Bytes(), &data); err != nil {
		return fmt.Errorf("unmarshal server time: %w", err)
	}

	mid := before.Add(after.Sub(before) / 2)
	offset := data.ServerTime - mid.UnixMilli()
	c.clockOffsetMs.Store(offset)

	c.logger.Debug().
		Int64("offset_ms", offset).
		Dur("rtt", after.Sub(before)).
		Msg("clock synced")
	return nil
}

func (c *Client) timeSyncLoop() {
	defer c.wg.Done()

	interval := c.config.TimeSyncInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
			if err := c.SyncTime(ctx); err != nil {
				c.logger.Warn().Err(err).Msg("periodic time sync failed")
			}
			cancel()
		}
	}
}

// Call builds, signs, and executes the operation, returning the normalized
// result. Mutating operations run under a context detached from caller
// cancellation so an in-flight order is never abandoned mid-request.
func (c *Client) Call(ctx context.Context, op core.Operation, params core.Params) (any, error) {
	if c.closed.Load() {
		return nil, core.ErrClientClosed
	}

	req, err := c.protocol.BuildRequest(op, params)
	if err != nil {
		return nil, err
	}
	if req.RequireAuth && !c.config.Credentials.Configured() {
		return nil, core.ErrNoCredentials
	}

	if op.Mutating() {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.Timeout)
		defer cancel()
		ctx = callCtx
	}

	return c.callWithRetry(ctx, op, req)
}

func (c *Client) callWithRetry(ctx context.Context, op core.Operation, req *core.Request) (any, error) {
	// Mutating requests are never replayed: a transport failure after the
	// request was written leaves the order state ambiguous.
	maxAttempts := c.config.MaxRetries + 1
	if op.Mutating() {
		maxAttempts = 1
	}

	resynced := false
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			wait := retryBackoff(attempt, c.config.RetryWaitMin, c.config.RetryWaitMax)
			c.logger.Debug().
				Str("operation", op.String()).
				Int("attempt", attempt).
				Dur("wait", wait).
				Msg("retrying request")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		result, err := c.executeOnce(ctx, op, req)
		if err == nil {
			return result, nil
		}
		lastErr = err

		// A stale timestamp rejection is fixed by resyncing the clock; the
		// request never reached matching, so one immediate replay is safe
		// even for order placement.
		if core.IsKind(err, core.KindClockSkew) && !resynced {
			resynced = true
			if syncErr := c.SyncTime(ctx); syncErr != nil {
				c.logger.Warn().Err(syncErr).Msg("resync after clock skew failed")
				return nil, err
			}
			result, err = c.executeOnce(ctx, op, req)
			if err == nil {
				return result, nil
			}
			lastErr = err
		}

		if !core.IsTransient(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) executeOnce(ctx context.Context, op core.Operation, req *core.Request) (any, error) {
	if c.breaker != nil && !c.breaker.Allow() {
		return nil, core.ErrCircuitOpen
	}

	target, opts, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Execute(ctx, req.Method, target, opts...)
	if err != nil {
		c.recordOutcome(false)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, core.NewError(core.KindTransient, "request failed: "+err.Error())
	}

	result, err := c.protocol.ParseResponse(op, resp)
	if err != nil {
		// Only infrastructure failures trip the breaker; a 4xx rejection
		// means the exchange is healthy and just said no.
		c.recordOutcome(!core.IsTransient(err) && !core.IsRateLimited(err))
		return nil, err
	}

	c.recordOutcome(true)
	return result, nil
}

// prepareRequest resolves the target URL and request options. Signed
// requests carry the full encoded query inline so the HMAC covers exactly
// the bytes sent, with the signature appended last.
func (c *Client) prepareRequest(req *core.Request) (string, []httpx.RequestOption, error) {
	opts := make([]httpx.RequestOption, 0, 2)
	if len(req.Headers) > 0 {
		opts = append(opts, httpx.WithHeaders(req.Headers))
	}

	if !req.RequireAuth {
		if len(req.Query) > 0 {
			opts = append(opts, httpx.WithQueryParams(req.Query))
		}
		return req.Path, opts, nil
	}

	values := url.Values{}
	for k, v := range req.Query {
		values.Set(k, v)
	}

	ts := time.Now().Add(c.ClockOffset())
	if err := c.protocol.SignQuery(values, c.config.Credentials, ts, c.config.RecvWindow); err != nil {
		return "", nil, err
	}

	signature := values.Get("signature")
	values.Del("signature")
	target := req.Path + "?" + values.Encode() + "&signature=" + signature

	opts = append(opts, httpx.WithHeader(apiKeyHeader, c.config.Credentials.APIKey))
	return target, opts, nil
}

func (c *Client) recordOutcome(success bool) {
	if c.breaker != nil {
		c.breaker.Record(success)
	}
}

// retryBackoff doubles the minimum wait per attempt, capped at max.
func retryBackoff(attempt int, min, max time.Duration) time.Duration {
	if min <= 0 {
		min = 500 * time.Millisecond
	}
	if max <= 0 {
		max = 10 * time.Second
	}
	d := min << (attempt - 1)
	if d > max || d <= 0 {
		return max
	}
	return d
}

// RawExecute performs an arbitrary request against the exchange without
// normalization, for endpoints outside the supported operation set.
func (c *Client) RawExecute(ctx context.Context, method, path string, query map[string]string) (*resty.Response, error) {
	if c.closed.Load() {
		return nil, core.ErrClientClosed
	}
	opts := []httpx.RequestOption{}
	if len(query) > 0 {
		opts = append(opts, httpx.WithQueryParams(query))
	}
	return c.http.Execute(ctx, method, path, opts...)
}
