package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binancemcp/internal/ratelimit"
	"binancemcp/pkg/core"
	"binancemcp/pkg/registry"
)

// fakeCaller returns a canned result or error and records calls.
type fakeCaller struct {
	result any
	err    error
	calls  int
	lastOp core.Operation
}

func (f *fakeCaller) Call(_ context.Context, op core.Operation, _ core.Params) (any, error) {
	f.calls++
	f.lastOp = op
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestDispatcher(caller ExchangeCaller, limiterCfg ratelimit.Config) *Dispatcher {
	return New(registry.NewWithBuiltins(), ratelimit.New(limiterCfg), caller, nil, zerolog.Nop())
}

func smallLimiter() ratelimit.Config {
	return ratelimit.Config{
		Ceilings: map[core.EndpointClass]ratelimit.Ceiling{
			core.ClassRequest: {Weight: 100, Window: time.Minute},
			core.ClassOrders:  {Weight: 10, Window: 10 * time.Second},
		},
	}
}

func TestDispatcher_SuccessfulTickerCall(t *testing.T) {
	caller := &fakeCaller{result: &core.Ticker{Symbol: "BTCUSDT"}}
	d := newTestDispatcher(caller, smallLimiter())

	resp := d.Handle(context.Background(), &ToolCallRequest{
		Tool:      "get_ticker",
		Arguments: core.Params{"symbol": "BTCUSDT"},
	})

	require.False(t, resp.IsError())
	assert.Equal(t, StateCompleted, resp.State)
	assert.Equal(t, core.OpGetTicker, caller.lastOp)

	ticker, ok := resp.Result.(*core.Ticker)
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", ticker.Symbol)

	assert.Equal(t, int64(1), d.Metrics().Completed)
}

func TestDispatcher_UnknownTool(t *testing.T) {
	caller := &fakeCaller{}
	d := newTestDispatcher(caller, smallLimiter())

	resp := d.Handle(context.Background(), &ToolCallRequest{Tool: "fly_to_the_moon"})

	require.True(t, resp.IsError())
	assert.Equal(t, StateRejected, resp.State)
	assert.Equal(t, "UnknownToolError", resp.Error.Kind)
	assert.Zero(t, caller.calls, "rejected calls never reach the exchange")
}

func TestDispatcher_MissingSymbolListsViolation(t *testing.T) {
	caller := &fakeCaller{}
	d := newTestDispatcher(caller, smallLimiter())

	resp := d.Handle(context.Background(), &ToolCallRequest{
		Tool:      "get_ticker",
		Arguments: core.Params{},
	})

	require.True(t, resp.IsError())
	assert.Equal(t, "InvalidArgumentError", resp.Error.Kind)
	assert.Contains(t, resp.Error.Message, "symbol")
	assert.Zero(t, caller.calls)
	assert.Equal(t, int64(1), d.Metrics().Rejected)
}

func TestDispatcher_ValidationReportsEveryViolation(t *testing.T) {
	d := newTestDispatcher(&fakeCaller{}, smallLimiter())

	resp := d.Handle(context.Background(), &ToolCallRequest{
		Tool:      "place_limit_order",
		Arguments: core.Params{"side": "HOLD", "extra": 1},
	})

	require.True(t, resp.IsError())
	assert.Equal(t, "InvalidArgumentError", resp.Error.Kind)
	assert.GreaterOrEqual(t, len(resp.Error.Fields), 4)
}

func TestDispatcher_RateLimitRejection(t *testing.T) {
	caller := &fakeCaller{result: &core.Ticker{}}
	cfg := smallLimiter()
	cfg.Ceilings[core.ClassRequest] = ratelimit.Ceiling{Weight: 2, Window: time.Minute}
	d := newTestDispatcher(caller, cfg)

	// Ticker weight is 2, so the first call drains the window.
	resp := d.Handle(context.Background(), &ToolCallRequest{
		Tool: "get_ticker", Arguments: core.Params{"symbol": "BTCUSDT"},
	})
	require.False(t, resp.IsError())

	resp = d.Handle(context.Background(), &ToolCallRequest{
		Tool: "get_ticker", Arguments: core.Params{"symbol": "BTCUSDT"},
	})
	require.True(t, resp.IsError())
	assert.Equal(t, StateRejected, resp.State)
	assert.Equal(t, "RateLimitExceededError", resp.Error.Kind)
	assert.Greater(t, resp.Error.RetryAfter, 0.0)
	assert.Equal(t, 1, caller.calls, "denied admission never reaches the exchange")
}

func TestDispatcher_ExchangeFailure(t *testing.T) {
	caller := &fakeCaller{err: core.NewExchangeError(core.KindExchangeRejection, 400, "-2010", "insufficient balance")}
	d := newTestDispatcher(caller, smallLimiter())

	resp := d.Handle(context.Background(), &ToolCallRequest{
		Tool: "get_ticker", Arguments: core.Params{"symbol": "BTCUSDT"},
	})

	require.True(t, resp.IsError())
	assert.Equal(t, StateFailed, resp.State)
	assert.Equal(t, "ExchangeRejection", resp.Error.Kind)
	assert.Equal(t, "-2010", resp.Error.Code)
	assert.Equal(t, int64(1), d.Metrics().Failed)
}

func TestDispatcher_RefundsWeightWhenRequestNeverSent(t *testing.T) {
	caller := &fakeCaller{err: core.ErrCircuitOpen}
	cfg := smallLimiter()
	cfg.Ceilings[core.ClassRequest] = ratelimit.Ceiling{Weight: 2, Window: time.Minute}
	d := newTestDispatcher(caller, cfg)

	for i := 0; i < 3; i++ {
		resp := d.Handle(context.Background(), &ToolCallRequest{
			Tool: "get_ticker", Arguments: core.Params{"symbol": "BTCUSDT"},
		})
		require.True(t, resp.IsError())
		assert.Equal(t, StateFailed, resp.State, "attempt %d", i)
		assert.NotEqual(t, "RateLimitExceededError", resp.Error.Kind,
			"refunded weight must keep the window open")
	}
}

func TestDispatcher_NoRefundAfterExchangeError(t *testing.T) {
	caller := &fakeCaller{err: core.NewError(core.KindTransient, "gateway timeout")}
	cfg := smallLimiter()
	cfg.Ceilings[core.ClassRequest] = ratelimit.Ceiling{Weight: 2, Window: time.Minute}
	d := newTestDispatcher(caller, cfg)

	resp := d.Handle(context.Background(), &ToolCallRequest{
		Tool: "get_ticker", Arguments: core.Params{"symbol": "BTCUSDT"},
	})
	require.True(t, resp.IsError())
	assert.Equal(t, "TransientFailure", resp.Error.Kind)

	resp = d.Handle(context.Background(), &ToolCallRequest{
		Tool: "get_ticker", Arguments: core.Params{"symbol": "BTCUSDT"},
	})
	require.True(t, resp.IsError())
	assert.Equal(t, "RateLimitExceededError", resp.Error.Kind,
		"weight stays consumed when the request may have reached the exchange")
}

func TestDispatcher_OrdersUseOrdersClassBudget(t *testing.T) {
	caller := &fakeCaller{result: &core.Order{ID: "1"}}
	cfg := smallLimiter()
	cfg.Ceilings[core.ClassOrders] = ratelimit.Ceiling{Weight: 1, Window: 10 * time.Second}
	d := newTestDispatcher(caller, cfg)

	order := core.Params{
		"symbol": "BTCUSDT", "side": "BUY", "price": "50000", "qty": "0.001",
	}

	resp := d.Handle(context.Background(), &ToolCallRequest{Tool: "place_limit_order", Arguments: order})
	require.False(t, resp.IsError())

	resp = d.Handle(context.Background(), &ToolCallRequest{Tool: "place_limit_order", Arguments: order})
	require.True(t, resp.IsError())
	assert.Equal(t, "RateLimitExceededError", resp.Error.Kind)

	// The request-weight budget is untouched by order placement.
	resp = d.Handle(context.Background(), &ToolCallRequest{
		Tool: "get_ticker", Arguments: core.Params{"symbol": "BTCUSDT"},
	})
	assert.False(t, resp.IsError())
}

func TestDispatcher_GuardBlocksOversizedOrder(t *testing.T) {
	caller := &fakeCaller{result: &core.Order{}}
	guard := NewGuard(core.GuardConfig{MaxNotionalPerOrder: 1000}, nil)
	d := New(registry.NewWithBuiltins(), ratelimit.New(smallLimiter()), caller, guard, zerolog.Nop())

	resp := d.Handle(context.Background(), &ToolCallRequest{
		Tool: "place_limit_order",
		Arguments: core.Params{
			"symbol": "BTCUSDT", "side": "BUY", "price": "50000", "qty": "1",
		},
	})

	require.True(t, resp.IsError())
	assert.Equal(t, StateRejected, resp.State)
	assert.Contains(t, resp.Error.Message, "notional")
	assert.Zero(t, caller.calls)
}

func TestDispatcher_BalancesAssetFilter(t *testing.T) {
	caller := &fakeCaller{result: []core.Balance{
		{Asset: "BTC"}, {Asset: "ETH"}, {Asset: "USDT"},
	}}
	d := newTestDispatcher(caller, smallLimiter())

	resp := d.Handle(context.Background(), &ToolCallRequest{
		Tool:      "get_balances",
		Arguments: core.Params{"assets": "btc, usdt"},
	})

	require.False(t, resp.IsError())
	balances, ok := resp.Result.([]core.Balance)
	require.True(t, ok)
	require.Len(t, balances, 2)
	assert.Equal(t, "BTC", balances[0].Asset)
	assert.Equal(t, "USDT", balances[1].Asset)
}

func TestDispatcher_NilArgumentsAreAccepted(t *testing.T) {
	caller := &fakeCaller{result: &core.ServerTime{}}
	d := newTestDispatcher(caller, smallLimiter())

	resp := d.Handle(context.Background(), &ToolCallRequest{Tool: "get_server_time"})
	assert.False(t, resp.IsError())
}

func TestCallState_Terminal(t *testing.T) {
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateRejected.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateReceived.Terminal())
	assert.False(t, StateExecuting.Terminal())
}
