package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"binancemcp/internal/ratelimit"
	"binancemcp/pkg/binance"
	"binancemcp/pkg/core"
	"binancemcp/pkg/registry"
)

// ExchangeCaller executes one exchange operation. *binance.Client satisfies it.
type ExchangeCaller interface {
	Call(ctx context.Context, op core.Operation, params core.Params) (any, error)
}

// Dispatcher is the single entry point for tool calls. Every failure path
// produces a structured response; no request leaves without an answer.
type Dispatcher struct {
	registry *registry.Registry
	limiter  *ratelimit.Limiter
	client   ExchangeCaller
	guard    *Guard
	protocol *binance.Protocol
	logger   zerolog.Logger

	completed atomic.Int64
	rejected  atomic.Int64
	failed    atomic.Int64
}

// New creates a dispatcher. guard may be nil to disable order guardrails.
func New(reg *registry.Registry, limiter *ratelimit.Limiter, client ExchangeCaller, guard *Guard, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		limiter:  limiter,
		client:   client,
		guard:    guard,
		protocol: binance.NewProtocol(),
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Handle runs one tool call through the pipeline:
// received -> validated -> rate_admitted -> executing -> completed,
// with early exits to rejected (validation, guard, admission) and failed
// (exchange error after execution).
func (d *Dispatcher) Handle(ctx context.Context, req *ToolCallRequest) *ToolCallResponse {
	start := time.Now()
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = start
	}
	args := req.Arguments
	if args == nil {
		args = core.Params{}
	}

	resp := d.dispatch(ctx, req.Tool, args)

	event := d.logger.Info()
	if resp.IsError() {
		event = d.logger.Warn().Str("error_kind", resp.Error.Kind)
	}
	event.
		Str("tool", req.Tool).
		Str("state", resp.State.String()).
		Dur("elapsed", time.Since(start)).
		Msg("tool call handled")

	switch resp.State {
	case StateCompleted:
		d.completed.Add(1)
	case StateRejected:
		d.rejected.Add(1)
	case StateFailed:
		d.failed.Add(1)
	}
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, tool string, args core.Params) *ToolCallResponse {
	def, ok := d.registry.Lookup(tool)
	if !ok {
		return errorResponse(StateRejected,
			core.NewError(core.KindUnknownTool, "unknown tool: "+tool))
	}

	if err := d.registry.Validate(def, args); err != nil {
		return errorResponse(StateRejected, err)
	}

	// Shape the request up front: it resolves the endpoint class and weight
	// for admission and catches cross-parameter violations the schema
	// cannot express.
	exReq, err := d.protocol.BuildRequest(def.Operation, args)
	if err != nil {
		return errorResponse(StateRejected, err)
	}

	if err := d.checkGuard(def.Operation, args); err != nil {
		return errorResponse(StateRejected, err)
	}

	token, err := d.limiter.Admit(exReq.Class, exReq.Weight)
	if err != nil {
		return errorResponse(StateRejected, err)
	}

	result, err := d.client.Call(ctx, def.Operation, args)
	if err != nil {
		// Refund only when the request never left the process; anything
		// that may have reached the exchange keeps its weight consumed.
		if neverSent(err) {
			d.limiter.Release(token)
		}
		return errorResponse(StateFailed, err)
	}

	if ctx.Err() != nil {
		// The session went away mid-call. The exchange call finished (and
		// any order it placed stands), but the result has no recipient.
		d.logger.Warn().Str("tool", tool).Msg("caller disconnected; result discarded")
	}

	return &ToolCallResponse{
		Result: d.postProcess(def.Operation, args, result),
		State:  StateCompleted,
	}
}

func (d *Dispatcher) checkGuard(op core.Operation, args core.Params) error {
	if d.guard == nil {
		return nil
	}
	switch op {
	case core.OpPlaceLimitOrder:
		return d.guard.CheckLimitOrder(args)
	case core.OpPlaceOCOOrder:
		return d.guard.CheckOCOOrder(args)
	default:
		return nil
	}
}

// postProcess applies result filters that are local concerns, not exchange
// ones. Today that is only the balances asset filter.
func (d *Dispatcher) postProcess(op core.Operation, args core.Params, result any) any {
	if op != core.OpGetBalances {
		return result
	}
	filter, _ := args["assets"].(string)
	if filter == "" {
		return result
	}
	balances, ok := result.([]core.Balance)
	if !ok {
		return result
	}

	wanted := make(map[string]struct{})
	for _, a := range strings.Split(filter, ",") {
		if a = strings.ToUpper(strings.TrimSpace(a)); a != "" {
			wanted[a] = struct{}{}
		}
	}

	filtered := make([]core.Balance, 0, len(balances))
	for _, b := range balances {
		if _, ok := wanted[strings.ToUpper(b.Asset)]; ok {
			filtered = append(filtered, b)
		}
	}
	return filtered
}

// neverSent reports whether the failure happened before any bytes reached
// the exchange, making the admission weight refundable.
func neverSent(err error) bool {
	return errors.Is(err, core.ErrCircuitOpen) ||
		errors.Is(err, core.ErrClientClosed) ||
		errors.Is(err, core.ErrNoCredentials) ||
		core.IsKind(err, core.KindInvalidArgument)
}

// MetricsSnapshot is a point-in-time capture of dispatch outcomes.
type MetricsSnapshot struct {
	Completed int64 `json:"completed"`
	Rejected  int64 `json:"rejected"`
	Failed    int64 `json:"failed"`
}

// Metrics returns the terminal-state counters.
func (d *Dispatcher) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		Completed: d.completed.Load(),
		Rejected:  d.rejected.Load(),
		Failed:    d.failed.Load(),
	}
}
