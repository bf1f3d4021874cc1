package dispatch

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"binancemcp/pkg/core"
)

// PriceSource supplies the last traded price for deviation checks. The
// stream package's price cache implements it.
type PriceSource interface {
	LastPrice(symbol string) (*apd.Decimal, bool)
}

// guardCtx bounds decimal arithmetic precision for guard checks.
var guardCtx = apd.BaseContext.WithPrecision(30)

// Guard enforces the configured order guardrails before any mutating call
// reaches the exchange. A zero limit disables the corresponding check.
type Guard struct {
	cfg    core.GuardConfig
	prices PriceSource
}

// NewGuard creates a guard. prices may be nil; the deviation check is then
// skipped.
func NewGuard(cfg core.GuardConfig, prices PriceSource) *Guard {
	return &Guard{cfg: cfg, prices: prices}
}

// CheckLimitOrder validates a limit order's price and quantity against the
// guardrails. All violations are reported together.
func (g *Guard) CheckLimitOrder(params core.Params) error {
	symbol, _ := params["symbol"].(string)

	price, violations := guardDecimal(params, "price")
	qty, v := guardDecimal(params, "qty")
	violations = append(violations, v...)
	if len(violations) > 0 {
		return core.NewInvalidArgumentError(violations)
	}

	violations = g.checkLeg(symbol, price, qty)
	if len(violations) > 0 {
		return core.NewInvalidArgumentError(violations)
	}
	return nil
}

// CheckOCOOrder validates both legs of an OCO pair plus the price relation
// the exchange requires between them.
func (g *Guard) CheckOCOOrder(params core.Params) error {
	symbol, _ := params["symbol"].(string)
	side, _ := params["side"].(string)

	price, violations := guardDecimal(params, "price")
	stop, v := guardDecimal(params, "stop")
	violations = append(violations, v...)
	stopLimit, v := guardDecimal(params, "stop_limit")
	violations = append(violations, v...)
	qty, v := guardDecimal(params, "quantity")
	violations = append(violations, v...)
	if len(violations) > 0 {
		return core.NewInvalidArgumentError(violations)
	}

	// A SELL OCO takes profit above the market and stops out below it;
	// BUY is the mirror image.
	if s, ok := core.ParseSide(side); ok {
		switch s {
		case core.SideSell:
			if price.Cmp(stop) <= 0 {
				violations = append(violations, "price must be above stop for a SELL OCO")
			}
			if stopLimit.Cmp(stop) > 0 {
				violations = append(violations, "stop_limit must not exceed stop for a SELL OCO")
			}
		case core.SideBuy:
			if price.Cmp(stop) >= 0 {
				violations = append(violations, "price must be below stop for a BUY OCO")
			}
			if stopLimit.Cmp(stop) < 0 {
				violations = append(violations, "stop_limit must not be below stop for a BUY OCO")
			}
		}
	}

	violations = append(violations, g.checkLeg(symbol, price, qty)...)
	violations = append(violations, g.checkLeg(symbol, stopLimit, qty)...)

	if len(violations) > 0 {
		return core.NewInvalidArgumentError(dedupe(violations))
	}
	return nil
}

// checkLeg applies the quantity, notional, and deviation limits to one
// price/quantity pair.
func (g *Guard) checkLeg(symbol string, price, qty *apd.Decimal) []string {
	var violations []string

	if price.Sign() <= 0 {
		violations = append(violations, "price must be positive")
	}
	if qty.Sign() <= 0 {
		violations = append(violations, "quantity must be positive")
	}
	if len(violations) > 0 {
		return violations
	}

	if g.cfg.MaxQtyPerOrder > 0 {
		if limit := floatDecimal(g.cfg.MaxQtyPerOrder); qty.Cmp(limit) > 0 {
			violations = append(violations, fmt.Sprintf(
				"quantity %s exceeds the per-order maximum %s", qty, limit))
		}
	}

	if g.cfg.MaxNotionalPerOrder > 0 {
		var notional apd.Decimal
		_, _ = guardCtx.Mul(&notional, price, qty)
		if limit := floatDecimal(g.cfg.MaxNotionalPerOrder); notional.Cmp(limit) > 0 {
			violations = append(violations, fmt.Sprintf(
				"notional %s exceeds the per-order maximum %s", notional.Text('f'), limit))
		}
	}

	if g.cfg.MaxPriceDeviationPct > 0 && g.prices != nil {
		if last, ok := g.prices.LastPrice(symbol); ok && last.Sign() > 0 {
			var diff, pct apd.Decimal
			_, _ = guardCtx.Sub(&diff, price, last)
			diff.Abs(&diff)
			_, _ = guardCtx.Quo(&pct, &diff, last)
			_, _ = guardCtx.Mul(&pct, &pct, apd.New(100, 0))

			if pct.Cmp(floatDecimal(g.cfg.MaxPriceDeviationPct)) > 0 {
				violations = append(violations, fmt.Sprintf(
					"price %s deviates more than %.2f%% from the last traded price %s",
					price, g.cfg.MaxPriceDeviationPct, last))
			}
		}
	}

	return violations
}

func guardDecimal(params core.Params, key string) (*apd.Decimal, []string) {
	s, _ := params[key].(string)
	if s == "" {
		return apd.New(0, 0), []string{fmt.Sprintf("missing required parameter: %s", key)}
	}
	d, _, err := new(apd.Decimal).SetString(s)
	if err != nil {
		return apd.New(0, 0), []string{fmt.Sprintf("parameter %s is not a valid decimal: %s", key, s)}
	}
	return d, nil
}

func floatDecimal(f float64) *apd.Decimal {
	d := new(apd.Decimal)
	if _, err := d.SetFloat64(f); err != nil {
		return apd.New(0, 0)
	}
	return d
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
