// Package quantizer converts quote-currency amounts into exchange-valid
// base-asset quantities.
package quantizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"BasketPilot/internal/logger"
)

var (
	ErrInvalidStepSize = errors.New("invalid step size")
	ErrInvalidAmount   = errors.New("invalid amount or price")
)

// StepSizer provides the LOT_SIZE step for a symbol.
type StepSizer interface {
	StepSize(ctx context.Context, symbol string) (string, error)
}

// PrecisionFromStepSize returns the number of fractional digits permitted by
// a step size such as "0.00100000" (3), "1e-3" (3) or "1.00000000" (0).
func PrecisionFromStepSize(step string) (int32, error) {
	step = strings.TrimSpace(step)
	d, err := decimal.NewFromString(step)
	if err != nil || !d.IsPositive() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidStepSize, step)
	}
	for p := int32(0); p < -d.Exponent(); p++ {
		if d.Truncate(p).Equal(d) {
			return p, nil
		}
	}
	if d.Exponent() >= 0 {
		return 0, nil
	}
	return -d.Exponent(), nil
}

// Truncate drops digits beyond precision, rounding toward zero.
func Truncate(q decimal.Decimal, precision int32) decimal.Decimal {
	return q.Truncate(precision)
}

// Quantize computes amount/price truncated to the step size precision. The
// quotient is cut at that precision directly so it can never round up.
func Quantize(amount, price decimal.Decimal, step string) (decimal.Decimal, error) {
	if !amount.IsPositive() || !price.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	precision, err := PrecisionFromStepSize(step)
	if err != nil {
		return decimal.Zero, err
	}
	q, _ := amount.QuoRem(price, precision)
	return q, nil
}

// Quantizer resolves step sizes through the exchange and never fails
// outward: any error yields a zero quantity, which callers treat as "skip".
type Quantizer struct {
	steps StepSizer
	log   logger.Logger
}

func New(steps StepSizer, log logger.Logger) *Quantizer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Quantizer{steps: steps, log: log}
}

// Quantity returns the tradable quantity for spending amount at price.
func (q *Quantizer) Quantity(ctx context.Context, symbol string, amount, price decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() || !price.IsPositive() {
		return decimal.Zero
	}
	step, err := q.steps.StepSize(ctx, symbol)
	if err != nil {
		q.log.Warn("step_size_unavailable", logger.String("symbol", symbol), logger.String("op", "step_size"), logger.Err(err))
		return decimal.Zero
	}
	qty, err := Quantize(amount, price, step)
	if err != nil {
		q.log.Warn("quantization_failed", logger.String("symbol", symbol), logger.String("op", "quantize"), logger.String("step", step), logger.Err(err))
		return decimal.Zero
	}
	return qty
}

// QuantityFor truncates an existing base quantity (e.g. a position being
// closed) to the symbol's step precision.
func (q *Quantizer) QuantityFor(ctx context.Context, symbol string, qty decimal.Decimal) decimal.Decimal {
	if !qty.IsPositive() {
		return decimal.Zero
	}
	step, err := q.steps.StepSize(ctx, symbol)
	if err != nil {
		q.log.Warn("step_size_unavailable", logger.String("symbol", symbol), logger.String("op", "step_size"), logger.Err(err))
		return decimal.Zero
	}
	precision, err := PrecisionFromStepSize(step)
	if err != nil {
		q.log.Warn("quantization_failed", logger.String("symbol", symbol), logger.String("op", "quantize"), logger.String("step", step), logger.Err(err))
		return decimal.Zero
	}
	return Truncate(qty, precision)
}
