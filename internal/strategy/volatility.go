package strategy

import (
	"context"
	"fmt"

	"BasketPilot/internal/calculator"
)

// CandleVolatility derives a relative volatility (ATR / last close) from the
// latest candle window.
type CandleVolatility struct {
	candles  CandleSource
	interval string
	period   int
}

func NewCandleVolatility(candles CandleSource, interval string, period int) *CandleVolatility {
	if period <= 0 {
		period = 14
	}
	return &CandleVolatility{candles: candles, interval: interval, period: period}
}

// Volatility returns ATR(period)/close. The result is always >= 0.
func (v *CandleVolatility) Volatility(ctx context.Context, symbol string) (float64, error) {
	series, err := v.candles.Candles(ctx, symbol, v.interval, v.period*3)
	if err != nil {
		return 0, err
	}
	atr, err := calculator.CalculateATR(series.Highs(), series.Lows(), series.Closes(), v.period)
	if err != nil {
		return 0, err
	}
	last, ok := series.Last()
	if !ok || last.Close <= 0 {
		return 0, fmt.Errorf("volatility %s: no reference close", symbol)
	}
	return atr / last.Close, nil
}
