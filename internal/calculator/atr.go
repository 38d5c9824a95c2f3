package calculator

import (
	"errors"
	"fmt"
	"math"
)

// trueRanges returns TR for bars 1..n-1 (index 0 has no previous close).
func trueRanges(highs, lows, closes []float64) []float64 {
	tr := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	return tr
}

func checkHLC(highs, lows, closes []float64) error {
	if len(highs) != len(closes) || len(lows) != len(closes) {
		return errors.New("high/low/close length mismatch")
	}
	return nil
}

// CalculateATR returns the Wilder-smoothed average true range over period.
func CalculateATR(highs, lows, closes []float64, period int) (float64, error) {
	if err := checkHLC(highs, lows, closes); err != nil {
		return 0, err
	}
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(closes) < period+1 {
		return 0, fmt.Errorf("ATR needs %d bars, got %d: %w", period+1, len(closes), errNotEnoughData)
	}
	return wilderAverage(trueRanges(highs, lows, closes), period), nil
}
