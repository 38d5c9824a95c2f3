package calculator

import (
	"errors"
	"fmt"
)

// CalculateADX returns Wilder's average directional index over period.
// Requires at least 2*period+1 bars.
func CalculateADX(highs, lows, closes []float64, period int) (float64, error) {
	if err := checkHLC(highs, lows, closes); err != nil {
		return 0, err
	}
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	n := len(closes)
	if n < 2*period+1 {
		return 0, fmt.Errorf("ADX needs %d bars, got %d: %w", 2*period+1, n, errNotEnoughData)
	}

	tr := trueRanges(highs, lows, closes)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := highs[i] - highs[i-1]
		down := lows[i-1] - lows[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	var trS, plusS, minusS float64
	for i := 1; i <= period; i++ {
		trS += tr[i]
		plusS += plusDM[i]
		minusS += minusDM[i]
	}

	dx := func() float64 {
		if trS == 0 {
			return 0
		}
		plusDI := 100 * plusS / trS
		minusDI := 100 * minusS / trS
		sum := plusDI + minusDI
		if sum == 0 {
			return 0
		}
		diff := plusDI - minusDI
		if diff < 0 {
			diff = -diff
		}
		return 100 * diff / sum
	}

	p := float64(period)
	dxs := []float64{dx()}
	for i := period + 1; i < n; i++ {
		trS = trS - trS/p + tr[i]
		plusS = plusS - plusS/p + plusDM[i]
		minusS = minusS - minusS/p + minusDM[i]
		dxs = append(dxs, dx())
	}

	adx := 0.0
	for _, v := range dxs[:period] {
		adx += v
	}
	adx /= p
	for _, v := range dxs[period:] {
		adx = (adx*(p-1) + v) / p
	}
	return adx, nil
}
