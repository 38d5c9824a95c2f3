package calculator

import (
	"errors"
	"fmt"
)

// wilderAverage seeds with the mean of values[1..period] and smooths the
// rest with alpha 1/period. Index 0 is ignored.
func wilderAverage(values []float64, period int) float64 {
	avg := 0.0
	for _, v := range values[1 : period+1] {
		avg += v
	}
	avg /= float64(period)
	for _, v := range values[period+1:] {
		avg += (v - avg) / float64(period)
	}
	return avg
}

// CalculateRSI computes the Wilder-smoothed RSI of closes over period.
// Requires at least period+1 closes. A flat series reads 50.
func CalculateRSI(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(closes) < period+1 {
		return 0, fmt.Errorf("RSI needs %d closes, got %d: %w", period+1, len(closes), errNotEnoughData)
	}

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		if d := closes[i] - closes[i-1]; d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}
	avgGain := wilderAverage(gains, period)
	avgLoss := wilderAverage(losses, period)

	switch {
	case avgLoss == 0 && avgGain == 0:
		return 50, nil
	case avgLoss == 0:
		return 100, nil
	}
	return 100 - 100/(1+avgGain/avgLoss), nil
}
