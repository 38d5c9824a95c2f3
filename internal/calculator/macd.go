package calculator

import "fmt"

// MACDResult is the latest MACD reading.
type MACDResult struct {
	MACD   float64
	Signal float64
	Diff   float64 // histogram: MACD - Signal
}

// CalculateMACD computes MACD(fast, slow, signal) on closes and returns the
// most recent values.
func CalculateMACD(closes []float64, fast, slow, signal int) (MACDResult, error) {
	if fast <= 0 || slow <= 0 || signal <= 0 || fast >= slow {
		return MACDResult{}, fmt.Errorf("invalid MACD periods %d/%d/%d", fast, slow, signal)
	}
	if len(closes) < slow+signal {
		return MACDResult{}, fmt.Errorf("MACD needs %d closes, got %d: %w", slow+signal, len(closes), errNotEnoughData)
	}
	fastEMA, err := EMASeries(closes, fast)
	if err != nil {
		return MACDResult{}, err
	}
	slowEMA, err := EMASeries(closes, slow)
	if err != nil {
		return MACDResult{}, err
	}
	line := make([]float64, len(closes))
	for i := range closes {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	sig, err := EMASeries(line, signal)
	if err != nil {
		return MACDResult{}, err
	}
	last := len(line) - 1
	return MACDResult{
		MACD:   line[last],
		Signal: sig[last],
		Diff:   line[last] - sig[last],
	}, nil
}
