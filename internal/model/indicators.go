package model

// IndicatorSet holds the latest reading of every indicator used for scoring.
type IndicatorSet struct {
	RSI       float64 // 0..100
	MACDDiff  float64 // MACD line minus signal line
	ADX       float64
	BBPercent float64 // %B, 0 when the band width is zero
}

// ScoredSymbol is one row of a cycle's scoring output.
type ScoredSymbol struct {
	Symbol     string
	LastPrice  float64
	Score      float64
	Indicators IndicatorSet

	// Filled by the sentiment blend stage only.
	SymbolSentiment float64
	NewsSentiment   float64
	Blended         bool
}

// Allocation maps a symbol to the USD amount assigned to it in one cycle.
type Allocation map[string]float64

// Total returns the sum of all allocated amounts.
func (a Allocation) Total() float64 {
	sum := 0.0
	for _, v := range a {
		sum += v
	}
	return sum
}
