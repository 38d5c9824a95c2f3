package strategy

import (
	"fmt"

	"BasketPilot/internal/model"
)

// Fixed composite weights.
const (
	RSIWeight  = 0.4
	MACDWeight = 0.3
	BBWeight   = 0.3
)

// Factor is one weighted term of the composite score.
type Factor struct {
	Name       string
	Raw        float64
	Weight     float64
	Weighted   float64
	Commentary string
}

// scoreRSI rewards oversold readings: a low RSI produces a high term.
// Weight: 0.4
func scoreRSI(ind model.IndicatorSet) Factor {
	raw := 1 - ind.RSI/100
	return Factor{
		Name:       "RSI",
		Raw:        raw,
		Weight:     RSIWeight,
		Weighted:   raw * RSIWeight,
		Commentary: fmt.Sprintf("RSI=%.1f", ind.RSI),
	}
}

// scoreMACD uses the histogram as-is, so its scale follows the price scale.
// Weight: 0.3
func scoreMACD(ind model.IndicatorSet) Factor {
	commentary := "flat"
	switch {
	case ind.MACDDiff > 0:
		commentary = "bullish"
	case ind.MACDDiff < 0:
		commentary = "bearish"
	}
	return Factor{
		Name:       "MACD",
		Raw:        ind.MACDDiff,
		Weight:     MACDWeight,
		Weighted:   ind.MACDDiff * MACDWeight,
		Commentary: commentary,
	}
}

// scoreBollinger uses the position inside the band.
// Weight: 0.3
func scoreBollinger(ind model.IndicatorSet) Factor {
	return Factor{
		Name:       "Bollinger %B",
		Raw:        ind.BBPercent,
		Weight:     BBWeight,
		Weighted:   ind.BBPercent * BBWeight,
		Commentary: fmt.Sprintf("%%B=%.2f", ind.BBPercent),
	}
}

// Factors breaks the composite score into its weighted terms.
func Factors(ind model.IndicatorSet) []Factor {
	return []Factor{scoreRSI(ind), scoreMACD(ind), scoreBollinger(ind)}
}

// Score computes 0.4*(1-RSI/100) + 0.3*MACD + 0.3*%B.
func Score(ind model.IndicatorSet) float64 {
	total := 0.0
	for _, f := range Factors(ind) {
		total += f.Weighted
	}
	return total
}
