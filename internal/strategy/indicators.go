package strategy

import (
	"errors"
	"fmt"
	"math"

	"github.com/evdnx/goti"

	"BasketPilot/internal/calculator"
	"BasketPilot/internal/model"
)

// Indicator lookbacks.
const (
	RSIPeriod       = 14
	MACDFast        = 12
	MACDSlow        = 26
	MACDSignal      = 9
	ADXPeriod       = 14
	BollingerPeriod = 20
	BollingerK      = 2.0
)

// MinBars is the shortest series every indicator can be computed from.
const MinBars = MACDSlow + MACDSignal

var ErrInsufficientBars = errors.New("insufficient bars")

// ComputeIndicators reads the latest value of every scoring indicator.
// Any failure is returned as an error so the caller can skip the symbol.
func ComputeIndicators(series model.CandleSeries) (model.IndicatorSet, error) {
	if series.Len() < MinBars {
		return model.IndicatorSet{}, fmt.Errorf("%w: have %d", ErrInsufficientBars, series.Len())
	}
	closes := series.Closes()
	highs := series.Highs()
	lows := series.Lows()

	rsi := gotiRSI(closes)
	if math.IsNaN(rsi) {
		v, err := calculator.CalculateRSI(closes, RSIPeriod)
		if err != nil {
			return model.IndicatorSet{}, fmt.Errorf("rsi: %w", err)
		}
		rsi = v
	}

	macd, err := calculator.CalculateMACD(closes, MACDFast, MACDSlow, MACDSignal)
	if err != nil {
		return model.IndicatorSet{}, fmt.Errorf("macd: %w", err)
	}

	adx, err := calculator.CalculateADX(highs, lows, closes, ADXPeriod)
	if err != nil {
		return model.IndicatorSet{}, fmt.Errorf("adx: %w", err)
	}

	bands, err := calculator.CalculateBollinger(closes, BollingerPeriod, BollingerK)
	if err != nil {
		return model.IndicatorSet{}, fmt.Errorf("bollinger: %w", err)
	}

	set := model.IndicatorSet{
		RSI:       rsi,
		MACDDiff:  macd.Diff,
		ADX:       adx,
		BBPercent: bands.PercentB(closes[len(closes)-1]),
	}
	if !finite(set.MACDDiff) || !finite(set.ADX) || !finite(set.BBPercent) {
		return model.IndicatorSet{}, errors.New("non-finite indicator value")
	}
	return set, nil
}

// gotiRSI streams closes through a goti RSI of RSIPeriod. NaN means no
// usable reading was produced.
func gotiRSI(closes []float64) float64 {
	ind, err := goti.NewRelativeStrengthIndexWithParams(RSIPeriod, goti.DefaultConfig())
	if err != nil {
		return math.NaN()
	}
	for _, c := range closes {
		if err := ind.Add(c); err != nil {
			return math.NaN()
		}
	}
	v, err := ind.Calculate()
	if err != nil || !finite(v) || v < 0 || v > 100 {
		return math.NaN()
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
