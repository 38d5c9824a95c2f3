package calculator

import (
	"errors"
	"math"
)

// BollingerBands is the latest band reading.
type BollingerBands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Width returns Upper - Lower.
func (b BollingerBands) Width() float64 { return b.Upper - b.Lower }

// flatWidth is the relative band width treated as zero.
const flatWidth = 1e-9

// PercentB locates price inside the band. A zero-width band yields 0.
func (b BollingerBands) PercentB(price float64) float64 {
	width := b.Width()
	if width <= flatWidth*math.Abs(b.Middle) || width == 0 {
		return 0.0
	}
	return (price - b.Lower) / width
}

// CalculateBollinger computes bands of period with k population standard
// deviations around the SMA of the last period closes.
func CalculateBollinger(closes []float64, period int, k float64) (BollingerBands, error) {
	if k < 0 {
		return BollingerBands{}, errors.New("deviation factor must be non-negative")
	}
	mid, err := CalculateSMA(closes, period)
	if err != nil {
		return BollingerBands{}, err
	}
	window := closes[len(closes)-period:]
	if isFlat(window) {
		return BollingerBands{Upper: window[0], Middle: window[0], Lower: window[0]}, nil
	}
	variance := 0.0
	for _, c := range window {
		d := c - mid
		variance += d * d
	}
	sd := math.Sqrt(variance / float64(period))
	return BollingerBands{
		Upper:  mid + k*sd,
		Middle: mid,
		Lower:  mid - k*sd,
	}, nil
}

func isFlat(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}
