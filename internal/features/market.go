package features

import (
	"errors"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
)

const (
	emaFast   = 5
	emaSlow   = 20
	rsiPeriod = 14
	// A relative EMA spread of this size saturates the spread component.
	spreadSaturation = 0.1
)

// MinTrendPoints is the shortest close series TrendSignal accepts.
const MinTrendPoints = emaSlow + 1

var ErrTooFewPoints = errors.New("too few price points")

// TrendSignal scores a close series in [-1,1]. It averages the relative
// EMA(5)/EMA(20) spread and the RSI(14) distance from 50.
func TrendSignal(closes []float64) (float64, error) {
	if len(closes) < MinTrendPoints {
		return 0, fmt.Errorf("%w: %d < %d", ErrTooFewPoints, len(closes), MinTrendPoints)
	}
	flat := true
	for _, c := range closes {
		if math.IsNaN(c) || math.IsInf(c, 0) || c <= 0 {
			return 0, fmt.Errorf("invalid close %v", c)
		}
		if c != closes[0] {
			flat = false
		}
	}
	if flat {
		return 0, nil
	}
	fast := last(talib.Ema(closes, emaFast))
	slow := last(talib.Ema(closes, emaSlow))
	rsi := last(talib.Rsi(closes, rsiPeriod))

	var spread float64
	if slow != 0 {
		spread = clamp((fast-slow)/slow/spreadSaturation, -1, 1)
	}
	momentum := clamp((rsi-50)/50, -1, 1)
	return clamp((spread+momentum)/2, -1, 1), nil
}

func last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	v := series[len(series)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
