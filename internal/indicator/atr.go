package indicator

import (
	"math"

	"trading-setups/internal/model"
)

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(bar, prev model.Bar) float64 {
	return math.Max(bar.High-bar.Low,
		math.Max(math.Abs(bar.High-prev.Close), math.Abs(bar.Low-prev.Close)))
}

// ATR returns the simple average of the trailing period true ranges.
// Needs period+1 bars; returns 0 below that.
func ATR(bars []model.Bar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return 0
	}
	window := bars[len(bars)-period-1:]
	sum := 0.0
	for i := 1; i < len(window); i++ {
		sum += TrueRange(window[i], window[i-1])
	}
	return sum / float64(period)
}
