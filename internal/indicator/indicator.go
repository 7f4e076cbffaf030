// Package indicator provides technical indicator calculations over bar data.
//
// Every function here is pure: it takes a price or bar window and returns a
// value. Below an indicator's minimum sample count the result degrades to a
// safe default (last price, neutral RSI, zero ATR) instead of failing.
package indicator

import "trading-setups/internal/model"

// Standard periods used by the engine's snapshots.
const (
	PeriodEMAFast  = 9
	PeriodEMASlow  = 21
	PeriodEMATrend = 50
	PeriodSMALong  = 200
	PeriodRSI      = 14
	PeriodATR      = 14
)

// Closes extracts close prices from bars, oldest first.
func Closes(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Close
	}
	return out
}

// Volumes extracts volumes from bars, oldest first.
func Volumes(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Volume
	}
	return out
}

func last(prices []float64) float64 {
	if len(prices) == 0 {
		return 0
	}
	return prices[len(prices)-1]
}
