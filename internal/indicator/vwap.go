package indicator

import "trading-setups/internal/model"

// VWAP returns the volume-weighted mean of typical price (h+l+c)/3 across
// bars. It is computed fresh over the window passed in, not cumulatively.
// When the window carries no volume it returns the last close.
func VWAP(bars []model.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	var pv, vol float64
	for i := range bars {
		pv += bars[i].TypicalPrice() * bars[i].Volume
		vol += bars[i].Volume
	}
	if vol == 0 {
		return bars[len(bars)-1].Close
	}
	return pv / vol
}
