package indicator

import "trading-setups/internal/model"

// Compute builds an IndicatorSnapshot from a bar window, oldest first.
// Each field is set only once the window holds enough bars for it:
// EMA9 9, EMA21 21, EMA50 50, SMA200 200, RSI14 15, ATR14 15, VWAP 1.
func Compute(bars []model.Bar) model.IndicatorSnapshot {
	var snap model.IndicatorSnapshot
	n := len(bars)
	if n == 0 {
		return snap
	}
	closes := Closes(bars)

	if n >= PeriodEMAFast {
		snap.EMA9 = model.Float(EMA(closes, PeriodEMAFast))
	}
	if n >= PeriodEMASlow {
		snap.EMA21 = model.Float(EMA(closes, PeriodEMASlow))
	}
	if n >= PeriodEMATrend {
		snap.EMA50 = model.Float(EMA(closes, PeriodEMATrend))
	}
	if n >= PeriodSMALong {
		snap.SMA200 = model.Float(SMA(closes, PeriodSMALong))
	}
	if n >= PeriodRSI+1 {
		snap.RSI14 = model.Float(RSI(closes, PeriodRSI))
	}
	if n >= PeriodATR+1 {
		snap.ATR14 = model.Float(ATR(bars, PeriodATR))
	}
	snap.VWAP = model.Float(VWAP(bars))
	return snap
}
