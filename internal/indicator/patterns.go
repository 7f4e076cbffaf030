package indicator

import "trading-setups/internal/model"

// DefaultPatientThreshold is the fraction of ATR below which a candle's
// range counts as consolidation.
const DefaultPatientThreshold = 0.5

// IsPatientCandle reports whether bar's range is below atr*threshold.
// A zero ATR never yields a patient candle.
func IsPatientCandle(bar model.Bar, atr, threshold float64) bool {
	return bar.Range() < atr*threshold
}

// IsBullishEMAAlignment reports ema9 > ema21 > ema50.
// False when any of the three is absent.
func IsBullishEMAAlignment(s model.IndicatorSnapshot) bool {
	if s.EMA9 == nil || s.EMA21 == nil || s.EMA50 == nil {
		return false
	}
	return *s.EMA9 > *s.EMA21 && *s.EMA21 > *s.EMA50
}

// IsBearishEMAAlignment reports ema9 < ema21 < ema50.
// False when any of the three is absent.
func IsBearishEMAAlignment(s model.IndicatorSnapshot) bool {
	if s.EMA9 == nil || s.EMA21 == nil || s.EMA50 == nil {
		return false
	}
	return *s.EMA9 < *s.EMA21 && *s.EMA21 < *s.EMA50
}

// IsAligned dispatches to the bullish or bearish check for dir.
func IsAligned(s model.IndicatorSnapshot, dir model.Direction) bool {
	if dir == model.Long {
		return IsBullishEMAAlignment(s)
	}
	return IsBearishEMAAlignment(s)
}
