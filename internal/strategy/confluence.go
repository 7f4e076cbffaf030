package strategy

import (
	"fmt"
	"math"

	"trading-setups/internal/indicator"
	"trading-setups/internal/model"
)

// Confluence factor names, in the order Score reports them.
const (
	FactorTrend  = "trend_alignment"
	FactorRSI    = "rsi"
	FactorVWAP   = "vwap"
	FactorVolume = "volume_spike"
	FactorSMA200 = "sma200"
)

// Scorer evaluates confluence factors for a proposed direction.
type Scorer struct {
	cfg Config
}

// NewScorer creates a scorer with the given thresholds.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score returns the five confluence factors for dir, in fixed order.
// Missing inputs yield a factor with Present=false.
func (s *Scorer) Score(ctx *Context, dir model.Direction) []model.ConfluenceFactor {
	cur, _ := ctx.Current()
	price := cur.Close
	long := dir == model.Long

	factors := make([]model.ConfluenceFactor, 0, 5)

	// 1. trend on the 60m snapshot
	trend := model.ConfluenceFactor{Name: FactorTrend}
	switch {
	case ctx.Snap60m.EMA9 == nil || ctx.Snap60m.EMA21 == nil || ctx.Snap60m.EMA50 == nil:
		trend.Description = "60m EMAs unavailable"
	case indicator.IsBullishEMAAlignment(ctx.Snap60m):
		trend.Value = "bullish"
		trend.Description = "60m EMA9 > EMA21 > EMA50"
	case indicator.IsBearishEMAAlignment(ctx.Snap60m):
		trend.Value = "bearish"
		trend.Description = "60m EMA9 < EMA21 < EMA50"
	default:
		trend.Value = "mixed"
		trend.Description = "60m EMAs not stacked"
	}
	trend.Present = indicator.IsAligned(ctx.Snap60m, dir)
	factors = append(factors, trend)

	// 2. RSI extreme on the working timeframe
	rsi := model.ConfluenceFactor{Name: FactorRSI}
	if r := ctx.Snap5m.RSI14; r == nil {
		rsi.Description = "RSI unavailable"
	} else {
		rsi.Value = round2(*r)
		if long {
			rsi.Present = *r < s.cfg.RSIOversold
			rsi.Description = fmt.Sprintf("RSI %.1f vs oversold %.0f", *r, s.cfg.RSIOversold)
		} else {
			rsi.Present = *r > s.cfg.RSIOverbought
			rsi.Description = fmt.Sprintf("RSI %.1f vs overbought %.0f", *r, s.cfg.RSIOverbought)
		}
	}
	factors = append(factors, rsi)

	// 3. price vs working-timeframe VWAP
	vw := model.ConfluenceFactor{Name: FactorVWAP}
	if v := ctx.Snap5m.VWAP; v == nil {
		vw.Description = "VWAP unavailable"
	} else {
		vw.Value = round2(*v)
		if long {
			vw.Present = price > *v
			vw.Description = "price above VWAP"
		} else {
			vw.Present = price < *v
			vw.Description = "price below VWAP"
		}
	}
	factors = append(factors, vw)

	// 4. volume spike vs trailing average
	vol := model.ConfluenceFactor{Name: FactorVolume}
	prior := ctx.Prior(s.cfg.VolumeLookback)
	if len(prior) < s.cfg.VolumeLookback || s.cfg.VolumeLookback == 0 {
		vol.Description = "not enough bars for volume average"
	} else {
		avg := indicator.Mean(indicator.Volumes(prior))
		ratio := 0.0
		if avg > 0 {
			ratio = cur.Volume / avg
		}
		vol.Value = round2(ratio)
		vol.Present = avg > 0 && cur.Volume > avg*s.cfg.VolumeSpikeMult
		vol.Description = fmt.Sprintf("volume %.2fx %d-bar average", ratio, s.cfg.VolumeLookback)
	}
	factors = append(factors, vol)

	// 5. price vs 60m SMA200
	sma := model.ConfluenceFactor{Name: FactorSMA200}
	if v := ctx.Snap60m.SMA200; v == nil {
		sma.Description = "60m SMA200 unavailable"
	} else {
		sma.Value = round2(*v)
		if long {
			sma.Present = price > *v
			sma.Description = "price above 60m SMA200"
		} else {
			sma.Present = price < *v
			sma.Description = "price below 60m SMA200"
		}
	}
	factors = append(factors, sma)

	return factors
}

// Count returns how many factors are present.
func Count(factors []model.ConfluenceFactor) int {
	n := 0
	for _, f := range factors {
		if f.Present {
			n++
		}
	}
	return n
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
