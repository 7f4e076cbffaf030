package strategy

import (
	"math"

	"trading-setups/internal/model"
)

// EMACloud fires when price closes clear of the 9/21 EMA cloud while the
// cloud is ordered in the same direction.
type EMACloud struct {
	sc *Scorer
}

func NewEMACloud(sc *Scorer) *EMACloud { return &EMACloud{sc: sc} }

func (d *EMACloud) Name() string { return string(model.SetupEMACloud) }

const emaCloudMinFactors = 3

func (d *EMACloud) Detect(ctx *Context) *Candidate {
	if ctx.Snap5m.EMA9 == nil || ctx.Snap5m.EMA21 == nil {
		return nil
	}
	ema9, ema21 := *ctx.Snap5m.EMA9, *ctx.Snap5m.EMA21
	cur, ok := ctx.Current()
	if !ok {
		return nil
	}
	top, bottom := math.Max(ema9, ema21), math.Min(ema9, ema21)

	var dir model.Direction
	switch {
	case ema9 > ema21 && cur.Close > top:
		dir = model.Long
	case ema9 < ema21 && cur.Close < bottom:
		dir = model.Short
	default:
		return nil
	}

	thickness := top - bottom
	entry := cur.Close
	targets := []float64{entry + thickness, entry + 2*thickness}
	if dir == model.Short {
		targets = []float64{entry - thickness, entry - 2*thickness}
	}
	return finish(d.sc, ctx, &Candidate{
		Type:      model.SetupEMACloud,
		Direction: dir,
		Entry:     entry,
		Stop:      ema21,
		Targets:   targets,
	}, emaCloudMinFactors)
}
