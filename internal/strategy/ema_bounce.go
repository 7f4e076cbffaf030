package strategy

import (
	"trading-setups/internal/indicator"
	"trading-setups/internal/model"
)

// EMABounce fires when the prior bar tagged the 21 EMA and the current bar
// closes back on the side of the 60m trend.
type EMABounce struct {
	sc *Scorer
}

func NewEMABounce(sc *Scorer) *EMABounce { return &EMABounce{sc: sc} }

func (d *EMABounce) Name() string { return string(model.SetupEMABounce) }

const (
	emaBounceMinFactors = 2
	emaBounceStopPct    = 0.02
)

func (d *EMABounce) Detect(ctx *Context) *Candidate {
	ema21 := ctx.Snap5m.EMA21
	if ema21 == nil {
		return nil
	}
	prior := ctx.Prior(1)
	cur, ok := ctx.Current()
	if !ok || len(prior) == 0 {
		return nil
	}
	prev := prior[0]

	var dir model.Direction
	switch {
	case indicator.IsBullishEMAAlignment(ctx.Snap60m):
		dir = model.Long
	case indicator.IsBearishEMAAlignment(ctx.Snap60m):
		dir = model.Short
	default:
		return nil
	}

	ema := *ema21
	if prev.Low > ema || prev.High < ema {
		return nil
	}
	if dir == model.Long && cur.Close <= ema {
		return nil
	}
	if dir == model.Short && cur.Close >= ema {
		return nil
	}

	entry := cur.Close
	stop := ema * (1 - emaBounceStopPct)
	if dir == model.Short {
		stop = ema * (1 + emaBounceStopPct)
	}
	return finish(d.sc, ctx, &Candidate{
		Type:      model.SetupEMABounce,
		Direction: dir,
		Entry:     entry,
		Stop:      stop,
		Targets:   []float64{pct(entry, 0.02, dir), pct(entry, 0.04, dir)},
	}, emaBounceMinFactors)
}
