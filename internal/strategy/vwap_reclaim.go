package strategy

import "trading-setups/internal/model"

// VWAPReclaim fires when price crosses back to VWAP from the other side and
// closes within VWAPReclaimBand of it.
type VWAPReclaim struct {
	sc *Scorer
}

func NewVWAPReclaim(sc *Scorer) *VWAPReclaim { return &VWAPReclaim{sc: sc} }

func (d *VWAPReclaim) Name() string { return string(model.SetupVWAPReclaim) }

// VWAPReclaimBand is the maximum distance from VWAP, as a fraction.
const VWAPReclaimBand = 0.003

const vwapMinFactors = 2

func (d *VWAPReclaim) Detect(ctx *Context) *Candidate {
	if ctx.Snap5m.VWAP == nil {
		return nil
	}
	vwap := *ctx.Snap5m.VWAP
	prior := ctx.Prior(1)
	cur, ok := ctx.Current()
	if !ok || len(prior) == 0 || vwap <= 0 {
		return nil
	}
	prevClose := prior[0].Close
	dist := (cur.Close - vwap) / vwap

	var dir model.Direction
	switch {
	case prevClose < vwap && dist >= 0 && dist <= VWAPReclaimBand:
		dir = model.Long
	case prevClose > vwap && dist <= 0 && -dist <= VWAPReclaimBand:
		dir = model.Short
	default:
		return nil
	}

	entry := cur.Close
	return finish(d.sc, ctx, &Candidate{
		Type:      model.SetupVWAPReclaim,
		Direction: dir,
		Entry:     entry,
		Stop:      pct(vwap, -VWAPReclaimBand, dir),
		Targets:   []float64{pct(entry, 0.015, dir), pct(entry, 0.03, dir)},
	}, vwapMinFactors)
}
