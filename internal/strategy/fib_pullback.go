package strategy

import (
	"math"

	"trading-setups/internal/model"
)

// FibPullback fires when price retraces to the 50% or 61.8% level of the
// swing formed by the prior FibLookback bars. The swing direction follows
// whichever extreme printed last: low then high is an up-swing (LONG
// pullback), high then low is a down-swing (SHORT pullback).
type FibPullback struct {
	sc *Scorer
}

func NewFibPullback(sc *Scorer) *FibPullback { return &FibPullback{sc: sc} }

func (d *FibPullback) Name() string { return string(model.SetupFibPullback) }

const (
	FibLookback   = 10
	FibTolerance  = 0.005
	fibExtension  = 0.618
	fibMinFactors = 2
)

var fibLevels = []float64{0.5, 0.618}

func (d *FibPullback) Detect(ctx *Context) *Candidate {
	prior := ctx.Prior(FibLookback)
	cur, ok := ctx.Current()
	if !ok || len(prior) < FibLookback {
		return nil
	}

	hi, lo := prior[0].High, prior[0].Low
	hiIdx, loIdx := 0, 0
	for i := 1; i < len(prior); i++ {
		if prior[i].High >= hi {
			hi, hiIdx = prior[i].High, i
		}
		if prior[i].Low <= lo {
			lo, loIdx = prior[i].Low, i
		}
	}
	rng := hi - lo
	if rng <= 0 || hiIdx == loIdx {
		return nil
	}

	dir := model.Long
	if hiIdx < loIdx {
		dir = model.Short
	}

	near := false
	for _, lvl := range fibLevels {
		level := hi - lvl*rng
		if dir == model.Short {
			level = lo + lvl*rng
		}
		if math.Abs(cur.Close-level)/level <= FibTolerance {
			near = true
			break
		}
	}
	if !near {
		return nil
	}

	c := &Candidate{
		Type:      model.SetupFibPullback,
		Direction: dir,
		Entry:     cur.Close,
		Stop:      lo,
		Targets:   []float64{hi, hi + fibExtension*rng},
	}
	if dir == model.Short {
		c.Stop = hi
		c.Targets = []float64{lo, lo - fibExtension*rng}
	}
	return finish(d.sc, ctx, c, fibMinFactors)
}
