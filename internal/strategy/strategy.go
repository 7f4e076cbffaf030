// Package strategy holds the setup detectors and the confluence scorer they
// share.
//
// A Detector inspects one symbol's state each time a new working-timeframe
// (5m) bar is produced and proposes at most one Candidate. The engine turns
// candidates into Setups; detectors never mutate state.
package strategy

import (
	"time"

	"trading-setups/internal/indicator"
	"trading-setups/internal/markethours"
	"trading-setups/internal/model"
)

// WorkingTimeframe is the timeframe every detector evaluates.
const WorkingTimeframe = model.TF5m

// Detector is the interface every setup rule implements.
type Detector interface {
	// Name returns a stable identifier used in logs and metrics.
	Name() string

	// Detect returns a candidate setup, or nil when the rule does not fire.
	Detect(ctx *Context) *Candidate
}

// Context is the read-only view of a symbol handed to detectors.
// Bar slices are oldest first and owned by the caller.
type Context struct {
	Symbol  string
	Now     time.Time   // timestamp of the latest 1m bar
	Bars1m  []model.Bar // session bars, used for the opening range
	Bars5m  []model.Bar // last element is the bar being evaluated
	Snap5m  model.IndicatorSnapshot
	Snap60m model.IndicatorSnapshot
	Session *markethours.Session
}

// Current returns the working-timeframe bar under evaluation.
func (c *Context) Current() (model.Bar, bool) {
	if len(c.Bars5m) == 0 {
		return model.Bar{}, false
	}
	return c.Bars5m[len(c.Bars5m)-1], true
}

// Prior returns up to n working-timeframe bars preceding the current one.
func (c *Context) Prior(n int) []model.Bar {
	if len(c.Bars5m) < 2 {
		return nil
	}
	end := len(c.Bars5m) - 1
	start := end - n
	if start < 0 {
		start = 0
	}
	return c.Bars5m[start:end]
}

// Candidate is a detector's proposal. The engine assigns id, status and
// timestamps when it accepts one.
type Candidate struct {
	Type          model.SetupType
	Direction     model.Direction
	Entry         float64
	Stop          float64
	Targets       []float64
	Factors       []model.ConfluenceFactor
	Score         int
	PatientCandle *model.Bar
}

// Config carries the tunable thresholds shared by the scorer and detectors.
type Config struct {
	RSIOversold      float64 `yaml:"rsi_oversold" envconfig:"RSI_OVERSOLD"`
	RSIOverbought    float64 `yaml:"rsi_overbought" envconfig:"RSI_OVERBOUGHT"`
	VolumeSpikeMult  float64 `yaml:"volume_spike_mult" envconfig:"VOLUME_SPIKE_MULT"`
	VolumeLookback   int     `yaml:"volume_lookback" envconfig:"VOLUME_LOOKBACK"`
	PatientThreshold float64 `yaml:"patient_threshold" envconfig:"PATIENT_THRESHOLD"`

	ORBRangeMinutes int `yaml:"orb_range_minutes" envconfig:"ORB_RANGE_MINUTES"`
	ORBMinMinutes   int `yaml:"orb_min_minutes" envconfig:"ORB_MIN_MINUTES"`
	ORBMaxMinutes   int `yaml:"orb_max_minutes" envconfig:"ORB_MAX_MINUTES"`
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		RSIOversold:      35,
		RSIOverbought:    65,
		VolumeSpikeMult:  1.5,
		VolumeLookback:   10,
		PatientThreshold: indicator.DefaultPatientThreshold,
		ORBRangeMinutes:  15,
		ORBMinMinutes:    5,
		ORBMaxMinutes:    60,
	}
}

// DefaultDetectors returns the six built-in detectors in evaluation order.
func DefaultDetectors(cfg Config) []Detector {
	sc := NewScorer(cfg)
	return []Detector{
		NewORBPatientCandle(cfg, sc),
		NewEMABounce(sc),
		NewVWAPReclaim(sc),
		NewEMACloud(sc),
		NewFibPullback(sc),
		NewBreakout(sc),
	}
}

// finish scores a proposal and applies the detector's confluence gate.
// Returns nil when fewer than min factors are present.
func finish(sc *Scorer, ctx *Context, c *Candidate, min int) *Candidate {
	c.Factors = sc.Score(ctx, c.Direction)
	c.Score = Count(c.Factors)
	if c.Score < min {
		return nil
	}
	return c
}

// pct returns price scaled by (1 + p) for LONG and (1 - p) for SHORT.
func pct(price, p float64, dir model.Direction) float64 {
	if dir == model.Long {
		return price * (1 + p)
	}
	return price * (1 - p)
}
