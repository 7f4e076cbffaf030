package model

import "time"

// SetupType identifies the pattern that produced a setup.
type SetupType string

const (
	SetupORB              SetupType = "ORB"
	SetupPatientCandle    SetupType = "PATIENT_CANDLE"
	SetupORBPatientCandle SetupType = "ORB_PATIENT_CANDLE"
	SetupEMABounce        SetupType = "EMA_BOUNCE"
	SetupVWAPReclaim      SetupType = "VWAP_RECLAIM"
	SetupEMACloud         SetupType = "EMA_CLOUD"
	SetupFibPullback      SetupType = "FIB_PULLBACK"
	SetupBreakout         SetupType = "BREAKOUT"
	SetupBreakdown        SetupType = "BREAKDOWN"
	SetupReversal         SetupType = "REVERSAL"
)

// Direction is the side a setup trades.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Status is the lifecycle state of a setup.
//
// The engine itself only moves FORMING -> ACTIVE -> CLOSED (or FORMING -> CLOSED).
// DISMISSED, SETUP_READY and REENTRY_SETUP are assigned by API callers.
type Status string

const (
	StatusForming Status = "SETUP_FORMING"
	StatusReady   Status = "SETUP_READY"
	StatusActive  Status = "ACTIVE"
	StatusClosed  Status = "CLOSED"
	StatusDismiss Status = "DISMISSED"
	StatusReentry Status = "REENTRY_SETUP"
)

// Open reports whether trades are still evaluated against the setup.
func (s Status) Open() bool {
	return s == StatusForming || s == StatusReady || s == StatusActive
}

// Terminal reports whether the setup is finished for good.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusDismiss
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusForming, StatusReady, StatusActive, StatusClosed, StatusDismiss, StatusReentry:
		return true
	}
	return false
}

// IndicatorSnapshot is the latest indicator set for one (symbol, timeframe).
// A nil field means the timeframe has not accumulated enough bars for it yet.
type IndicatorSnapshot struct {
	EMA9   *float64 `json:"ema9,omitempty"`
	EMA21  *float64 `json:"ema21,omitempty"`
	EMA50  *float64 `json:"ema50,omitempty"`
	SMA200 *float64 `json:"sma200,omitempty"`
	RSI14  *float64 `json:"rsi14,omitempty"`
	VWAP   *float64 `json:"vwap,omitempty"`
	ATR14  *float64 `json:"atr14,omitempty"`
}

// Clone returns a copy that shares no pointers with s.
func (s IndicatorSnapshot) Clone() IndicatorSnapshot {
	return IndicatorSnapshot{
		EMA9:   clonePtr(s.EMA9),
		EMA21:  clonePtr(s.EMA21),
		EMA50:  clonePtr(s.EMA50),
		SMA200: clonePtr(s.SMA200),
		RSI14:  clonePtr(s.RSI14),
		VWAP:   clonePtr(s.VWAP),
		ATR14:  clonePtr(s.ATR14),
	}
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ConfluenceFactor is one supporting condition evaluated for a setup.
// Value is a number or a short string, whichever describes the reading best.
type ConfluenceFactor struct {
	Name        string `json:"name"`
	Present     bool   `json:"present"`
	Value       any    `json:"value,omitempty"`
	Description string `json:"description"`
}

// Setup is a candidate trade produced by a detector.
// EntryPrice, StopLoss and Targets are fixed at creation; only Status and
// LastUpdate change afterwards.
type Setup struct {
	ID                string             `json:"id"`
	Symbol            string             `json:"symbol"`
	Type              SetupType          `json:"type"`
	Direction         Direction          `json:"direction"`
	Status            Status             `json:"status"`
	Timeframe         Timeframe          `json:"timeframe"`
	EntryPrice        float64            `json:"entry_price"`
	StopLoss          float64            `json:"stop_loss"`
	Targets           []float64          `json:"targets"`
	ConfluenceScore   int                `json:"confluence_score"`
	ConfluenceFactors []ConfluenceFactor `json:"confluence_factors"`
	PatientCandle     *Bar               `json:"patient_candle,omitempty"`
	Indicators        IndicatorSnapshot  `json:"indicators"`
	CreatedAt         time.Time          `json:"created_at"`
	LastUpdate        time.Time          `json:"last_update"`
}

// Risk returns |entry - stop|.
func (s *Setup) Risk() float64 {
	r := s.EntryPrice - s.StopLoss
	if r < 0 {
		return -r
	}
	return r
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *Setup) Clone() Setup {
	c := *s
	c.Targets = append([]float64(nil), s.Targets...)
	c.ConfluenceFactors = append([]ConfluenceFactor(nil), s.ConfluenceFactors...)
	if s.PatientCandle != nil {
		pc := *s.PatientCandle
		c.PatientCandle = &pc
	}
	c.Indicators = s.Indicators.Clone()
	return c
}
