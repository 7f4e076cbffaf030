package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timeframe is a bar duration in seconds (e.g., 60 = 1 minute).
type Timeframe int

const (
	TF1m  Timeframe = 60
	TF5m  Timeframe = 300
	TF60m Timeframe = 3600
)

// Timeframes lists the timeframes tracked per symbol, smallest first.
var Timeframes = []Timeframe{TF1m, TF5m, TF60m}

// String returns the short label used in logs, metrics and JSON ("1m", "5m", "60m").
func (tf Timeframe) String() string {
	return strconv.Itoa(int(tf)/60) + "m"
}

// MarshalText encodes the timeframe as its label.
func (tf Timeframe) MarshalText() ([]byte, error) {
	return []byte(tf.String()), nil
}

// UnmarshalText accepts "5m"-style labels or a plain number of seconds.
func (tf *Timeframe) UnmarshalText(b []byte) error {
	s := string(b)
	if m, ok := strings.CutSuffix(s, "m"); ok {
		n, err := strconv.Atoi(m)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid timeframe %q", s)
		}
		*tf = Timeframe(n * 60)
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fmt.Errorf("invalid timeframe %q", s)
	}
	*tf = Timeframe(n)
	return nil
}

// Bar is an OHLCV candle for one symbol. Bars are immutable once produced.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"` // bar start time
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	VWAP      float64   `json:"vwap,omitempty"` // zero when the feed does not provide one
}

// Range returns high - low.
func (b *Bar) Range() float64 {
	return b.High - b.Low
}

// TypicalPrice returns (high + low + close) / 3.
func (b *Bar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}

// Trade is a single print from the feed.
type Trade struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
}

// Quote is the latest top-of-book for a symbol.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	BidPrice  float64   `json:"bid_price"`
	BidSize   float64   `json:"bid_size"`
	AskPrice  float64   `json:"ask_price"`
	AskSize   float64   `json:"ask_size"`
}

// Mid returns the bid/ask midpoint, or 0 if either side is missing.
func (q *Quote) Mid() float64 {
	if q.BidPrice <= 0 || q.AskPrice <= 0 {
		return 0
	}
	return (q.BidPrice + q.AskPrice) / 2
}
