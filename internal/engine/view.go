package engine

import (
	"trading-setups/internal/indicator"
	"trading-setups/internal/model"
)

// SymbolView is a read-only copy of one symbol's live state.
type SymbolView struct {
	Symbol     string                                      `json:"symbol"`
	LastTrade  *model.Trade                                `json:"last_trade,omitempty"`
	LastQuote  *model.Quote                                `json:"last_quote,omitempty"`
	LastBar    *model.Bar                                  `json:"last_bar,omitempty"`
	Snapshots  map[model.Timeframe]model.IndicatorSnapshot `json:"snapshots"`
	Pivots     *indicator.Pivots                           `json:"pivots,omitempty"` // from the latest 60m bar
	BarCounts  map[model.Timeframe]int                     `json:"bar_counts"`
	OpenSetups int                                         `json:"open_setups"`
}

// GetSymbolView returns a snapshot of symbol's state, or false if the symbol
// has never been seen.
func (e *Engine) GetSymbolView(symbol string) (SymbolView, bool) {
	var v SymbolView
	ok := e.query(symbol, func(s *symbolState) { v = s.view() })
	return v, ok
}

func (s *symbolState) view() SymbolView {
	v := SymbolView{
		Symbol:    s.symbol,
		Snapshots: make(map[model.Timeframe]model.IndicatorSnapshot, len(s.snaps)),
		BarCounts: make(map[model.Timeframe]int, len(model.Timeframes)),
	}
	if s.lastTrade != nil {
		t := *s.lastTrade
		v.LastTrade = &t
	}
	if s.lastQuote != nil {
		q := *s.lastQuote
		v.LastQuote = &q
	}
	if b, ok := s.bars.History(model.TF1m).Latest(); ok {
		v.LastBar = &b
	}
	for tf, snap := range s.snaps {
		v.Snapshots[tf] = snap.Clone()
	}
	for _, tf := range model.Timeframes {
		v.BarCounts[tf] = s.bars.Len(tf)
	}
	if b, ok := s.bars.History(model.TF60m).Latest(); ok {
		p := indicator.PivotPoints(b)
		v.Pivots = &p
	}
	for _, st := range s.setups {
		if st.Status.Open() {
			v.OpenSetups++
		}
	}
	return v
}
