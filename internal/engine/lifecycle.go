package engine

import (
	"log"
	"sort"

	"trading-setups/internal/model"
)

// onTrade records the trade and evaluates every open setup of the symbol
// against its price, oldest setup first.
func (s *symbolState) onTrade(trade model.Trade) {
	s.lastTrade = &trade

	open := make([]*model.Setup, 0, len(s.setups))
	for _, st := range s.setups {
		if st.Status.Open() {
			open = append(open, st)
		}
	}
	sort.Slice(open, func(i, j int) bool {
		if !open[i].CreatedAt.Equal(open[j].CreatedAt) {
			return open[i].CreatedAt.Before(open[j].CreatedAt)
		}
		return open[i].ID < open[j].ID
	})

	for _, st := range open {
		for _, ev := range evaluate(st, trade) {
			s.emit(ev)
		}
	}
}

// evaluate applies one trade to one open setup and returns the resulting
// events. The first target crossed moves the setup to ACTIVE (once); a stop
// crossing closes it. LastUpdate always moves to the trade time.
func evaluate(st *model.Setup, trade model.Trade) []model.Event {
	st.LastUpdate = trade.Timestamp
	var events []model.Event

	if st.Status != model.StatusActive {
		for i, target := range st.Targets {
			if crossed(st.Direction, trade.Price, target) {
				st.Status = model.StatusActive
				events = append(events, model.Event{
					Type:        model.EventTargetHit,
					Setup:       st.Clone(),
					TargetIndex: i,
					Price:       trade.Price,
					Timestamp:   trade.Timestamp,
				})
				log.Printf("[lifecycle] %s target %d hit at %.4f", st.ID, i, trade.Price)
				break
			}
		}
	}

	if stopped(st.Direction, trade.Price, st.StopLoss) {
		st.Status = model.StatusClosed
		events = append(events, model.Event{
			Type:      model.EventStopLossHit,
			Setup:     st.Clone(),
			Price:     trade.Price,
			Timestamp: trade.Timestamp,
		})
		log.Printf("[lifecycle] %s stopped out at %.4f", st.ID, trade.Price)
	}
	return events
}

// crossed reports whether price reached target in the setup's favour.
func crossed(dir model.Direction, price, target float64) bool {
	if dir == model.Long {
		return price >= target
	}
	return price <= target
}

// stopped reports whether price reached the stop against the setup.
func stopped(dir model.Direction, price, stop float64) bool {
	if dir == model.Long {
		return price <= stop
	}
	return price >= stop
}
