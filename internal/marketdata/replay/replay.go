// Package replay feeds archived 1-minute bars back through a bar sink at a
// configurable speed, for backtesting detectors against recorded sessions.
package replay

import (
	"context"
	"log"
	"sort"
	"time"

	"trading-setups/internal/model"
)

// BarSink receives replayed bars. The setup engine satisfies it.
type BarSink interface {
	ProcessBar(bar model.Bar)
}

// maxGap caps the simulated wait between consecutive bars.
const maxGap = 5 * time.Second

// Replayer reads historical bars and replays them in time order.
type Replayer struct {
	reader model.BarReader

	// OnBar is called after each bar is handed to the sink (optional).
	OnBar func(bar model.Bar)
}

// New creates a Replayer backed by a bar reader.
func New(reader model.BarReader) *Replayer {
	return &Replayer{reader: reader}
}

// Run replays bars for the given symbols within [from, to) into sink. An
// empty symbol list replays every archived symbol.
// speed controls the playback rate: 1.0 = real-time, 10.0 = 10x, 0 = as fast as possible.
// Returns the number of bars replayed.
func (r *Replayer) Run(ctx context.Context, symbols []string, from, to time.Time, speed float64, sink BarSink) (int, error) {
	var all []model.Bar
	if len(symbols) == 0 {
		bars, err := r.reader.ReadBars("", from, to)
		if err != nil {
			return 0, err
		}
		all = bars
	}
	for _, sym := range symbols {
		bars, err := r.reader.ReadBars(sym, from, to)
		if err != nil {
			return 0, err
		}
		all = append(all, bars...)
	}

	if len(all) == 0 {
		log.Println("[replay] no bars found")
		return 0, nil
	}

	// Interleave symbols; the stable sort keeps per-symbol order for equal timestamps.
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})

	log.Printf("[replay] loaded %d bars, speed=%.1fx", len(all), speed)

	var prevTS time.Time
	emitted := 0

	for _, b := range all {
		select {
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d bars", emitted)
			return emitted, ctx.Err()
		default:
		}

		if speed > 0 && !prevTS.IsZero() {
			if gap := b.Timestamp.Sub(prevTS); gap > 0 {
				scaled := time.Duration(float64(gap) / speed)
				if scaled > maxGap {
					scaled = maxGap
				}
				select {
				case <-ctx.Done():
					return emitted, ctx.Err()
				case <-time.After(scaled):
				}
			}
		}
		prevTS = b.Timestamp

		sink.ProcessBar(b)
		if r.OnBar != nil {
			r.OnBar(b)
		}
		emitted++
	}

	log.Printf("[replay] completed: %d bars replayed", emitted)
	return emitted, nil
}
