package gateway

import (
	"strconv"
	"time"

	"trading-setups/internal/model"
)

// Broadcast wraps ev in an envelope with the next seq, stores it for replay
// and queues it on every client whose filter matches. Slow clients miss
// envelopes rather than block the hub; they can recover with last_seq.
func (h *Hub) Broadcast(ev model.Event) {
	now := time.Now().UTC()
	symbol := ev.Symbol()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	buf := buildEnvelope(ev.Channel(), ev.JSON(), now, h.seq)
	h.replay.Push(h.seq, symbol, buf)

	for client := range h.clients {
		if !client.matches(symbol) {
			continue
		}
		select {
		case client.send <- buf:
		default:
		}
	}
}

// buildEnvelope hand-crafts {"type":"event","channel":...,"data":...,"ts":...,"seq":N}.
func buildEnvelope(channel string, data []byte, now time.Time, seq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+128)
	buf = append(buf, `{"type":"event","channel":`...)
	buf = strconv.AppendQuote(buf, channel)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}
