package gateway

import "sync"

// replayEntry holds a single broadcast envelope for replay.
type replayEntry struct {
	Seq    int64
	Symbol string
	Data   []byte // pre-built envelope JSON
}

// ReplayBuffer is a fixed-size circular buffer of recent envelopes, used to
// backfill clients that reconnect with ?last_seq=N.
//
// Thread-safe for concurrent writes and reads.
type ReplayBuffer struct {
	mu   sync.RWMutex
	buf  []replayEntry
	cap  int
	pos  int // next write position
	full bool
}

// NewReplayBuffer creates a replay buffer with the given capacity.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 1000
	}
	return &ReplayBuffer{
		buf: make([]replayEntry, capacity),
		cap: capacity,
	}
}

// Push appends an envelope, overwriting the oldest entry when full.
// The buffer keeps its own copy of data.
func (rb *ReplayBuffer) Push(seq int64, symbol string, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.buf[rb.pos] = replayEntry{Seq: seq, Symbol: symbol, Data: cp}
	rb.pos = (rb.pos + 1) % rb.cap
	if rb.pos == 0 && !rb.full {
		rb.full = true
	}
}

// Since returns entries with seq > afterSeq that pass keep, oldest first.
// A nil keep accepts everything.
func (rb *ReplayBuffer) Since(afterSeq int64, keep func(symbol string) bool) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var result []replayEntry
	for i, n := 0, rb.len(); i < n; i++ {
		e := rb.buf[rb.index(i)]
		if e.Seq <= afterSeq {
			continue
		}
		if keep != nil && !keep(e.Symbol) {
			continue
		}
		result = append(result, e)
	}
	return result
}

// Oldest returns the smallest seq still held, or 0 when empty.
func (rb *ReplayBuffer) Oldest() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.len() == 0 {
		return 0
	}
	return rb.buf[rb.index(0)].Seq
}

// Len returns the number of entries currently in the buffer.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.len()
}

func (rb *ReplayBuffer) len() int {
	if rb.full {
		return rb.cap
	}
	return rb.pos
}

// index converts a logical index (0 = oldest) to a physical buffer index.
func (rb *ReplayBuffer) index(logical int) int {
	if rb.full {
		return (rb.pos + logical) % rb.cap
	}
	return logical
}
