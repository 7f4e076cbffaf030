package model

import (
	"context"
	"time"
)

// ── Port Interfaces ──
// These interfaces decouple the engine pipeline from concrete adapters
// (Redis, SQLite, alert channels). Each adapter satisfies one of them.

// EventSink consumes engine events from a bus subscription.
type EventSink interface {
	// Run reads events from ch and handles them.
	// Blocks until ctx is cancelled or ch is closed.
	Run(ctx context.Context, ch <-chan Event)

	// Close releases underlying resources.
	Close() error
}

// BarWriter archives ingested bars.
type BarWriter interface {
	// RunBars reads bars from barCh and writes them in batches.
	// Blocks until ctx is cancelled or barCh is closed.
	RunBars(ctx context.Context, barCh <-chan Bar)

	// Close releases underlying resources.
	Close() error
}

// BarReader reads archived bars for replay.
type BarReader interface {
	// ReadBars returns bars for symbol within [from, to), oldest first.
	// An empty symbol selects every symbol.
	ReadBars(symbol string, from, to time.Time) ([]Bar, error)

	// Close releases underlying resources.
	Close() error
}

// SetupReader queries journaled setups.
type SetupReader interface {
	// ReadSetups returns setups created at or after since, newest first.
	ReadSetups(symbol string, since time.Time, limit int) ([]Setup, error)

	// Close releases underlying resources.
	Close() error
}
