package model

import (
	"encoding/json"
	"time"
)

// EventType names an outbound engine notification.
type EventType string

const (
	EventSetupDetected EventType = "setup-detected"
	EventTargetHit     EventType = "target-hit"
	EventStopLossHit   EventType = "stop-loss-hit"
	EventStatusChanged EventType = "status-changed"
)

// Event is published by the engine whenever a setup is created or a trade
// moves it through its lifecycle. Setup is always a copy.
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Setup       Setup     `json:"setup"`
	TargetIndex int       `json:"target_index"`  // target-hit only
	Price       float64   `json:"price,omitempty"` // triggering trade price
	Timestamp   time.Time `json:"timestamp"`
}

// Symbol is a shortcut for e.Setup.Symbol.
func (e *Event) Symbol() string {
	return e.Setup.Symbol
}

// Channel returns the pub/sub channel name: "pub:setup:{type}:{symbol}".
func (e *Event) Channel() string {
	return "pub:setup:" + string(e.Type) + ":" + e.Setup.Symbol
}

// JSON returns the JSON-encoded event.
func (e *Event) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}
