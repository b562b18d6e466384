package domain

import (
	"encoding/json"
	"time"
)

// Event kinds published to the signal bus and forwarded to notification
// senders.
const (
	EventDecisionMade       = "decision_made"
	EventExecutionFailed    = "execution_failed"
	EventPositionReconciled = "position_reconciled"
)

// EventStream is the Redis stream carrying pipeline events.
const EventStream = "pipeline:events"

// ScoreChannel is the Redis pub/sub channel the scoring subsystem publishes
// ScoreInput payloads on. Scores are ephemeral; a missed one is superseded
// by the next, so pub/sub fits better than a stream.
const ScoreChannel = "pipeline:scores"

// Event is a structured pipeline event.
type Event struct {
	Kind       string         `json:"kind"`
	Instrument string         `json:"instrument"`
	Detail     map[string]any `json:"detail,omitempty"`
	At         time.Time      `json:"at"`
}

// Marshal encodes the event as JSON for the signal bus.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}
