package eventbus

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"
)

// EventType enumerates the events the orchestrator emits during a run.
type EventType string

const (
	TypeLog          EventType = "log"
	TypeState        EventType = "state"
	TypeScreenshot   EventType = "screenshot"
	TypeRequestInput EventType = "request_input"
	TypeStats        EventType = "stats"
	TypeError        EventType = "error"
)

// Event is the uniform envelope published to every sink.
type Event struct {
	EventID   string          `json:"event_id"`
	Source    string          `json:"source"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// StatePayload is the payload of a state-transition event.
type StatePayload struct {
	State     string `json:"state"`
	Timestamp string `json:"timestamp"`
}

// RequestInputPayload is the payload emitted when the run suspends for a human.
type RequestInputPayload struct {
	Question  string          `json:"question"`
	Context   string          `json:"context"`
	Field     json.RawMessage `json:"field,omitempty"`
	Suggested string          `json:"suggested_answer,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// NewEventID generates a compact unique event id with a date prefix.
func NewEventID(prefix string, t time.Time) string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return prefix + t.UTC().Format("20060102") + "_" + hex.EncodeToString(b)
}

// New builds an envelope around an arbitrary JSON-marshalable payload.
func New(source string, typ EventType, payload interface{}) Event {
	now := time.Now()
	evt := Event{
		EventID:   NewEventID("ev_", now),
		Source:    source,
		Type:      typ,
		Timestamp: now,
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			evt.Payload = data
		}
	}
	return evt
}

// MinimalValidate checks required envelope fields.
func (e *Event) MinimalValidate() bool {
	return e.EventID != "" && e.Source != "" && e.Type != "" && !e.Timestamp.IsZero()
}
