package streaming

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ImportEvent is the envelope for every realtime import notification. The
// payload is pre-serialized so the envelope can cross NATS unchanged.
type ImportEvent struct {
	ID        string          `json:"id"`
	ImportID  string          `json:"import_id"`
	Event     string          `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewImportEvent wraps a payload into an event envelope
func NewImportEvent(importID, event string, payload interface{}) (*ImportEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &ImportEvent{
		ID:        uuid.New().String(),
		ImportID:  importID,
		Event:     event,
		Timestamp: time.Now(),
		Payload:   data,
	}, nil
}

// Subject returns the NATS subject for this event. Event names use dots as
// separators ("import.status"); the subject keeps only the final segment so
// the hierarchy stays imports.<id>.<kind>.
func (e *ImportEvent) Subject() string {
	kind := e.Event
	if idx := strings.LastIndexByte(kind, '.'); idx >= 0 {
		kind = kind[idx+1:]
	}
	return "imports." + e.ImportID + "." + kind
}

// Subscription filters events for one consumer. An empty ImportID matches
// every import.
type Subscription struct {
	ImportID string `json:"import_id,omitempty"`
}

// Matches reports whether an event passes the subscription filter
func (s *Subscription) Matches(event *ImportEvent) bool {
	return s == nil || s.ImportID == "" || s.ImportID == event.ImportID
}
