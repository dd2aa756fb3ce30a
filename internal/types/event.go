package types

import (
	"fmt"
	"hash/fnv"
	"time"
)

// EventType tags a lifecycle or turn event from the voice front-end
type EventType string

const (
	EventCallStarted   EventType = "call-started"
	EventStatusUpdate  EventType = "status-update"
	EventTurnCompleted EventType = "turn-completed"
	EventEndOfCall     EventType = "end-of-call-report"
)

// IsValid reports whether the event type is one of the known tags
func (t EventType) IsValid() bool {
	switch t {
	case EventCallStarted, EventStatusUpdate, EventTurnCompleted, EventEndOfCall:
		return true
	}
	return false
}

// Event is the tagged envelope delivered by the telephony front-end.
// Payload fields are type-specific; unused fields stay zero.
type Event struct {
	EventID   string     `json:"eventId,omitempty"`
	Type      EventType  `json:"type"`
	CallID    string     `json:"callId"`
	Namespace string     `json:"namespace"`
	Timestamp *time.Time `json:"timestamp,omitempty"`

	// call-started
	Direction    Direction `json:"direction,omitempty"`
	CallerNumber string    `json:"callerNumber,omitempty"`

	// status-update
	Status string `json:"status,omitempty"`

	// turn-completed
	Seq       int      `json:"seq,omitempty"` // conversational order signal, 1-based; 0 = absent
	Role      Role     `json:"role,omitempty"`
	Content   string   `json:"content,omitempty"`
	Sentiment *float64 `json:"sentiment,omitempty"`

	// end-of-call-report
	EndedReason     string  `json:"endedReason,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
}

// Identity returns the deduplication key for the event. Front-ends that
// assign event IDs get exact dedup; otherwise the identity is synthesized
// from the fields that make the event logically unique. The payload hash
// keeps two distinct unsequenced turns (or status updates) from colliding
// while redelivery of the same event still dedups.
func (e Event) Identity() string {
	if e.EventID != "" {
		return e.EventID
	}

	h := fnv.New64a()
	h.Write([]byte(e.Content))
	h.Write([]byte{0})
	h.Write([]byte(e.Status))
	if e.Timestamp != nil {
		h.Write([]byte{0})
		h.Write([]byte(e.Timestamp.UTC().Format(time.RFC3339Nano)))
	}
	return fmt.Sprintf("%s/%s/%d/%x", e.CallID, e.Type, e.Seq, h.Sum64())
}

// TurnReply is the response shape for a turn-completed event
type TurnReply struct {
	ResponseText string            `json:"response_text"`
	Actions      []ScheduledAction `json:"actions"`
}
