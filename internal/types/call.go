package types

import "time"

// Direction distinguishes who initiated the call
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Phase is the lifecycle position of a call in the state machine
type Phase string

const (
	PhaseCreated    Phase = "created"
	PhaseInProgress Phase = "in-progress"
	PhaseEnded      Phase = "ended"
)

// CallStatus is the orthogonal status tag; terminal values are assigned
// when the call reaches PhaseEnded
type CallStatus string

const (
	CallStatusInProgress CallStatus = "in-progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusMissed     CallStatus = "missed"
)

// Role identifies the speaker of a transcript entry
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// Call is the reconciled record of one call. Owned by the call state
// tracker; storage only persists what the tracker hands over.
type Call struct {
	CallID          string     `json:"callId" dynamodbav:"CallID"`
	Namespace       string     `json:"namespace" dynamodbav:"Namespace"`
	Direction       Direction  `json:"direction,omitempty" dynamodbav:"Direction"`
	CallerNumber    string     `json:"callerNumber,omitempty" dynamodbav:"CallerNumber"`
	Phase           Phase      `json:"phase" dynamodbav:"Phase"`
	Status          CallStatus `json:"status" dynamodbav:"Status"`
	StartTime       *time.Time `json:"startTime,omitempty" dynamodbav:"StartTime"`
	EndTime         *time.Time `json:"endTime,omitempty" dynamodbav:"EndTime"`
	DurationSeconds float64    `json:"durationSeconds,omitempty" dynamodbav:"DurationSeconds"`
	Turns           int        `json:"turns" dynamodbav:"Turns"`
}

// TranscriptEntry is one utterance or response within a call. Seq is the
// conversational position, assigned by the tracker, and is the sort key
// for persistence.
type TranscriptEntry struct {
	CallID    string     `json:"callId" dynamodbav:"CallID"`
	Seq       int        `json:"seq" dynamodbav:"Seq"`
	Role      Role       `json:"role" dynamodbav:"Role"`
	Content   string     `json:"content" dynamodbav:"Content"`
	SpokenAt  *time.Time `json:"spokenAt,omitempty" dynamodbav:"SpokenAt"`
	Sentiment *float64   `json:"sentiment,omitempty" dynamodbav:"Sentiment"`
}

// Snippet is one retrieved knowledge chunk with its relevance score.
// Snippets are ephemeral; they live for a single turn and are never
// persisted.
type Snippet struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}
