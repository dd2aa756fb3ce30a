package types

import "time"

// Intent is the enumerated vocabulary of structured actions a completion
// can request. Anything outside this set is plain conversational text.
type Intent string

const (
	IntentScheduleAppointment Intent = "schedule_appointment"
	IntentTransferCall        Intent = "transfer_call"
	IntentEndCall             Intent = "end_call"
)

// KnownIntents lists the recognized intent vocabulary
var KnownIntents = []Intent{
	IntentScheduleAppointment,
	IntentTransferCall,
	IntentEndCall,
}

// IsKnown reports whether the intent is part of the recognized vocabulary
func (i Intent) IsKnown() bool {
	for _, k := range KnownIntents {
		if i == k {
			return true
		}
	}
	return false
}

// ScheduledAction is a structured side effect extracted from a turn,
// e.g. an appointment booking. Immutable once created except for the
// external reference attached after a successful booking call.
type ScheduledAction struct {
	ActionID      string     `json:"actionId" dynamodbav:"ActionID"`
	CallID        string     `json:"callId" dynamodbav:"CallID"`
	Namespace     string     `json:"namespace" dynamodbav:"Namespace"`
	Intent        Intent     `json:"intent" dynamodbav:"Intent"`
	CustomerName  string     `json:"customerName,omitempty" dynamodbav:"CustomerName"`
	CustomerPhone string     `json:"customerPhone,omitempty" dynamodbav:"CustomerPhone"`
	IssueType     string     `json:"issueType,omitempty" dynamodbav:"IssueType"`
	ScheduledTime *time.Time `json:"scheduledTime,omitempty" dynamodbav:"ScheduledTime"`
	ExternalRef   string     `json:"externalRef,omitempty" dynamodbav:"ExternalRef"`
	CreatedAt     time.Time  `json:"createdAt" dynamodbav:"CreatedAt"`
}

// CalendarCredential holds the per-namespace OAuth material used by the
// calendar collaborator. Stored and refreshed through the storage layer.
type CalendarCredential struct {
	Namespace    string    `json:"namespace" dynamodbav:"Namespace"`
	Token        string    `json:"token" dynamodbav:"Token"`
	RefreshToken string    `json:"refreshToken" dynamodbav:"RefreshToken"`
	TokenExpiry  time.Time `json:"tokenExpiry" dynamodbav:"TokenExpiry"`
	ClientID     string    `json:"clientId" dynamodbav:"ClientID"`
	ClientSecret string    `json:"clientSecret" dynamodbav:"ClientSecret"`
	Scopes       string    `json:"scopes" dynamodbav:"Scopes"` // space-separated
	UpdatedAt    time.Time `json:"updatedAt" dynamodbav:"UpdatedAt"`
}
