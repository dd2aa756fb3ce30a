package orchestrator

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/relaydesk/voicegate/internal/types"
)

const actionPrefix = "ACTION:"

// actionPayload is the wire shape of a structured action emitted by the
// completion service
type actionPayload struct {
	Intent        string `json:"intent"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	IssueType     string `json:"issue_type"`
	ScheduledTime string `json:"scheduled_time"`
}

// ParseActions extracts structured actions from a completion and returns
// the spoken text with recognized action lines stripped. Lines that fail
// to parse, or carry an intent outside the recognized vocabulary, stay in
// the spoken text untouched.
func ParseActions(completion string) (string, []actionPayload) {
	var spoken []string
	var actions []actionPayload

	for _, line := range strings.Split(completion, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, actionPrefix) {
			spoken = append(spoken, line)
			continue
		}

		var payload actionPayload
		raw := strings.TrimSpace(strings.TrimPrefix(trimmed, actionPrefix))
		if err := json.Unmarshal([]byte(raw), &payload); err != nil || !types.Intent(payload.Intent).IsKnown() {
			spoken = append(spoken, line)
			continue
		}
		actions = append(actions, payload)
	}

	return strings.TrimSpace(strings.Join(spoken, "\n")), actions
}

// scheduledTime parses the payload's timestamp; nil when absent or malformed
func (p actionPayload) scheduledTime() *time.Time {
	if p.ScheduledTime == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, p.ScheduledTime)
	if err != nil {
		return nil
	}
	return &t
}
