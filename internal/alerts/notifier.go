package alerts

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Severity classifies how loudly an alert should surface
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one operator-facing condition. Configuration problems
// (unknown namespace) and storage exhaustion land here instead of being
// spoken to callers.
type Alert struct {
	Rule      string    `json:"rule"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Namespace string    `json:"namespace,omitempty"`
	CallID    string    `json:"callId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const maxRetained = 256

// Notifier collects alerts for the operator channel. Alerts are logged at
// error level immediately and retained in a bounded ring for /internal/alerts.
type Notifier struct {
	mu     sync.RWMutex
	recent []Alert
	logger zerolog.Logger
}

// NewNotifier creates a new alert notifier
func NewNotifier(logger zerolog.Logger) *Notifier {
	return &Notifier{logger: logger}
}

// Notify records an alert and logs it
func (n *Notifier) Notify(a Alert) {
	a.Timestamp = time.Now()

	n.logger.Error().
		Str("rule", a.Rule).
		Str("severity", string(a.Severity)).
		Str("namespace", a.Namespace).
		Str("call_id", a.CallID).
		Msg(a.Message)

	n.mu.Lock()
	n.recent = append(n.recent, a)
	if len(n.recent) > maxRetained {
		n.recent = n.recent[len(n.recent)-maxRetained:]
	}
	n.mu.Unlock()
}

// Recent returns a copy of the retained alerts, newest last
func (n *Notifier) Recent() []Alert {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Alert, len(n.recent))
	copy(out, n.recent)
	return out
}

// Handler serves the retained alerts as JSON
func (n *Notifier) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(n.Recent())
	}
}
