// Package event receives call lifecycle webhooks from the telephony
// provider and feeds them into the call state tracker. Turn events
// additionally run the dialogue loop and answer with the agent's reply.
package event

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/relaydesk/voicegate/internal/callstate"
	"github.com/relaydesk/voicegate/internal/metrics"
	"github.com/relaydesk/voicegate/internal/orchestrator"
	"github.com/relaydesk/voicegate/internal/types"
	"github.com/rs/zerolog"
)

// Receiver handles incoming call lifecycle events
type Receiver struct {
	tracker        *callstate.Tracker
	orch           *orchestrator.Orchestrator
	logger         zerolog.Logger
	eventsReceived int64
	lastReceived   time.Time
	mu             sync.RWMutex
}

// NewReceiver creates a new event receiver
func NewReceiver(tracker *callstate.Tracker, orch *orchestrator.Orchestrator, logger zerolog.Logger) *Receiver {
	return &Receiver{
		tracker: tracker,
		orch:    orch,
		logger:  logger,
	}
}

// HandleWebhook receives one lifecycle event. Malformed payloads are
// dropped with 400; a duplicate turn event answers with an empty reply
// instead of running the dialogue loop again.
func (r *Receiver) HandleWebhook(w http.ResponseWriter, req *http.Request) {
	m := metrics.Get()

	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var event types.Event
	if err := json.NewDecoder(req.Body).Decode(&event); err != nil {
		r.logger.Error().Err(err).Msg("failed to decode event")
		m.RecordEventDropped()
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}
	if event.CallID == "" {
		r.logger.Warn().Str("event", string(event.Type)).Msg("event without call id dropped")
		m.RecordEventDropped()
		http.Error(w, "missing call id", http.StatusBadRequest)
		return
	}

	m.RecordEventReceived()

	result, err := r.tracker.HandleEvent(event)
	if err != nil {
		r.logger.Warn().Err(err).Str("event", string(event.Type)).Str("call_id", event.CallID).Msg("event rejected")
		m.RecordEventDropped()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	atomic.AddInt64(&r.eventsReceived, 1)
	r.mu.Lock()
	r.lastReceived = time.Now()
	r.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	// Turn events answer with the agent's reply; everything else just
	// acknowledges receipt
	if event.Type == types.EventTurnCompleted && event.Role != types.RoleAgent && r.orch != nil {
		r.respondToTurn(w, req, event, result)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"applied": result.Applied,
		"phase":   result.Phase,
	})
}

func (r *Receiver) respondToTurn(w http.ResponseWriter, req *http.Request, event types.Event, result callstate.Result) {
	if result.Duplicate {
		// Already answered once; an empty reply keeps redelivery harmless
		json.NewEncoder(w).Encode(types.TurnReply{})
		return
	}

	// The tracker already appended the caller's utterance from the event
	reply, err := r.orch.HandleTurn(req.Context(), orchestrator.TurnRequest{
		Namespace:  event.Namespace,
		CallID:     event.CallID,
		Utterance:  event.Content,
		Seq:        event.Seq,
		RecordUser: false,
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("call_id", event.CallID).Msg("turn abandoned")
		http.Error(w, "turn abandoned", http.StatusRequestTimeout)
		return
	}
	json.NewEncoder(w).Encode(reply)
}

// GetStats returns receiver statistics
func (r *Receiver) GetStats(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	lastReceived := r.lastReceived
	r.mu.RUnlock()

	stats := map[string]interface{}{
		"events_received": atomic.LoadInt64(&r.eventsReceived),
		"last_received":   lastReceived,
		"tracked_calls":   r.tracker.Count(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// GetCall serves the reconciled record for one call
func (r *Receiver) GetCall(w http.ResponseWriter, req *http.Request) {
	callID := chi.URLParam(req, "callID")
	call, ok := r.tracker.GetCall(callID)
	if !ok {
		http.Error(w, "call not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(call)
}

// GetTranscript serves the call's transcript in conversational order
func (r *Receiver) GetTranscript(w http.ResponseWriter, req *http.Request) {
	callID := chi.URLParam(req, "callID")
	if _, ok := r.tracker.GetCall(callID); !ok {
		http.Error(w, "call not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(r.tracker.Transcript(callID))
}
