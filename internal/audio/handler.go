package audio

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/relaydesk/voicegate/internal/callstate"
	"github.com/relaydesk/voicegate/internal/config"
	"github.com/relaydesk/voicegate/internal/metrics"
	"github.com/relaydesk/voicegate/internal/orchestrator"
	"github.com/relaydesk/voicegate/internal/types"
	"github.com/rs/zerolog"
)

// Handler upgrades audio channel requests and runs a session per caller
type Handler struct {
	orch        *orchestrator.Orchestrator
	tracker     *callstate.Tracker
	transcriber Transcriber
	synthesizer Synthesizer
	config      *config.Config
	logger      zerolog.Logger
	upgrader    websocket.Upgrader
}

// NewHandler creates a new audio channel handler
func NewHandler(orch *orchestrator.Orchestrator, tracker *callstate.Tracker, transcriber Transcriber, synthesizer Synthesizer, cfg *config.Config, logger zerolog.Logger) *Handler {
	return &Handler{
		orch:        orch,
		tracker:     tracker,
		transcriber: transcriber,
		synthesizer: synthesizer,
		config:      cfg,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients (telephony gateways) send no origin
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// ServeHTTP handles audio channel upgrade requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	namespace := r.URL.Query().Get("namespace")
	if namespace == "" {
		http.Error(w, "missing namespace", http.StatusBadRequest)
		return
	}
	callID := r.URL.Query().Get("call_id")
	if callID == "" {
		callID = uuid.New().String()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	// The audio channel carries its own lifecycle: connecting starts the
	// call, disconnecting ends it
	now := time.Now()
	h.tracker.HandleEvent(types.Event{
		EventID:   "ws-" + callID + "-started",
		Type:      types.EventCallStarted,
		CallID:    callID,
		Namespace: namespace,
		Direction: types.DirectionInbound,
		Timestamp: &now,
	})
	metrics.Get().RecordSessionStart()
	h.logger.Info().Str("call_id", callID).Str("namespace", namespace).Msg("audio session started")

	session := NewSession(conn, h.orch, h.transcriber, h.synthesizer, h.config, h.logger, callID, namespace)
	session.OnClose = func() {
		end := time.Now()
		h.tracker.HandleEvent(types.Event{
			EventID:   "ws-" + callID + "-ended",
			Type:      types.EventEndOfCall,
			CallID:    callID,
			Namespace: namespace,
			Timestamp: &end,
		})
		metrics.Get().RecordSessionEnd()
		h.logger.Info().Str("call_id", callID).Msg("audio session ended")
	}
	session.Start()
}
