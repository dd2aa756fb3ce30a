// Package orchestrator drives the per-turn dialogue loop: retrieve
// namespace context, compose a grounded prompt, call the completion
// service, extract structured actions, and hand everything to the call
// state tracker. It owns no durable state.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/relaydesk/voicegate/internal/alerts"
	"github.com/relaydesk/voicegate/internal/callstate"
	"github.com/relaydesk/voicegate/internal/completion"
	"github.com/relaydesk/voicegate/internal/metrics"
	"github.com/relaydesk/voicegate/internal/retrieval"
	"github.com/relaydesk/voicegate/internal/types"
	"github.com/rs/zerolog"
)

// Retriever is the namespace-scoped nearest-neighbor collaborator
type Retriever interface {
	Retrieve(ctx context.Context, namespace, query string, k int) ([]types.Snippet, error)
}

// Booker is the calendar/CRM collaborator; returns the external
// reference id for a booked action
type Booker interface {
	Book(ctx context.Context, namespace string, action types.ScheduledAction) (string, error)
}

// Config holds the orchestrator's tunables
type Config struct {
	RetrievalK        int
	RetrievalTimeout  time.Duration
	CompletionTimeout time.Duration
	FallbackResponse  string
}

// TurnRequest is one user utterance to handle. RecordUser is false when
// the transport already appended the user transcript entry (webhook turn
// events); the audio path sets it so the orchestrator records both sides.
type TurnRequest struct {
	Namespace  string
	CallID     string
	Utterance  string
	Seq        int
	RecordUser bool
}

// Orchestrator wires the per-turn collaborators together
type Orchestrator struct {
	retriever Retriever
	completer completion.Completer
	booker    Booker
	tracker   *callstate.Tracker
	notifier  *alerts.Notifier
	cfg       Config
	logger    zerolog.Logger
}

// New creates a turn orchestrator
func New(retriever Retriever, completer completion.Completer, booker Booker, tracker *callstate.Tracker, notifier *alerts.Notifier, cfg Config, logger zerolog.Logger) *Orchestrator {
	if cfg.FallbackResponse == "" {
		cfg.FallbackResponse = "I'm sorry, I'm having trouble answering right now. Could you repeat that?"
	}
	return &Orchestrator{
		retriever: retriever,
		completer: completer,
		booker:    booker,
		tracker:   tracker,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
	}
}

// HandleTurn runs the dialogue loop for one utterance. The caller always
// gets a speakable reply: backend failures degrade to the fallback
// response instead of propagating to the audio path. The only error
// returned is caller cancellation.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest) (types.TurnReply, error) {
	if err := ctx.Err(); err != nil {
		return types.TurnReply{}, err
	}
	m := metrics.Get()
	m.RecordTurn()

	logger := o.logger.With().
		Str("call_id", req.CallID).
		Str("namespace", req.Namespace).
		Logger()

	if req.RecordUser {
		o.tracker.AppendTranscript(req.CallID, req.Namespace, types.RoleUser, req.Utterance, req.Seq)
	}

	snippets := o.retrieveContext(ctx, req, logger)
	prompt := BuildPrompt(req.Namespace, req.Utterance, snippets)

	text := o.complete(ctx, prompt, logger)
	if err := ctx.Err(); err != nil {
		// Connection torn down mid-turn: discard the result
		return types.TurnReply{}, err
	}

	spoken, payloads := ParseActions(text)
	if spoken == "" {
		spoken = o.cfg.FallbackResponse
	}

	actions := o.materializeActions(ctx, req, payloads, logger)

	o.tracker.AppendTranscript(req.CallID, req.Namespace, types.RoleAgent, spoken, 0)

	return types.TurnReply{ResponseText: spoken, Actions: actions}, nil
}

// retrieveContext performs the bounded-time retrieval step. Timeouts and
// unknown namespaces degrade to empty context; the turn continues.
func (o *Orchestrator) retrieveContext(ctx context.Context, req TurnRequest, logger zerolog.Logger) []types.Snippet {
	m := metrics.Get()

	rctx, cancel := context.WithTimeout(ctx, o.cfg.RetrievalTimeout)
	defer cancel()

	snippets, err := o.retriever.Retrieve(rctx, req.Namespace, req.Utterance, o.cfg.RetrievalK)
	switch {
	case errors.Is(err, retrieval.ErrNamespaceNotFound):
		// Configuration problem: operator channel, not the caller
		m.RecordNamespaceMiss()
		o.notifier.Notify(alerts.Alert{
			Rule:      "namespace_not_found",
			Severity:  alerts.SeverityCritical,
			Message:   "no retrieval index for namespace",
			Namespace: req.Namespace,
			CallID:    req.CallID,
		})
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		m.RecordRetrievalTimeout()
		logger.Warn().Msg("retrieval timed out, continuing without context")
		return nil
	case err != nil:
		logger.Error().Err(err).Msg("retrieval failed, continuing without context")
		return nil
	}

	if len(snippets) == 0 {
		m.RecordRetrievalEmpty()
	}
	return snippets
}

func (o *Orchestrator) complete(ctx context.Context, prompt string, logger zerolog.Logger) string {
	cctx, cancel := context.WithTimeout(ctx, o.cfg.CompletionTimeout)
	defer cancel()

	text, err := o.completer.Complete(cctx, prompt)
	if err != nil {
		metrics.Get().RecordCompletionFallback()
		logger.Warn().Err(err).Msg("completion failed, using fallback response")
		return o.cfg.FallbackResponse
	}
	return text
}

// materializeActions converts parsed payloads into scheduled actions,
// attempts external booking, and records them with the tracker
func (o *Orchestrator) materializeActions(ctx context.Context, req TurnRequest, payloads []actionPayload, logger zerolog.Logger) []types.ScheduledAction {
	if len(payloads) == 0 {
		return nil
	}

	actions := make([]types.ScheduledAction, 0, len(payloads))
	for _, p := range payloads {
		action := types.ScheduledAction{
			ActionID:      uuid.New().String(),
			CallID:        req.CallID,
			Namespace:     req.Namespace,
			Intent:        types.Intent(p.Intent),
			CustomerName:  p.CustomerName,
			CustomerPhone: p.CustomerPhone,
			IssueType:     p.IssueType,
			ScheduledTime: p.scheduledTime(),
			CreatedAt:     time.Now(),
		}

		if action.Intent == types.IntentScheduleAppointment && o.booker != nil {
			ref, err := o.booker.Book(ctx, req.Namespace, action)
			if err != nil {
				metrics.Get().RecordBooking(false)
				logger.Warn().Err(err).Str("action_id", action.ActionID).Msg("external booking failed, action kept without reference")
			} else {
				metrics.Get().RecordBooking(true)
				action.ExternalRef = ref
			}
		}

		o.tracker.RecordAction(action)
		actions = append(actions, action)
	}
	return actions
}
