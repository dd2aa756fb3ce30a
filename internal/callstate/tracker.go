package callstate

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/relaydesk/voicegate/internal/metrics"
	"github.com/relaydesk/voicegate/internal/types"
	"github.com/rs/zerolog"
)

// ErrUnknownEventType is returned for events outside the tagged vocabulary
var ErrUnknownEventType = errors.New("unknown event type")

// Sink receives persistence instructions from the tracker. Implementations
// must not block: the tracker calls into the sink on the event handling
// path and expects writes to be queued, not performed inline.
type Sink interface {
	PersistCall(call types.Call)
	PersistTranscript(entry types.TranscriptEntry)
	PersistAction(action types.ScheduledAction)
}

// Result reports what one event did to the call record
type Result struct {
	Applied    bool        // false when the event was a duplicate
	Duplicate  bool
	OutOfOrder bool // transcript appended after the call already ended
	Phase      types.Phase
}

// callRecord is the tracker's view of a single call. Each record has its
// own lock so concurrent calls never serialize on each other.
type callRecord struct {
	mu         sync.Mutex
	call       types.Call
	transcript []types.TranscriptEntry // sorted by Seq
	seen       map[string]struct{}     // applied event identities
	nextSeq    int
}

// Tracker reconciles lifecycle events, in whatever order they arrive,
// into one coherent record per call
type Tracker struct {
	mu     sync.RWMutex
	calls  map[string]*callRecord
	sink   Sink
	policy StatusPolicy
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a call state tracker
func NewTracker(sink Sink, policy StatusPolicy, logger zerolog.Logger) *Tracker {
	return &Tracker{
		calls:  make(map[string]*callRecord),
		sink:   sink,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

func (t *Tracker) record(callID, namespace string) *callRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.calls[callID]
	if !ok {
		rec = &callRecord{
			call: types.Call{
				CallID:    callID,
				Namespace: namespace,
				Phase:     types.PhaseCreated,
				Status:    types.CallStatusInProgress,
			},
			seen:    make(map[string]struct{}),
			nextSeq: 1,
		}
		t.calls[callID] = rec
	}
	return rec
}

// HandleEvent ingests one lifecycle event. Duplicate delivery of the same
// event identity is a no-op. The first event for an unseen call id creates
// the record regardless of event type.
func (t *Tracker) HandleEvent(event types.Event) (Result, error) {
	if !event.Type.IsValid() {
		return Result{}, ErrUnknownEventType
	}

	m := metrics.Get()
	rec := t.record(event.CallID, event.Namespace)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	identity := event.Identity()
	if _, dup := rec.seen[identity]; dup {
		m.RecordEventDuplicate()
		t.logger.Debug().
			Str("call_id", event.CallID).
			Str("event", string(event.Type)).
			Msg("duplicate event ignored")
		return Result{Duplicate: true, Phase: rec.call.Phase}, nil
	}

	prevPhase := rec.call.Phase
	result := Result{Applied: true}

	switch event.Type {
	case types.EventCallStarted:
		t.applyCallStarted(rec, event)

	case types.EventStatusUpdate:
		// Informational while in flight; never regresses a terminal status
		if rec.call.Phase != types.PhaseEnded {
			rec.call.Status = types.CallStatusInProgress
		}

	case types.EventTurnCompleted:
		entry := t.appendEntryLocked(rec, event.Role, event.Content, event.Seq, event.Timestamp, event.Sentiment)
		t.sink.PersistTranscript(entry)
		if rec.call.Phase == types.PhaseEnded {
			result.OutOfOrder = true
			m.RecordEventOutOfOrder()
		}

	case types.EventEndOfCall:
		t.applyEndOfCall(rec, event, prevPhase)
	}

	rec.call.Phase = nextPhase(prevPhase, event.Type)
	rec.seen[identity] = struct{}{}
	result.Phase = rec.call.Phase

	t.sink.PersistCall(rec.call)
	return result, nil
}

func (t *Tracker) applyCallStarted(rec *callRecord, event types.Event) {
	if event.Direction != "" {
		rec.call.Direction = event.Direction
	}
	if event.CallerNumber != "" {
		rec.call.CallerNumber = event.CallerNumber
	}
	if rec.call.StartTime == nil {
		start := t.now()
		if event.Timestamp != nil {
			start = *event.Timestamp
		}
		rec.call.StartTime = &start
	}
	// A late start after the end-of-call report lets us fix up duration
	t.recomputeDuration(rec)
}

func (t *Tracker) applyEndOfCall(rec *callRecord, event types.Event, prevPhase types.Phase) {
	if prevPhase == types.PhaseEnded {
		// Repeated terminal report with a different identity; keep the
		// first outcome
		return
	}

	end := t.now()
	if event.Timestamp != nil {
		end = *event.Timestamp
	}
	rec.call.EndTime = &end

	if event.DurationSeconds > 0 {
		rec.call.DurationSeconds = event.DurationSeconds
	} else {
		t.recomputeDuration(rec)
	}

	rec.call.Status = t.policy(rec.call.Turns, event.EndedReason)
}

func (t *Tracker) recomputeDuration(rec *callRecord) {
	if rec.call.StartTime != nil && rec.call.EndTime != nil && rec.call.DurationSeconds == 0 {
		rec.call.DurationSeconds = rec.call.EndTime.Sub(*rec.call.StartTime).Seconds()
	}
}

// appendEntryLocked inserts a transcript entry in conversational order.
// seq > 0 is the event's embedded order signal; seq == 0 means no signal,
// so the entry takes the next free position (arrival order fallback).
func (t *Tracker) appendEntryLocked(rec *callRecord, role types.Role, content string, seq int, ts *time.Time, sentiment *float64) types.TranscriptEntry {
	if role == "" {
		role = types.RoleUser
	}
	if seq <= 0 {
		seq = rec.nextSeq
	}
	if seq >= rec.nextSeq {
		rec.nextSeq = seq + 1
	}

	entry := types.TranscriptEntry{
		CallID:    rec.call.CallID,
		Seq:       seq,
		Role:      role,
		Content:   content,
		SpokenAt:  ts,
		Sentiment: sentiment,
	}

	rec.transcript = append(rec.transcript, entry)
	sort.SliceStable(rec.transcript, func(a, b int) bool {
		return rec.transcript[a].Seq < rec.transcript[b].Seq
	})

	if role == types.RoleUser {
		rec.call.Turns++
	}
	return entry
}

// AppendTranscript records an utterance or response that did not arrive
// as a webhook event (agent replies, audio-channel utterances). seq <= 0
// assigns the next conversational position.
func (t *Tracker) AppendTranscript(callID, namespace string, role types.Role, content string, seq int) types.TranscriptEntry {
	rec := t.record(callID, namespace)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	now := t.now()
	entry := t.appendEntryLocked(rec, role, content, seq, &now, nil)
	if rec.call.Phase == types.PhaseCreated {
		rec.call.Phase = types.PhaseInProgress
	}

	t.sink.PersistTranscript(entry)
	t.sink.PersistCall(rec.call)
	return entry
}

// RecordAction persists a structured action extracted from a turn
func (t *Tracker) RecordAction(action types.ScheduledAction) {
	rec := t.record(action.CallID, action.Namespace)

	rec.mu.Lock()
	if rec.call.Phase == types.PhaseCreated {
		rec.call.Phase = types.PhaseInProgress
	}
	rec.mu.Unlock()

	metrics.Get().RecordActionScheduled()
	t.sink.PersistAction(action)
}

// GetCall returns a copy of the reconciled record for a call
func (t *Tracker) GetCall(callID string) (types.Call, bool) {
	t.mu.RLock()
	rec, ok := t.calls[callID]
	t.mu.RUnlock()
	if !ok {
		return types.Call{}, false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.call, true
}

// Transcript returns a copy of the call's transcript in conversational order
func (t *Tracker) Transcript(callID string) []types.TranscriptEntry {
	t.mu.RLock()
	rec, ok := t.calls[callID]
	t.mu.RUnlock()
	if !ok {
		return nil
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]types.TranscriptEntry, len(rec.transcript))
	copy(out, rec.transcript)
	return out
}

// Count returns the number of tracked calls
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.calls)
}
