package callstate

import (
	"sync"
	"testing"
	"time"

	"github.com/relaydesk/voicegate/internal/types"
	"github.com/rs/zerolog"
)

// captureSink records persistence instructions for assertions
type captureSink struct {
	mu          sync.Mutex
	calls       []types.Call
	transcripts []types.TranscriptEntry
	actions     []types.ScheduledAction
}

func (s *captureSink) PersistCall(c types.Call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
}

func (s *captureSink) PersistTranscript(e types.TranscriptEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts = append(s.transcripts, e)
}

func (s *captureSink) PersistAction(a types.ScheduledAction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, a)
}

func newTestTracker() (*Tracker, *captureSink) {
	sink := &captureSink{}
	return NewTracker(sink, DefaultStatusPolicy(1), zerolog.Nop()), sink
}

func ts(sec int) *time.Time {
	t := time.Date(2025, 6, 1, 12, 0, sec, 0, time.UTC)
	return &t
}

func TestLifecycleInOrder(t *testing.T) {
	tracker, _ := newTestTracker()

	events := []types.Event{
		{EventID: "e1", Type: types.EventCallStarted, CallID: "call-1", Namespace: "hvac", Direction: types.DirectionInbound, Timestamp: ts(0)},
		{EventID: "e2", Type: types.EventTurnCompleted, CallID: "call-1", Namespace: "hvac", Seq: 1, Role: types.RoleUser, Content: "hello"},
		{EventID: "e3", Type: types.EventEndOfCall, CallID: "call-1", Namespace: "hvac", Timestamp: ts(90)},
	}
	for _, ev := range events {
		if _, err := tracker.HandleEvent(ev); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	call, ok := tracker.GetCall("call-1")
	if !ok {
		t.Fatal("expected call record")
	}
	if call.Phase != types.PhaseEnded {
		t.Errorf("expected ended phase, got %s", call.Phase)
	}
	if call.Status != types.CallStatusCompleted {
		t.Errorf("expected completed status, got %s", call.Status)
	}
	if call.DurationSeconds != 90 {
		t.Errorf("expected duration 90s, got %.1f", call.DurationSeconds)
	}
	if tracker.Count() != 1 {
		t.Errorf("expected exactly one call record, got %d", tracker.Count())
	}
}

func TestOutOfOrderEndBeforeTurn(t *testing.T) {
	tracker, _ := newTestTracker()

	end := types.Event{EventID: "e-end", Type: types.EventEndOfCall, CallID: "call-1", Namespace: "hvac", Timestamp: ts(60), EndedReason: "completed"}
	lateTurn := types.Event{EventID: "e-turn", Type: types.EventTurnCompleted, CallID: "call-1", Namespace: "hvac", Seq: 1, Role: types.RoleUser, Content: "late entry"}

	if _, err := tracker.HandleEvent(end); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := tracker.HandleEvent(lateTurn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.OutOfOrder {
		t.Error("expected out-of-order result for late turn")
	}

	call, _ := tracker.GetCall("call-1")
	if call.Phase != types.PhaseEnded {
		t.Errorf("phase regressed from ended: %s", call.Phase)
	}
	if call.Status != types.CallStatusCompleted {
		t.Errorf("status regressed from completed: %s", call.Status)
	}

	transcript := tracker.Transcript("call-1")
	if len(transcript) != 1 || transcript[0].Content != "late entry" {
		t.Errorf("late transcript entry not appended: %v", transcript)
	}
}

func TestDuplicateEventIsNoOp(t *testing.T) {
	tracker, sink := newTestTracker()

	turn := types.Event{EventID: "e-turn", Type: types.EventTurnCompleted, CallID: "call-1", Namespace: "hvac", Seq: 1, Role: types.RoleUser, Content: "hello"}

	if _, err := tracker.HandleEvent(turn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := tracker.HandleEvent(turn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Duplicate || res.Applied {
		t.Errorf("expected duplicate no-op, got %+v", res)
	}

	if got := len(tracker.Transcript("call-1")); got != 1 {
		t.Errorf("duplicate delivery created %d transcript entries", got)
	}
	sink.mu.Lock()
	persisted := len(sink.transcripts)
	sink.mu.Unlock()
	if persisted != 1 {
		t.Errorf("duplicate delivery persisted %d transcript entries", persisted)
	}

	call, _ := tracker.GetCall("call-1")
	if call.Turns != 1 {
		t.Errorf("expected 1 turn after duplicate, got %d", call.Turns)
	}
}

func TestTranscriptReorderedBySequence(t *testing.T) {
	tracker, _ := newTestTracker()

	// Deliver turn 2 before turn 1; each carries its own order signal
	second := types.Event{EventID: "e2", Type: types.EventTurnCompleted, CallID: "call-1", Namespace: "hvac", Seq: 2, Role: types.RoleAgent, Content: "second"}
	first := types.Event{EventID: "e1", Type: types.EventTurnCompleted, CallID: "call-1", Namespace: "hvac", Seq: 1, Role: types.RoleUser, Content: "first"}

	tracker.HandleEvent(second)
	tracker.HandleEvent(first)

	transcript := tracker.Transcript("call-1")
	if len(transcript) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(transcript))
	}
	if transcript[0].Content != "first" || transcript[1].Content != "second" {
		t.Errorf("transcript not in conversational order: %q then %q", transcript[0].Content, transcript[1].Content)
	}
}

func TestArrivalOrderFallbackWithoutSequence(t *testing.T) {
	tracker, _ := newTestTracker()

	tracker.HandleEvent(types.Event{EventID: "a", Type: types.EventTurnCompleted, CallID: "c", Namespace: "n", Role: types.RoleUser, Content: "one"})
	tracker.HandleEvent(types.Event{EventID: "b", Type: types.EventTurnCompleted, CallID: "c", Namespace: "n", Role: types.RoleAgent, Content: "two"})

	transcript := tracker.Transcript("c")
	if transcript[0].Content != "one" || transcript[1].Content != "two" {
		t.Errorf("expected arrival order fallback, got %q then %q", transcript[0].Content, transcript[1].Content)
	}
	if transcript[0].Seq >= transcript[1].Seq {
		t.Errorf("expected increasing sequence, got %d then %d", transcript[0].Seq, transcript[1].Seq)
	}
}

func TestDistinctTurnsWithoutIdentityBothApplied(t *testing.T) {
	tracker, _ := newTestTracker()

	// No event id, no sequence: only the content distinguishes the turns
	first := types.Event{Type: types.EventTurnCompleted, CallID: "c", Namespace: "n", Role: types.RoleUser, Content: "first question"}
	second := types.Event{Type: types.EventTurnCompleted, CallID: "c", Namespace: "n", Role: types.RoleUser, Content: "second question"}

	if _, err := tracker.HandleEvent(first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := tracker.HandleEvent(second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Duplicate || !res.Applied {
		t.Errorf("distinct second turn treated as duplicate: %+v", res)
	}

	transcript := tracker.Transcript("c")
	if len(transcript) != 2 {
		t.Fatalf("expected 2 transcript entries, got %d: %v", len(transcript), transcript)
	}
	if transcript[0].Content != "first question" || transcript[1].Content != "second question" {
		t.Errorf("unexpected transcript order: %q then %q", transcript[0].Content, transcript[1].Content)
	}

	call, _ := tracker.GetCall("c")
	if call.Turns != 2 {
		t.Errorf("expected 2 turns counted, got %d", call.Turns)
	}

	// Redelivery of either event is still a no-op
	res, err = tracker.HandleEvent(first)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Duplicate {
		t.Error("redelivered turn not recognized as duplicate")
	}
	if got := len(tracker.Transcript("c")); got != 2 {
		t.Errorf("redelivery changed transcript: %d entries", got)
	}
}

func TestStatusPolicyMissedWithZeroTurns(t *testing.T) {
	tracker, _ := newTestTracker()

	tracker.HandleEvent(types.Event{EventID: "s", Type: types.EventCallStarted, CallID: "c", Namespace: "n", Timestamp: ts(0)})
	tracker.HandleEvent(types.Event{EventID: "e", Type: types.EventEndOfCall, CallID: "c", Namespace: "n", Timestamp: ts(10)})

	call, _ := tracker.GetCall("c")
	if call.Status != types.CallStatusMissed {
		t.Errorf("expected missed for zero-turn call, got %s", call.Status)
	}
}

func TestStatusPolicyReportedOutcomeWins(t *testing.T) {
	tracker, _ := newTestTracker()

	tracker.HandleEvent(types.Event{EventID: "t", Type: types.EventTurnCompleted, CallID: "c", Namespace: "n", Role: types.RoleUser, Content: "hi"})
	tracker.HandleEvent(types.Event{EventID: "e", Type: types.EventEndOfCall, CallID: "c", Namespace: "n", EndedReason: "failed"})

	call, _ := tracker.GetCall("c")
	if call.Status != types.CallStatusFailed {
		t.Errorf("expected reported failed outcome, got %s", call.Status)
	}
}

func TestLateStartBackfillsDuration(t *testing.T) {
	tracker, _ := newTestTracker()

	tracker.HandleEvent(types.Event{EventID: "e", Type: types.EventEndOfCall, CallID: "c", Namespace: "n", Timestamp: ts(45)})
	tracker.HandleEvent(types.Event{EventID: "s", Type: types.EventCallStarted, CallID: "c", Namespace: "n", Timestamp: ts(5)})

	call, _ := tracker.GetCall("c")
	if call.Phase != types.PhaseEnded {
		t.Errorf("late start regressed phase to %s", call.Phase)
	}
	if call.DurationSeconds != 40 {
		t.Errorf("expected backfilled duration 40s, got %.1f", call.DurationSeconds)
	}
}

func TestUnknownEventTypeRejected(t *testing.T) {
	tracker, _ := newTestTracker()

	_, err := tracker.HandleEvent(types.Event{EventID: "x", Type: "mystery", CallID: "c", Namespace: "n"})
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestAnyDeliveryOrderYieldsOneConsistentRecord(t *testing.T) {
	base := []types.Event{
		{EventID: "e1", Type: types.EventCallStarted, CallID: "c", Namespace: "n", Timestamp: ts(0)},
		{EventID: "e2", Type: types.EventStatusUpdate, CallID: "c", Namespace: "n", Status: "ringing"},
		{EventID: "e3", Type: types.EventTurnCompleted, CallID: "c", Namespace: "n", Seq: 1, Role: types.RoleUser, Content: "hi"},
		{EventID: "e4", Type: types.EventEndOfCall, CallID: "c", Namespace: "n", Timestamp: ts(30), EndedReason: "completed"},
	}

	// A handful of permutations including fully reversed delivery
	orders := [][]int{
		{0, 1, 2, 3},
		{3, 2, 1, 0},
		{3, 0, 1, 2},
		{2, 3, 0, 1},
		{1, 3, 2, 0},
	}

	for _, order := range orders {
		tracker, _ := newTestTracker()
		for _, i := range order {
			if _, err := tracker.HandleEvent(base[i]); err != nil {
				t.Fatalf("order %v: unexpected error: %v", order, err)
			}
		}

		call, ok := tracker.GetCall("c")
		if !ok {
			t.Fatalf("order %v: missing call record", order)
		}
		if call.Phase != types.PhaseEnded {
			t.Errorf("order %v: expected ended, got %s", order, call.Phase)
		}
		if call.Status != types.CallStatusCompleted {
			t.Errorf("order %v: expected completed, got %s", order, call.Status)
		}
		if call.DurationSeconds != 30 {
			t.Errorf("order %v: expected duration 30s, got %.1f", order, call.DurationSeconds)
		}
		if tracker.Count() != 1 {
			t.Errorf("order %v: expected one record, got %d", order, tracker.Count())
		}
	}
}

func TestAppendTranscriptAssignsNextSeq(t *testing.T) {
	tracker, sink := newTestTracker()

	tracker.HandleEvent(types.Event{EventID: "e3", Type: types.EventTurnCompleted, CallID: "c", Namespace: "n", Seq: 3, Role: types.RoleUser, Content: "question"})
	entry := tracker.AppendTranscript("c", "n", types.RoleAgent, "answer", 0)

	if entry.Seq != 4 {
		t.Errorf("expected agent reply at seq 4, got %d", entry.Seq)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.transcripts) != 2 {
		t.Errorf("expected 2 persisted transcript entries, got %d", len(sink.transcripts))
	}
}
