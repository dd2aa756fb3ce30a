package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/relaydesk/voicegate/internal/alerts"
	"github.com/relaydesk/voicegate/internal/callstate"
	"github.com/relaydesk/voicegate/internal/retrieval"
	"github.com/relaydesk/voicegate/internal/types"
	"github.com/rs/zerolog"
)

type fakeRetriever struct {
	snippets []types.Snippet
	err      error
	delay    time.Duration
}

func (f *fakeRetriever) Retrieve(ctx context.Context, namespace, query string, k int) ([]types.Snippet, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.snippets, nil
}

type fakeCompleter struct {
	mu       sync.Mutex
	response string
	err      error
	prompts  []string
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeCompleter) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

type fakeBooker struct {
	ref    string
	err    error
	booked []types.ScheduledAction
}

func (f *fakeBooker) Book(ctx context.Context, namespace string, action types.ScheduledAction) (string, error) {
	f.booked = append(f.booked, action)
	if f.err != nil {
		return "", f.err
	}
	return f.ref, nil
}

type nopSink struct{}

func (nopSink) PersistCall(types.Call)                 {}
func (nopSink) PersistTranscript(types.TranscriptEntry) {}
func (nopSink) PersistAction(types.ScheduledAction)     {}

func newTestOrchestrator(r Retriever, c *fakeCompleter, b Booker) (*Orchestrator, *callstate.Tracker) {
	tracker := callstate.NewTracker(nopSink{}, callstate.DefaultStatusPolicy(1), zerolog.Nop())
	cfg := Config{
		RetrievalK:        5,
		RetrievalTimeout:  100 * time.Millisecond,
		CompletionTimeout: 100 * time.Millisecond,
		FallbackResponse:  "Sorry, could you repeat that?",
	}
	o := New(r, c, b, tracker, alerts.NewNotifier(zerolog.Nop()), cfg, zerolog.Nop())
	return o, tracker
}

func TestPromptContainsRetrievedSnippets(t *testing.T) {
	retriever := &fakeRetriever{snippets: []types.Snippet{
		{Text: "open weekdays nine to five", Score: 0.9},
		{Text: "emergency service on weekends", Score: 0.5},
	}}
	completer := &fakeCompleter{response: "We are open weekdays nine to five."}
	o, _ := newTestOrchestrator(retriever, completer, nil)

	reply, err := o.HandleTurn(context.Background(), TurnRequest{Namespace: "hvac", CallID: "c1", Utterance: "when are you open"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.ResponseText == "" {
		t.Error("expected non-empty response text")
	}

	prompt := completer.lastPrompt()
	if !strings.Contains(prompt, "open weekdays nine to five") {
		t.Error("prompt missing first retrieved snippet")
	}
	if !strings.Contains(prompt, "emergency service on weekends") {
		t.Error("prompt missing second retrieved snippet")
	}
	if strings.Contains(prompt, "No knowledge base context") {
		t.Error("grounded prompt must not carry the no-context shape")
	}
}

func TestPromptNoContextShapeWhenRetrievalEmpty(t *testing.T) {
	retriever := &fakeRetriever{}
	completer := &fakeCompleter{response: "Answering from general knowledge."}
	o, _ := newTestOrchestrator(retriever, completer, nil)

	if _, err := o.HandleTurn(context.Background(), TurnRequest{Namespace: "hvac", CallID: "c1", Utterance: "hello"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prompt := completer.lastPrompt()
	if !strings.Contains(prompt, "No knowledge base context is available") {
		t.Error("expected distinct no-context prompt shape")
	}
	if strings.Contains(prompt, "Context:") {
		t.Error("no-context prompt must not contain a context block")
	}
}

func TestCompletionTimeoutReturnsFallback(t *testing.T) {
	retriever := &fakeRetriever{}
	completer := &fakeCompleter{err: context.DeadlineExceeded}
	o, _ := newTestOrchestrator(retriever, completer, nil)

	reply, err := o.HandleTurn(context.Background(), TurnRequest{Namespace: "hvac", CallID: "c1", Utterance: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.ResponseText != "Sorry, could you repeat that?" {
		t.Errorf("expected fallback response, got %q", reply.ResponseText)
	}
	if reply.ResponseText == "" {
		t.Error("caller must always receive spoken output")
	}
}

func TestRetrievalTimeoutDegradesToNoContext(t *testing.T) {
	retriever := &fakeRetriever{delay: time.Second, snippets: []types.Snippet{{Text: "never seen", Score: 1}}}
	completer := &fakeCompleter{response: "ok"}
	o, _ := newTestOrchestrator(retriever, completer, nil)

	reply, err := o.HandleTurn(context.Background(), TurnRequest{Namespace: "hvac", CallID: "c1", Utterance: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.ResponseText != "ok" {
		t.Errorf("turn should succeed without context, got %q", reply.ResponseText)
	}
	if !strings.Contains(completer.lastPrompt(), "No knowledge base context is available") {
		t.Error("retrieval timeout should produce the no-context prompt shape")
	}
}

func TestNamespaceNotFoundRaisesAlertAndContinues(t *testing.T) {
	retriever := &fakeRetriever{err: retrieval.ErrNamespaceNotFound}
	completer := &fakeCompleter{response: "ok"}
	tracker := callstate.NewTracker(nopSink{}, callstate.DefaultStatusPolicy(1), zerolog.Nop())
	notifier := alerts.NewNotifier(zerolog.Nop())
	o := New(retriever, completer, nil, tracker, notifier, Config{
		RetrievalK:        5,
		RetrievalTimeout:  100 * time.Millisecond,
		CompletionTimeout: 100 * time.Millisecond,
		FallbackResponse:  "fallback",
	}, zerolog.Nop())

	reply, err := o.HandleTurn(context.Background(), TurnRequest{Namespace: "missing", CallID: "c1", Utterance: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.ResponseText != "ok" {
		t.Errorf("turn should continue without context, got %q", reply.ResponseText)
	}

	recent := notifier.Recent()
	if len(recent) != 1 || recent[0].Rule != "namespace_not_found" {
		t.Errorf("expected namespace_not_found alert, got %v", recent)
	}
	if strings.Contains(reply.ResponseText, "namespace") {
		t.Error("configuration errors must not be spoken to the caller")
	}
}

func TestScheduleActionParsedBookedAndRecorded(t *testing.T) {
	retriever := &fakeRetriever{}
	completer := &fakeCompleter{response: "You're booked for Tuesday.\nACTION: {\"intent\":\"schedule_appointment\",\"customer_name\":\"Pat Lee\",\"customer_phone\":\"+15550100\",\"issue_type\":\"furnace\",\"scheduled_time\":\"2025-06-03T10:00:00Z\"}"}
	booker := &fakeBooker{ref: "cal-event-42"}
	o, tracker := newTestOrchestrator(retriever, completer, booker)

	reply, err := o.HandleTurn(context.Background(), TurnRequest{Namespace: "hvac", CallID: "c1", Utterance: "book me"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(reply.Actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(reply.Actions))
	}
	action := reply.Actions[0]
	if action.Intent != types.IntentScheduleAppointment {
		t.Errorf("unexpected intent %s", action.Intent)
	}
	if action.ExternalRef != "cal-event-42" {
		t.Errorf("expected external ref attached, got %q", action.ExternalRef)
	}
	if action.CustomerName != "Pat Lee" || action.IssueType != "furnace" {
		t.Errorf("action details lost: %+v", action)
	}
	if strings.Contains(reply.ResponseText, "ACTION:") {
		t.Error("recognized action line must be stripped from spoken text")
	}
	if len(booker.booked) != 1 {
		t.Errorf("expected 1 booking attempt, got %d", len(booker.booked))
	}

	// The turn is reflected in the tracker's record
	call, ok := tracker.GetCall("c1")
	if !ok || call.Phase != types.PhaseInProgress {
		t.Errorf("expected in-progress call record, got %+v", call)
	}
}

func TestBookingFailureKeepsActionWithoutRef(t *testing.T) {
	retriever := &fakeRetriever{}
	completer := &fakeCompleter{response: "Booked.\nACTION: {\"intent\":\"schedule_appointment\",\"customer_name\":\"A\",\"customer_phone\":\"1\",\"issue_type\":\"ac\",\"scheduled_time\":\"2025-06-03T10:00:00Z\"}"}
	booker := &fakeBooker{err: errors.New("calendar unreachable")}
	o, _ := newTestOrchestrator(retriever, completer, booker)

	reply, err := o.HandleTurn(context.Background(), TurnRequest{Namespace: "hvac", CallID: "c1", Utterance: "book me"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reply.Actions) != 1 {
		t.Fatalf("expected action kept despite booking failure, got %d", len(reply.Actions))
	}
	if reply.Actions[0].ExternalRef != "" {
		t.Errorf("expected empty external ref, got %q", reply.Actions[0].ExternalRef)
	}
}

func TestUnrecognizedIntentStaysConversational(t *testing.T) {
	retriever := &fakeRetriever{}
	completer := &fakeCompleter{response: "Sure.\nACTION: {\"intent\":\"launch_rocket\"}"}
	o, _ := newTestOrchestrator(retriever, completer, nil)

	reply, err := o.HandleTurn(context.Background(), TurnRequest{Namespace: "hvac", CallID: "c1", Utterance: "do it"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reply.Actions) != 0 {
		t.Errorf("unknown intent must not become an action: %v", reply.Actions)
	}
	if !strings.Contains(reply.ResponseText, "launch_rocket") {
		t.Error("unrecognized action line should remain in the spoken text")
	}
}

func TestRecordUserAppendsBothTranscriptSides(t *testing.T) {
	retriever := &fakeRetriever{}
	completer := &fakeCompleter{response: "hello there"}
	o, tracker := newTestOrchestrator(retriever, completer, nil)

	if _, err := o.HandleTurn(context.Background(), TurnRequest{Namespace: "hvac", CallID: "c1", Utterance: "hi", RecordUser: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	transcript := tracker.Transcript("c1")
	if len(transcript) != 2 {
		t.Fatalf("expected user and agent entries, got %d", len(transcript))
	}
	if transcript[0].Role != types.RoleUser || transcript[1].Role != types.RoleAgent {
		t.Errorf("unexpected roles: %s then %s", transcript[0].Role, transcript[1].Role)
	}
}

func TestCanceledTurnDiscarded(t *testing.T) {
	retriever := &fakeRetriever{}
	completer := &fakeCompleter{response: "ok"}
	o, tracker := newTestOrchestrator(retriever, completer, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := o.HandleTurn(ctx, TurnRequest{Namespace: "hvac", CallID: "c1", Utterance: "hi"}); err == nil {
		t.Fatal("expected error for canceled context")
	}
	if len(tracker.Transcript("c1")) != 0 {
		t.Error("canceled turn must not record transcript entries")
	}
}
