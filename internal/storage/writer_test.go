package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relaydesk/voicegate/internal/alerts"
	"github.com/relaydesk/voicegate/internal/types"
	"github.com/rs/zerolog"
)

// flakyStore fails the first failures calls to UpsertCall, then succeeds
type flakyStore struct {
	NoopStore
	mu       sync.Mutex
	failures int
	calls    []types.Call
}

func (s *flakyStore) UpsertCall(_ context.Context, call types.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("transient storage failure")
	}
	s.calls = append(s.calls, call)
	return nil
}

func (s *flakyStore) persisted() []types.Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Call, len(s.calls))
	copy(out, s.calls)
	return out
}

func TestWriterRetriesTransientFailures(t *testing.T) {
	store := &flakyStore{failures: 2}
	writer := NewWriter(store, WriterConfig{
		QueueSize:   16,
		Workers:     1,
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
	}, alerts.NewNotifier(zerolog.Nop()), zerolog.Nop())

	writer.PersistCall(types.Call{CallID: "call-1"})
	writer.Stop()

	persisted := store.persisted()
	if len(persisted) != 1 || persisted[0].CallID != "call-1" {
		t.Errorf("expected call persisted after retries, got %v", persisted)
	}
}

func TestWriterDropsAfterExhaustedRetries(t *testing.T) {
	store := &flakyStore{failures: 10}
	notifier := alerts.NewNotifier(zerolog.Nop())
	writer := NewWriter(store, WriterConfig{
		QueueSize:   16,
		Workers:     1,
		MaxAttempts: 2,
		RetryDelay:  time.Millisecond,
	}, notifier, zerolog.Nop())

	writer.PersistCall(types.Call{CallID: "call-1"})
	writer.Stop()

	if len(store.persisted()) != 0 {
		t.Error("expected no persisted calls after exhausted retries")
	}

	recent := notifier.Recent()
	if len(recent) != 1 || recent[0].Rule != "storage_write_failed" {
		t.Errorf("expected storage_write_failed alert, got %v", recent)
	}
}

func TestWriterDrainsQueueOnStop(t *testing.T) {
	store := &flakyStore{}
	writer := NewWriter(store, WriterConfig{
		QueueSize:   64,
		Workers:     2,
		MaxAttempts: 1,
		RetryDelay:  time.Millisecond,
	}, alerts.NewNotifier(zerolog.Nop()), zerolog.Nop())

	for i := 0; i < 20; i++ {
		writer.PersistCall(types.Call{CallID: "call-1", Turns: i})
	}
	writer.Stop()

	if got := len(store.persisted()); got != 20 {
		t.Errorf("expected all 20 queued writes applied, got %d", got)
	}
}
