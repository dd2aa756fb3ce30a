package storage

import (
	"context"
	"sync"
	"time"

	"github.com/relaydesk/voicegate/internal/alerts"
	"github.com/relaydesk/voicegate/internal/metrics"
	"github.com/relaydesk/voicegate/internal/types"
	"github.com/rs/zerolog"
)

// WriterConfig holds the async writer's tunables
type WriterConfig struct {
	QueueSize   int
	Workers     int
	MaxAttempts int
	RetryDelay  time.Duration
}

type writeJob struct {
	what    string
	attempt func(ctx context.Context) error
}

// Writer queues persistence instructions and applies them to the store in
// the background with bounded retries. It decouples the event handling
// path from storage latency: enqueueing never blocks, and a full queue
// drops the write rather than stalling a call.
type Writer struct {
	store    Store
	queue    chan writeJob
	cfg      WriterConfig
	notifier *alerts.Notifier
	logger   zerolog.Logger
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewWriter starts the background persistence workers
func NewWriter(store Store, cfg WriterConfig, notifier *alerts.Notifier, logger zerolog.Logger) *Writer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 250 * time.Millisecond
	}

	w := &Writer{
		store:    store,
		queue:    make(chan writeJob, cfg.QueueSize),
		cfg:      cfg,
		notifier: notifier,
		logger:   logger,
	}

	w.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go w.worker()
	}
	return w
}

// PersistCall queues a call record upsert
func (w *Writer) PersistCall(call types.Call) {
	w.enqueue("call "+call.CallID, func(ctx context.Context) error {
		return w.store.UpsertCall(ctx, call)
	})
}

// PersistTranscript queues a transcript entry upsert
func (w *Writer) PersistTranscript(entry types.TranscriptEntry) {
	w.enqueue("transcript "+entry.CallID, func(ctx context.Context) error {
		return w.store.UpsertTranscript(ctx, entry)
	})
}

// PersistAction queues a scheduled action upsert
func (w *Writer) PersistAction(action types.ScheduledAction) {
	w.enqueue("action "+action.ActionID, func(ctx context.Context) error {
		return w.store.UpsertAction(ctx, action)
	})
}

func (w *Writer) enqueue(what string, attempt func(ctx context.Context) error) {
	select {
	case w.queue <- writeJob{what: what, attempt: attempt}:
	default:
		metrics.Get().RecordStorageDropped()
		w.logger.Error().Str("write", what).Msg("storage queue full, write dropped")
		w.notifier.Notify(alerts.Alert{
			Rule:     "storage_queue_full",
			Severity: alerts.SeverityCritical,
			Message:  "storage queue full, write dropped: " + what,
		})
	}
}

func (w *Writer) worker() {
	defer w.wg.Done()
	for job := range w.queue {
		w.apply(job)
	}
}

func (w *Writer) apply(job writeJob) {
	var err error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		if err = job.attempt(context.Background()); err == nil {
			metrics.Get().RecordStorageWrite()
			return
		}

		if attempt < w.cfg.MaxAttempts {
			metrics.Get().RecordStorageRetry()
			w.logger.Warn().
				Err(err).
				Str("write", job.what).
				Int("attempt", attempt).
				Msg("storage write failed, retrying")
			time.Sleep(w.cfg.RetryDelay)
		}
	}

	metrics.Get().RecordStorageDropped()
	w.logger.Error().Err(err).Str("write", job.what).Msg("storage write dropped after retries")
	w.notifier.Notify(alerts.Alert{
		Rule:     "storage_write_failed",
		Severity: alerts.SeverityCritical,
		Message:  "storage write dropped after retries: " + job.what,
	})
}

// Stop drains the queue and waits for the workers to finish
func (w *Writer) Stop() {
	w.stopOnce.Do(func() {
		close(w.queue)
	})
	w.wg.Wait()
}
