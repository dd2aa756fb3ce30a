package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	// Event metrics
	EventsReceivedTotal   int64
	EventsDuplicateTotal  int64
	EventsOutOfOrderTotal int64
	EventsDroppedTotal    int64

	// Turn metrics
	TurnsTotal               int64
	RetrievalEmptyTotal      int64
	RetrievalTimeoutsTotal   int64
	NamespaceMissesTotal     int64
	CompletionFallbacksTotal int64
	ActionsScheduledTotal    int64
	BookingsSucceededTotal   int64
	BookingsFailedTotal      int64

	// Audio metrics
	AudioSessionsTotal   int64
	AudioUtterancesTotal int64
	activeSessions       int64

	// Storage metrics
	StorageWritesTotal  int64
	StorageRetriesTotal int64
	StorageDroppedTotal int64

	startTime time.Time
}

// Global metrics instance
var instance *Metrics
var once sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{startTime: time.Now()}
	})
	return instance
}

func (m *Metrics) add(field *int64, n int64) {
	m.mu.Lock()
	*field += n
	m.mu.Unlock()
}

// RecordEventReceived increments the events received counter
func (m *Metrics) RecordEventReceived() { m.add(&m.EventsReceivedTotal, 1) }

// RecordEventDuplicate increments the duplicate event counter
func (m *Metrics) RecordEventDuplicate() { m.add(&m.EventsDuplicateTotal, 1) }

// RecordEventOutOfOrder increments the out-of-order event counter
func (m *Metrics) RecordEventOutOfOrder() { m.add(&m.EventsOutOfOrderTotal, 1) }

// RecordEventDropped increments the dropped (malformed/unroutable) event counter
func (m *Metrics) RecordEventDropped() { m.add(&m.EventsDroppedTotal, 1) }

// RecordTurn increments the handled turn counter
func (m *Metrics) RecordTurn() { m.add(&m.TurnsTotal, 1) }

// RecordRetrievalEmpty increments the empty retrieval counter
func (m *Metrics) RecordRetrievalEmpty() { m.add(&m.RetrievalEmptyTotal, 1) }

// RecordRetrievalTimeout increments the retrieval timeout counter
func (m *Metrics) RecordRetrievalTimeout() { m.add(&m.RetrievalTimeoutsTotal, 1) }

// RecordNamespaceMiss increments the unknown-namespace counter
func (m *Metrics) RecordNamespaceMiss() { m.add(&m.NamespaceMissesTotal, 1) }

// RecordCompletionFallback increments the completion fallback counter
func (m *Metrics) RecordCompletionFallback() { m.add(&m.CompletionFallbacksTotal, 1) }

// RecordActionScheduled increments the scheduled action counter
func (m *Metrics) RecordActionScheduled() { m.add(&m.ActionsScheduledTotal, 1) }

// RecordBooking increments the booking counters
func (m *Metrics) RecordBooking(ok bool) {
	if ok {
		m.add(&m.BookingsSucceededTotal, 1)
	} else {
		m.add(&m.BookingsFailedTotal, 1)
	}
}

// RecordSessionStart increments audio session counters
func (m *Metrics) RecordSessionStart() {
	m.mu.Lock()
	m.AudioSessionsTotal++
	m.activeSessions++
	m.mu.Unlock()
}

// RecordSessionEnd decrements the active session gauge
func (m *Metrics) RecordSessionEnd() {
	m.mu.Lock()
	m.activeSessions--
	m.mu.Unlock()
}

// RecordUtterance increments the utterance counter
func (m *Metrics) RecordUtterance() { m.add(&m.AudioUtterancesTotal, 1) }

// RecordStorageWrite increments the storage write counter
func (m *Metrics) RecordStorageWrite() { m.add(&m.StorageWritesTotal, 1) }

// RecordStorageRetry increments the storage retry counter
func (m *Metrics) RecordStorageRetry() { m.add(&m.StorageRetriesTotal, 1) }

// RecordStorageDropped increments the storage dropped-write counter
func (m *Metrics) RecordStorageDropped() { m.add(&m.StorageDroppedTotal, 1) }

// ActiveSessions returns the current number of audio sessions
func (m *Metrics) ActiveSessions() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeSessions
}

// Handler returns an HTTP handler for the /internal/metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		write := func(name string, value int64) {
			w.Write([]byte(name + " " + strconv.FormatInt(value, 10) + "\n"))
		}

		write("voicegate_events_received_total", m.EventsReceivedTotal)
		write("voicegate_events_duplicate_total", m.EventsDuplicateTotal)
		write("voicegate_events_out_of_order_total", m.EventsOutOfOrderTotal)
		write("voicegate_events_dropped_total", m.EventsDroppedTotal)
		write("voicegate_turns_total", m.TurnsTotal)
		write("voicegate_retrieval_empty_total", m.RetrievalEmptyTotal)
		write("voicegate_retrieval_timeouts_total", m.RetrievalTimeoutsTotal)
		write("voicegate_namespace_misses_total", m.NamespaceMissesTotal)
		write("voicegate_completion_fallbacks_total", m.CompletionFallbacksTotal)
		write("voicegate_actions_scheduled_total", m.ActionsScheduledTotal)
		write("voicegate_bookings_succeeded_total", m.BookingsSucceededTotal)
		write("voicegate_bookings_failed_total", m.BookingsFailedTotal)
		write("voicegate_audio_sessions_total", m.AudioSessionsTotal)
		write("voicegate_audio_sessions_active", m.activeSessions)
		write("voicegate_audio_utterances_total", m.AudioUtterancesTotal)
		write("voicegate_storage_writes_total", m.StorageWritesTotal)
		write("voicegate_storage_retries_total", m.StorageRetriesTotal)
		write("voicegate_storage_dropped_total", m.StorageDroppedTotal)
		write("voicegate_uptime_seconds", int64(time.Since(m.startTime).Seconds()))
	}
}
