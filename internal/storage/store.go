// Package storage provides durable persistence for call records,
// transcripts, scheduled actions and calendar credentials. Writes are
// idempotent upserts keyed on stable identities, so replaying the same
// record is always safe.
package storage

import (
	"context"

	"github.com/relaydesk/voicegate/internal/types"
	"github.com/rs/zerolog"
)

// Store defines the storage interface
type Store interface {
	UpsertCall(ctx context.Context, call types.Call) error
	UpsertTranscript(ctx context.Context, entry types.TranscriptEntry) error
	UpsertAction(ctx context.Context, action types.ScheduledAction) error
	GetCall(ctx context.Context, callID string) (types.Call, bool, error)
	ListTranscript(ctx context.Context, callID string) ([]types.TranscriptEntry, error)
	SaveCalendarCredential(ctx context.Context, cred types.CalendarCredential) error
	GetCalendarCredential(ctx context.Context, namespace string) (types.CalendarCredential, bool, error)
	Close()
}

// NoopStore is a no-op implementation when durable storage is disabled
type NoopStore struct{}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (s *NoopStore) UpsertCall(_ context.Context, _ types.Call) error                  { return nil }
func (s *NoopStore) UpsertTranscript(_ context.Context, _ types.TranscriptEntry) error { return nil }
func (s *NoopStore) UpsertAction(_ context.Context, _ types.ScheduledAction) error     { return nil }
func (s *NoopStore) GetCall(_ context.Context, _ string) (types.Call, bool, error) {
	return types.Call{}, false, nil
}
func (s *NoopStore) ListTranscript(_ context.Context, _ string) ([]types.TranscriptEntry, error) {
	return nil, nil
}
func (s *NoopStore) SaveCalendarCredential(_ context.Context, _ types.CalendarCredential) error {
	return nil
}
func (s *NoopStore) GetCalendarCredential(_ context.Context, _ string) (types.CalendarCredential, bool, error) {
	return types.CalendarCredential{}, false, nil
}
func (s *NoopStore) Close() {}

// NewStore creates the appropriate store based on configuration
func NewStore(ctx context.Context, logger zerolog.Logger) (Store, error) {
	cfg := LoadStorageConfig()

	switch cfg.Mode {
	case ModePostgres:
		return NewPostgresStore(ctx, cfg, logger)
	case ModeDynamoLocal, ModeDynamoAWS:
		return NewDynamoStore(ctx, cfg, logger)
	default:
		logger.Info().Msg("durable storage disabled (STORAGE_MODE=none)")
		return NewNoopStore(), nil
	}
}
