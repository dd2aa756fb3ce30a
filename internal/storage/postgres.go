package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/relaydesk/voicegate/internal/types"
	"github.com/rs/zerolog"
)

// pgxQuerier is the minimal interface needed from a pgx pool. Satisfied by
// *pgxpool.Pool and by pgxmock in tests.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     pgxQuerier
	logger zerolog.Logger
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS calls (
		call_id          TEXT PRIMARY KEY,
		namespace        TEXT NOT NULL DEFAULT '',
		direction        TEXT NOT NULL DEFAULT '',
		caller_number    TEXT NOT NULL DEFAULT '',
		phase            TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL DEFAULT '',
		start_time       TIMESTAMPTZ,
		end_time         TIMESTAMPTZ,
		duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
		turns            INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS transcripts (
		call_id   TEXT NOT NULL,
		seq       INTEGER NOT NULL,
		role      TEXT NOT NULL,
		content   TEXT NOT NULL DEFAULT '',
		spoken_at TIMESTAMPTZ,
		sentiment DOUBLE PRECISION,
		PRIMARY KEY (call_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS actions (
		call_id        TEXT NOT NULL,
		action_id      TEXT NOT NULL,
		namespace      TEXT NOT NULL DEFAULT '',
		intent         TEXT NOT NULL,
		customer_name  TEXT NOT NULL DEFAULT '',
		customer_phone TEXT NOT NULL DEFAULT '',
		issue_type     TEXT NOT NULL DEFAULT '',
		scheduled_time TIMESTAMPTZ,
		external_ref   TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (call_id, action_id)
	)`,
	`CREATE TABLE IF NOT EXISTS calendar_credentials (
		namespace     TEXT PRIMARY KEY,
		token         TEXT NOT NULL DEFAULT '',
		refresh_token TEXT NOT NULL DEFAULT '',
		token_expiry  TIMESTAMPTZ,
		client_id     TEXT NOT NULL DEFAULT '',
		client_secret TEXT NOT NULL DEFAULT '',
		scopes        TEXT NOT NULL DEFAULT '',
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
}

// NewPostgresStore connects to PostgreSQL and ensures the schema exists
func NewPostgresStore(ctx context.Context, cfg Config, logger zerolog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := &PostgresStore{db: pool, logger: logger}
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	logger.Info().Msg("postgres store initialized")
	return store, nil
}

func (s *PostgresStore) UpsertCall(ctx context.Context, call types.Call) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO calls (
            call_id, namespace, direction, caller_number,
            phase, status, start_time, end_time, duration_seconds, turns
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (call_id) DO UPDATE SET
            namespace        = EXCLUDED.namespace,
            direction        = EXCLUDED.direction,
            caller_number    = EXCLUDED.caller_number,
            phase            = EXCLUDED.phase,
            status           = EXCLUDED.status,
            start_time       = EXCLUDED.start_time,
            end_time         = EXCLUDED.end_time,
            duration_seconds = EXCLUDED.duration_seconds,
            turns            = EXCLUDED.turns
    `,
		call.CallID, call.Namespace, string(call.Direction), call.CallerNumber,
		string(call.Phase), string(call.Status), call.StartTime, call.EndTime,
		call.DurationSeconds, call.Turns,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert call: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertTranscript(ctx context.Context, entry types.TranscriptEntry) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO transcripts (call_id, seq, role, content, spoken_at, sentiment)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (call_id, seq) DO UPDATE SET
            role      = EXCLUDED.role,
            content   = EXCLUDED.content,
            spoken_at = EXCLUDED.spoken_at,
            sentiment = EXCLUDED.sentiment
    `,
		entry.CallID, entry.Seq, string(entry.Role), entry.Content,
		entry.SpokenAt, entry.Sentiment,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert transcript entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertAction(ctx context.Context, action types.ScheduledAction) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO actions (
            call_id, action_id, namespace, intent,
            customer_name, customer_phone, issue_type,
            scheduled_time, external_ref, created_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (call_id, action_id) DO UPDATE SET
            external_ref = EXCLUDED.external_ref
    `,
		action.CallID, action.ActionID, action.Namespace, string(action.Intent),
		action.CustomerName, action.CustomerPhone, action.IssueType,
		action.ScheduledTime, action.ExternalRef, action.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert action: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCall(ctx context.Context, callID string) (types.Call, bool, error) {
	var call types.Call
	var direction, phase, status string
	err := s.db.QueryRow(ctx, `
        SELECT call_id, namespace, direction, caller_number,
               phase, status, start_time, end_time, duration_seconds, turns
        FROM calls WHERE call_id = $1
    `, callID).Scan(
		&call.CallID, &call.Namespace, &direction, &call.CallerNumber,
		&phase, &status, &call.StartTime, &call.EndTime,
		&call.DurationSeconds, &call.Turns,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Call{}, false, nil
	}
	if err != nil {
		return types.Call{}, false, fmt.Errorf("failed to get call: %w", err)
	}

	call.Direction = types.Direction(direction)
	call.Phase = types.Phase(phase)
	call.Status = types.CallStatus(status)
	return call, true, nil
}

func (s *PostgresStore) ListTranscript(ctx context.Context, callID string) ([]types.TranscriptEntry, error) {
	rows, err := s.db.Query(ctx, `
        SELECT call_id, seq, role, content, spoken_at, sentiment
        FROM transcripts WHERE call_id = $1 ORDER BY seq
    `, callID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcript: %w", err)
	}
	defer rows.Close()

	var entries []types.TranscriptEntry
	for rows.Next() {
		var entry types.TranscriptEntry
		var role string
		if err := rows.Scan(&entry.CallID, &entry.Seq, &role, &entry.Content, &entry.SpokenAt, &entry.Sentiment); err != nil {
			return nil, fmt.Errorf("failed to scan transcript entry: %w", err)
		}
		entry.Role = types.Role(role)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) SaveCalendarCredential(ctx context.Context, cred types.CalendarCredential) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO calendar_credentials (
            namespace, token, refresh_token, token_expiry,
            client_id, client_secret, scopes, updated_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (namespace) DO UPDATE SET
            token         = EXCLUDED.token,
            refresh_token = EXCLUDED.refresh_token,
            token_expiry  = EXCLUDED.token_expiry,
            client_id     = EXCLUDED.client_id,
            client_secret = EXCLUDED.client_secret,
            scopes        = EXCLUDED.scopes,
            updated_at    = EXCLUDED.updated_at
    `,
		cred.Namespace, cred.Token, cred.RefreshToken, cred.TokenExpiry,
		cred.ClientID, cred.ClientSecret, cred.Scopes, cred.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save calendar credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCalendarCredential(ctx context.Context, namespace string) (types.CalendarCredential, bool, error) {
	var cred types.CalendarCredential
	err := s.db.QueryRow(ctx, `
        SELECT namespace, token, refresh_token, token_expiry,
               client_id, client_secret, scopes, updated_at
        FROM calendar_credentials WHERE namespace = $1
    `, namespace).Scan(
		&cred.Namespace, &cred.Token, &cred.RefreshToken, &cred.TokenExpiry,
		&cred.ClientID, &cred.ClientSecret, &cred.Scopes, &cred.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.CalendarCredential{}, false, nil
	}
	if err != nil {
		return types.CalendarCredential{}, false, fmt.Errorf("failed to get calendar credential: %w", err)
	}
	return cred, true, nil
}

func (s *PostgresStore) Close() {
	s.db.Close()
}
