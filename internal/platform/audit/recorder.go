// Package audit appends immutable audit log entries for security-relevant
// operations: who did what, to which resource, from where. Entries are
// append-only; nothing in the application updates or deletes them, and they
// reference accounts by identifier only so they survive account erasure for
// compliance retention.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Entry is a single audit log record. ActorID is nil for system-initiated or
// pre-authentication events such as failed login attempts.
type Entry struct {
	ID           uuid.UUID      `json:"id"`
	ActorID      *uuid.UUID     `json:"actor_id"`
	Action       string         `json:"action"`
	ResourceType *string        `json:"resource_type,omitempty"`
	ResourceID   *uuid.UUID     `json:"resource_id,omitempty"`
	IPAddress    *string        `json:"ip_address,omitempty"`
	UserAgent    *string        `json:"user_agent,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Store persists audit entries. Append is the only operation: the log is
// immutable by construction.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
}

// PGStore appends audit entries to the audit_logs table.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Append(ctx context.Context, entry *Entry) error {
	var details *string
	if entry.Details != nil {
		raw, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("audit: marshal details: %w", err)
		}
		str := string(raw)
		details = &str
	}

	const query = `
		INSERT INTO audit_logs (actor_id, action, resource_type, resource_id, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5::inet, $6, $7::jsonb, $8)
		RETURNING id`

	err := s.pool.QueryRow(ctx, query,
		entry.ActorID, entry.Action, entry.ResourceType, entry.ResourceID,
		entry.IPAddress, entry.UserAgent, details, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("audit: append entry: %w", err)
	}
	return nil
}

// Recorder records audit entries with append-then-best-effort semantics: a
// failed append is reported on the operational logger but never fails or
// rolls back the operation being audited.
type Recorder struct {
	store  Store
	logger zerolog.Logger
}

func NewRecorder(store Store, logger zerolog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Record appends an entry, filling in the timestamp when unset.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if err := r.store.Append(ctx, &entry); err != nil {
		r.logger.Error().
			Err(err).
			Str("action", entry.Action).
			Msg("audit append failed")
	}
}
