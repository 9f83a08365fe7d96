// Package audit writes the append-only journal of mutating actions: shares,
// replies, reads, peer trust changes, and so on. The writer never reads;
// callers pass an explicit Sink rather than importing a module-level
// instance, so tests can substitute a recording sink. A write failure is
// logged and swallowed rather than propagated, since an audit entry is a
// side effect of the action it records, not a precondition for it.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tezrelay/relay/internal/models"
)

// Entry is the set of fields a caller supplies to record one audit event.
// ID and CreatedAt are stamped by the sink.
type Entry struct {
	TeamID      *models.ID
	ActorUserID string
	Action      string
	TargetType  string
	TargetID    string
	Metadata    map[string]interface{}
}

// Sink records audit entries. Implementations must never return an error
// that the caller is expected to propagate as an operation failure — write
// failures are logged by the Sink itself and swallowed.
type Sink interface {
	Record(ctx context.Context, e Entry)
}

// Store is the database-backed Sink. Failures are logged as warnings and do
// not surface to the caller: audit is best-effort, the mutation it
// describes is primary.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New constructs a Store.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// Record persists e, stamping id and createdAt. Failures are logged, never
// returned — callers that already committed their primary mutation must not
// have it undone by a journal write failure.
func (s *Store) Record(ctx context.Context, e Entry) {
	var metadata []byte
	if e.Metadata != nil {
		encoded, err := json.Marshal(e.Metadata)
		if err != nil {
			s.logger.Warn("audit: failed to marshal metadata",
				slog.String("action", e.Action),
				slog.String("error", err.Error()))
		} else {
			metadata = encoded
		}
	}

	id := models.NewID()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_entries (id, team_id, actor_user_id, action, target_type, target_id, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, e.TeamID, e.ActorUserID, e.Action, e.TargetType, e.TargetID, metadata,
	)
	if err != nil {
		s.logger.Warn("audit: failed to record entry",
			slog.String("action", e.Action),
			slog.String("target_type", e.TargetType),
			slog.String("target_id", e.TargetID),
			slog.String("error", err.Error()))
	}
}

// List returns audit entries for a team, most recent first, capped at
// limit. Used by operator-facing audit review, not by any client-facing
// endpoint.
func (s *Store) List(ctx context.Context, teamID models.ID, limit int) ([]models.AuditEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, team_id, actor_user_id, action, target_type, target_id, metadata, created_at
		 FROM audit_entries WHERE team_id = $1 ORDER BY created_at DESC LIMIT $2`,
		teamID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.TeamID, &e.ActorUserID, &e.Action, &e.TargetType,
			&e.TargetID, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
