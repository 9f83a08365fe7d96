package federation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tezrelay/relay/internal/audit"
	"github.com/tezrelay/relay/internal/bundle"
	"github.com/tezrelay/relay/internal/events"
	"github.com/tezrelay/relay/internal/models"
	"github.com/tezrelay/relay/internal/notifications"
	"github.com/tezrelay/relay/internal/search"
)

// IngestResult is the per-recipient outcome of admitting an inbound bundle,
// mirroring the wire response `{accepted, localTezIds, notFound}`.
type IngestResult struct {
	LocalTezIDs []models.ID
	NotFound    []string
}

// Inbox ingests validated, trust-admitted bundles from peers: it resolves
// each recipient address against the local Contact registry and persists
// the Tez, its context, and the resolved recipients in one transaction.
// Sender provenance (the original Tez id) is preserved as-is.
type Inbox struct {
	pool   *pgxpool.Pool
	audit  audit.Sink
	search *search.Service
	notify *notifications.Service
	bus    *events.Bus
	host   string
	logger *slog.Logger
}

// NewInbox constructs an Inbox bound to ourHost, the local relay's domain.
// searchSvc, notifySvc, and bus may be nil, in which case inbound Tez are
// simply not indexed / not pushed / not published.
func NewInbox(pool *pgxpool.Pool, sink audit.Sink, searchSvc *search.Service, notifySvc *notifications.Service, bus *events.Bus, ourHost string, logger *slog.Logger) *Inbox {
	return &Inbox{pool: pool, audit: sink, search: searchSvc, notify: notifySvc, bus: bus, host: ourHost, logger: logger}
}

// Admit resolves b's recipients and persists the Tez for every local one.
// Remote-addressed entries (host != ourHost) are silently ignored — a
// peer forwarding to a third party is out of scope for this relay.
func (in *Inbox) Admit(ctx context.Context, b bundle.Bundle) (IngestResult, error) {
	if err := bundle.Validate(b); err != nil {
		return IngestResult{}, err
	}

	tx, err := in.pool.Begin(ctx)
	if err != nil {
		return IngestResult{}, fmt.Errorf("federation: beginning inbound transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var result IngestResult
	var localUserIDs []string

	for _, addr := range b.To {
		_, host, _ := splitAddress(addr)
		if host != "" && host != in.host {
			continue
		}

		var userID string
		err := tx.QueryRow(ctx, `SELECT id FROM contacts WHERE tez_address = $1`, addr).Scan(&userID)
		if err == pgx.ErrNoRows {
			result.NotFound = append(result.NotFound, addr)
			continue
		}
		if err != nil {
			return IngestResult{}, fmt.Errorf("federation: resolving contact %q: %w", addr, err)
		}
		localUserIDs = append(localUserIDs, userID)
	}

	if len(localUserIDs) == 0 {
		// Nothing to persist locally, but the bundle is still accepted —
		// every addressed recipient was simply not found.
		if err := tx.Commit(ctx); err != nil {
			return IngestResult{}, fmt.Errorf("federation: committing empty admission: %w", err)
		}
		return result, nil
	}

	tezID, err := models.ParseID(b.Tez.ID)
	if err != nil {
		return IngestResult{}, &bundle.ErrInvalidBundle{Reason: "malformed tez.id"}
	}
	threadID, err := models.ParseID(b.Tez.ThreadID)
	if err != nil {
		return IngestResult{}, &bundle.ErrInvalidBundle{Reason: "malformed tez.thread_id"}
	}

	var parentTezID *models.ID
	if b.Tez.ParentTezID != nil {
		parsed, err := models.ParseID(*b.Tez.ParentTezID)
		if err != nil {
			return IngestResult{}, &bundle.ErrInvalidBundle{Reason: "malformed tez.parent_tez_id"}
		}
		parentTezID = &parsed
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO tez (id, thread_id, parent_tez_id, surface_text, type, urgency,
		                   action_requested, sender_user_id, visibility, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'active')
		 ON CONFLICT (id) DO NOTHING`,
		tezID, threadID, parentTezID, b.Tez.SurfaceText, b.Tez.Type, b.Tez.Urgency,
		b.Tez.ActionRequested, b.Tez.SenderUserID, b.Tez.Visibility,
	)
	if err != nil {
		return IngestResult{}, fmt.Errorf("federation: inserting inbound tez: %w", err)
	}

	for i, c := range b.Context {
		_, err := tx.Exec(ctx,
			`INSERT INTO tez_context (id, tez_id, layer, content, mime_type, confidence,
			                           source, derived_from, created_by, position)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			models.NewID(), tezID, c.Layer, c.Content, c.MimeType, c.Confidence,
			c.Source, c.DerivedFrom, models.SystemCreator, i,
		)
		if err != nil {
			return IngestResult{}, fmt.Errorf("federation: inserting inbound context: %w", err)
		}
	}

	for _, userID := range localUserIDs {
		_, err := tx.Exec(ctx,
			`INSERT INTO tez_recipients (tez_id, user_id, delivered_at)
			 VALUES ($1, $2, now())
			 ON CONFLICT (tez_id, user_id) DO NOTHING`,
			tezID, userID,
		)
		if err != nil {
			return IngestResult{}, fmt.Errorf("federation: inserting inbound recipient: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return IngestResult{}, fmt.Errorf("federation: committing inbound admission: %w", err)
	}

	result.LocalTezIDs = []models.ID{tezID}

	if in.search != nil {
		if err := in.search.IndexTez(ctx, search.Document{
			ID:           tezID.String(),
			SurfaceText:  b.Tez.SurfaceText,
			SenderUserID: b.Tez.SenderUserID,
			CreatedAt:    time.Now().Unix(),
		}); err != nil {
			in.logger.Warn("search indexing failed for inbound tez",
				"tezId", tezID.String(), "error", err.Error())
		}
	}

	in.audit.Record(ctx, audit.Entry{
		ActorUserID: b.Tez.SenderUserID,
		Action:      models.ActionTezReceived,
		TargetType:  "tez",
		TargetID:    tezID.String(),
		Metadata: map[string]interface{}{
			"sender_server": b.SenderServer,
			"from":          b.From,
		},
	})

	pushTez := models.Tez{
		ID: tezID, ThreadID: threadID, SurfaceText: b.Tez.SurfaceText,
		Type: b.Tez.Type, Urgency: b.Tez.Urgency, SenderUserID: b.Tez.SenderUserID,
	}

	if in.notify != nil {
		for _, userID := range localUserIDs {
			in.notify.SendTezAdmitted(ctx, userID, pushTez)
		}
	}

	if in.bus != nil {
		for _, userID := range localUserIDs {
			payload := map[string]string{"tezId": tezID.String(), "threadId": threadID.String(), "senderId": b.Tez.SenderUserID}
			if err := in.bus.PublishUserEvent(ctx, events.SubjectTezReceived, "TEZ_RECEIVED", userID, payload); err != nil {
				in.logger.Warn("event publish failed for inbound tez", "tezId", tezID.String(), "error", err.Error())
			}
		}
	}

	return result, nil
}
