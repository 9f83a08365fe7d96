// Package messaging implements the Tez lifecycle: share, reply, get,
// thread assembly, and stream. Share and Reply check ACL before persisting
// and partition recipients into a single transactional write plus one
// outbound bundle enqueued per remote host.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tezrelay/relay/internal/acl"
	"github.com/tezrelay/relay/internal/artifacts"
	"github.com/tezrelay/relay/internal/audit"
	"github.com/tezrelay/relay/internal/bundle"
	"github.com/tezrelay/relay/internal/events"
	"github.com/tezrelay/relay/internal/federation"
	"github.com/tezrelay/relay/internal/models"
	"github.com/tezrelay/relay/internal/notifications"
	"github.com/tezrelay/relay/internal/search"
)

// Sentinel errors surfaced as typed HTTP outcomes by handlers.
var (
	ErrNotFound            = errors.New("NOT_FOUND")
	ErrSurfaceTextEmpty    = errors.New("surface text must not be empty")
	ErrSurfaceTextTooLong  = errors.New("surface text exceeds the configured size bound")
	ErrTooManyContextItems = errors.New("context item count exceeds the configured maximum")
	ErrTooManyRecipients   = errors.New("recipient count exceeds the configured maximum")
	ErrInvalidEnum         = errors.New("invalid enumeration value")
)

// Limits bounds the pre-conditions share and reply enforce, sourced from
// FederationConfig at startup.
type Limits struct {
	MaxSurfaceTextBytes int
	MaxContextItems     int
	MaxRecipients       int
}

// ContextInput is one caller-supplied context layer awaiting persistence.
type ContextInput struct {
	Layer       string
	Content     string
	MimeType    *string
	Confidence  *int
	Source      *string
	DerivedFrom *string
	CreatedBy   string
}

// ShareInput carries the parameters of a share() call.
type ShareInput struct {
	TeamID          *models.ID
	ConversationID  *models.ID
	SurfaceText     string
	Type            string
	Urgency         string
	ActionRequested *string
	Visibility      string
	Recipients      []string // "<id>@<host>" addresses, or bare local ids
	Context         []ContextInput
}

// Service implements share/reply/get/thread/stream.
type Service struct {
	pool      *pgxpool.Pool
	acl       *acl.Checker
	audit     audit.Sink
	queue     *federation.Queue
	search    *search.Service
	artifacts *artifacts.Store
	notify    *notifications.Service
	bus       *events.Bus
	host      string
	limits    Limits
	logger    *slog.Logger
}

// New constructs a Service. searchSvc, artifactStore, notifySvc, and bus may
// be nil, in which case Share/Reply skip indexing/offload/push/publish and
// Search always returns an empty result.
func New(pool *pgxpool.Pool, checker *acl.Checker, sink audit.Sink, queue *federation.Queue, searchSvc *search.Service, artifactStore *artifacts.Store, notifySvc *notifications.Service, bus *events.Bus, host string, limits Limits, logger *slog.Logger) *Service {
	return &Service{
		pool:      pool,
		acl:       checker,
		audit:     sink,
		queue:     queue,
		search:    searchSvc,
		artifacts: artifactStore,
		notify:    notifySvc,
		bus:       bus,
		host:      host,
		limits:    limits,
		logger:    logger,
	}
}

// publish emits a tez lifecycle event onto the bus, best-effort: matches the
// non-blocking posture audit writes, search indexing, and push notification
// delivery already use for share/reply side effects.
func (s *Service) publish(ctx context.Context, subject, eventType string, tez models.Tez) {
	if s.bus == nil {
		return
	}
	var teamID, conversationID *string
	if tez.TeamID != nil {
		v := tez.TeamID.String()
		teamID = &v
	}
	if tez.ConversationID != nil {
		v := tez.ConversationID.String()
		conversationID = &v
	}
	payload := map[string]string{
		"tezId":    tez.ID.String(),
		"threadId": tez.ThreadID.String(),
		"senderId": tez.SenderUserID,
	}
	if err := s.bus.PublishTez(ctx, subject, eventType, teamID, conversationID, payload); err != nil {
		s.logger.Warn("event publish failed", slog.String("tezId", tez.ID.String()), slog.String("error", err.Error()))
	}
}

// notifyRecipients pushes a Tez-admission notification to every local
// recipient, best-effort: matches the non-blocking posture search indexing
// and audit writes already use.
func (s *Service) notifyRecipients(ctx context.Context, tez models.Tez, localRecipients []string) {
	if s.notify == nil {
		return
	}
	for _, userID := range localRecipients {
		s.notify.SendTezAdmitted(ctx, userID, tez)
	}
}

// index upserts tez into the full-text search index, best-effort: a
// failure here is logged and never propagated, matching the non-blocking
// posture audit writes use for the same reason (share/reply must not fail
// because of a side effect unrelated to the write itself).
func (s *Service) index(ctx context.Context, tez models.Tez) {
	if s.search == nil {
		return
	}
	var teamID string
	if tez.TeamID != nil {
		teamID = tez.TeamID.String()
	}
	doc := search.Document{
		ID:           tez.ID.String(),
		TeamID:       teamID,
		SurfaceText:  tez.SurfaceText,
		SenderUserID: tez.SenderUserID,
		CreatedAt:    time.Now().Unix(),
	}
	if err := s.search.IndexTez(ctx, doc); err != nil {
		s.logger.Warn("search indexing failed", slog.String("tezId", tez.ID.String()), slog.String("error", err.Error()))
	}
}

// Search runs query against the full-text index, scoped to teamID when
// given, then hydrates and re-checks ACL on every hit before returning it —
// the index may contain Tez from any team, so admission is never trusted
// to it.
func (s *Service) Search(ctx context.Context, actorUserID, query string, teamID *models.ID, limit int) ([]models.Tez, error) {
	if s.search == nil {
		return nil, nil
	}
	if limit <= 0 || limit > maxStreamLimit {
		limit = defaultStreamLimit
	}

	var teamFilter *string
	if teamID != nil {
		s := teamID.String()
		teamFilter = &s
	}

	ids, err := s.search.SearchIDs(query, teamFilter, limit, 0)
	if err != nil {
		return nil, fmt.Errorf("messaging: searching: %w", err)
	}

	out := make([]models.Tez, 0, len(ids))
	for _, rawID := range ids {
		id, err := models.ParseID(rawID)
		if err != nil {
			continue
		}
		tez, err := s.getRaw(ctx, id)
		if err != nil {
			continue
		}
		if err := s.acl.MayAccess(ctx, actorUserID, tez); err != nil {
			continue
		}
		out = append(out, tez)
	}
	return out, nil
}

func (s *Service) validate(in ShareInput) error {
	if in.SurfaceText == "" {
		return ErrSurfaceTextEmpty
	}
	if len(in.SurfaceText) > s.limits.MaxSurfaceTextBytes {
		return ErrSurfaceTextTooLong
	}
	if !contains(models.TezTypes, in.Type) {
		return fmt.Errorf("%w: type %q", ErrInvalidEnum, in.Type)
	}
	if !contains(models.Urgencies, in.Urgency) {
		return fmt.Errorf("%w: urgency %q", ErrInvalidEnum, in.Urgency)
	}
	if in.Visibility != models.VisibilityTeam && in.Visibility != models.VisibilityDM && in.Visibility != models.VisibilityPrivate {
		return fmt.Errorf("%w: visibility %q", ErrInvalidEnum, in.Visibility)
	}
	if len(in.Context) > s.limits.MaxContextItems {
		return ErrTooManyContextItems
	}
	for _, c := range in.Context {
		if !contains(models.Layers, c.Layer) {
			return fmt.Errorf("%w: layer %q", ErrInvalidEnum, c.Layer)
		}
		if c.Confidence != nil && (*c.Confidence < 0 || *c.Confidence > 100) {
			return fmt.Errorf("%w: confidence %d", ErrInvalidEnum, *c.Confidence)
		}
		if c.Source != nil && !contains(models.Sources, *c.Source) {
			return fmt.Errorf("%w: source %q", ErrInvalidEnum, *c.Source)
		}
	}
	if len(in.Recipients) > s.limits.MaxRecipients {
		return ErrTooManyRecipients
	}
	return nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Share admits actor for the target scope, persists a new root Tez with its
// context and local recipients, partitions remote recipients by host, and
// enqueues one outbound bundle per remote host — all within one
// transaction. Returns the created Tez.
func (s *Service) Share(ctx context.Context, actorUserID string, in ShareInput) (models.Tez, error) {
	if err := s.validate(in); err != nil {
		return models.Tez{}, err
	}
	if err := s.admitScope(ctx, actorUserID, in.TeamID, in.ConversationID); err != nil {
		return models.Tez{}, err
	}

	id := models.NewID()
	tez := models.Tez{
		ID:              id,
		TeamID:          in.TeamID,
		ConversationID:  in.ConversationID,
		ThreadID:        id,
		SurfaceText:     in.SurfaceText,
		Type:            in.Type,
		Urgency:         in.Urgency,
		ActionRequested: in.ActionRequested,
		SenderUserID:    actorUserID,
		Visibility:      in.Visibility,
		Status:          models.TezStatusActive,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.Tez{}, fmt.Errorf("messaging: beginning share transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertTez(ctx, tx, tez); err != nil {
		return models.Tez{}, err
	}

	contextLayers, err := insertContext(ctx, tx, id, in.Context, s.artifacts)
	if err != nil {
		return models.Tez{}, err
	}

	local, remote := federation.Partition(in.Recipients, s.host)
	if err := insertRecipients(ctx, tx, id, local); err != nil {
		return models.Tez{}, err
	}

	for host, addrs := range remote {
		b := bundle.Build(s.host, tez, contextLayers, actorUserID+"@"+s.host, addrs)
		if err := s.queue.Enqueue(ctx, tx, host, b); err != nil {
			return models.Tez{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Tez{}, fmt.Errorf("messaging: committing share: %w", err)
	}

	s.audit.Record(ctx, audit.Entry{
		TeamID:      in.TeamID,
		ActorUserID: actorUserID,
		Action:      models.ActionTezShared,
		TargetType:  "tez",
		TargetID:    id.String(),
	})

	tez.CreatedAt = time.Now()
	tez.UpdatedAt = tez.CreatedAt
	s.index(ctx, tez)
	s.notifyRecipients(ctx, tez, local)
	s.publish(ctx, events.SubjectTezShared, "TEZ_SHARED", tez)
	return tez, nil
}

func (s *Service) admitScope(ctx context.Context, actorUserID string, teamID, conversationID *models.ID) error {
	if teamID != nil {
		return s.acl.MayAccessTeam(ctx, *teamID, actorUserID)
	}
	if conversationID != nil {
		return s.acl.MayAccessConversation(ctx, *conversationID, actorUserID)
	}
	// Neither scope set: the Tez is sender-private, always admitted for its
	// own creator.
	return nil
}

// ReplyInput carries the parameters of a reply() call.
type ReplyInput struct {
	ParentID        models.ID
	SurfaceText     string
	Type            string
	Urgency         string
	ActionRequested *string
	Recipients      []string
	Context         []ContextInput
}

// Reply resolves the parent Tez, inherits its scope/visibility/thread, and
// persists a new Tez with parentTezId set.
func (s *Service) Reply(ctx context.Context, actorUserID string, in ReplyInput) (models.Tez, error) {
	parent, err := s.getRaw(ctx, in.ParentID)
	if err != nil {
		return models.Tez{}, err
	}
	if err := s.acl.MayAccess(ctx, actorUserID, parent); err != nil {
		return models.Tez{}, err
	}

	shareIn := ShareInput{
		TeamID:          parent.TeamID,
		ConversationID:  parent.ConversationID,
		SurfaceText:     in.SurfaceText,
		Type:            in.Type,
		Urgency:         in.Urgency,
		ActionRequested: in.ActionRequested,
		Visibility:      parent.Visibility,
		Recipients:      in.Recipients,
		Context:         in.Context,
	}
	if err := s.validate(shareIn); err != nil {
		return models.Tez{}, err
	}

	id := models.NewID()
	tez := models.Tez{
		ID:              id,
		TeamID:          parent.TeamID,
		ConversationID:  parent.ConversationID,
		ThreadID:        parent.ThreadID,
		ParentTezID:     &parent.ID,
		SurfaceText:     in.SurfaceText,
		Type:            in.Type,
		Urgency:         in.Urgency,
		ActionRequested: in.ActionRequested,
		SenderUserID:    actorUserID,
		Visibility:      parent.Visibility,
		Status:          models.TezStatusActive,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.Tez{}, fmt.Errorf("messaging: beginning reply transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertTez(ctx, tx, tez); err != nil {
		return models.Tez{}, err
	}
	contextLayers, err := insertContext(ctx, tx, id, in.Context, s.artifacts)
	if err != nil {
		return models.Tez{}, err
	}

	local, remote := federation.Partition(in.Recipients, s.host)
	if err := insertRecipients(ctx, tx, id, local); err != nil {
		return models.Tez{}, err
	}
	for host, addrs := range remote {
		b := bundle.Build(s.host, tez, contextLayers, actorUserID+"@"+s.host, addrs)
		if err := s.queue.Enqueue(ctx, tx, host, b); err != nil {
			return models.Tez{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Tez{}, fmt.Errorf("messaging: committing reply: %w", err)
	}

	s.audit.Record(ctx, audit.Entry{
		TeamID:      parent.TeamID,
		ActorUserID: actorUserID,
		Action:      models.ActionTezReplied,
		TargetType:  "tez",
		TargetID:    id.String(),
		Metadata: map[string]interface{}{
			"parentTezId": parent.ID.String(),
			"threadId":    parent.ThreadID.String(),
		},
	})

	tez.CreatedAt = time.Now()
	tez.UpdatedAt = tez.CreatedAt
	s.index(ctx, tez)
	s.notifyRecipients(ctx, tez, local)
	s.publish(ctx, events.SubjectTezReplied, "TEZ_REPLIED", tez)
	return tez, nil
}

// TezWithContext bundles a Tez with its context layers and recipient
// roster, as returned by Get.
type TezWithContext struct {
	Tez        models.Tez
	Context    []models.TezContext
	Recipients []models.TezRecipient
}

// Get resolves id, admits actor, and returns the Tez with its context
// (insertion order preserved) and recipient roster. Self-reads by the
// sender are not audited.
func (s *Service) Get(ctx context.Context, actorUserID string, id models.ID) (TezWithContext, error) {
	tez, err := s.getRaw(ctx, id)
	if err != nil {
		return TezWithContext{}, err
	}
	if err := s.acl.MayAccess(ctx, actorUserID, tez); err != nil {
		return TezWithContext{}, err
	}

	ctxLayers, err := s.contextFor(ctx, id)
	if err != nil {
		return TezWithContext{}, err
	}
	s.rehydrateArtifacts(ctx, ctxLayers)

	recipients, err := s.recipientsFor(ctx, id)
	if err != nil {
		return TezWithContext{}, err
	}

	if actorUserID != tez.SenderUserID {
		s.audit.Record(ctx, audit.Entry{
			TeamID:      tez.TeamID,
			ActorUserID: actorUserID,
			Action:      models.ActionTezRead,
			TargetType:  "tez",
			TargetID:    id.String(),
		})
	}

	return TezWithContext{Tez: tez, Context: ctxLayers, Recipients: recipients}, nil
}

// Thread resolves anyIDInThread, admits actor on that Tez, and returns
// every Tez sharing its threadId, ordered by createdAt ascending (id
// tiebreak).
func (s *Service) Thread(ctx context.Context, actorUserID string, anyIDInThread models.ID) ([]models.Tez, error) {
	tez, err := s.getRaw(ctx, anyIDInThread)
	if err != nil {
		return nil, err
	}
	if err := s.acl.MayAccess(ctx, actorUserID, tez); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, team_id, conversation_id, thread_id, parent_tez_id, surface_text, type,
		        urgency, action_requested, sender_user_id, visibility, status, created_at, updated_at
		 FROM tez WHERE thread_id = $1 ORDER BY created_at ASC, id ASC`,
		tez.ThreadID,
	)
	if err != nil {
		return nil, fmt.Errorf("messaging: querying thread: %w", err)
	}
	defer rows.Close()

	return scanTezRows(rows)
}

// StreamResult is a page of a team's Tez stream plus pagination metadata.
type StreamResult struct {
	Tez     []models.Tez
	HasMore bool
}

const (
	defaultStreamLimit = 20
	maxStreamLimit     = 100
)

// Stream returns a team's active Tez, newest first, admitting actor as a
// team member. conversationId-scoped Tez are not available through Stream;
// see Conversations.Messages.
func (s *Service) Stream(ctx context.Context, actorUserID string, teamID models.ID, limit int, before *time.Time) (StreamResult, error) {
	if err := s.acl.MayAccessTeam(ctx, teamID, actorUserID); err != nil {
		return StreamResult{}, err
	}

	if limit <= 0 {
		limit = defaultStreamLimit
	}
	if limit > maxStreamLimit {
		limit = maxStreamLimit
	}

	var rows pgx.Rows
	var err error
	if before != nil {
		rows, err = s.pool.Query(ctx,
			`SELECT id, team_id, conversation_id, thread_id, parent_tez_id, surface_text, type,
			        urgency, action_requested, sender_user_id, visibility, status, created_at, updated_at
			 FROM tez WHERE team_id = $1 AND status = $2 AND created_at < $3
			 ORDER BY created_at DESC LIMIT $4`,
			teamID, models.TezStatusActive, *before, limit+1,
		)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT id, team_id, conversation_id, thread_id, parent_tez_id, surface_text, type,
			        urgency, action_requested, sender_user_id, visibility, status, created_at, updated_at
			 FROM tez WHERE team_id = $1 AND status = $2
			 ORDER BY created_at DESC LIMIT $3`,
			teamID, models.TezStatusActive, limit+1,
		)
	}
	if err != nil {
		return StreamResult{}, fmt.Errorf("messaging: querying stream: %w", err)
	}
	defer rows.Close()

	all, err := scanTezRows(rows)
	if err != nil {
		return StreamResult{}, err
	}

	hasMore := len(all) > limit
	if hasMore {
		all = all[:limit]
	}
	return StreamResult{Tez: all, HasMore: hasMore}, nil
}

func (s *Service) getRaw(ctx context.Context, id models.ID) (models.Tez, error) {
	var t models.Tez
	err := s.pool.QueryRow(ctx,
		`SELECT id, team_id, conversation_id, thread_id, parent_tez_id, surface_text, type,
		        urgency, action_requested, sender_user_id, visibility, status, created_at, updated_at
		 FROM tez WHERE id = $1`, id,
	).Scan(&t.ID, &t.TeamID, &t.ConversationID, &t.ThreadID, &t.ParentTezID, &t.SurfaceText,
		&t.Type, &t.Urgency, &t.ActionRequested, &t.SenderUserID, &t.Visibility, &t.Status,
		&t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Tez{}, ErrNotFound
	}
	if err != nil {
		return models.Tez{}, fmt.Errorf("messaging: querying tez %s: %w", id, err)
	}
	return t, nil
}

// rehydrateArtifacts resolves any offloaded artifact layer's storage
// reference back to its raw content in place, best-effort: a fetch failure
// leaves the reference string as-is rather than failing the whole read.
func (s *Service) rehydrateArtifacts(ctx context.Context, layers []models.TezContext) {
	if s.artifacts == nil {
		return
	}
	for i, c := range layers {
		if c.Layer != models.LayerArtifact || !artifacts.IsReference(c.Content) {
			continue
		}
		raw, err := s.artifacts.Get(ctx, c.Content)
		if err != nil {
			s.logger.Warn("artifact fetch failed", slog.String("contextId", c.ID.String()), slog.String("error", err.Error()))
			continue
		}
		layers[i].Content = raw
	}
}

func (s *Service) contextFor(ctx context.Context, tezID models.ID) ([]models.TezContext, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tez_id, layer, content, mime_type, confidence, source, derived_from, created_by, created_at
		 FROM tez_context WHERE tez_id = $1 ORDER BY position ASC`, tezID,
	)
	if err != nil {
		return nil, fmt.Errorf("messaging: querying context: %w", err)
	}
	defer rows.Close()

	var out []models.TezContext
	for rows.Next() {
		var c models.TezContext
		if err := rows.Scan(&c.ID, &c.TezID, &c.Layer, &c.Content, &c.MimeType, &c.Confidence,
			&c.Source, &c.DerivedFrom, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Service) recipientsFor(ctx context.Context, tezID models.ID) ([]models.TezRecipient, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tez_id, user_id, delivered_at, read_at, acknowledged_at
		 FROM tez_recipients WHERE tez_id = $1`, tezID,
	)
	if err != nil {
		return nil, fmt.Errorf("messaging: querying recipients: %w", err)
	}
	defer rows.Close()

	var out []models.TezRecipient
	for rows.Next() {
		var r models.TezRecipient
		if err := rows.Scan(&r.TezID, &r.UserID, &r.DeliveredAt, &r.ReadAt, &r.AcknowledgedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanTezRows(rows pgx.Rows) ([]models.Tez, error) {
	var out []models.Tez
	for rows.Next() {
		var t models.Tez
		if err := rows.Scan(&t.ID, &t.TeamID, &t.ConversationID, &t.ThreadID, &t.ParentTezID,
			&t.SurfaceText, &t.Type, &t.Urgency, &t.ActionRequested, &t.SenderUserID,
			&t.Visibility, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func insertTez(ctx context.Context, tx pgx.Tx, t models.Tez) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO tez (id, team_id, conversation_id, thread_id, parent_tez_id, surface_text,
		                   type, urgency, action_requested, sender_user_id, visibility, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.TeamID, t.ConversationID, t.ThreadID, t.ParentTezID, t.SurfaceText, t.Type,
		t.Urgency, t.ActionRequested, t.SenderUserID, t.Visibility, t.Status,
	)
	if err != nil {
		return fmt.Errorf("messaging: inserting tez: %w", err)
	}
	return nil
}

// insertContext persists each context layer, offloading oversized artifact
// layers to object storage (when store is non-nil) and storing a reference
// in place of the raw content.
func insertContext(ctx context.Context, tx pgx.Tx, tezID models.ID, in []ContextInput, store *artifacts.Store) ([]models.TezContext, error) {
	out := make([]models.TezContext, 0, len(in))
	for i, c := range in {
		id := models.NewID()
		content := c.Content
		if store != nil && c.Layer == models.LayerArtifact && store.ShouldOffload(content) {
			ref, err := store.Put(ctx, tezID, content)
			if err != nil {
				return nil, fmt.Errorf("messaging: offloading artifact layer: %w", err)
			}
			content = ref
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO tez_context (id, tez_id, layer, content, mime_type, confidence, source,
			                           derived_from, created_by, position)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			id, tezID, c.Layer, content, c.MimeType, c.Confidence, c.Source, c.DerivedFrom,
			c.CreatedBy, i,
		)
		if err != nil {
			return nil, fmt.Errorf("messaging: inserting context layer: %w", err)
		}
		out = append(out, models.TezContext{
			ID: id, TezID: tezID, Layer: c.Layer, Content: content, MimeType: c.MimeType,
			Confidence: c.Confidence, Source: c.Source, DerivedFrom: c.DerivedFrom, CreatedBy: c.CreatedBy,
		})
	}
	return out, nil
}

func insertRecipients(ctx context.Context, tx pgx.Tx, tezID models.ID, userIDs []string) error {
	for _, userID := range userIDs {
		_, err := tx.Exec(ctx,
			`INSERT INTO tez_recipients (tez_id, user_id, delivered_at) VALUES ($1, $2, now())
			 ON CONFLICT (tez_id, user_id) DO NOTHING`,
			tezID, userID,
		)
		if err != nil {
			return fmt.Errorf("messaging: inserting recipient: %w", err)
		}
	}
	return nil
}
