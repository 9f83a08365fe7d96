// Package conversations implements DM and group creation, membership, and
// unread cursors, with DM pair de-duplication so two users never end up
// with two separate direct conversations.
package conversations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tezrelay/relay/internal/acl"
	"github.com/tezrelay/relay/internal/models"
)

var (
	ErrNotFound          = errors.New("NOT_FOUND")
	ErrDMRequiresOne     = errors.New("a DM requires exactly one other member")
	ErrGroupNeedsName    = errors.New("a group conversation requires a non-empty name")
	ErrGroupNeedsMembers = errors.New("a group conversation requires at least one member besides the creator")
)

// Service implements create/list/messages/markRead and member lookup.
type Service struct {
	pool *pgxpool.Pool
	acl  *acl.Checker
}

// New constructs a Service.
func New(pool *pgxpool.Pool, checker *acl.Checker) *Service {
	return &Service{pool: pool, acl: checker}
}

// Create makes (or returns the existing) conversation. For a DM, the
// unordered member pair is unique: a second creation with the same pair
// returns the existing conversation's id rather than erroring.
func (s *Service) Create(ctx context.Context, actorUserID, convType string, memberIDs []string, name *string) (models.Conversation, error) {
	switch convType {
	case models.ConversationDM:
		return s.createDM(ctx, actorUserID, memberIDs)
	case models.ConversationGroup:
		return s.createGroup(ctx, actorUserID, memberIDs, name)
	default:
		return models.Conversation{}, fmt.Errorf("unknown conversation type %q", convType)
	}
}

func (s *Service) createDM(ctx context.Context, actorUserID string, memberIDs []string) (models.Conversation, error) {
	var others []string
	for _, m := range memberIDs {
		if m != actorUserID {
			others = append(others, m)
		}
	}
	if len(others) != 1 {
		return models.Conversation{}, ErrDMRequiresOne
	}
	other := others[0]
	key := pairKey(actorUserID, other)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("conversations: beginning dm create: %w", err)
	}
	defer tx.Rollback(ctx)

	var existingID models.ID
	err = tx.QueryRow(ctx, `SELECT conversation_id FROM dm_pairs WHERE pair_key = $1`, key).Scan(&existingID)
	if err == nil {
		if err := tx.Commit(ctx); err != nil {
			return models.Conversation{}, err
		}
		return s.Get(ctx, existingID)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Conversation{}, fmt.Errorf("conversations: checking dm pair: %w", err)
	}

	id := models.NewID()
	conv := models.Conversation{ID: id, Type: models.ConversationDM, CreatedBy: actorUserID}

	if _, err := tx.Exec(ctx,
		`INSERT INTO conversations (id, type, created_by) VALUES ($1, $2, $3)`,
		id, models.ConversationDM, actorUserID,
	); err != nil {
		return models.Conversation{}, fmt.Errorf("conversations: inserting dm: %w", err)
	}

	if err := insertMembers(ctx, tx, id, []string{actorUserID, other}); err != nil {
		return models.Conversation{}, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO dm_pairs (pair_key, conversation_id) VALUES ($1, $2)`, key, id,
	); err != nil {
		return models.Conversation{}, fmt.Errorf("conversations: recording dm pair: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Conversation{}, fmt.Errorf("conversations: committing dm create: %w", err)
	}

	conv.CreatedAt = time.Now()
	return conv, nil
}

func (s *Service) createGroup(ctx context.Context, actorUserID string, memberIDs []string, name *string) (models.Conversation, error) {
	if name == nil || *name == "" {
		return models.Conversation{}, ErrGroupNeedsName
	}
	if len(memberIDs) == 0 {
		return models.Conversation{}, ErrGroupNeedsMembers
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("conversations: beginning group create: %w", err)
	}
	defer tx.Rollback(ctx)

	id := models.NewID()
	conv := models.Conversation{ID: id, Type: models.ConversationGroup, Name: name, CreatedBy: actorUserID}

	if _, err := tx.Exec(ctx,
		`INSERT INTO conversations (id, type, name, created_by) VALUES ($1, $2, $3, $4)`,
		id, models.ConversationGroup, *name, actorUserID,
	); err != nil {
		return models.Conversation{}, fmt.Errorf("conversations: inserting group: %w", err)
	}

	all := append([]string{actorUserID}, memberIDs...)
	if err := insertMembers(ctx, tx, id, dedupe(all)); err != nil {
		return models.Conversation{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Conversation{}, fmt.Errorf("conversations: committing group create: %w", err)
	}

	conv.CreatedAt = time.Now()
	return conv, nil
}

func insertMembers(ctx context.Context, tx pgx.Tx, convID models.ID, userIDs []string) error {
	for _, userID := range userIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO conversation_members (conversation_id, user_id) VALUES ($1, $2)
			 ON CONFLICT (conversation_id, user_id) DO NOTHING`,
			convID, userID,
		); err != nil {
			return fmt.Errorf("conversations: inserting member %q: %w", userID, err)
		}
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func pairKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0] + "|" + pair[1]
}

// Get returns the conversation by id.
func (s *Service) Get(ctx context.Context, id models.ID) (models.Conversation, error) {
	var c models.Conversation
	err := s.pool.QueryRow(ctx,
		`SELECT id, type, name, created_by, created_at FROM conversations WHERE id = $1`, id,
	).Scan(&c.ID, &c.Type, &c.Name, &c.CreatedBy, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Conversation{}, ErrNotFound
	}
	if err != nil {
		return models.Conversation{}, fmt.Errorf("conversations: querying %s: %w", id, err)
	}
	return c, nil
}

// Summary is a conversation annotated with its last message and unread
// count, as returned by List.
type Summary struct {
	Conversation models.Conversation
	LastMessage  *LastMessage
	UnreadCount  int
}

// LastMessage is the subset of a Tez surfaced in conversation listings.
type LastMessage struct {
	ID           models.ID
	SurfaceText  string
	CreatedAt    time.Time
	SenderUserID string
}

// List returns the conversations actorUserID belongs to, each annotated
// with its last message and unread count.
func (s *Service) List(ctx context.Context, actorUserID string) ([]Summary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.type, c.name, c.created_by, c.created_at, cm.last_read_at
		 FROM conversations c
		 JOIN conversation_members cm ON cm.conversation_id = c.id
		 WHERE cm.user_id = $1
		 ORDER BY c.created_at DESC`,
		actorUserID,
	)
	if err != nil {
		return nil, fmt.Errorf("conversations: listing: %w", err)
	}
	defer rows.Close()

	type row struct {
		conv       models.Conversation
		lastReadAt *time.Time
	}
	var loaded []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.conv.ID, &r.conv.Type, &r.conv.Name, &r.conv.CreatedBy,
			&r.conv.CreatedAt, &r.lastReadAt); err != nil {
			return nil, err
		}
		loaded = append(loaded, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(loaded))
	for _, r := range loaded {
		last, err := s.lastMessage(ctx, r.conv.ID)
		if err != nil {
			return nil, err
		}
		unread, err := s.unreadCount(ctx, r.conv.ID, actorUserID, r.lastReadAt)
		if err != nil {
			return nil, err
		}
		out = append(out, Summary{Conversation: r.conv, LastMessage: last, UnreadCount: unread})
	}
	return out, nil
}

func (s *Service) lastMessage(ctx context.Context, convID models.ID) (*LastMessage, error) {
	var m LastMessage
	err := s.pool.QueryRow(ctx,
		`SELECT id, surface_text, created_at, sender_user_id FROM tez
		 WHERE conversation_id = $1 ORDER BY created_at DESC LIMIT 1`, convID,
	).Scan(&m.ID, &m.SurfaceText, &m.CreatedAt, &m.SenderUserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("conversations: querying last message: %w", err)
	}
	return &m, nil
}

func (s *Service) unreadCount(ctx context.Context, convID models.ID, actorUserID string, lastReadAt *time.Time) (int, error) {
	var count int
	var err error
	if lastReadAt == nil {
		err = s.pool.QueryRow(ctx,
			`SELECT count(*) FROM tez WHERE conversation_id = $1 AND sender_user_id != $2`,
			convID, actorUserID,
		).Scan(&count)
	} else {
		err = s.pool.QueryRow(ctx,
			`SELECT count(*) FROM tez WHERE conversation_id = $1 AND sender_user_id != $2 AND created_at > $3`,
			convID, actorUserID, *lastReadAt,
		).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("conversations: counting unread: %w", err)
	}
	return count, nil
}

// Messages returns convID's Tez, newest first. ACL admits actor as a
// conversation member.
func (s *Service) Messages(ctx context.Context, actorUserID string, convID models.ID, limit int, before *time.Time) ([]models.Tez, error) {
	if err := s.acl.MayAccessConversation(ctx, convID, actorUserID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var rows pgx.Rows
	var err error
	if before != nil {
		rows, err = s.pool.Query(ctx,
			`SELECT id, team_id, conversation_id, thread_id, parent_tez_id, surface_text, type,
			        urgency, action_requested, sender_user_id, visibility, status, created_at, updated_at
			 FROM tez WHERE conversation_id = $1 AND status = $2 AND created_at < $3
			 ORDER BY created_at DESC LIMIT $4`,
			convID, models.TezStatusActive, *before, limit,
		)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT id, team_id, conversation_id, thread_id, parent_tez_id, surface_text, type,
			        urgency, action_requested, sender_user_id, visibility, status, created_at, updated_at
			 FROM tez WHERE conversation_id = $1 AND status = $2
			 ORDER BY created_at DESC LIMIT $3`,
			convID, models.TezStatusActive, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("conversations: querying messages: %w", err)
	}
	defer rows.Close()

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

// Members returns the conversation's member user ids, used by the
// conversation message handler to compute implicit recipients.
func (s *Service) Members(ctx context.Context, convID models.ID) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id FROM conversation_members WHERE conversation_id = $1`, convID)
	if err != nil {
		return nil, fmt.Errorf("conversations: querying members: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// MarkRead sets lastReadAt = now for (convID, actorUserID).
func (s *Service) MarkRead(ctx context.Context, actorUserID string, convID models.ID) error {
	if err := s.acl.MayAccessConversation(ctx, convID, actorUserID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE conversation_members SET last_read_at = now() WHERE conversation_id = $1 AND user_id = $2`,
		convID, actorUserID,
	)
	if err != nil {
		return fmt.Errorf("conversations: marking read: %w", err)
	}
	return nil
}
