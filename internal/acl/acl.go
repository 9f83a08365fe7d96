// Package acl implements the single access predicate that gates every
// scoped read and write in the relay: sender, team membership, and
// conversation membership all admit; everything else is denied.
package acl

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tezrelay/relay/internal/models"
)

// ErrForbidden is returned whenever mayAccess denies. Handlers translate it
// into a 403 FORBIDDEN response.
var ErrForbidden = errors.New("FORBIDDEN")

// Checker resolves team and conversation membership against the database to
// answer the relay's single access predicate.
type Checker struct {
	pool *pgxpool.Pool
}

// New constructs a Checker.
func New(pool *pgxpool.Pool) *Checker {
	return &Checker{pool: pool}
}

// MayAccess reports whether actorUserID may access tez, per the predicate:
// sender always admits; otherwise team membership (when tez is team-scoped)
// or conversation membership (when conversation-scoped) admits; otherwise
// deny.
func (c *Checker) MayAccess(ctx context.Context, actorUserID string, tez models.Tez) error {
	if actorUserID == tez.SenderUserID {
		return nil
	}
	if tez.TeamID != nil {
		member, err := c.IsTeamMember(ctx, *tez.TeamID, actorUserID)
		if err != nil {
			return err
		}
		if member {
			return nil
		}
	}
	if tez.ConversationID != nil {
		member, err := c.IsConversationMember(ctx, *tez.ConversationID, actorUserID)
		if err != nil {
			return err
		}
		if member {
			return nil
		}
	}
	return ErrForbidden
}

// MayAccessTeam admits team members for team-scoped operations (list
// members, share in team, read stream).
func (c *Checker) MayAccessTeam(ctx context.Context, teamID models.ID, actorUserID string) error {
	ok, err := c.IsTeamMember(ctx, teamID, actorUserID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// MayAccessConversation admits conversation members for conversation-scoped
// operations.
func (c *Checker) MayAccessConversation(ctx context.Context, conversationID models.ID, actorUserID string) error {
	ok, err := c.IsConversationMember(ctx, conversationID, actorUserID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// MayAdministerTeam additionally requires role = admin, for add/remove
// member operations.
func (c *Checker) MayAdministerTeam(ctx context.Context, teamID models.ID, actorUserID string) error {
	role, err := c.teamRole(ctx, teamID, actorUserID)
	if err != nil {
		return err
	}
	if role != models.TeamRoleAdmin {
		return ErrForbidden
	}
	return nil
}

// IsTeamMember reports whether userID belongs to teamID.
func (c *Checker) IsTeamMember(ctx context.Context, teamID models.ID, userID string) (bool, error) {
	var exists bool
	err := c.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM team_members WHERE team_id = $1 AND user_id = $2)`,
		teamID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("acl: checking team membership: %w", err)
	}
	return exists, nil
}

// IsConversationMember reports whether userID belongs to conversationID.
func (c *Checker) IsConversationMember(ctx context.Context, conversationID models.ID, userID string) (bool, error) {
	var exists bool
	err := c.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM conversation_members WHERE conversation_id = $1 AND user_id = $2)`,
		conversationID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("acl: checking conversation membership: %w", err)
	}
	return exists, nil
}

func (c *Checker) teamRole(ctx context.Context, teamID models.ID, userID string) (string, error) {
	var role string
	err := c.pool.QueryRow(ctx,
		`SELECT role FROM team_members WHERE team_id = $1 AND user_id = $2`,
		teamID, userID,
	).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrForbidden
	}
	if err != nil {
		return "", fmt.Errorf("acl: resolving team role: %w", err)
	}
	return role, nil
}
