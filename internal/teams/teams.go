// Package teams implements team lifecycle and membership: creation with the
// creator seated as the first admin, member addition/removal, and the
// last-admin-removal guard. The two-role (admin/member) model keeps this far
// narrower than a guild's full role/channel machinery.
package teams

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tezrelay/relay/internal/acl"
	"github.com/tezrelay/relay/internal/audit"
	"github.com/tezrelay/relay/internal/models"
)

var (
	ErrNotFound      = errors.New("NOT_FOUND")
	ErrNameRequired  = errors.New("VALIDATION_ERROR: name is required")
	ErrLastAdmin     = errors.New("FORBIDDEN: cannot remove the last admin of a team")
	ErrAlreadyMember = errors.New("VALIDATION_ERROR: user is already a member")
	ErrNotMember     = errors.New("NOT_FOUND: user is not a member of this team")
)

// Service manages teams and their membership.
type Service struct {
	pool  *pgxpool.Pool
	acl   *acl.Checker
	audit audit.Sink
}

// New constructs a Service.
func New(pool *pgxpool.Pool, checker *acl.Checker, sink audit.Sink) *Service {
	return &Service{pool: pool, acl: checker, audit: sink}
}

// Create inserts a new team and seats the creator as its first admin.
func (s *Service) Create(ctx context.Context, actorUserID, name string) (models.Team, error) {
	if name == "" {
		return models.Team{}, ErrNameRequired
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.Team{}, err
	}
	defer tx.Rollback(ctx)

	team := models.Team{
		ID:        models.NewID(),
		Name:      name,
		CreatedBy: actorUserID,
	}
	if err := tx.QueryRow(ctx,
		`INSERT INTO teams (id, name, created_by) VALUES ($1, $2, $3)
		 RETURNING created_at, updated_at`,
		team.ID, team.Name, team.CreatedBy,
	).Scan(&team.CreatedAt, &team.UpdatedAt); err != nil {
		return models.Team{}, fmt.Errorf("inserting team: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO team_members (team_id, user_id, role) VALUES ($1, $2, $3)`,
		team.ID, actorUserID, models.TeamRoleAdmin,
	); err != nil {
		return models.Team{}, fmt.Errorf("seating creator as admin: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Team{}, err
	}

	s.audit.Record(ctx, audit.Entry{
		TeamID:      &team.ID,
		ActorUserID: actorUserID,
		Action:      models.ActionTeamCreated,
		TargetType:  "team",
		TargetID:    team.ID.String(),
	})

	return team, nil
}

// Get fetches a team by id.
func (s *Service) Get(ctx context.Context, id models.ID) (models.Team, error) {
	var t models.Team
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_by, created_at, updated_at FROM teams WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Team{}, ErrNotFound
	}
	if err != nil {
		return models.Team{}, err
	}
	return t, nil
}

// Members lists a team's membership rows.
func (s *Service) Members(ctx context.Context, teamID models.ID) ([]models.TeamMember, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT team_id, user_id, role, joined_at FROM team_members WHERE team_id = $1 ORDER BY joined_at ASC`,
		teamID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.TeamMember
	for rows.Next() {
		var m models.TeamMember
		if err := rows.Scan(&m.TeamID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// AddMember adds userID to teamID with the given role ("member" if empty).
// actorUserID must be a team admin.
func (s *Service) AddMember(ctx context.Context, actorUserID string, teamID models.ID, userID, role string) (models.TeamMember, error) {
	if err := s.acl.MayAdministerTeam(ctx, teamID, actorUserID); err != nil {
		return models.TeamMember{}, err
	}
	if role == "" {
		role = models.TeamRoleMember
	}
	if role != models.TeamRoleAdmin && role != models.TeamRoleMember {
		return models.TeamMember{}, fmt.Errorf("VALIDATION_ERROR: unknown role %q", role)
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM team_members WHERE team_id = $1 AND user_id = $2)`,
		teamID, userID,
	).Scan(&exists); err != nil {
		return models.TeamMember{}, err
	}
	if exists {
		return models.TeamMember{}, ErrAlreadyMember
	}

	m := models.TeamMember{TeamID: teamID, UserID: userID, Role: role}
	if err := s.pool.QueryRow(ctx,
		`INSERT INTO team_members (team_id, user_id, role) VALUES ($1, $2, $3) RETURNING joined_at`,
		teamID, userID, role,
	).Scan(&m.JoinedAt); err != nil {
		return models.TeamMember{}, err
	}

	s.audit.Record(ctx, audit.Entry{
		TeamID:      &teamID,
		ActorUserID: actorUserID,
		Action:      models.ActionTeamMemberAdded,
		TargetType:  "team_member",
		TargetID:    userID,
	})

	return m, nil
}

// RemoveMember removes userID from teamID. Allowed when actorUserID is a
// team admin, or when actorUserID == userID (self-leave). Rejects removing
// the last remaining admin.
func (s *Service) RemoveMember(ctx context.Context, actorUserID string, teamID models.ID, userID string) error {
	selfLeave := actorUserID == userID
	if !selfLeave {
		if err := s.acl.MayAdministerTeam(ctx, teamID, actorUserID); err != nil {
			return err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var role string
	err = tx.QueryRow(ctx,
		`SELECT role FROM team_members WHERE team_id = $1 AND user_id = $2 FOR UPDATE`,
		teamID, userID,
	).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotMember
	}
	if err != nil {
		return err
	}

	if role == models.TeamRoleAdmin {
		var adminCount int
		if err := tx.QueryRow(ctx,
			`SELECT count(*) FROM team_members WHERE team_id = $1 AND role = $2`,
			teamID, models.TeamRoleAdmin,
		).Scan(&adminCount); err != nil {
			return err
		}
		if adminCount <= 1 {
			return ErrLastAdmin
		}
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM team_members WHERE team_id = $1 AND user_id = $2`, teamID, userID,
	); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Entry{
		TeamID:      &teamID,
		ActorUserID: actorUserID,
		Action:      models.ActionTeamMemberRemoved,
		TargetType:  "team_member",
		TargetID:    userID,
	})
	return nil
}
