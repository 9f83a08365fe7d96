// Package contacts implements the local Contact registry: the set of users
// on this relay who can send and receive Tez, each addressable by a unique
// tezAddress ("<userId>@<host>").
package contacts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tezrelay/relay/internal/audit"
	"github.com/tezrelay/relay/internal/models"
)

var (
	ErrNotFound            = errors.New("NOT_FOUND")
	ErrDisplayNameRequired = errors.New("VALIDATION_ERROR: displayName is required")
	ErrAlreadyRegistered   = errors.New("VALIDATION_ERROR: contact is already registered")
	ErrQueryTooShort       = errors.New("VALIDATION_ERROR: q must be at least 2 characters")
)

// Service manages local contact registration and lookup.
type Service struct {
	pool  *pgxpool.Pool
	host  string
	audit audit.Sink
}

// New constructs a Service. host is this relay's domain, used to build each
// contact's tezAddress.
func New(pool *pgxpool.Pool, host string, sink audit.Sink) *Service {
	return &Service{pool: pool, host: host, audit: sink}
}

// Register creates a Contact for userID. Returns ErrAlreadyRegistered if
// userID already has a contact row.
func (s *Service) Register(ctx context.Context, userID, displayName string, email, avatarURL *string) (models.Contact, error) {
	if displayName == "" {
		return models.Contact{}, ErrDisplayNameRequired
	}

	c := models.Contact{
		ID:          userID,
		DisplayName: displayName,
		Email:       email,
		AvatarURL:   avatarURL,
		TezAddress:  userID + "@" + s.host,
		Status:      models.ContactStatusActive,
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO contacts (id, display_name, email, avatar_url, tez_address, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING
		 RETURNING created_at, updated_at`,
		c.ID, c.DisplayName, c.Email, c.AvatarURL, c.TezAddress, c.Status,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Contact{}, ErrAlreadyRegistered
	}
	if err != nil {
		return models.Contact{}, fmt.Errorf("inserting contact: %w", err)
	}

	s.audit.Record(ctx, audit.Entry{
		ActorUserID: userID,
		Action:      models.ActionContactRegistered,
		TargetType:  "contact",
		TargetID:    userID,
	})

	return c, nil
}

// Get fetches the full Contact for userID, including its email.
func (s *Service) Get(ctx context.Context, userID string) (models.Contact, error) {
	var c models.Contact
	err := s.pool.QueryRow(ctx,
		`SELECT id, display_name, email, avatar_url, tez_address, status, created_at, updated_at
		 FROM contacts WHERE id = $1`, userID,
	).Scan(&c.ID, &c.DisplayName, &c.Email, &c.AvatarURL, &c.TezAddress, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Contact{}, ErrNotFound
	}
	if err != nil {
		return models.Contact{}, err
	}
	return c, nil
}

// GetPublic fetches the public profile (omitting email) for userID.
func (s *Service) GetPublic(ctx context.Context, userID string) (models.PublicProfile, error) {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return models.PublicProfile{}, err
	}
	return c.ToPublicProfile(), nil
}

// Search returns public profiles whose display name or tez address match q
// (case-insensitive prefix/substring), up to limit results. q must be at
// least 2 characters.
func (s *Service) Search(ctx context.Context, q string, limit int) ([]models.PublicProfile, error) {
	if len(strings.TrimSpace(q)) < 2 {
		return nil, ErrQueryTooShort
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, display_name, avatar_url, tez_address, created_at
		 FROM contacts
		 WHERE status = $1 AND (display_name ILIKE $2 OR tez_address ILIKE $2)
		 ORDER BY display_name ASC
		 LIMIT $3`,
		models.ContactStatusActive, "%"+q+"%", limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.PublicProfile
	for rows.Next() {
		var p models.PublicProfile
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.AvatarURL, &p.TezAddress, &p.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// Update patches the mutable fields of userID's contact.
func (s *Service) Update(ctx context.Context, userID string, displayName, email, avatarURL *string) (models.Contact, error) {
	var c models.Contact
	err := s.pool.QueryRow(ctx,
		`UPDATE contacts SET
			display_name = COALESCE($2, display_name),
			email = COALESCE($3, email),
			avatar_url = COALESCE($4, avatar_url),
			updated_at = now()
		 WHERE id = $1
		 RETURNING id, display_name, email, avatar_url, tez_address, status, created_at, updated_at`,
		userID, displayName, email, avatarURL,
	).Scan(&c.ID, &c.DisplayName, &c.Email, &c.AvatarURL, &c.TezAddress, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Contact{}, ErrNotFound
	}
	if err != nil {
		return models.Contact{}, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorUserID: userID,
		Action:      models.ActionContactUpdated,
		TargetType:  "contact",
		TargetID:    userID,
	})

	return c, nil
}

// Resolve looks up the local userID for a bare tez address's id component.
// The federation inbox does not call it; it queries the contacts table
// directly.
func (s *Service) Resolve(ctx context.Context, userID string) (models.Contact, error) {
	return s.Get(ctx, userID)
}
