// Package trust maintains the Peer registry: admission mode (allowlist or
// open), trust-level transitions, and the inbound admission check that
// Signature verification and the federation inbox rely on. Hot-path reads
// (public-key lookups for signature verification) go through an in-process
// TTL cache in front of the pool-backed lookups.
package trust

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tezrelay/relay/internal/cache"
	"github.com/tezrelay/relay/internal/models"
)

// Admission modes for newly-seen peers.
const (
	ModeAllowlist = "allowlist"
	ModeOpen      = "open"
)

// Errors surfaced by inbound admission checks and state transitions, named
// per the wire contract peers rely on.
var (
	ErrServerNotTrusted  = errors.New("SERVER_NOT_TRUSTED")
	ErrServerBlocked     = errors.New("SERVER_BLOCKED")
	ErrUnknownPeer       = errors.New("UNKNOWN_PEER")
	ErrInvalidTransition = errors.New("invalid peer trust transition")
)

// Store manages the peers table: registration of newly-discovered peers,
// trust-level transitions, and a short-lived public-key cache consulted on
// the inbound signature-verification hot path.
type Store struct {
	pool   *pgxpool.Pool
	mode   string
	logger *slog.Logger

	pubKeyCache *cache.TTLCache[ed25519.PublicKey]
}

// New constructs a Store. mode is the admission policy applied to peers
// encountered for the first time.
func New(pool *pgxpool.Pool, mode string, logger *slog.Logger) *Store {
	return &Store{
		pool:        pool,
		mode:        mode,
		logger:      logger,
		pubKeyCache: cache.New[ed25519.PublicKey](5*time.Minute, 4096),
	}
}

// Admit registers host/serverID/publicKey on first contact (landing in
// pending for allowlist mode, trusted for open mode) or returns the
// existing peer unchanged if already known. Used by the peer verification
// endpoint.
func (s *Store) Admit(ctx context.Context, host, serverID string, publicKey ed25519.PublicKey) (models.Peer, error) {
	var p models.Peer
	err := s.pool.QueryRow(ctx,
		`SELECT host, server_id, public_key, display_name, trust_level, first_seen_at,
		        last_delivery_attempt_at, consecutive_failures
		 FROM peers WHERE host = $1`, host,
	).Scan(&p.Host, &p.ServerID, &p.PublicKey, &p.DisplayName, &p.TrustLevel,
		&p.FirstSeenAt, &p.LastDeliveryAttemptAt, &p.ConsecutiveFailures)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Peer{}, fmt.Errorf("trust: querying peer %q: %w", host, err)
	}

	initial := models.TrustPending
	if s.mode == ModeOpen {
		initial = models.TrustTrusted
	}

	p = models.Peer{
		Host:                host,
		ServerID:            serverID,
		PublicKey:           hex.EncodeToString(publicKey),
		TrustLevel:          initial,
		ConsecutiveFailures: 0,
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO peers (host, server_id, public_key, trust_level)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (host) DO NOTHING`,
		p.Host, p.ServerID, p.PublicKey, p.TrustLevel,
	)
	if err != nil {
		return models.Peer{}, fmt.Errorf("trust: registering peer %q: %w", host, err)
	}

	s.logger.Info("peer registered",
		slog.String("host", host),
		slog.String("server_id", serverID),
		slog.String("trust_level", initial),
	)

	return p, nil
}

// Get returns the peer registered at host.
func (s *Store) Get(ctx context.Context, host string) (models.Peer, error) {
	var p models.Peer
	err := s.pool.QueryRow(ctx,
		`SELECT host, server_id, public_key, display_name, trust_level, first_seen_at,
		        last_delivery_attempt_at, consecutive_failures
		 FROM peers WHERE host = $1`, host,
	).Scan(&p.Host, &p.ServerID, &p.PublicKey, &p.DisplayName, &p.TrustLevel,
		&p.FirstSeenAt, &p.LastDeliveryAttemptAt, &p.ConsecutiveFailures)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Peer{}, ErrUnknownPeer
	}
	if err != nil {
		return models.Peer{}, fmt.Errorf("trust: querying peer %q: %w", host, err)
	}
	return p, nil
}

// List returns every registered peer, ordered by host, for the admin
// roster endpoint.
func (s *Store) List(ctx context.Context) ([]models.Peer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT host, server_id, public_key, display_name, trust_level, first_seen_at,
		        last_delivery_attempt_at, consecutive_failures
		 FROM peers ORDER BY host ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("trust: listing peers: %w", err)
	}
	defer rows.Close()

	var out []models.Peer
	for rows.Next() {
		var p models.Peer
		if err := rows.Scan(&p.Host, &p.ServerID, &p.PublicKey, &p.DisplayName, &p.TrustLevel,
			&p.FirstSeenAt, &p.LastDeliveryAttemptAt, &p.ConsecutiveFailures); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ByServerID resolves the peer registered under serverID, used to map an
// inbound signature's keyId back to the host AdmitInbound checks.
func (s *Store) ByServerID(ctx context.Context, serverID string) (models.Peer, error) {
	var p models.Peer
	err := s.pool.QueryRow(ctx,
		`SELECT host, server_id, public_key, display_name, trust_level, first_seen_at,
		        last_delivery_attempt_at, consecutive_failures
		 FROM peers WHERE server_id = $1`, serverID,
	).Scan(&p.Host, &p.ServerID, &p.PublicKey, &p.DisplayName, &p.TrustLevel,
		&p.FirstSeenAt, &p.LastDeliveryAttemptAt, &p.ConsecutiveFailures)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Peer{}, ErrUnknownPeer
	}
	if err != nil {
		return models.Peer{}, fmt.Errorf("trust: querying peer by server_id %q: %w", serverID, err)
	}
	return p, nil
}

// AdmitInbound enforces the inbound delivery admission rule: trusted passes,
// pending yields ErrServerNotTrusted, blocked always yields ErrServerBlocked
// regardless of any other state.
func (s *Store) AdmitInbound(ctx context.Context, host string) error {
	p, err := s.Get(ctx, host)
	if err != nil {
		return err
	}
	switch p.TrustLevel {
	case models.TrustBlocked:
		return ErrServerBlocked
	case models.TrustTrusted:
		return nil
	case models.TrustPending:
		return ErrServerNotTrusted
	default:
		return fmt.Errorf("trust: peer %q has unrecognized trust level %q", host, p.TrustLevel)
	}
}

// Transition moves a peer to a new trust level. Valid transitions:
// pending->trusted, pending->blocked, trusted->blocked, blocked->trusted
// (explicit unblock). Any other transition is rejected.
func (s *Store) Transition(ctx context.Context, host, to string) error {
	p, err := s.Get(ctx, host)
	if err != nil {
		return err
	}

	if !validTransition(p.TrustLevel, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.TrustLevel, to)
	}

	_, err = s.pool.Exec(ctx, `UPDATE peers SET trust_level = $1 WHERE host = $2`, to, host)
	if err != nil {
		return fmt.Errorf("trust: updating trust level for %q: %w", host, err)
	}

	s.invalidateCache(p.ServerID)

	s.logger.Info("peer trust level changed",
		slog.String("host", host),
		slog.String("from", p.TrustLevel),
		slog.String("to", to),
	)
	return nil
}

// Remove deletes a peer from the registry entirely.
func (s *Store) Remove(ctx context.Context, host string) error {
	p, err := s.Get(ctx, host)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `DELETE FROM peers WHERE host = $1`, host)
	if err != nil {
		return fmt.Errorf("trust: removing peer %q: %w", host, err)
	}
	s.invalidateCache(p.ServerID)
	return nil
}

func validTransition(from, to string) bool {
	switch {
	case from == models.TrustPending && (to == models.TrustTrusted || to == models.TrustBlocked):
		return true
	case from == models.TrustTrusted && to == models.TrustBlocked:
		return true
	case from == models.TrustBlocked && to == models.TrustTrusted:
		return true
	default:
		return false
	}
}

// RecordDeliveryOutcome updates a peer's delivery health (last attempt time
// and consecutive failure count) after an outbound attempt. The delivery
// pump does not call it, and the backoff computation does not read these
// fields.
func (s *Store) RecordDeliveryOutcome(ctx context.Context, host string, succeeded bool) error {
	now := time.Now()
	if succeeded {
		_, err := s.pool.Exec(ctx,
			`UPDATE peers SET last_delivery_attempt_at = $1, consecutive_failures = 0 WHERE host = $2`,
			now, host)
		return err
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE peers SET last_delivery_attempt_at = $1, consecutive_failures = consecutive_failures + 1 WHERE host = $2`,
		now, host)
	return err
}

// Lookup resolves a peer's Ed25519 public key by serverId, consulting and
// refilling a short-lived cache. Satisfies signature.PublicKeyLookup.
//
// Lookup answers only "is this really server X" and deliberately does not
// gate on trust level — a blocked peer's key is still returned so its
// signature can verify. AdmitInbound, called after verification succeeds,
// is the sole place a blocked peer is rejected; gating here would make a
// blocked peer's request fail at signature verification with
// ErrUnknownPeer instead of ErrServerBlocked.
func (s *Store) Lookup(ctx context.Context) func(serverID string) (ed25519.PublicKey, bool) {
	return func(serverID string) (ed25519.PublicKey, bool) {
		if key, ok := s.cachedKey(serverID); ok {
			return key, true
		}

		var hexKey string
		err := s.pool.QueryRow(ctx,
			`SELECT public_key FROM peers WHERE server_id = $1`, serverID,
		).Scan(&hexKey)
		if err != nil {
			return nil, false
		}

		raw, err := hex.DecodeString(hexKey)
		if err != nil || len(raw) != ed25519.PublicKeySize {
			return nil, false
		}

		key := ed25519.PublicKey(raw)
		s.cacheKey(serverID, key)
		return key, true
	}
}

func (s *Store) cachedKey(serverID string) (ed25519.PublicKey, bool) {
	return s.pubKeyCache.Get(serverID)
}

func (s *Store) cacheKey(serverID string, key ed25519.PublicKey) {
	s.pubKeyCache.Set(serverID, key)
}

func (s *Store) invalidateCache(serverID string) {
	s.pubKeyCache.Invalidate(serverID)
}
