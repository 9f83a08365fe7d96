package federation

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tezrelay/relay/internal/bundle"
	"github.com/tezrelay/relay/internal/models"
)

// backoffSchedule is the retry ladder: 5s, 30s, 2m, 10m, 1h (capped at
// ceiling).
var backoffSchedule = []time.Duration{
	5 * time.Second,
	30 * time.Second,
	2 * time.Minute,
	10 * time.Minute,
	1 * time.Hour,
}

// BackoffDelay returns the delay before the next attempt, given how many
// attempts have already been made, capped at ceiling.
func BackoffDelay(attempts int, ceiling time.Duration) time.Duration {
	var d time.Duration
	if attempts < len(backoffSchedule) {
		d = backoffSchedule[attempts]
	} else {
		d = backoffSchedule[len(backoffSchedule)-1]
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

// Queue persists outbound federation bundles and serves them to the
// delivery pump. Enqueue runs inside the caller's admission transaction so
// a share/reply never commits without its outbound bundles, or vice versa.
type Queue struct {
	pool *pgxpool.Pool
}

// NewQueue constructs a Queue.
func NewQueue(pool *pgxpool.Pool) *Queue {
	return &Queue{pool: pool}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so Enqueue can run
// either standalone or as part of a caller's transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgx.CommandTag, error)
}

// Enqueue writes one OutboundDelivery for targetHost carrying b. Callers
// invoke it once per remote host. exec may be a transaction.
func (q *Queue) Enqueue(ctx context.Context, exec querier, targetHost string, b bundle.Bundle) error {
	raw, err := bundle.CanonicalJSON(b)
	if err != nil {
		return fmt.Errorf("federation: encoding bundle for %q: %w", targetHost, err)
	}

	_, err = exec.Exec(ctx,
		`INSERT INTO outbound_deliveries (id, target_host, bundle, status, next_attempt_at)
		 VALUES ($1, $2, $3, $4, now())`,
		models.NewID(), targetHost, raw, models.DeliveryQueued,
	)
	if err != nil {
		return fmt.Errorf("federation: enqueueing delivery to %q: %w", targetHost, err)
	}
	return nil
}

// ClaimBatch atomically claims up to limit queued deliveries whose
// next_attempt_at has arrived, transitioning them to in_flight so
// concurrent pump workers do not double-send.
func (q *Queue) ClaimBatch(ctx context.Context, limit int) ([]models.OutboundDelivery, error) {
	rows, err := q.pool.Query(ctx,
		`UPDATE outbound_deliveries
		 SET status = $1
		 WHERE id IN (
		     SELECT id FROM outbound_deliveries
		     WHERE status = $2 AND next_attempt_at <= now()
		     ORDER BY next_attempt_at
		     LIMIT $3
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, target_host, bundle, status, attempts, next_attempt_at, created_at`,
		models.DeliveryInFlight, models.DeliveryQueued, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("federation: claiming deliveries: %w", err)
	}
	defer rows.Close()

	var out []models.OutboundDelivery
	for rows.Next() {
		var d models.OutboundDelivery
		if err := rows.Scan(&d.ID, &d.TargetHost, &d.Bundle, &d.Status, &d.Attempts,
			&d.NextAttemptAt, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListOutbox returns the most recent deliveries across all hosts, newest
// first, for the admin outbox endpoint.
func (q *Queue) ListOutbox(ctx context.Context, limit int) ([]models.OutboundDelivery, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := q.pool.Query(ctx,
		`SELECT id, target_host, bundle, status, attempts, next_attempt_at, created_at
		 FROM outbound_deliveries ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("federation: listing outbox: %w", err)
	}
	defer rows.Close()

	var out []models.OutboundDelivery
	for rows.Next() {
		var d models.OutboundDelivery
		if err := rows.Scan(&d.ID, &d.TargetHost, &d.Bundle, &d.Status, &d.Attempts,
			&d.NextAttemptAt, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// MarkSent records a successful delivery.
func (q *Queue) MarkSent(ctx context.Context, id models.ID) error {
	_, err := q.pool.Exec(ctx,
		`UPDATE outbound_deliveries SET status = $1 WHERE id = $2`, models.DeliverySent, id)
	return err
}

// MarkFailed records a failed attempt. If permanent is true (a 4xx response
// from the peer), the delivery is marked failed with no further retry.
// Otherwise attempts increments and next_attempt_at is pushed out by the
// backoff schedule.
func (q *Queue) MarkFailed(ctx context.Context, id models.ID, attempts int, permanent bool, ceiling time.Duration) error {
	if permanent {
		_, err := q.pool.Exec(ctx,
			`UPDATE outbound_deliveries SET status = $1, attempts = $2 WHERE id = $3`,
			models.DeliveryFailed, attempts+1, id)
		return err
	}

	next := time.Now().Add(BackoffDelay(attempts, ceiling))
	_, err := q.pool.Exec(ctx,
		`UPDATE outbound_deliveries SET status = $1, attempts = $2, next_attempt_at = $3 WHERE id = $4`,
		models.DeliveryQueued, attempts+1, next, id)
	return err
}
