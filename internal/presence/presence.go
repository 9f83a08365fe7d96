// Package presence implements the relay's Redis/DragonflyDB-backed cache:
// the HTTP rate limiter consulted by api.RateLimitGlobal and friends, and a
// short-lived signature-replay guard the inbound federation handler
// consults right after signature verification, alongside trust.Store's
// in-process public-key cache.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefixes, namespacing the keyspace this cache shares with whatever
// else points at the same Redis/DragonflyDB instance.
const (
	PrefixRateLimit = "ratelimit:"
	PrefixReplay    = "replay:"
	PrefixCache     = "cache:"
)

// RateLimitResult describes the outcome of one rate-limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
}

// Cache wraps a Redis client.
type Cache struct {
	client *redis.Client
}

// New connects to the Redis/DragonflyDB instance at url.
func New(url string) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("presence: parsing cache url: %w", err)
	}
	return &Cache{client: redis.NewClient(opts)}, nil
}

// HealthCheck pings the cache.
func (c *Cache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

// CheckRateLimitInfo increments the fixed-window counter for key and reports
// whether the caller is still within limit over window. The counter's TTL is
// (re)set to window on first increment of each window.
func (c *Cache) CheckRateLimitInfo(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	fullKey := PrefixRateLimit + key

	count, err := c.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("presence: incrementing rate limit counter: %w", err)
	}
	if count == 1 {
		if err := c.client.Expire(ctx, fullKey, window).Err(); err != nil {
			return RateLimitResult{}, fmt.Errorf("presence: setting rate limit expiry: %w", err)
		}
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitResult{
		Allowed:   int(count) <= limit,
		Limit:     limit,
		Remaining: remaining,
	}, nil
}

// SeenSignature records that a (keyID, digest) pair has been presented
// within ttl, returning true if it was already seen — a replay. Used as a
// distributed backstop alongside the signature package's per-request date
// skew check.
func (c *Cache) SeenSignature(ctx context.Context, keyID, digest string, ttl time.Duration) (bool, error) {
	key := PrefixReplay + keyID + ":" + digest
	ok, err := c.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("presence: checking signature replay: %w", err)
	}
	return !ok, nil
}
