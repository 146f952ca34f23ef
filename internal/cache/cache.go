// Package cache implements a TTL-bounded subscription cache over
// Redis, keyed "subscription:<uuid>" with JSON-encoded values.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yourusername/webhookrelay/internal/logging"
	"github.com/yourusername/webhookrelay/internal/metrics"
	"github.com/yourusername/webhookrelay/internal/store"
)

const keyPrefix = "subscription:"

// SubscriptionCache is a TTL-bounded mapping from subscription id to
// Subscription. It is optional infrastructure — every operation
// degrades silently to miss/no-op when Redis is unavailable.
type SubscriptionCache struct {
	client *redis.Client
	ttl    time.Duration
	log    logging.Logger
}

// New builds a SubscriptionCache. client may be nil, in which case
// every operation is a permanent no-op/miss (cache disabled).
func New(client *redis.Client, ttl time.Duration, log logging.Logger) *SubscriptionCache {
	return &SubscriptionCache{client: client, ttl: ttl, log: log}
}

// Get returns the cached Subscription, or (nil, false) on miss,
// unavailability, or a deserialization failure — in which last case
// the bad entry is also deleted.
func (c *SubscriptionCache) Get(ctx context.Context, id string) (*store.Subscription, bool) {
	if c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, key(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("subscription cache get failed, degrading to miss")
			metrics.CacheOps.WithLabelValues("error").Inc()
		} else {
			metrics.CacheOps.WithLabelValues("miss").Inc()
		}
		return nil, false
	}
	var sub store.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		c.log.Warn("subscription cache entry corrupt, evicting")
		metrics.CacheOps.WithLabelValues("error").Inc()
		c.client.Del(ctx, key(id))
		return nil, false
	}
	metrics.CacheOps.WithLabelValues("hit").Inc()
	return &sub, true
}

// Set stores sub under its id with the configured TTL. Failures are
// logged and swallowed: the cache is best-effort.
func (c *SubscriptionCache) Set(ctx context.Context, sub *store.Subscription) {
	if c.client == nil {
		return
	}
	raw, err := json.Marshal(sub)
	if err != nil {
		c.log.Warn("subscription cache marshal failed")
		return
	}
	if err := c.client.Set(ctx, key(sub.ID), raw, c.ttl).Err(); err != nil {
		c.log.Warn("subscription cache set failed, degrading to no-op")
		metrics.CacheOps.WithLabelValues("error").Inc()
		return
	}
	metrics.CacheOps.WithLabelValues("set").Inc()
}

// Delete invalidates the cached entry for id. Callers are responsible
// for invoking this on subscription update/delete.
func (c *SubscriptionCache) Delete(ctx context.Context, id string) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, key(id)).Err(); err != nil {
		c.log.Warn("subscription cache delete failed")
		return
	}
	metrics.CacheOps.WithLabelValues("delete").Inc()
}

// Ping reports whether Redis is reachable. It returns nil when the
// cache is disabled (no client configured), since an absent cache is
// not itself a liveness failure.
func (c *SubscriptionCache) Ping(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

func key(id string) string {
	return keyPrefix + id
}
