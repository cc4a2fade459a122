// Package patchcache fronts the store-persisted reflection patch
// (model.User.ActivePatch) with a Redis TTL cache, grounded on
// intelligencedev-manifold's internal/workspaces/redis_cache.go (a
// redis.UniversalClient wrapped behind a small interface, a disabled
// config returning a nil client rather than erroring, key namespacing by
// the entity the cached value belongs to). A reflection patch is already a
// TTL object by construction (spec section 4.14's ttl_turns/ttl_remaining
// bookkeeping), which Redis SET...EX models directly instead of a
// hand-rolled in-process expiry timer; the store row remains the source of
// truth; a cache miss or a disabled cache just means the next read falls
// through to the store.
package patchcache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kadirpekel/persona-core/pkg/model"
)

// Config selects whether the cache is active at all; an empty Addr leaves
// the cache disabled rather than failing the turn pipeline on a missing
// dependency.
type Config struct {
	Addr                  string
	Password              string
	DB                    int
	TLSInsecureSkipVerify bool
}

// Cache is a Redis-backed, best-effort cache of a user's active reflection
// patch. A nil *Cache is valid and every method is a no-op against it.
type Cache struct {
	client redis.UniversalClient
}

// New builds a Cache against cfg.Addr; returns (nil, nil) when Addr is
// empty, mirroring the teacher's disabled-config convention.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLSInsecureSkipVerify {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("patchcache: connecting to redis: %w", err)
	}
	return &Cache{client: client}, nil
}

func key(userID string) string {
	return "persona:patch:" + userID
}

// Get returns the cached patch for userID, or (nil, false) on a cache miss
// or a disabled cache — callers should then fall through to the store.
func (c *Cache) Get(ctx context.Context, userID string) (*model.ReflectionPatch, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, key(userID)).Bytes()
	if err != nil {
		return nil, false
	}
	var patch model.ReflectionPatch
	if err := json.Unmarshal(raw, &patch); err != nil {
		return nil, false
	}
	return &patch, true
}

// Set caches patch for userID with a TTL proportional to its remaining
// reflection-patch lifetime: one turn's worth of wall-clock headroom per
// remaining turn, generous enough that a slow next turn still hits the
// cache. A nil patch clears the cached entry.
func (c *Cache) Set(ctx context.Context, userID string, patch *model.ReflectionPatch) {
	if c == nil {
		return
	}
	if patch == nil || patch.TTLRemaining <= 0 {
		c.client.Del(ctx, key(userID))
		return
	}
	raw, err := json.Marshal(patch)
	if err != nil {
		return
	}
	ttl := time.Duration(patch.TTLRemaining) * 10 * time.Minute
	c.client.Set(ctx, key(userID), raw, ttl)
}

// Invalidate drops userID's cached patch outright, for use after
// ClearAllMemoryFor resets a user's relationship state.
func (c *Cache) Invalidate(ctx context.Context, userID string) {
	if c == nil {
		return
	}
	c.client.Del(ctx, key(userID))
}
