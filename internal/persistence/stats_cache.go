package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const statsGenerationKey = "stats:gen"

// StatsCache stores computed statistics in Redis. Entries are namespaced by
// a generation counter; bumping it orphans every entry at once and the TTL
// reclaims them.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatsCache returns nil when r is nil so callers fall back to no caching.
func NewStatsCache(r *Redis, ttl time.Duration) *StatsCache {
	if r == nil || r.Client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &StatsCache{client: r.Client, ttl: ttl}
}

func (c *StatsCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, statsGenerationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *StatsCache) key(gen int64, key string) string {
	return fmt.Sprintf("stats:%d:%s", gen, key)
}

// Get decodes the entry for key into dest. It reports false on a miss, and
// the generation it read so a recomputed value can be stored against it.
func (c *StatsCache) Get(ctx context.Context, key string, dest any) (bool, int64, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return false, 0, err
	}
	raw, err := c.client.Get(ctx, c.key(gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, gen, nil
	}
	if err != nil {
		return false, gen, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, gen, err
	}
	return true, gen, nil
}

// Set stores value under key in generation gen. When gen has been bumped
// since, the entry is already orphaned and only the TTL reclaims it.
func (c *StatsCache) Set(ctx context.Context, gen int64, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(gen, key), raw, c.ttl).Err()
}

// Invalidate drops every cached entry.
func (c *StatsCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, statsGenerationKey).Err()
}
