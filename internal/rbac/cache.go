package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const generationKey = "rbac:gen"

// Cache holds resolved permission sets in Redis behind a generation counter.
// Every mutation bumps the counter, which orphans all keys of the previous
// generation at once; the TTL reclaims them. No per-user bookkeeping needed.
type Cache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache wires the permission cache.
func NewCache(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{rdb: rdb, ttl: ttl, logger: logger}
}

// Generation returns the current cache generation, zero when unset.
func (c *Cache) Generation(ctx context.Context) (int64, error) {
	generation, err := c.rdb.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return generation, err
}

// Invalidate advances the generation. Runs synchronously in the mutation
// call path so the next resolution cannot read a stale set.
func (c *Cache) Invalidate(ctx context.Context) error {
	return c.rdb.Incr(ctx, generationKey).Err()
}

func permissionsKey(generation, userID int64) string {
	return fmt.Sprintf("rbac:perms:%d:%d", generation, userID)
}

// GetPermissions fetches a cached set for the given generation.
func (c *Cache) GetPermissions(ctx context.Context, generation, userID int64) (map[string]struct{}, bool) {
	raw, err := c.rdb.Get(ctx, permissionsKey(generation, userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("permission cache read failed", slog.Any("error", err))
		}
		return nil, false
	}
	var keys []string
	if err := json.Unmarshal(raw, &keys); err != nil {
		c.logger.Warn("permission cache entry corrupt", slog.Any("error", err))
		return nil, false
	}
	set := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		set[key] = struct{}{}
	}
	return set, true
}

// SetPermissions stores a resolved set under the given generation. Failures
// are logged, not returned; the set was already computed correctly.
func (c *Cache) SetPermissions(ctx context.Context, generation, userID int64, set map[string]struct{}) {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	raw, err := json.Marshal(keys)
	if err != nil {
		c.logger.Warn("permission cache encode failed", slog.Any("error", err))
		return
	}
	if err := c.rdb.Set(ctx, permissionsKey(generation, userID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("permission cache write failed", slog.Any("error", err))
	}
}
