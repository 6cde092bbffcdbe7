package ingest

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const seenKeyPrefix = "ingest:seen:"

// RedisSeenCache implements SeenCache on Redis. Entries carry a short TTL
// spanning a few sweep intervals; after expiry the store's upsert takes the
// hit again and re-marks the fingerprint.
type RedisSeenCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisSeenCache constructs the cache with the given entry TTL.
func NewRedisSeenCache(rdb *redis.Client, ttl time.Duration) *RedisSeenCache {
	return &RedisSeenCache{rdb: rdb, ttl: ttl}
}

// IsSeen reports whether the fingerprint was marked recently. Errors are
// treated as a miss: the store's upsert stays authoritative.
func (c *RedisSeenCache) IsSeen(ctx context.Context, fingerprint string) bool {
	n, err := c.rdb.Exists(ctx, seenKeyPrefix+fingerprint).Result()
	if err != nil {
		return false
	}
	return n > 0
}

// MarkSeen records fingerprints with the configured TTL. Best-effort.
func (c *RedisSeenCache) MarkSeen(ctx context.Context, fingerprints []string) {
	pipe := c.rdb.Pipeline()
	for _, fp := range fingerprints {
		pipe.Set(ctx, seenKeyPrefix+fp, 1, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[ingest] Seen-cache write failed (non-fatal): %v", err)
	}
}

// Invalidate drops the entries for deactivated fingerprints so the next
// sweep reaches the store and can reactivate them. Best-effort.
func (c *RedisSeenCache) Invalidate(ctx context.Context, fingerprints []string) {
	if len(fingerprints) == 0 {
		return
	}
	keys := make([]string, 0, len(fingerprints))
	for _, fp := range fingerprints {
		keys = append(keys, seenKeyPrefix+fp)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		log.Printf("[ingest] Seen-cache invalidation failed (non-fatal): %v", err)
	}
}
