package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hirepath/assess-backend/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// StartEntry is the cached timing record for an in-progress session. The
// database row stays authoritative; this mirror exists so remaining-time
// polls do not hit Postgres.
type StartEntry struct {
	UserID          string    `json:"user_id"`
	StartedAt       time.Time `json:"started_at"`
	AllottedSeconds int       `json:"allotted_seconds"`
}

// StartInstantCache mirrors session start instants. All operations are
// best-effort: a miss or failure falls back to the database.
type StartInstantCache interface {
	Get(ctx context.Context, sessionID uuid.UUID) (StartEntry, bool)
	Set(ctx context.Context, sessionID uuid.UUID, entry StartEntry)
	Delete(ctx context.Context, sessionID uuid.UUID)
}

// startCacheSlack keeps entries alive a little past the deadline so expiry
// reads still hit the cache.
const startCacheSlack = time.Hour

// RedisStartCache is the Redis-backed StartInstantCache.
type RedisStartCache struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisStartCache creates a new RedisStartCache.
func NewRedisStartCache(rdb *redis.Client, log zerolog.Logger) *RedisStartCache {
	return &RedisStartCache{rdb: rdb, log: log.With().Str("component", "start_cache").Logger()}
}

func (c *RedisStartCache) Get(ctx context.Context, sessionID uuid.UUID) (StartEntry, bool) {
	raw, err := c.rdb.Get(ctx, config.CacheKey.SessionStartKey(sessionID.String())).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn().Err(err).Msg("Start cache read failed")
		}
		return StartEntry{}, false
	}

	var entry StartEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.log.Warn().Err(err).Msg("Start cache entry corrupt, ignoring")
		return StartEntry{}, false
	}
	return entry, true
}

func (c *RedisStartCache) Set(ctx context.Context, sessionID uuid.UUID, entry StartEntry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to encode start cache entry")
		return
	}

	ttl := time.Duration(entry.AllottedSeconds)*time.Second + startCacheSlack
	if err := c.rdb.Set(ctx, config.CacheKey.SessionStartKey(sessionID.String()), payload, ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("Start cache write failed")
	}
}

func (c *RedisStartCache) Delete(ctx context.Context, sessionID uuid.UUID) {
	if err := c.rdb.Del(ctx, config.CacheKey.SessionStartKey(sessionID.String())).Err(); err != nil {
		c.log.Warn().Err(err).Msg("Start cache delete failed")
	}
}
