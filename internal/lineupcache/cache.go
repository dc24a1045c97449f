// Package lineupcache caches setlist lookups in Redis.
package lineupcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"gigsnap/internal/models"
)

const keyPrefix = "lineup:"

// Source is the upstream lookup being cached.
type Source interface {
	LookupLineup(ctx context.Context, venueExternalID string, from, to models.Date) ([]models.Performance, error)
}

// Redis is the subset of the go-redis client the cache needs.
type Redis interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Options configures a Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Connect opens a Redis client and verifies it answers.
func Connect(ctx context.Context, opts Options) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// Cache is a read-through Source. Redis failures are logged and bypassed so
// a cache outage never fails a lookup.
type Cache struct {
	rdb    Redis
	source Source
	ttl    time.Duration
	log    zerolog.Logger
}

// New wraps source with a Redis cache.
func New(rdb Redis, source Source, ttl time.Duration, log zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &Cache{rdb: rdb, source: source, ttl: ttl, log: log}
}

func (c *Cache) LookupLineup(ctx context.Context, venueExternalID string, from, to models.Date) ([]models.Performance, error) {
	key := cacheKey(venueExternalID, from, to)

	cached, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var performances []models.Performance
		if err := json.Unmarshal(cached, &performances); err == nil {
			return performances, nil
		}
		c.log.Warn().Str("key", key).Msg("discarding unreadable cache entry")
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Str("key", key).Msg("lineup cache read failed")
	}

	performances, err := c.source.LookupLineup(ctx, venueExternalID, from, to)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(performances)
	if err != nil {
		return performances, nil
	}
	if err := c.rdb.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("lineup cache write failed")
	}
	return performances, nil
}

func cacheKey(venueExternalID string, from, to models.Date) string {
	return fmt.Sprintf("%s%s:%s:%s", keyPrefix, strings.TrimSpace(venueExternalID), from, to)
}
