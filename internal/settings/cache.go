package settings

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const redisKey = "issuesmap:settings"

// RedisCache caches raw option values in Redis. Errors are logged and treated
// as cache misses.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a cache entry that expires after ttl.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context) (map[string]string, bool) {
	data, err := c.client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		log.Warn().Err(err).Msg("settings: redis get failed")
		return nil, false
	}
	var values map[string]string
	if err := json.Unmarshal(data, &values); err != nil {
		log.Warn().Err(err).Msg("settings: corrupt cache entry")
		return nil, false
	}
	return values, true
}

func (c *RedisCache) Set(ctx context.Context, values map[string]string) {
	data, err := json.Marshal(values)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisKey, data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("settings: redis set failed")
	}
}

func (c *RedisCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, redisKey).Err(); err != nil {
		log.Warn().Err(err).Msg("settings: redis invalidate failed")
	}
}
