package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chatguard-lab/internal/config"
	"chatguard-lab/internal/domain/models"
	"chatguard-lab/pkg/logger"
)

// Cache key namespaces
const (
	KeyImportStatusPrefix = "cache:import:status:"
	KeyRateLimitPrefix    = "rate_limit:"
)

// RedisCache wraps the Redis client with typed operations
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	logger    *logger.Logger
}

// NewRedis creates a new Redis client
func NewRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*RedisCache, error) {
	log = log.WithComponent("redis")
	log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("connecting to Redis")

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	log.Info().Msg("connected to Redis successfully")

	return &RedisCache{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		logger:    log,
	}, nil
}

// Client returns the underlying Redis client
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	c.logger.Info().Msg("closing Redis connection")
	return c.client.Close()
}

// key prepends the namespace prefix to a key
func (c *RedisCache) key(k string) string {
	return c.keyPrefix + k
}

// Get retrieves a value from cache
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, c.key(key)).Result()
}

// GetJSON retrieves and unmarshals a JSON value from cache
func (c *RedisCache) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

// Set stores a value in cache with optional TTL
func (c *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return c.client.Set(ctx, c.key(key), value, ttl).Err()
}

// SetJSON marshals and stores a value in cache
func (c *RedisCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.Set(ctx, key, string(data), ttl)
}

// Delete removes keys from cache
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	prefixedKeys := make([]string, len(keys))
	for i, k := range keys {
		prefixedKeys[i] = c.key(k)
	}
	return c.client.Del(ctx, prefixedKeys...).Err()
}

// Pipeline returns a Redis pipeline for batch operations
func (c *RedisCache) Pipeline() redis.Pipeliner {
	return c.client.Pipeline()
}

// CheckRateLimit checks and increments the rate limit counter.
// Returns (allowed, remaining, resetTime, error).
func (c *RedisCache) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, time.Time, error) {
	now := time.Now()
	windowKey := fmt.Sprintf("%s%s:%d", KeyRateLimitPrefix, key, now.Unix()/int64(window.Seconds()))

	pipe := c.Pipeline()
	incr := pipe.Incr(ctx, c.key(windowKey))
	pipe.Expire(ctx, c.key(windowKey), window)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, time.Time{}, err
	}

	count := incr.Val()
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return count <= limit, remaining, now.Add(window), nil
}

// ImportStatusCache caches compact status views with a short TTL so pollers
// do not hammer the database. Redis failures degrade to cache misses.
type ImportStatusCache struct {
	cache  *RedisCache
	ttl    time.Duration
	logger *logger.Logger
}

// NewImportStatusCache creates a status cache over an existing Redis client
func NewImportStatusCache(cache *RedisCache, ttl time.Duration, log *logger.Logger) *ImportStatusCache {
	return &ImportStatusCache{
		cache:  cache,
		ttl:    ttl,
		logger: log.WithComponent("status-cache"),
	}
}

// GetStatus returns a cached status view, if fresh
func (s *ImportStatusCache) GetStatus(ctx context.Context, importID string) (*models.ImportStatusInfo, bool) {
	var info models.ImportStatusInfo
	err := s.cache.GetJSON(ctx, KeyImportStatusPrefix+importID, &info)
	if err != nil {
		if err != redis.Nil {
			s.logger.Debug().Err(err).Str("import_id", importID).Msg("status cache read failed")
		}
		return nil, false
	}
	return &info, true
}

// SetStatus stores a status view with the configured TTL
func (s *ImportStatusCache) SetStatus(ctx context.Context, info *models.ImportStatusInfo) {
	if err := s.cache.SetJSON(ctx, KeyImportStatusPrefix+info.ID.String(), info, s.ttl); err != nil {
		s.logger.Debug().Err(err).Str("import_id", info.ID.String()).Msg("status cache write failed")
	}
}

// Invalidate drops a cached status view
func (s *ImportStatusCache) Invalidate(ctx context.Context, importID string) {
	if err := s.cache.Delete(ctx, KeyImportStatusPrefix+importID); err != nil {
		s.logger.Debug().Err(err).Str("import_id", importID).Msg("status cache invalidate failed")
	}
}
