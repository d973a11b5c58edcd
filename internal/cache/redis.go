package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"task-tracker/internal/metrics"
	"task-tracker/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// TaskCache keeps a user's list and report results as fields of one hash,
// so a single DEL drops everything derived from that user's tasks. A counter
// per user (the generation) is bumped with every DEL and guards writes.
type TaskCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewClient parses url, applies poolSize and pings the server.
func NewClient(ctx context.Context, url string, poolSize int) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	opts.PoolSize = poolSize
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info(ctx, "Redis client initialized", "pool_size", poolSize)
	return client, nil
}

// New wraps client; entries expire ttl after the user's hash was last written.
func New(client *redis.Client, ttl time.Duration) *TaskCache {
	return &TaskCache{client: client, ttl: ttl}
}

// UserKey returns the hash key holding a user's cached reads.
func UserKey(userID int64) string {
	return fmt.Sprintf("tasks:user:%d", userID)
}

// GenerationKey returns the counter bumped on every invalidation of the user.
func GenerationKey(userID int64) string {
	return fmt.Sprintf("tasks:gen:%d", userID)
}

var errStaleGeneration = errors.New("cache generation changed")

// Generation returns the user's current generation; an unset counter is 0.
func (c *TaskCache) Generation(ctx context.Context, userID int64) (int64, error) {
	gen, err := c.client.Get(ctx, GenerationKey(userID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

// Get decodes the cached field into dst. Returns false on miss or error.
func (c *TaskCache) Get(ctx context.Context, userID int64, field string, dst interface{}) bool {
	b, err := c.client.HGet(ctx, UserKey(userID), field).Bytes()
	if err == redis.Nil {
		metrics.CacheRequests.WithLabelValues("miss").Inc()
		return false
	}
	if err != nil {
		metrics.CacheRequests.WithLabelValues("error").Inc()
		logger.Debug(ctx, "Redis get failed", "error", err, "user_id", userID, "field", field)
		return false
	}
	if err := json.Unmarshal(b, dst); err != nil {
		metrics.CacheRequests.WithLabelValues("error").Inc()
		logger.Debug(ctx, "Redis unmarshal failed", "error", err, "user_id", userID, "field", field)
		return false
	}
	metrics.CacheRequests.WithLabelValues("hit").Inc()
	return true
}

// Set stores v under field and refreshes the hash TTL, unless the user was
// invalidated since gen was read.
func (c *TaskCache) Set(ctx context.Context, userID, gen int64, field string, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		logger.Debug(ctx, "Marshal for cache failed", "error", err)
		return
	}
	key, genKey := UserKey(userID), GenerationKey(userID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if cur != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, b)
			pipe.Expire(ctx, key, c.ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil:
	case errors.Is(err, errStaleGeneration) || errors.Is(err, redis.TxFailedErr):
		metrics.CacheRequests.WithLabelValues("stale").Inc()
		logger.Debug(ctx, "Skipped stale cache fill", "user_id", userID, "field", field)
	default:
		logger.Debug(ctx, "Redis set failed", "error", err, "user_id", userID, "field", field)
	}
}

// InvalidateUser deletes every cached read of the user and bumps the
// generation, so in-flight loads started earlier cannot write back.
func (c *TaskCache) InvalidateUser(ctx context.Context, userID int64) {
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, GenerationKey(userID))
	pipe.Del(ctx, UserKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Debug(ctx, "Redis invalidate failed", "error", err, "user_id", userID)
	}
}

// Ping checks the Redis connection.
func (c *TaskCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
