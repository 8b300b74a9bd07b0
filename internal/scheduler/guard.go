package scheduler

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// Guard claims a job window key. Acquire returns false when the key is already held.
// *repository.JobRunRepository and memstore's JobRunStore implement it as well.
type Guard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

const redisKeyPrefix = "synergysphere:job:"

// RedisGuard holds window keys in Redis with SETNX so that only one server
// instance runs a job per window.
type RedisGuard struct {
	client *redis.Client
}

func NewRedisGuard(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client}
}

func (g *RedisGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, redisKeyPrefix+key, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "failed to acquire job window")
	}
	return ok, nil
}
