package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/pautaradar/newsradar/infrastructure/logging"
)

// Store is the counter cache interface the fetcher's preflight checks and
// the yield monitor depend on. RedisStore is the primary implementation;
// it degrades to MemoryStore on any Redis error, per spec.md §5.
type Store interface {
	Incr(ctx context.Context, key string, ttl time.Duration) int64
	Decr(ctx context.Context, key string)
	Get(ctx context.Context, key string) (int64, bool)
	Set(ctx context.Context, key string, value int64, ttl time.Duration)
}

// RedisStore implements Store against Redis, falling back to an in-process
// MemoryStore whenever the Redis call errors.
type RedisStore struct {
	client   *redis.Client
	fallback *MemoryStore
	log      *logging.Logger
}

func NewRedisStore(client *redis.Client, log *logging.Logger) *RedisStore {
	return &RedisStore{client: client, fallback: NewMemoryStore(), log: log}
}

func (r *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) int64 {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.warn(ctx, "incr", err)
		return r.fallback.Incr(key, ttl)
	}
	return incr.Val()
}

func (r *RedisStore) Decr(ctx context.Context, key string) {
	if err := r.client.Decr(ctx, key).Err(); err != nil {
		r.warn(ctx, "decr", err)
		r.fallback.Decr(key)
	}
}

func (r *RedisStore) Get(ctx context.Context, key string) (int64, bool) {
	v, err := r.client.Get(ctx, key).Int64()
	if err != nil {
		if err != redis.Nil {
			r.warn(ctx, "get", err)
			return r.fallback.Get(key)
		}
		return 0, false
	}
	return v, true
}

func (r *RedisStore) Set(ctx context.Context, key string, value int64, ttl time.Duration) {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.warn(ctx, "set", err)
		r.fallback.Set(key, value, ttl)
	}
}

func (r *RedisStore) warn(ctx context.Context, op string, err error) {
	if r.log != nil {
		r.log.WithContext(ctx).WithField("op", op).WithError(err).
			Warn("cache: redis call failed, degrading to in-memory fallback")
	}
}
