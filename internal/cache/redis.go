package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultLockTTL bounds how long one fill may hold a stampede lock
	DefaultLockTTL   = 45 * time.Second
	lockPollInterval = 100 * time.Millisecond
)

type RedisCache struct {
	client  *redis.Client
	lockTTL time.Duration
}

func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info().Str("addr", addr).Msg("Redis connection established")
	return &RedisCache{client: client, lockTTL: DefaultLockTTL}, nil
}

// WithLockTTL sets how long a fill may hold its stampede lock. It must exceed
// the slowest fill, which for query answers is the LLM call timeout.
func (c *RedisCache) WithLockTTL(ttl time.Duration) *RedisCache {
	if ttl > 0 {
		c.lockTTL = ttl
	}
	return c
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

func (c *RedisCache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	data, err := encode(value)
	if err != nil {
		return false, err
	}
	return c.client.SetNX(ctx, key, data, ttl).Result()
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// ReplaceSortedSet swaps the contents of a sorted set atomically
func (c *RedisCache) ReplaceSortedSet(ctx context.Context, key string, members []ScoredMember, ttl time.Duration) error {
	zs := make([]redis.Z, len(members))
	for i, m := range members {
		zs[i] = redis.Z{Score: m.Score, Member: m.Member}
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(zs) > 0 {
			pipe.ZAdd(ctx, key, zs...)
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace sorted set %s: %w", key, err)
	}
	return nil
}

// TopScored returns the n highest scored members, best first. Ties are
// ordered by member name.
func (c *RedisCache) TopScored(ctx context.Context, key string, n int64) ([]ScoredMember, error) {
	zs, err := c.client.ZRevRangeWithScores(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read sorted set %s: %w", key, err)
	}
	out := make([]ScoredMember, 0, len(zs))
	for _, z := range zs {
		out = append(out, ScoredMember{Member: fmt.Sprint(z.Member), Score: z.Score})
	}
	sortScored(out)
	if n >= 0 && int64(len(out)) > n {
		out = out[:n]
	}
	return out, nil
}

// GetOrSet returns the cached value for key or computes it under a lock so
// concurrent misses do not stampede the backing store. Waiters that outlive
// the lock, or see it released without a value, compute the value themselves.
func (c *RedisCache) GetOrSet(ctx context.Context, key string, ttl time.Duration, fn func() (interface{}, error)) ([]byte, error) {
	if data, err := c.Get(ctx, key); err == nil {
		return data, nil
	}

	lockKey := LockKey(key)
	acquired, err := c.SetNX(ctx, lockKey, "1", c.lockTTL)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache lock unavailable, computing without cache")
		return computeUncached(fn)
	}

	if !acquired {
		data, found, err := awaitFill(ctx, lockPollInterval, c.lockTTL, func(ctx context.Context) ([]byte, bool, error) {
			data, err := c.Get(ctx, key)
			if err == nil {
				return data, true, nil
			}
			if !errors.Is(err, ErrKeyNotFound) {
				return nil, false, err
			}
			held, err := c.client.Exists(ctx, lockKey).Result()
			return nil, held > 0, err
		})
		if err != nil {
			return nil, err
		}
		if found {
			return data, nil
		}
		log.Debug().Str("key", key).Msg("No cached value after waiting on fill, computing directly")
		return computeUncached(fn)
	}

	defer c.client.Del(context.WithoutCancel(ctx), lockKey)

	value, err := fn()
	if err != nil {
		return nil, fmt.Errorf("failed to generate value: %w", err)
	}
	data, store, err := prepareFill(value)
	if err != nil {
		return nil, err
	}
	if store {
		if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to store value in cache")
		}
	}
	return data, nil
}

// awaitFill polls probe until another caller's fill lands, its lock is
// released, or limit passes. found is false when the caller should compute
// the value itself; err is only set when ctx ends first.
func awaitFill(ctx context.Context, interval, limit time.Duration, probe func(context.Context) (data []byte, held bool, err error)) ([]byte, bool, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(limit)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-deadline.C:
			return nil, false, nil
		case <-ticker.C:
		}

		data, held, err := probe(ctx)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("Cache poll failed, giving up on shared fill")
			return nil, false, nil
		case data != nil:
			return data, true, nil
		case !held:
			return nil, false, nil
		}
	}
}

func computeUncached(fn func() (interface{}, error)) ([]byte, error) {
	value, err := fn()
	if err != nil {
		return nil, err
	}
	data, _, err := prepareFill(value)
	return data, err
}
