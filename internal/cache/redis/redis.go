// Package redis implements the Cache contract over go-redis, following the
// teacher's RedisStreamManager connection/key-prefix idiom.
package redis

import (
	"context"
	"time"

	"github.com/layeredmemory/engine/internal/cache"
	apperrors "github.com/layeredmemory/engine/internal/errors"
	goredis "github.com/redis/go-redis/v9"
)

// Cache wraps a go-redis client. It has no native vector index, so ANN
// returns *cache.ErrANNUnsupported, so over this backend the semantic cache
// serves exact-fingerprint hits only.
type Cache struct {
	client *goredis.Client
}

var _ cache.Cache = (*Cache)(nil)

// New connects to a redis instance.
func New(addr, password string, db int) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr, Password: password, DB: db})
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, apperrors.NewTransient("redis connection failed").WithCause(err)
	}
	return &Cache{client: client}, nil
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.NewTransient("redis get failed").WithCause(err)
	}
	return val, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return apperrors.NewTransient("redis set failed").WithCause(err)
	}
	return nil
}

func (c *Cache) Del(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return apperrors.NewTransient("redis del failed").WithCause(err)
	}
	return nil
}

func (c *Cache) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, apperrors.NewTransient("redis setnx failed").WithCause(err)
	}
	return ok, nil
}

func (c *Cache) HGet(ctx context.Context, key, field string) ([]byte, bool, error) {
	val, err := c.client.HGet(ctx, key, field).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.NewTransient("redis hget failed").WithCause(err)
	}
	return val, true, nil
}

func (c *Cache) HSet(ctx context.Context, key, field string, value []byte) error {
	if err := c.client.HSet(ctx, key, field, value).Err(); err != nil {
		return apperrors.NewTransient("redis hset failed").WithCause(err)
	}
	return nil
}

func (c *Cache) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	result, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, apperrors.NewTransient("redis hgetall failed").WithCause(err)
	}
	out := make(map[string][]byte, len(result))
	for k, v := range result {
		out[k] = []byte(v)
	}
	return out, nil
}

func (c *Cache) HDel(ctx context.Context, key string, fields ...string) error {
	if err := c.client.HDel(ctx, key, fields...).Err(); err != nil {
		return apperrors.NewTransient("redis hdel failed").WithCause(err)
	}
	return nil
}

func (c *Cache) ZAdd(ctx context.Context, key string, member string, score float64) error {
	err := c.client.ZAdd(ctx, key, goredis.Z{Score: score, Member: member}).Err()
	if err != nil {
		return apperrors.NewTransient("redis zadd failed").WithCause(err)
	}
	return nil
}

func (c *Cache) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	members, err := c.client.ZRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, apperrors.NewTransient("redis zrange failed").WithCause(err)
	}
	return members, nil
}

func (c *Cache) ZRem(ctx context.Context, key string, member string) error {
	if err := c.client.ZRem(ctx, key, member).Err(); err != nil {
		return apperrors.NewTransient("redis zrem failed").WithCause(err)
	}
	return nil
}

func (c *Cache) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	score, err := c.client.ZScore(ctx, key, member).Result()
	if err == goredis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, apperrors.NewTransient("redis zscore failed").WithCause(err)
	}
	return score, true, nil
}

// ANN has no native go-redis equivalent without RediSearch; this backend
// reports unsupported so cache/semantic degrades gracefully (spec.md §4.B:
// "optional ann over a namespaced vector index").
func (c *Cache) ANN(ctx context.Context, namespace string, embedding []float32, k int) ([]cache.ANNMatch, error) {
	return nil, &cache.ErrANNUnsupported{}
}

func (c *Cache) Scan(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, apperrors.NewTransient("redis scan failed").WithCause(err)
	}
	return keys, nil
}

func (c *Cache) Multi(ctx context.Context, fn func(p cache.Pipeliner) error) error {
	_, err := c.client.Pipelined(ctx, func(rp goredis.Pipeliner) error {
		return fn(&pipeliner{ctx: ctx, rp: rp})
	})
	if err != nil {
		return apperrors.NewTransient("redis pipeline failed").WithCause(err)
	}
	return nil
}

func (c *Cache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.client.Expire(ctx, key, ttl).Err(); err != nil {
		return apperrors.NewTransient("redis expire failed").WithCause(err)
	}
	return nil
}

// Overloaded reports best-effort backpressure via the connection pool's stats.
func (c *Cache) Overloaded(ctx context.Context) bool {
	stats := c.client.PoolStats()
	return stats.TotalConns > 0 && stats.IdleConns == 0 && stats.TotalConns >= uint32(c.client.Options().PoolSize)
}

type pipeliner struct {
	ctx context.Context
	rp  goredis.Pipeliner
}

func (p *pipeliner) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	p.rp.Set(ctx, key, value, ttl)
	return nil
}

func (p *pipeliner) Del(ctx context.Context, key string) error {
	p.rp.Del(ctx, key)
	return nil
}
