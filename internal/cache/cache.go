// Package cache defines the Cache abstraction (spec.md §4.B): an ephemeral
// KV store with sets, hashes, TTLs, and optional vector similarity search,
// realized as tagged variants (cache/redis, cache/memory) per the design
// note "plugin-style storage and cache backends".
package cache

import (
	"context"
	"time"
)

// Cache is the contract consumed by cache/semantic and the Memory Facade.
// The core assumes best-effort availability: callers wrap every call with
// WithFallback (spec.md §4.B).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error

	// SetIfAbsent implements SETNX semantics: the atomic "set only if the key
	// is not already present" primitive the contract requires.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	HGet(ctx context.Context, key, field string) ([]byte, bool, error)
	HSet(ctx context.Context, key, field string, value []byte) error
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)
	HDel(ctx context.Context, key string, fields ...string) error

	// ZAdd/ZRange/ZRem back LRU access-count accounting for the query cache.
	ZAdd(ctx context.Context, key string, member string, score float64) error
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRem(ctx context.Context, key string, member string) error
	ZScore(ctx context.Context, key, member string) (float64, bool, error)

	// ANN is optional: a cache implementation with no vector index returns
	// *ErrANNUnsupported, signaling the semantic cache to skip semantic-match
	// lookups rather than fail the request.
	ANN(ctx context.Context, namespace string, embedding []float32, k int) ([]ANNMatch, error)

	// Scan lists keys under prefix, used for invalidation (spec.md §4.F
	// "Invalidation is a best-effort prefix delete").
	Scan(ctx context.Context, prefix string) ([]string, error)

	// Multi runs fn as a pipelined batch where the backend supports it.
	Multi(ctx context.Context, fn func(p Pipeliner) error) error

	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Overloaded reports best-effort backpressure (spec.md §5 "Backpressure").
	Overloaded(ctx context.Context) bool
}

// ANNMatch is one result of a namespaced vector-index lookup.
type ANNMatch struct {
	Key        string
	Similarity float64
}

// Pipeliner batches writes inside Multi.
type Pipeliner interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// ErrANNUnsupported is returned by a Cache implementation with no vector index.
type ErrANNUnsupported struct{}

func (*ErrANNUnsupported) Error() string { return "cache: ANN lookup not supported by this backend" }
