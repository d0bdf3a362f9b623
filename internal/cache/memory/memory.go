// Package memory is an in-process Cache implementation used for tests,
// mirroring cache/redis's semantics without a network dependency.
package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/layeredmemory/engine/internal/cache"
)

type entry struct {
	value     []byte
	expiresAt time.Time
	hasTTL    bool
}

func (e entry) expired(now time.Time) bool {
	return e.hasTTL && now.After(e.expiresAt)
}

// Cache is an in-process map-backed implementation of cache.Cache.
type Cache struct {
	mu      sync.Mutex
	values  map[string]entry
	hashes  map[string]map[string][]byte
	zsets   map[string]map[string]float64
	vectors map[string]map[string][]float32 // namespace -> key -> embedding
}

var _ cache.Cache = (*Cache)(nil)

// New creates an empty in-memory cache.
func New() *Cache {
	return &Cache{
		values:  make(map[string]entry),
		hashes:  make(map[string]map[string][]byte),
		zsets:   make(map[string]map[string]float64),
		vectors: make(map[string]map[string][]float32),
	}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.values[key]
	if !ok || e.expired(time.Now()) {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry{value: value}
	if ttl > 0 {
		e.hasTTL = true
		e.expiresAt = time.Now().Add(ttl)
	}
	c.values[key] = e
	return nil
}

func (c *Cache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	delete(c.hashes, key)
	delete(c.zsets, key)
	return nil
}

func (c *Cache) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.values[key]; ok && !e.expired(time.Now()) {
		return false, nil
	}
	e := entry{value: value}
	if ttl > 0 {
		e.hasTTL = true
		e.expiresAt = time.Now().Add(ttl)
	}
	c.values[key] = e
	return true, nil
}

func (c *Cache) HGet(ctx context.Context, key, field string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.hashes[key]
	if !ok {
		return nil, false, nil
	}
	v, ok := h[field]
	return v, ok, nil
}

func (c *Cache) HSet(ctx context.Context, key, field string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hashes[key] == nil {
		c.hashes[key] = make(map[string][]byte)
	}
	c.hashes[key][field] = value
	return nil
}

func (c *Cache) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string][]byte, len(c.hashes[key]))
	for k, v := range c.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (c *Cache) HDel(ctx context.Context, key string, fields ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.hashes[key]
	for _, f := range fields {
		delete(h, f)
	}
	return nil
}

func (c *Cache) ZAdd(ctx context.Context, key string, member string, score float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.zsets[key] == nil {
		c.zsets[key] = make(map[string]float64)
	}
	c.zsets[key][member] = score
	return nil
}

func (c *Cache) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.zsets[key]
	members := make([]string, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		if set[members[i]] != set[members[j]] {
			return set[members[i]] < set[members[j]]
		}
		return members[i] < members[j]
	})
	n := int64(len(members))
	if n == 0 {
		return nil, nil
	}
	if start < 0 {
		start = 0
	}
	if stop < 0 || stop >= n {
		stop = n - 1
	}
	if start > stop {
		return nil, nil
	}
	return members[start : stop+1], nil
}

func (c *Cache) ZRem(ctx context.Context, key string, member string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.zsets[key], member)
	return nil
}

func (c *Cache) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	score, ok := c.zsets[key][member]
	return score, ok, nil
}

// RegisterVector indexes embedding under namespace/key for ANN lookups; it is
// additional to the cache.Cache interface and called by cache/semantic
// whenever it stores a query or input embedding.
func (c *Cache) RegisterVector(namespace, key string, embedding []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vectors[namespace] == nil {
		c.vectors[namespace] = make(map[string][]float32)
	}
	c.vectors[namespace][key] = embedding
}

func (c *Cache) ANN(ctx context.Context, namespace string, embedding []float32, k int) ([]cache.ANNMatch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	matches := make([]cache.ANNMatch, 0, len(c.vectors[namespace]))
	for key, vec := range c.vectors[namespace] {
		matches = append(matches, cache.ANNMatch{Key: key, Similarity: cosineSimilarity(embedding, vec)})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Key < matches[j].Key
	})
	if k >= 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (c *Cache) Scan(ctx context.Context, prefix string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var keys []string
	now := time.Now()
	for k, e := range c.values {
		if strings.HasPrefix(k, prefix) && !e.expired(now) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (c *Cache) Multi(ctx context.Context, fn func(p cache.Pipeliner) error) error {
	return fn(&pipeliner{c: c, ctx: ctx})
}

func (c *Cache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.values[key]
	if !ok {
		return nil
	}
	e.hasTTL = true
	e.expiresAt = time.Now().Add(ttl)
	c.values[key] = e
	return nil
}

func (c *Cache) Overloaded(ctx context.Context) bool { return false }

type pipeliner struct {
	c   *Cache
	ctx context.Context
}

func (p *pipeliner) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return p.c.Set(ctx, key, value, ttl)
}

func (p *pipeliner) Del(ctx context.Context, key string) error {
	return p.c.Del(ctx, key)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
