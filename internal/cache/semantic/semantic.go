// Package semantic implements the Semantic Cache (spec.md §4.F) on top of the
// cache.Cache abstraction: persona/query/input namespaces, LRU eviction by
// access count via a sorted set, and semantic-match lookups.
package semantic

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/layeredmemory/engine/internal/cache"
	"github.com/layeredmemory/engine/internal/config"
	"github.com/layeredmemory/engine/internal/filter"
	"github.com/layeredmemory/engine/internal/logger"
	"github.com/layeredmemory/engine/internal/types"
)

// Cache is the semantic cache: persona snapshots, query-result lists and
// input fingerprints, each namespaced per user.
type Cache struct {
	backend cache.Cache
	cfg     *config.CacheConfig
}

// New wraps backend with the semantic-cache policy from cfg.
func New(backend cache.Cache, cfg *config.CacheConfig) *Cache {
	return &Cache{backend: backend, cfg: cfg}
}

func personaKey(user string) string { return fmt.Sprintf("persona:%s", user) }
func queryKeyPrefix(user string) string { return fmt.Sprintf("query:%s:", user) }
func queryKey(user, fingerprint string) string { return queryKeyPrefix(user) + fingerprint }
func inputKeyPrefix(user string) string { return fmt.Sprintf("input:%s:", user) }
func inputKey(user, fingerprint string) string { return inputKeyPrefix(user) + fingerprint }
func queryVecNamespace(user string) string { return "query_vec:" + user }
func lruKey(user string) string { return "query_lru:" + user }

// Fingerprint hashes a normalized (lowercased, whitespace-collapsed) query
// string plus its marshaled filter expression into a stable cache-key
// fragment (spec.md §4.F: "k is a stable fingerprint").
func Fingerprint(query string, expr *filter.Expr) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(strings.Fields(strings.ToLower(query)), " ")))
	if expr != nil {
		data, _ := filter.Marshal(expr)
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// GetPersona returns the cached persona snapshot, if present.
func (c *Cache) GetPersona(ctx context.Context, user string) (*types.Persona, bool) {
	data, ok, err := c.backend.Get(ctx, personaKey(user))
	if fb, _ := cache.WithFallback(ctx, "persona.get", err); fb || !ok {
		return nil, false
	}
	var p types.Persona
	if err := json.Unmarshal(data, &p); err != nil {
		logger.Warnf(ctx, "semantic cache: corrupt persona entry for %s: %v", user, err)
		return nil, false
	}
	return &p, true
}

// PutPersona stores the persona snapshot with the configured TTL.
func (c *Cache) PutPersona(ctx context.Context, user string, persona *types.Persona) {
	data, err := json.Marshal(persona)
	if err != nil {
		return
	}
	ttl := time.Duration(c.cfg.PersonaTTLSeconds) * time.Second
	if err := c.backend.Set(ctx, personaKey(user), data, ttl); err != nil {
		logger.Warnf(ctx, "semantic cache: failed to store persona for %s: %v", user, err)
	}
}

// QueryLookup looks up a cached query result, first by exact fingerprint
// then, on miss, by semantic match (spec.md §4.F "Semantic-match lookup").
// It returns the cache hit kind alongside the entry.
func (c *Cache) QueryLookup(
	ctx context.Context, user, fingerprint string, queryEmbedding []float32,
) (*types.QueryCacheEntry, types.CacheHitKind) {
	data, ok, err := c.backend.Get(ctx, queryKey(user, fingerprint))
	if fb, _ := cache.WithFallback(ctx, "query.get", err); !fb && ok {
		entry, err := decodeQueryEntry(data)
		if err == nil {
			c.touchLRU(ctx, user, fingerprint, entry)
			return entry, types.CacheHitExact
		}
	}

	if len(queryEmbedding) == 0 {
		return nil, types.CacheHitNone
	}
	matches, err := c.backend.ANN(ctx, queryVecNamespace(user), queryEmbedding, 1)
	if fb, _ := cache.WithFallback(ctx, "query.ann", err); fb || len(matches) == 0 {
		return nil, types.CacheHitNone
	}
	best := matches[0]
	if best.Similarity < c.cfg.SemanticMatchThreshold {
		return nil, types.CacheHitNone
	}
	data, ok, err = c.backend.Get(ctx, queryKey(user, best.Key))
	if fb, _ := cache.WithFallback(ctx, "query.get", err); fb || !ok {
		return nil, types.CacheHitNone
	}
	entry, err := decodeQueryEntry(data)
	if err != nil {
		return nil, types.CacheHitNone
	}
	c.touchLRU(ctx, user, best.Key, entry)
	return entry, types.CacheHitSemantic
}

func decodeQueryEntry(data []byte) (*types.QueryCacheEntry, error) {
	var entry types.QueryCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// touchLRU refreshes TTL and bumps the access count on a cache hit (spec.md
// §4.F "Matches are counted as hits and refresh TTLs").
func (c *Cache) touchLRU(ctx context.Context, user, fingerprint string, entry *types.QueryCacheEntry) {
	entry.AccessCount++
	ttl := time.Duration(c.cfg.QueryTTLSeconds) * time.Second
	if data, err := json.Marshal(entry); err == nil {
		_ = c.backend.Set(ctx, queryKey(user, fingerprint), data, ttl)
	}
	_ = c.backend.Expire(ctx, queryKey(user, fingerprint), ttl)
	_ = c.backend.ZAdd(ctx, lruKey(user), fingerprint, float64(entry.AccessCount))
}

// PutQuery stores a query result under fingerprint, evicting the entry with
// the lowest access count (oldest first on ties) if the user is already at
// MaxQueryPerUser (spec.md
// §4.F: "LRU-capped at 10 entries per user ... tie-broken by oldest").
func (c *Cache) PutQuery(ctx context.Context, user, fingerprint string, entry *types.QueryCacheEntry) {
	entry.Fingerprint = fingerprint
	entry.StoredAt = time.Now()

	members, err := c.backend.ZRange(ctx, lruKey(user), 0, -1)
	if err == nil && len(members) >= c.cfg.MaxQueryPerUser {
		c.evictOne(ctx, user, members)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	ttl := time.Duration(c.cfg.QueryTTLSeconds) * time.Second
	if err := c.backend.Set(ctx, queryKey(user, fingerprint), data, ttl); err != nil {
		logger.Warnf(ctx, "semantic cache: failed to store query entry for %s: %v", user, err)
		return
	}
	_ = c.backend.ZAdd(ctx, lruKey(user), fingerprint, 0)

	if len(entry.Embedding) > 0 {
		if registrar, ok := c.backend.(vectorRegistrar); ok {
			registrar.RegisterVector(queryVecNamespace(user), fingerprint, entry.Embedding)
		}
	}
}

// vectorRegistrar is implemented by cache/memory's Cache for test
// environments without a native ANN index; production redis deployments rely
// on an external vector-capable cache satisfying cache.Cache.ANN directly.
type vectorRegistrar interface {
	RegisterVector(namespace, key string, embedding []float32)
}

// evictOne removes the lowest access-count member, tie-broken by oldest
// StoredAt (spec.md §4.F). members is ZRANGE-sorted ascending by score
// (access count), but both cache/redis and cache/memory break score ties
// lexicographically by member string, not by insertion time, so a tie at the
// minimum score is resolved here by reading each tied entry's StoredAt
// directly rather than trusting ZRANGE order.
func (c *Cache) evictOne(ctx context.Context, user string, members []string) {
	if len(members) == 0 {
		return
	}
	minScore, ok, err := c.backend.ZScore(ctx, lruKey(user), members[0])
	if err != nil || !ok {
		minScore = 0
	}

	victim := members[0]
	haveOldest := false
	var oldest time.Time
	for _, m := range members {
		score, ok, err := c.backend.ZScore(ctx, lruKey(user), m)
		if err != nil || !ok || score != minScore {
			continue
		}
		data, dataOK, err := c.backend.Get(ctx, queryKey(user, m))
		if err != nil || !dataOK {
			continue
		}
		entry, err := decodeQueryEntry(data)
		if err != nil {
			continue
		}
		if !haveOldest || entry.StoredAt.Before(oldest) {
			oldest = entry.StoredAt
			victim = m
			haveOldest = true
		}
	}

	_ = c.backend.Del(ctx, queryKey(user, victim))
	_ = c.backend.ZRem(ctx, lruKey(user), victim)
}

// GetInput returns a cached input fingerprint entry, used to dedup repeated
// classification/embedding work within a short window.
func (c *Cache) GetInput(ctx context.Context, user, fingerprint string) ([]byte, bool) {
	data, ok, err := c.backend.Get(ctx, inputKey(user, fingerprint))
	if fb, _ := cache.WithFallback(ctx, "input.get", err); fb || !ok {
		return nil, false
	}
	return data, true
}

// PutInput stores an input fingerprint entry with the short input TTL.
func (c *Cache) PutInput(ctx context.Context, user, fingerprint string, value []byte) {
	ttl := time.Duration(c.cfg.InputTTLSeconds) * time.Second
	_ = c.backend.Set(ctx, inputKey(user, fingerprint), value, ttl)
}

// Invalidate removes the persona snapshot (if touched) and all query-result
// entries for user (spec.md §4.F "Invalidation"). It always deletes
// persona:<user> when invalidatePersona is set and performs a best-effort
// prefix scan+delete over query:<user>:*.
func (c *Cache) Invalidate(ctx context.Context, user string, invalidatePersona bool) {
	if invalidatePersona {
		_ = c.backend.Del(ctx, personaKey(user))
	}
	keys, err := c.backend.Scan(ctx, queryKeyPrefix(user))
	if fb, _ := cache.WithFallback(ctx, "invalidate.scan", err); fb {
		return
	}
	for _, k := range keys {
		_ = c.backend.Del(ctx, k)
	}
	_ = c.backend.Del(ctx, lruKey(user))
}
