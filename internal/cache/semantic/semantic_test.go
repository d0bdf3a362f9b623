package semantic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cachemem "github.com/layeredmemory/engine/internal/cache/memory"
	"github.com/layeredmemory/engine/internal/config"
	"github.com/layeredmemory/engine/internal/filter"
	"github.com/layeredmemory/engine/internal/types"
)

func newTestCache() *Cache {
	cfg := config.Default().Cache
	return New(cachemem.New(), cfg)
}

func TestPersonaRoundTrip(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	_, ok := c.GetPersona(ctx, "u1")
	assert.False(t, ok)

	c.PutPersona(ctx, "u1", &types.Persona{UserID: "u1", Name: "Ada"})
	got, ok := c.GetPersona(ctx, "u1")
	require.True(t, ok)
	assert.Equal(t, "Ada", got.Name)
}

func TestFingerprintStableForSameInput(t *testing.T) {
	expr := filter.Leaf("category", filter.OpEQ, "work")
	a := Fingerprint("hello", expr)
	b := Fingerprint("hello", expr)
	assert.Equal(t, a, b)

	c := Fingerprint("hello", filter.Leaf("category", filter.OpEQ, "personal"))
	assert.NotEqual(t, a, c)
}

func TestQueryLookupExactHitIncrementsAccessCount(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	fp := Fingerprint("what is my favorite color", nil)

	c.PutQuery(ctx, "u1", fp, &types.QueryCacheEntry{Query: "what is my favorite color"})

	entry, kind := c.QueryLookup(ctx, "u1", fp, nil)
	require.NotNil(t, entry)
	assert.Equal(t, types.CacheHitExact, kind)
	assert.Equal(t, int64(1), entry.AccessCount)

	entry, kind = c.QueryLookup(ctx, "u1", fp, nil)
	require.NotNil(t, entry)
	assert.Equal(t, types.CacheHitExact, kind)
	assert.Equal(t, int64(2), entry.AccessCount)
}

func TestQueryLookupSemanticMatchAboveThreshold(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	fp := Fingerprint("what do I like to eat", nil)

	c.PutQuery(ctx, "u1", fp, &types.QueryCacheEntry{
		Query:     "what do I like to eat",
		Embedding: []float32{1, 0, 0},
	})

	entry, kind := c.QueryLookup(ctx, "u1", "different-fingerprint", []float32{1, 0, 0})
	require.NotNil(t, entry)
	assert.Equal(t, types.CacheHitSemantic, kind)
}

func TestQueryLookupSemanticMissBelowThreshold(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	fp := Fingerprint("what do I like to eat", nil)

	c.PutQuery(ctx, "u1", fp, &types.QueryCacheEntry{
		Query:     "what do I like to eat",
		Embedding: []float32{1, 0, 0},
	})

	entry, kind := c.QueryLookup(ctx, "u1", "different-fingerprint", []float32{0, 1, 0})
	assert.Nil(t, entry)
	assert.Equal(t, types.CacheHitNone, kind)
}

func TestQueryCacheEvictsLeastUsedAtCapacity(t *testing.T) {
	c := newTestCache()
	c.cfg.MaxQueryPerUser = 2
	ctx := context.Background()

	c.PutQuery(ctx, "u1", "fp1", &types.QueryCacheEntry{Query: "one"})
	c.PutQuery(ctx, "u1", "fp2", &types.QueryCacheEntry{Query: "two"})

	// fp1 gets used again, bumping its access count above fp2's.
	_, _ = c.QueryLookup(ctx, "u1", "fp1", nil)

	c.PutQuery(ctx, "u1", "fp3", &types.QueryCacheEntry{Query: "three"})

	_, ok := c.GetInput(ctx, "u1", "fp2") // no-op sanity: different namespace
	assert.False(t, ok)

	entry2, kind2 := c.QueryLookup(ctx, "u1", "fp2", nil)
	assert.Nil(t, entry2)
	assert.Equal(t, types.CacheHitNone, kind2)

	entry1, kind1 := c.QueryLookup(ctx, "u1", "fp1", nil)
	assert.NotNil(t, entry1)
	assert.Equal(t, types.CacheHitExact, kind1)
}

func TestInputFingerprintRoundTrip(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	_, ok := c.GetInput(ctx, "u1", "fp")
	assert.False(t, ok)

	c.PutInput(ctx, "u1", "fp", []byte(`{"kind":"fact"}`))
	data, ok := c.GetInput(ctx, "u1", "fp")
	require.True(t, ok)
	assert.Equal(t, `{"kind":"fact"}`, string(data))
}

func TestInvalidateClearsPersonaAndQueries(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	c.PutPersona(ctx, "u1", &types.Persona{UserID: "u1"})
	c.PutQuery(ctx, "u1", "fp1", &types.QueryCacheEntry{Query: "one"})

	c.Invalidate(ctx, "u1", true)

	_, ok := c.GetPersona(ctx, "u1")
	assert.False(t, ok)

	entry, kind := c.QueryLookup(ctx, "u1", "fp1", nil)
	assert.Nil(t, entry)
	assert.Equal(t, types.CacheHitNone, kind)
}
