package retrieve

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layeredmemory/engine/internal/capability/embedding"
	"github.com/layeredmemory/engine/internal/config"
	"github.com/layeredmemory/engine/internal/filter"
	"github.com/layeredmemory/engine/internal/store"
	storemem "github.com/layeredmemory/engine/internal/store/memory"
	"github.com/layeredmemory/engine/internal/types"
)

func seedKnowledge(t *testing.T, st *storemem.Store, id, content string, importance float64, age time.Duration) {
	t.Helper()
	embedder := embedding.NewFallback(16)
	vec, err := embedder.Embed(context.Background(), content)
	require.NoError(t, err)
	err = st.Put(context.Background(), store.TableKnowledge, store.Row{
		ID:         id,
		Fields:     map[string]any{"user_id": "u1", "content": content, "kind": "knowledge_item"},
		Importance: importance,
		Embedding:  vec,
		CreatedAt:  time.Now().Add(-age),
	})
	require.NoError(t, err)
}

func newRetriever() (*Retriever, *storemem.Store) {
	st := storemem.New()
	embedder := embedding.NewFallback(16)
	registry := filter.DefaultTypeRegistry()
	cfg := config.Default().Retrieval
	return New(st, embedder, registry, cfg), st
}

func TestRetrieveReturnsExactEmbeddingMatchFirst(t *testing.T) {
	r, st := newRetriever()
	seedKnowledge(t, st, "a", "I love hiking in the mountains", 0.5, 0)
	seedKnowledge(t, st, "b", "The stock market closed higher today", 0.5, 0)

	result, err := r.Retrieve(context.Background(), Query{
		UserID: "u1",
		Text:   "I love hiking in the mountains",
		K:      5,
		Table:  store.TableKnowledge,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Hits)
	assert.Equal(t, "a", result.Hits[0].Doc.ID)
}

func TestRetrieveRespectsK(t *testing.T) {
	r, st := newRetriever()
	for i := 0; i < 5; i++ {
		seedKnowledge(t, st, string(rune('a'+i)), "some shared content about gardening", 0.5, 0)
	}
	result, err := r.Retrieve(context.Background(), Query{
		UserID: "u1", Text: "gardening", K: 2, Table: store.TableKnowledge,
	})
	require.NoError(t, err)
	assert.Len(t, result.Hits, 2)
	assert.True(t, result.Truncated)
}

func TestRetrieveIsDeterministicAcrossRuns(t *testing.T) {
	r, st := newRetriever()
	seedKnowledge(t, st, "a", "deterministic content one", 0.5, 0)
	seedKnowledge(t, st, "b", "deterministic content two", 0.5, 0)

	q := Query{UserID: "u1", Text: "deterministic content", K: 5, Table: store.TableKnowledge}
	first, err := r.Retrieve(context.Background(), q)
	require.NoError(t, err)
	second, err := r.Retrieve(context.Background(), q)
	require.NoError(t, err)

	require.Len(t, first.Hits, len(second.Hits))
	for i := range first.Hits {
		assert.Equal(t, first.Hits[i].Doc.ID, second.Hits[i].Doc.ID)
	}
}

func TestSortHitsTieBreaksByImportanceThenRecency(t *testing.T) {
	now := time.Now()
	hits := []*types.RetrieveHit{
		{Doc: &types.Document{ID: "old-important", Importance: 0.9, CreatedAt: now.Add(-time.Hour)}, FusedScore: 0.5},
		{Doc: &types.Document{ID: "new-unimportant", Importance: 0.1, CreatedAt: now}, FusedScore: 0.5},
	}
	sortHits(hits)
	assert.Equal(t, "old-important", hits[0].Doc.ID)
}

func TestFuseRRFWeightsVectorOverLexical(t *testing.T) {
	cfg := config.Default().Retrieval
	ann := []store.Hit{{Row: store.Row{ID: "a"}, Score: 0.9}}
	lex := []store.Hit{{Row: store.Row{ID: "b"}, Score: 0.9}}
	hits := fuse(ann, lex, FusionRRF, cfg)
	sortHits(hits)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].Doc.ID)
}

func TestScopeExpansionRelaxesFilterWhenNoResults(t *testing.T) {
	r, st := newRetriever()
	seedKnowledge(t, st, "a", "a note about travel plans", 0.5, 72*time.Hour)

	expr := filter.And(
		filter.Leaf("user_id", filter.OpEQ, "u1"),
		filter.TimeWindow("created_at", "1h"),
	)
	result, err := r.Retrieve(context.Background(), Query{
		UserID:          "u1",
		Text:            "travel plans",
		Filter:          expr,
		K:               5,
		Table:           store.TableKnowledge,
		RelaxationOrder: []string{"created_at"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Hits)
}
