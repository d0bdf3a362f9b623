package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layeredmemory/engine/internal/cache/semantic"
	"github.com/layeredmemory/engine/internal/capability/classify"
	"github.com/layeredmemory/engine/internal/capability/embedding"
	"github.com/layeredmemory/engine/internal/config"
	"github.com/layeredmemory/engine/internal/filter"
	cachemem "github.com/layeredmemory/engine/internal/cache/memory"
	storemem "github.com/layeredmemory/engine/internal/store/memory"
)

func newFacade(t *testing.T) *Facade {
	t.Helper()
	st := storemem.New()
	cache := semantic.New(cachemem.New(), config.Default().Cache)
	sem := embedding.NewFallback(16)
	epi := embedding.NewFallback(8)
	registry := filter.DefaultTypeRegistry()
	return New(st, cache, sem, epi, classify.NewRuleBased(), nil, registry, config.Default())
}

func TestIngestMemoryRoutesPersonaStatementToPersona(t *testing.T) {
	f := newFacade(t)
	ctx := context.Background()

	outcome, err := f.IngestMemory(ctx, "user-1", "I am a backend engineer who loves Go.", nil)
	require.NoError(t, err)
	assert.Equal(t, "persona", string(outcome.Layer))
	require.Len(t, outcome.WrittenIDs, 1)
	assert.Equal(t, "user-1", outcome.WrittenIDs[0])
}

func TestIngestMemoryRoutesFactToKnowledge(t *testing.T) {
	f := newFacade(t)
	ctx := context.Background()

	outcome, err := f.IngestMemory(ctx, "user-1", "The Eiffel Tower is in Paris.", nil)
	require.NoError(t, err)
	assert.Equal(t, "knowledge", string(outcome.Layer))
	require.Len(t, outcome.WrittenIDs, 1)
}

func TestIngestMemoryRejectsEmptyText(t *testing.T) {
	f := newFacade(t)
	_, err := f.IngestMemory(context.Background(), "user-1", "   ", nil)
	assert.Error(t, err)
}

func TestRetrieveWithZeroKReturnsEmptyWithoutStoreCalls(t *testing.T) {
	f := newFacade(t)
	result, err := f.Retrieve(context.Background(), "user-1", "anything", nil, 0, "")
	require.NoError(t, err)
	assert.Empty(t, result.Hits)
}

func TestIngestThenRetrieveFindsWrittenItem(t *testing.T) {
	f := newFacade(t)
	ctx := context.Background()

	outcome, err := f.IngestMemory(ctx, "user-2", "The quarterly report is due on Friday.", nil)
	require.NoError(t, err)

	result, err := f.Retrieve(ctx, "user-2", "quarterly report due", nil, 5, "")
	require.NoError(t, err)
	require.NotEmpty(t, result.Hits)

	found := false
	for _, h := range result.Hits {
		if h.Doc.ID == outcome.WrittenIDs[0] {
			found = true
		}
	}
	assert.True(t, found, "expected written knowledge item to be retrievable")
}

func TestRetrieveCachesResultOnSecondCall(t *testing.T) {
	f := newFacade(t)
	ctx := context.Background()

	_, err := f.IngestMemory(ctx, "user-3", "The release pipeline runs nightly.", nil)
	require.NoError(t, err)

	first, err := f.Retrieve(ctx, "user-3", "release pipeline", nil, 5, "")
	require.NoError(t, err)
	assert.Equal(t, "", string(first.CacheHit))

	second, err := f.Retrieve(ctx, "user-3", "release pipeline", nil, 5, "")
	require.NoError(t, err)
	assert.NotEqual(t, "", string(second.CacheHit))
}

func TestGetContextWithZeroKReturnsEmptyContext(t *testing.T) {
	f := newFacade(t)
	ctx, err := f.GetContext(context.Background(), "user-1", "query", 0)
	require.NoError(t, err)
	assert.Nil(t, ctx.Persona)
	assert.Empty(t, ctx.SemanticHits)
}

func TestGetContextIncludesPersonaAfterIngest(t *testing.T) {
	f := newFacade(t)
	bgCtx := context.Background()

	_, err := f.IngestMemory(bgCtx, "user-4", "I am a product manager in fintech.", nil)
	require.NoError(t, err)
	_, err = f.IngestMemory(bgCtx, "user-4", "The fintech compliance deadline is Q3.", nil)
	require.NoError(t, err)

	memoryCtx, err := f.GetContext(bgCtx, "user-4", "fintech compliance", 5)
	require.NoError(t, err)
	require.NotNil(t, memoryCtx.Persona)
	assert.Equal(t, "user-4", memoryCtx.Persona.UserID)
}
