package memory

import (
	"context"
	"testing"
	"time"

	"github.com/layeredmemory/engine/internal/filter"
	"github.com/layeredmemory/engine/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	row := store.Row{ID: "k1", Fields: map[string]any{"content": "hello"}, CreatedAt: time.Now()}
	require.NoError(t, s.Put(ctx, store.TableKnowledge, row))

	got, ok, err := s.Get(ctx, store.TableKnowledge, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", got.Fields["content"])
}

func TestANNOrdersByCosineSimilarity(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, store.TableKnowledge, store.Row{ID: "a", Embedding: []float32{1, 0}}))
	require.NoError(t, s.Put(ctx, store.TableKnowledge, store.Row{ID: "b", Embedding: []float32{0, 1}}))
	require.NoError(t, s.Put(ctx, store.TableKnowledge, store.Row{ID: "c", Embedding: []float32{0.9, 0.1}}))

	hits, err := s.ANN(ctx, store.TableKnowledge, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].Row.ID)
	assert.Equal(t, "c", hits[1].Row.ID)
}

func TestANNRespectsPredicate(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, store.TableKnowledge, store.Row{
		ID: "a", Embedding: []float32{1, 0}, Fields: map[string]any{"category": "knowledge"},
	}))
	require.NoError(t, s.Put(ctx, store.TableKnowledge, store.Row{
		ID: "b", Embedding: []float32{1, 0}, Fields: map[string]any{"category": "skill"},
	}))

	compiled, err := filter.Compile(filter.Leaf("category", filter.OpEQ, "skill"), nil, time.Now())
	require.NoError(t, err)

	hits, err := s.ANN(ctx, store.TableKnowledge, []float32{1, 0}, 10, compiled)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].Row.ID)
}

func TestLexScoresTitleAboveContent(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, store.TableKnowledge, store.Row{
		ID: "title-hit", Fields: map[string]any{"title": "postgresql indexing", "content": "irrelevant text"},
	}))
	require.NoError(t, s.Put(ctx, store.TableKnowledge, store.Row{
		ID: "content-hit", Fields: map[string]any{"title": "irrelevant", "content": "uses postgresql under the hood"},
	}))

	hits, err := s.Lex(ctx, store.TableKnowledge, []string{"postgresql"}, 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "title-hit", hits[0].Row.ID)
}

func TestTxRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, store.TableKnowledge, store.Row{ID: "pre-existing"}))

	err := s.Tx(ctx, func(ctx context.Context, tx store.Store) error {
		_ = tx.Put(ctx, store.TableKnowledge, store.Row{ID: "new-row"})
		return assertErr
	})
	require.Error(t, err)

	_, ok, _ := s.Get(ctx, store.TableKnowledge, "new-row")
	assert.False(t, ok, "write inside a failed transaction must not be visible")

	_, ok, _ = s.Get(ctx, store.TableKnowledge, "pre-existing")
	assert.True(t, ok)
}

var assertErr = &txTestError{}

type txTestError struct{}

func (*txTestError) Error() string { return "forced rollback" }
