package optimize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layeredmemory/engine/internal/config"
	"github.com/layeredmemory/engine/internal/types"
)

func hitFor(id, content string, score float64, embedding []float32) *Candidate {
	return &Candidate{Hit: &types.RetrieveHit{
		Doc: &types.Document{ID: id, Content: content, Embedding: embedding},
		FusedScore: score,
	}}
}

func TestDedupStageDropsExactContentDuplicates(t *testing.T) {
	cfg := &config.OptimizerConfig{SimilarityThreshold: 0.8}
	c := &Candidates{Items: []*Candidate{
		hitFor("a", "The cat sat on the mat.", 0.9, nil),
		hitFor("b", "the cat sat on the mat.", 0.5, nil),
	}}

	stage := &dedupStage{cfg: cfg}
	require.NoError(t, stage.Run(context.Background(), c))

	alive := c.alive()
	require.Len(t, alive, 1)
	assert.Equal(t, "a", alive[0].Hit.Doc.ID)
	assert.Equal(t, 1, c.Stats.RemovedExactDup)
}

func TestDedupStageDropsSemanticDuplicatesAboveThreshold(t *testing.T) {
	cfg := &config.OptimizerConfig{SimilarityThreshold: 0.95}
	c := &Candidates{Items: []*Candidate{
		hitFor("a", "alpha text", 0.9, []float32{1, 0, 0}),
		hitFor("b", "beta text", 0.5, []float32{1, 0, 0}),
	}}

	stage := &dedupStage{cfg: cfg}
	require.NoError(t, stage.Run(context.Background(), c))

	alive := c.alive()
	require.Len(t, alive, 1)
	assert.Equal(t, "a", alive[0].Hit.Doc.ID)
	assert.Equal(t, 1, c.Stats.RemovedSemanticDup)
}

func TestDedupStageRespectsKeepFlag(t *testing.T) {
	cfg := &config.OptimizerConfig{SimilarityThreshold: 0.95}
	low := hitFor("a", "alpha text", 0.9, []float32{1, 0, 0})
	high := hitFor("b", "beta text", 0.5, []float32{1, 0, 0})
	high.Keep = true
	c := &Candidates{Items: []*Candidate{low, high}}

	stage := &dedupStage{cfg: cfg}
	require.NoError(t, stage.Run(context.Background(), c))

	alive := c.alive()
	require.Len(t, alive, 1)
	assert.Equal(t, "b", alive[0].Hit.Doc.ID)
}
