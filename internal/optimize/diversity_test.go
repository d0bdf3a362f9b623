package optimize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layeredmemory/engine/internal/config"
	"github.com/layeredmemory/engine/internal/types"
)

func hitFromSource(id, sourceID string, score float64) *Candidate {
	return &Candidate{Hit: &types.RetrieveHit{
		Doc:        &types.Document{ID: id, SourceID: sourceID, Content: "content " + id},
		FusedScore: score,
	}}
}

func TestDiversityStageCapsEntriesPerSource(t *testing.T) {
	cfg := &config.OptimizerConfig{MaxPerSource: 2}
	c := &Candidates{Items: []*Candidate{
		hitFromSource("a", "doc-1", 0.9),
		hitFromSource("b", "doc-1", 0.8),
		hitFromSource("c", "doc-1", 0.7),
		hitFromSource("d", "doc-2", 0.6),
	}}

	stage := &diversityStage{cfg: cfg}
	require.NoError(t, stage.Run(context.Background(), c))

	alive := c.alive()
	require.Len(t, alive, 3)
	assert.Equal(t, 1, c.Stats.RemovedDiversityCap)
	for _, item := range alive {
		assert.NotEqual(t, "c", item.Hit.Doc.ID)
	}
}

func TestDiversityStageDefaultsCapWhenUnset(t *testing.T) {
	cfg := &config.OptimizerConfig{}
	items := make([]*Candidate, 5)
	for i := range items {
		items[i] = hitFromSource(string(rune('a'+i)), "doc-1", float64(5-i))
	}
	c := &Candidates{Items: items}

	stage := &diversityStage{cfg: cfg}
	require.NoError(t, stage.Run(context.Background(), c))

	assert.Len(t, c.alive(), 3)
}
