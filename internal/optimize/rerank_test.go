package optimize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layeredmemory/engine/internal/config"
)

func TestRerankStageDropsLowRelevanceOutliers(t *testing.T) {
	cfg := &config.OptimizerConfig{RerankThresholdBase: 0.0, MaxIterations: 3, MinKept: 1}
	relevant1 := hitFor("a", "the user prefers dark roast coffee in the morning", 0.9, nil)
	relevant2 := hitFor("b", "user likes dark roast coffee beans", 0.8, nil)
	relevant3 := hitFor("c", "coffee dark roast preference morning routine", 0.7, nil)
	unrelated := hitFor("d", "completely unrelated content about astrophysics and black holes", 0.6, nil)
	c := &Candidates{
		Query:       "dark roast coffee morning",
		QueryTokens: []string{"dark", "roast", "coffee", "morning"},
		Items:       []*Candidate{relevant1, relevant2, relevant3, unrelated},
	}

	stage := &rerankStage{cfg: cfg}
	require.NoError(t, stage.Run(context.Background(), c))

	alive := c.alive()
	for _, item := range alive {
		assert.NotEqual(t, "d", item.Hit.Doc.ID)
	}
}

func TestRerankStageNeverDropsBelowMinKept(t *testing.T) {
	cfg := &config.OptimizerConfig{RerankThresholdBase: 0.9, MaxIterations: 5, MinKept: 3}
	items := make([]*Candidate, 4)
	for i := range items {
		items[i] = hitFor(string(rune('a'+i)), "generic filler content with no overlap", 1.0-float64(i)*0.1, nil)
	}
	c := &Candidates{Query: "specific target phrase", QueryTokens: []string{"specific", "target", "phrase"}, Items: items}

	stage := &rerankStage{cfg: cfg}
	require.NoError(t, stage.Run(context.Background(), c))

	assert.GreaterOrEqual(t, c.aliveCount(), cfg.MinKept)
}

func TestAdaptiveThresholdNarrowSpreadHighMedianStaysAboveBase(t *testing.T) {
	scores := []float64{0.9, 0.91, 0.92, 0.93}
	threshold := adaptiveThreshold(scores, 0.65)
	assert.GreaterOrEqual(t, threshold, 0.65)
}
