package optimize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layeredmemory/engine/internal/config"
)

func TestTokenBudgetStageKeepsEntriesWithinBudget(t *testing.T) {
	cfg := &config.OptimizerConfig{MaxContextTokens: 100}
	a := hitFor("a", "short content here", 0.9, nil)
	b := hitFor("b", "more short content", 0.8, nil)
	c := &Candidates{Items: []*Candidate{a, b}}

	stage := &tokenBudgetStage{cfg: cfg}
	require.NoError(t, stage.Run(context.Background(), c))

	assert.Len(t, c.alive(), 2)
	assert.False(t, c.Stats.Truncated)
	assert.Equal(t, 6, c.Stats.FinalTokens)
}

func TestTokenBudgetStageTruncatesAtSentenceBoundary(t *testing.T) {
	cfg := &config.OptimizerConfig{MaxContextTokens: 5}
	a := hitFor("a", "First sentence here now. Second sentence follows after that.", 0.9, nil)
	c := &Candidates{Items: []*Candidate{a}}

	stage := &tokenBudgetStage{cfg: cfg}
	require.NoError(t, stage.Run(context.Background(), c))

	alive := c.alive()
	require.Len(t, alive, 1)
	assert.Equal(t, "First sentence here now.", alive[0].Hit.Doc.Content)
	assert.True(t, c.Stats.Truncated)
}

func TestTokenBudgetStageDropsEntriesThatDontFitAtAll(t *testing.T) {
	cfg := &config.OptimizerConfig{MaxContextTokens: 3}
	a := hitFor("a", "one two three.", 0.9, nil)
	b := hitFor("b", "four five six seven.", 0.8, nil)
	c := &Candidates{Items: []*Candidate{a, b}}

	stage := &tokenBudgetStage{cfg: cfg}
	require.NoError(t, stage.Run(context.Background(), c))

	alive := c.alive()
	require.Len(t, alive, 1)
	assert.Equal(t, "a", alive[0].Hit.Doc.ID)
	assert.Equal(t, 1, c.Stats.RemovedTokenBudget)
}
