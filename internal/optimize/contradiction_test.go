package optimize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layeredmemory/engine/internal/config"
)

func TestContradictionStageFlagsNegationMismatch(t *testing.T) {
	cfg := &config.OptimizerConfig{ContradictionLo: 0.5, ContradictionHi: 0.99}
	a := hitFor("a", "The user likes coffee in the morning.", 0.9, []float32{1, 1, 0})
	b := hitFor("b", "The user does not like coffee in the morning.", 0.8, []float32{1, 0.5, 0})
	c := &Candidates{Items: []*Candidate{a, b}}

	stage := &contradictionStage{cfg: cfg}
	require.NoError(t, stage.Run(context.Background(), c))

	assert.True(t, a.Hit.HasContradiction)
	assert.True(t, b.Hit.HasContradiction)
	assert.Equal(t, []int{1}, a.Hit.ContradictsWith)
	assert.Equal(t, []int{0}, b.Hit.ContradictsWith)
	assert.Equal(t, 1, c.Stats.ContradictionCount)
}

func TestContradictionStageIgnoresPairsOutsideSimilarityBand(t *testing.T) {
	cfg := &config.OptimizerConfig{ContradictionLo: 0.95, ContradictionHi: 0.99}
	a := hitFor("a", "The user likes coffee.", 0.9, []float32{1, 0, 0})
	b := hitFor("b", "The user does not like coffee.", 0.8, []float32{0, 1, 0})
	c := &Candidates{Items: []*Candidate{a, b}}

	stage := &contradictionStage{cfg: cfg}
	require.NoError(t, stage.Run(context.Background(), c))

	assert.False(t, a.Hit.HasContradiction)
	assert.Equal(t, 0, c.Stats.ContradictionCount)
}

func TestContradictionStageLeavesConsistentPairsUnflagged(t *testing.T) {
	cfg := &config.OptimizerConfig{ContradictionLo: 0.5, ContradictionHi: 0.99}
	a := hitFor("a", "The user likes coffee.", 0.9, []float32{1, 1, 0})
	b := hitFor("b", "The user enjoys coffee daily.", 0.8, []float32{1, 0.5, 0})
	c := &Candidates{Items: []*Candidate{a, b}}

	stage := &contradictionStage{cfg: cfg}
	require.NoError(t, stage.Run(context.Background(), c))

	assert.False(t, a.Hit.HasContradiction)
	assert.False(t, b.Hit.HasContradiction)
}
