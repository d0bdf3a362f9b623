package optimize

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layeredmemory/engine/internal/config"
)

func TestEntropyStageDropsShortContent(t *testing.T) {
	cfg := &config.OptimizerConfig{MinContentLength: 10, EntropyMin: 0.3}
	a := hitFor("a", "hi", 0.9, nil)
	b := hitFor("b", "The user's favorite restaurant is downtown on Fifth.", 0.8, nil)
	c := &Candidates{Items: []*Candidate{a, b}}

	stage := &entropyStage{cfg: cfg}
	require.NoError(t, stage.Run(context.Background(), c))

	alive := c.alive()
	require.Len(t, alive, 1)
	assert.Equal(t, "b", alive[0].Hit.Doc.ID)
	assert.Equal(t, 1, c.Stats.RemovedEntropy)
}

func TestEntropyStageDropsRepetitiveLowInformationContent(t *testing.T) {
	cfg := &config.OptimizerConfig{MinContentLength: 10, EntropyMin: 0.3}
	repetitive := strings.Repeat("aaaaaaaaaa", 5)
	a := hitFor("a", repetitive, 0.9, nil)
	b := hitFor("b", "The quick brown fox jumps over the lazy dog near the river.", 0.8, nil)
	c := &Candidates{Items: []*Candidate{a, b}}

	stage := &entropyStage{cfg: cfg}
	require.NoError(t, stage.Run(context.Background(), c))

	alive := c.alive()
	require.Len(t, alive, 1)
	assert.Equal(t, "b", alive[0].Hit.Doc.ID)
}

func TestEntropyStageDefaultsMinLengthWhenUnset(t *testing.T) {
	cfg := &config.OptimizerConfig{EntropyMin: 0.3}
	a := hitFor("a", "hi", 0.9, nil)
	c := &Candidates{Items: []*Candidate{a}}

	stage := &entropyStage{cfg: cfg}
	require.NoError(t, stage.Run(context.Background(), c))

	assert.Empty(t, c.alive())
}
