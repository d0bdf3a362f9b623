package optimize

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layeredmemory/engine/internal/config"
)

func longContentAbout(topic string) string {
	sentences := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		sentences = append(sentences, "This is filler sentence number about nothing relevant at all.")
	}
	sentences[20] = "The key fact about " + topic + " is very important here."
	return strings.Join(sentences, " ")
}

func TestCompressionStageLeavesShortEntriesUntouched(t *testing.T) {
	cfg := &config.OptimizerConfig{MaxContextTokens: 4000, CompressTokenShare: 0.25, CompressionWindow: 1}
	a := hitFor("a", "Short content about databases.", 0.9, nil)
	c := &Candidates{Query: "databases", QueryTokens: []string{"databases"}, Items: []*Candidate{a}}

	stage := &compressionStage{cfg: cfg}
	require.NoError(t, stage.Run(context.Background(), c))

	assert.Equal(t, "Short content about databases.", a.Hit.Doc.Content)
	assert.Equal(t, 0, c.Stats.Compressed)
}

func TestCompressionStageShrinksOversizedEntries(t *testing.T) {
	cfg := &config.OptimizerConfig{MaxContextTokens: 1000, CompressTokenShare: 0.25, CompressionWindow: 1}
	content := longContentAbout("migrations")
	a := hitFor("a", content, 0.9, nil)
	c := &Candidates{Query: "migrations", QueryTokens: []string{"migrations"}, Items: []*Candidate{a}}

	stage := &compressionStage{cfg: cfg}
	require.NoError(t, stage.Run(context.Background(), c))

	assert.Less(t, len(a.Hit.Doc.Content), len(content))
	assert.Contains(t, a.Hit.Doc.Content, "migrations")
	assert.Equal(t, 1, c.Stats.Compressed)
}

func TestCompressionStageNoopWhenBudgetZero(t *testing.T) {
	cfg := &config.OptimizerConfig{MaxContextTokens: 0, CompressTokenShare: 0.25}
	content := longContentAbout("migrations")
	a := hitFor("a", content, 0.9, nil)
	c := &Candidates{Query: "migrations", QueryTokens: []string{"migrations"}, Items: []*Candidate{a}}

	stage := &compressionStage{cfg: cfg}
	require.NoError(t, stage.Run(context.Background(), c))

	assert.Equal(t, content, a.Hit.Doc.Content)
}
