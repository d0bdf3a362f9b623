package classify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layeredmemory/engine/internal/types"
)

func TestRuleBasedClassifiesPersonaFromFirstPerson(t *testing.T) {
	c := NewRuleBased()
	result, err := c.Classify(context.Background(), "I am a backend engineer who loves Go", "")
	require.NoError(t, err)
	assert.Equal(t, types.LayerPersona, result.Layer)
}

func TestRuleBasedClassifiesEpisodicFromTemporalMarker(t *testing.T) {
	c := NewRuleBased()
	result, err := c.Classify(context.Background(), "Yesterday I deployed the new release", "")
	require.NoError(t, err)
	assert.Equal(t, types.LayerEpisodic, result.Layer)
}

func TestRuleBasedClassifiesSkill(t *testing.T) {
	c := NewRuleBased()
	result, err := c.Classify(context.Background(), "I know how to debug race conditions in Go", "")
	require.NoError(t, err)
	assert.Equal(t, types.LayerSkill, result.Layer)
}

func TestRuleBasedDefaultsToKnowledge(t *testing.T) {
	c := NewRuleBased()
	result, err := c.Classify(context.Background(), "The Eiffel Tower is in Paris", "")
	require.NoError(t, err)
	assert.Equal(t, types.LayerKnowledge, result.Layer)
}

func TestRuleBasedReportsIsFallback(t *testing.T) {
	c := NewRuleBased()
	assert.True(t, c.IsFallback())
}
