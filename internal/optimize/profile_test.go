package optimize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/layeredmemory/engine/internal/config"
	"github.com/layeredmemory/engine/internal/types"
)

func TestResolveProfileBalancedLeavesConfigUnchanged(t *testing.T) {
	base := config.Default().Optimizer
	resolved := ResolveProfile(base, types.ProfileBalanced)
	assert.Equal(t, *base, *resolved)
}

func TestResolveProfileConservativeWidensSurvival(t *testing.T) {
	base := config.Default().Optimizer
	resolved := ResolveProfile(base, types.ProfileConservative)
	assert.Greater(t, resolved.MinKept, base.MinKept)
	assert.Greater(t, resolved.MaxPerSource, base.MaxPerSource)
}

func TestResolveProfileAggressiveTightensSurvival(t *testing.T) {
	base := config.Default().Optimizer
	resolved := ResolveProfile(base, types.ProfileAggressive)
	assert.Less(t, resolved.MaxContextTokens, base.MaxContextTokens)
	assert.GreaterOrEqual(t, resolved.RerankThresholdBase, base.RerankThresholdBase)
}

func TestResolveProfileDoesNotMutateBase(t *testing.T) {
	base := config.Default().Optimizer
	originalMinKept := base.MinKept
	_ = ResolveProfile(base, types.ProfileAggressive)
	assert.Equal(t, originalMinKept, base.MinKept)
}
