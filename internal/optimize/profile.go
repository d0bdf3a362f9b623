package optimize

import (
	"github.com/layeredmemory/engine/internal/config"
	"github.com/layeredmemory/engine/internal/types"
)

// ResolveProfile returns a copy of base with the named preset's adjustments
// applied (spec.md §4.G "Profiles"). An empty or unrecognized profile name
// resolves to balanced, i.e. base unchanged.
func ResolveProfile(base *config.OptimizerConfig, profile types.OptimizerProfile) *config.OptimizerConfig {
	cfg := *base
	switch profile {
	case types.ProfileConservative:
		cfg.SimilarityThreshold = clampUnit(base.SimilarityThreshold + 0.10)
		cfg.MaxPerSource = base.MaxPerSource + 2
		cfg.RerankThresholdBase = clampUnit(base.RerankThresholdBase - 0.15)
		cfg.EntropyMin = clampUnit(base.EntropyMin - 0.1)
		cfg.MinKept = base.MinKept + 2
	case types.ProfileAggressive:
		cfg.SimilarityThreshold = clampUnit(base.SimilarityThreshold - 0.10)
		if cfg.MaxPerSource = base.MaxPerSource - 1; cfg.MaxPerSource < 1 {
			cfg.MaxPerSource = 1
		}
		cfg.RerankThresholdBase = clampUnit(base.RerankThresholdBase + 0.15)
		cfg.EntropyMin = clampUnit(base.EntropyMin + 0.1)
		cfg.MaxContextTokens = base.MaxContextTokens * 3 / 4
	case types.ProfileQuality:
		cfg.RerankThresholdBase = clampUnit(base.RerankThresholdBase - 0.1)
		cfg.MinKept = base.MinKept + 3
		cfg.MaxIterations = 1
		cfg.CompressTokenShare = base.CompressTokenShare + 0.1
	default:
		// balanced, or unrecognized: use base as-is.
	}
	return &cfg
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
