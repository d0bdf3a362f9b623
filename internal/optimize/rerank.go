package optimize

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/layeredmemory/engine/internal/config"
)

// rerankStage implements spec.md §4.G step 6: score each surviving entry's
// relevance to the query via Jaccard token overlap, then compute an adaptive
// drop threshold from the score distribution's quartiles (spread-dependent
// three-branch formula around the configured base) rather than a single
// fixed cutoff, iterating until the set stabilizes or max_iterations is hit.
// min_kept bounds how aggressive the iteration can get.
type rerankStage struct {
	cfg *config.OptimizerConfig
}

func (s *rerankStage) Name() string { return "rerank" }

func (s *rerankStage) Run(ctx context.Context, c *Candidates) error {
	queryTokens := tokenSetFromSlice(c.QueryTokens)
	maxIter := s.cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = 3
	}
	minKept := s.cfg.MinKept

	for iter := 0; iter < maxIter; iter++ {
		alive := c.alive()
		if len(alive) <= minKept {
			break
		}

		scores := make([]float64, len(alive))
		for i, item := range alive {
			item.Relevance = jaccard(queryTokens, tokenSet(item.Hit.Doc.Content))
			scores[i] = item.Relevance
		}

		threshold := adaptiveThreshold(scores, s.cfg.RerankThresholdBase)
		c.Stats.AdaptiveThreshold = threshold

		belowThreshold := make([]*Candidate, 0)
		for _, item := range alive {
			if item.Relevance < threshold {
				belowThreshold = append(belowThreshold, item)
			}
		}
		if len(belowThreshold) == 0 {
			break
		}
		if len(alive)-len(belowThreshold) < minKept {
			// Dropping all of them would breach min_kept; drop only the
			// lowest scorers down to the floor.
			sort.SliceStable(belowThreshold, func(i, j int) bool {
				return belowThreshold[i].Relevance < belowThreshold[j].Relevance
			})
			allowed := len(alive) - minKept
			if allowed < len(belowThreshold) {
				belowThreshold = belowThreshold[:allowed]
			}
		}
		if len(belowThreshold) == 0 {
			break
		}
		for _, item := range belowThreshold {
			c.drop(item, "rerank")
			c.Stats.RemovedRerank++
		}
	}
	return nil
}

// adaptiveThreshold computes a per-query cutoff from the score
// distribution's spread (spec.md §4.G step 6): a wide spread (IQR > 0.3)
// gives the larger of base-0.1 and 0.8×median; a narrow spread (IQR < 0.15)
// gives the smaller of base+0.05 and 0.95×median; otherwise the mean of base
// and the median. The result is not clamped to base and can fall on either
// side of it.
func adaptiveThreshold(scores []float64, base float64) float64 {
	if len(scores) == 0 {
		return base
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)

	q1 := stat.Quantile(0.25, stat.Empirical, sorted, nil)
	q3 := stat.Quantile(0.75, stat.Empirical, sorted, nil)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	iqr := q3 - q1

	switch {
	case iqr > 0.3:
		return math.Max(base-0.1, median*0.8)
	case iqr < 0.15:
		return math.Min(base+0.05, median*0.95)
	default:
		return (base + median) / 2
	}
}
