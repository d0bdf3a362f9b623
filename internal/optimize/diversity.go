package optimize

import (
	"context"
	"sort"

	"github.com/layeredmemory/engine/internal/config"
)

// diversityStage implements spec.md §4.G step 2: cap the number of
// survivors per source_id, dropping the lowest-scoring excess entries.
type diversityStage struct {
	cfg *config.OptimizerConfig
}

func (s *diversityStage) Name() string { return "diversity" }

func (s *diversityStage) Run(ctx context.Context, c *Candidates) error {
	bySource := make(map[string][]*Candidate)
	for _, item := range c.alive() {
		key := item.Hit.Doc.SourceID
		bySource[key] = append(bySource[key], item)
	}

	maxPerSource := s.cfg.MaxPerSource
	if maxPerSource <= 0 {
		maxPerSource = 3
	}

	for _, group := range bySource {
		if len(group) <= maxPerSource {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Hit.FusedScore > group[j].Hit.FusedScore
		})
		for _, excess := range group[maxPerSource:] {
			c.drop(excess, "diversity_cap")
			c.Stats.RemovedDiversityCap++
		}
	}
	return nil
}
