package optimize

import (
	"context"

	"github.com/layeredmemory/engine/internal/config"
)

// entropyStage implements spec.md §4.G step 4: drop entries whose content is
// too short or too low-information (e.g. repeated boilerplate) to be worth
// keeping in context.
type entropyStage struct {
	cfg *config.OptimizerConfig
}

func (s *entropyStage) Name() string { return "entropy" }

func (s *entropyStage) Run(ctx context.Context, c *Candidates) error {
	minLen := s.cfg.MinContentLength
	if minLen <= 0 {
		minLen = 10
	}
	for _, item := range c.alive() {
		content := item.Hit.Doc.Content
		if len(content) < minLen || normalizedEntropy(content) < s.cfg.EntropyMin {
			c.drop(item, "entropy")
			c.Stats.RemovedEntropy++
		}
	}
	return nil
}
