package optimize

import (
	"context"

	"github.com/layeredmemory/engine/internal/config"
)

// dedupStage implements spec.md §4.G step 1: exact dedup by content hash,
// then semantic dedup by pairwise cosine similarity.
type dedupStage struct {
	cfg *config.OptimizerConfig
}

func (s *dedupStage) Name() string { return "dedup" }

func (s *dedupStage) Run(ctx context.Context, c *Candidates) error {
	s.exactDedup(c)
	s.semanticDedup(c)
	return nil
}

func (s *dedupStage) exactDedup(c *Candidates) {
	seen := make(map[string]*Candidate)
	for _, item := range c.alive() {
		h := contentHash(item.Hit.Doc.Content)
		if existing, ok := seen[h]; ok {
			loser := s.lowerScoring(existing, item)
			c.drop(loser, "exact_dup")
			c.Stats.RemovedExactDup++
			if loser != item {
				seen[h] = item
			}
			continue
		}
		seen[h] = item
	}
}

func (s *dedupStage) semanticDedup(c *Candidates) {
	alive := c.alive()
	for i := 0; i < len(alive); i++ {
		a := alive[i]
		if a.dropped {
			continue
		}
		for j := i + 1; j < len(alive); j++ {
			b := alive[j]
			if b.dropped {
				continue
			}
			sim := cosineSimilarity(a.Hit.Doc.Embedding, b.Hit.Doc.Embedding)
			if sim < s.cfg.SimilarityThreshold {
				continue
			}
			if a.Keep && b.Keep {
				continue
			}
			if a.Keep {
				c.drop(b, "semantic_dup")
				c.Stats.RemovedSemanticDup++
				continue
			}
			if b.Keep {
				c.drop(a, "semantic_dup")
				c.Stats.RemovedSemanticDup++
				break
			}
			loser := s.lowerScoring(a, b)
			c.drop(loser, "semantic_dup")
			c.Stats.RemovedSemanticDup++
			if loser == a {
				break
			}
		}
	}
}

func (s *dedupStage) lowerScoring(a, b *Candidate) *Candidate {
	if a.Hit.FusedScore <= b.Hit.FusedScore {
		return a
	}
	return b
}
