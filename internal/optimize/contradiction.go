package optimize

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/layeredmemory/engine/internal/capability/llm"
	"github.com/layeredmemory/engine/internal/config"
)

// contradictionStage implements spec.md §4.G step 3: for pairs whose
// embeddings are similar enough to be plausibly about the same thing but not
// near-duplicates, flag contradictions rather than dropping either entry.
type contradictionStage struct {
	cfg   *config.OptimizerConfig
	model llm.LLM
}

func (s *contradictionStage) Name() string { return "contradiction" }

var negationPattern = regexp.MustCompile(`(?i)\b(not|never|no longer|isn't|doesn't|didn't|won't|can't|cannot|without)\b`)

func (s *contradictionStage) Run(ctx context.Context, c *Candidates) error {
	alive := c.alive()
	for i := 0; i < len(alive); i++ {
		for j := i + 1; j < len(alive); j++ {
			a, b := alive[i], alive[j]
			sim := cosineSimilarity(a.Hit.Doc.Embedding, b.Hit.Doc.Embedding)
			if sim < s.cfg.ContradictionLo || sim > s.cfg.ContradictionHi {
				continue
			}

			contradicts, err := s.contradicts(ctx, a.Hit.Doc.Content, b.Hit.Doc.Content)
			if err != nil {
				return err
			}
			if !contradicts {
				continue
			}

			if !a.Hit.HasContradiction {
				c.Stats.ContradictionCount++
			}
			a.Hit.HasContradiction = true
			b.Hit.HasContradiction = true
			a.Hit.ContradictsWith = append(a.Hit.ContradictsWith, j)
			b.Hit.ContradictsWith = append(b.Hit.ContradictsWith, i)
		}
	}
	return nil
}

// contradicts detects a negation-pattern mismatch between the two texts: one
// side carries a negation marker and the other doesn't, over otherwise
// similar content (spec.md §4.G step 3 "simple XOR-of-negation-pattern
// heuristic"). When an LLM capability is configured, it is consulted
// instead for a higher-fidelity judgment.
func (s *contradictionStage) contradicts(ctx context.Context, a, b string) (bool, error) {
	if s.model != nil {
		prompt := fmt.Sprintf(
			"Do these two statements contradict each other? Answer only yes or no.\nA: %s\nB: %s", a, b,
		)
		response, err := s.model.Complete(ctx, prompt)
		if err != nil {
			return false, err
		}
		return strings.HasPrefix(strings.ToLower(strings.TrimSpace(response)), "yes"), nil
	}
	return negationPattern.MatchString(a) != negationPattern.MatchString(b), nil
}
