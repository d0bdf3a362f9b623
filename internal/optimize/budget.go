package optimize

import (
	"context"
	"strings"

	"github.com/layeredmemory/engine/internal/common"
	"github.com/layeredmemory/engine/internal/config"
)

// tokenBudgetStage implements spec.md §4.G step 7: accumulate survivors in
// descending score order until max_context_tokens would be exceeded,
// truncating the entry that would overflow it at the nearest sentence
// boundary and discarding everything after.
type tokenBudgetStage struct {
	cfg *config.OptimizerConfig
}

func (s *tokenBudgetStage) Name() string { return "token_budget" }

func (s *tokenBudgetStage) Run(ctx context.Context, c *Candidates) error {
	budget := s.cfg.MaxContextTokens
	if budget <= 0 {
		return nil
	}

	alive := c.alive()
	ordered := make([]*Candidate, len(alive))
	copy(ordered, alive)
	sortCandidatesByScoreDesc(ordered)

	used := 0
	overflowed := false
	for _, item := range ordered {
		if overflowed {
			c.drop(item, "token_budget")
			c.Stats.RemovedTokenBudget++
			continue
		}
		tokens := common.TokenCount(item.Hit.Doc.Content)
		if used+tokens <= budget {
			used += tokens
			continue
		}
		overflowed = true

		remaining := budget - used
		if remaining <= 0 {
			c.drop(item, "token_budget")
			c.Stats.RemovedTokenBudget++
			continue
		}

		truncated := truncateToTokenBudget(item.Hit.Doc.Content, remaining)
		if truncated == "" {
			c.drop(item, "token_budget")
			c.Stats.RemovedTokenBudget++
			continue
		}
		item.Hit.Doc.Content = truncated
		used += common.TokenCount(truncated)
		c.Stats.Truncated = true
	}

	c.Stats.FinalTokens = used
	return nil
}

func sortCandidatesByScoreDesc(items []*Candidate) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].Hit.FusedScore > items[j-1].Hit.FusedScore; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

// truncateToTokenBudget keeps whole leading sentences until the next one
// would exceed budget tokens.
func truncateToTokenBudget(content string, budget int) string {
	sentences := common.SplitSentences(content)
	var kept []string
	used := 0
	for _, sent := range sentences {
		tokens := common.TokenCount(sent)
		if used+tokens > budget {
			break
		}
		kept = append(kept, sent)
		used += tokens
	}
	return strings.Join(kept, " ")
}
