package optimize

import (
	"context"
	"strings"

	"github.com/layeredmemory/engine/internal/common"
	"github.com/layeredmemory/engine/internal/config"
)

// compressionStage implements spec.md §4.G step 5: query-focused extractive
// summarization, applied only to entries whose token count exceeds
// C_tokens (a configured share of the total context budget).
type compressionStage struct {
	cfg *config.OptimizerConfig
}

func (s *compressionStage) Name() string { return "compression" }

func (s *compressionStage) Run(ctx context.Context, c *Candidates) error {
	budget := int(float64(s.cfg.MaxContextTokens) * s.cfg.CompressTokenShare)
	if budget <= 0 {
		return nil
	}
	queryTokens := tokenSetFromSlice(c.QueryTokens)

	for _, item := range c.alive() {
		content := item.Hit.Doc.Content
		if common.TokenCount(content) <= budget {
			continue
		}
		compressed := extractiveSummary(content, queryTokens, s.cfg.CompressionWindow, budget)
		if compressed != content {
			item.Hit.Doc.Content = compressed
			c.Stats.Compressed++
		}
	}
	return nil
}

func tokenSetFromSlice(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// extractiveSummary keeps the sentences most relevant to queryTokens, each
// padded by `window` adjacent sentences on either side, trimmed to budget
// tokens, always preserving the first and last sentence of the section
// (spec.md §4.G step 5: "must preserve the first and last sentence of a
// section header when present").
func extractiveSummary(content string, queryTokens map[string]struct{}, window, budget int) string {
	sentences := common.SplitSentences(content)
	if len(sentences) <= 2 {
		return content
	}

	type scored struct {
		index int
		score float64
	}
	ranked := make([]scored, len(sentences))
	for i, sent := range sentences {
		ranked[i] = scored{index: i, score: jaccard(queryTokens, tokenSet(sent))}
	}

	keep := make(map[int]bool)
	keep[0] = true
	keep[len(sentences)-1] = true

	// Greedily add the highest-scoring sentences (plus their window) until
	// the budget is exhausted.
	used := common.TokenCount(sentences[0]) + common.TokenCount(sentences[len(sentences)-1])
	sortByScoreDesc(ranked)
	for _, r := range ranked {
		if keep[r.index] {
			continue
		}
		lo := maxInt(0, r.index-window)
		hi := minInt(len(sentences)-1, r.index+window)
		addTokens := 0
		for i := lo; i <= hi; i++ {
			if !keep[i] {
				addTokens += common.TokenCount(sentences[i])
			}
		}
		if used+addTokens > budget {
			continue
		}
		for i := lo; i <= hi; i++ {
			keep[i] = true
		}
		used += addTokens
	}

	var out []string
	for i, sent := range sentences {
		if keep[i] {
			out = append(out, sent)
		}
	}
	return strings.Join(out, " ")
}

func sortByScoreDesc(items []struct {
	index int
	score float64
}) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].score > items[j-1].score; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
