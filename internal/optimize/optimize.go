// Package optimize implements the Context Optimizer (spec.md §4.G): a fixed
// ordered pipeline of stages run over a retrieved candidate list before it
// is returned, each stage able to shrink the list and update stats. The
// shape mirrors the teacher's chat-pipeline plugin chain
// (chatpipline.Plugin / EventManager) but specialized to a linear,
// non-event-driven sequence since the optimizer's step order is fixed.
package optimize

import (
	"context"

	"github.com/layeredmemory/engine/internal/capability/llm"
	"github.com/layeredmemory/engine/internal/config"
	"github.com/layeredmemory/engine/internal/types"
)

// Candidate wraps one retrieved hit as it flows through the pipeline.
type Candidate struct {
	Hit *types.RetrieveHit

	// Keep marks an entry as pinned against dedup removal (spec.md §4.G
	// step 1: "If sim >= T_dedup and neither is marked as a keep").
	Keep bool

	// Relevance is the re-ranking score computed in step 6.
	Relevance float64

	dropped    bool
	dropReason string
}

// Candidates is the optimizer's working set for one optimization run.
type Candidates struct {
	Query       string
	QueryTokens []string
	Items       []*Candidate
	Stats       types.OptimizerStats
}

// alive returns the non-dropped items, in order.
func (c *Candidates) alive() []*Candidate {
	out := make([]*Candidate, 0, len(c.Items))
	for _, item := range c.Items {
		if !item.dropped {
			out = append(out, item)
		}
	}
	return out
}

func (c *Candidates) drop(item *Candidate, reason string) {
	item.dropped = true
	item.dropReason = reason
}

func (c *Candidates) aliveCount() int { return len(c.alive()) }

// Stage is one pipeline step. Stages must be idempotent and must never
// reorder surviving entries relative to each other (later stages rely on
// stable ordering for tie-breaks carried over from the retriever).
type Stage interface {
	Name() string
	Run(ctx context.Context, c *Candidates) error
}

// Pipeline runs the fixed-order stage sequence from spec.md §4.G.
type Pipeline struct {
	stages []Stage
}

// New builds the fixed pipeline (dedup -> diversity -> contradiction ->
// entropy -> compression -> rerank -> token budget) parameterized by cfg.
// model, if non-nil, backs the contradiction stage's optional LLM-assisted
// path; a nil model falls back to the heuristic path. The compression stage
// is extractive and takes no model.
func New(cfg *config.OptimizerConfig, model llm.LLM) *Pipeline {
	return &Pipeline{stages: []Stage{
		&dedupStage{cfg: cfg},
		&diversityStage{cfg: cfg},
		&contradictionStage{cfg: cfg, model: model},
		&entropyStage{cfg: cfg},
		&compressionStage{cfg: cfg},
		&rerankStage{cfg: cfg},
		&tokenBudgetStage{cfg: cfg},
	}}
}

// Run executes every stage in order over hits, returning the surviving
// hits (mutated with has_contradiction/contradicts_with where applicable)
// and the accumulated stats.
func (p *Pipeline) Run(ctx context.Context, query string, hits []*types.RetrieveHit) ([]*types.RetrieveHit, *types.OptimizerStats, error) {
	items := make([]*Candidate, len(hits))
	for i, h := range hits {
		items[i] = &Candidate{Hit: h}
	}
	candidates := &Candidates{
		Query:       query,
		QueryTokens: tokenize(query),
		Items:       items,
		Stats:       types.OptimizerStats{OriginalCount: len(hits)},
	}

	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			break
		}
		if err := stage.Run(ctx, candidates); err != nil {
			return nil, nil, err
		}
	}

	alive := candidates.alive()
	out := make([]*types.RetrieveHit, len(alive))
	for i, item := range alive {
		out[i] = item.Hit
	}
	candidates.Stats.FinalCount = len(out)
	return out, &candidates.Stats, nil
}
