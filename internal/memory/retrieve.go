package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/layeredmemory/engine/internal/cache/semantic"
	apperrors "github.com/layeredmemory/engine/internal/errors"
	"github.com/layeredmemory/engine/internal/filter"
	"github.com/layeredmemory/engine/internal/optimize"
	"github.com/layeredmemory/engine/internal/retrieve"
	"github.com/layeredmemory/engine/internal/store"
	"github.com/layeredmemory/engine/internal/types"
)

// Retrieve runs hybrid search plus the optimizer, consulting the semantic
// cache first (spec.md §4.H "retrieve"). k == 0 is a boundary case (spec.md
// §8 "k = 0 returns an empty list with no store calls") handled before any
// cache or store access.
func (f *Facade) Retrieve(
	ctx context.Context, user, query string, expr *filter.Expr, k int, profile types.OptimizerProfile,
) (*RetrievalResult, error) {
	if k <= 0 {
		return &RetrievalResult{Hits: []*types.RetrieveHit{}, Stats: &types.OptimizerStats{}}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewCancelled("retrieve: context done").WithCause(err)
	}

	fingerprint := semantic.Fingerprint(query, expr)
	var queryEmbedding []float32
	trimmedQuery := strings.TrimSpace(query)
	if trimmedQuery != "" {
		var err error
		queryEmbedding, err = f.embedderSemantic.Embed(ctx, trimmedQuery)
		if err != nil {
			return nil, apperrors.NewTransient("retrieve: query embedding failed").WithCause(err)
		}
	}

	if entry, hitKind := f.cache.QueryLookup(ctx, user, fingerprint, queryEmbedding); hitKind != types.CacheHitNone {
		hits := entry.Results
		if len(hits) > k {
			hits = hits[:k]
		}
		return &RetrievalResult{Hits: hits, Stats: entry.Stats, CacheHit: hitKind}, nil
	}

	var (
		result *retrieve.Result
		err    error
	)
	if trimmedQuery == "" && expr != nil {
		result, err = f.scanOnly(ctx, store.TableKnowledge, withUser(expr, user), k)
	} else {
		result, err = f.knowledgeRetriever.Retrieve(ctx, retrieve.Query{
			UserID: user, Text: query, Filter: withUser(expr, user), K: k, Table: store.TableKnowledge,
		})
	}
	if err != nil {
		return nil, err
	}

	stats := &types.OptimizerStats{OriginalCount: len(result.Hits), FinalCount: len(result.Hits)}
	hits := result.Hits
	degraded := result.Degraded

	if degraded == retrieve.DegradeNoRerank {
		// Sustained backpressure: skip the optimizer entirely rather than
		// run it over raw fan-out hits (spec.md §5 "Backpressure ... then
		// skipped optimizer").
		degraded = retrieve.DegradeNoOptimizer
		stats.OptimizerSkipped = true
	} else {
		optCfg := optimize.ResolveProfile(f.cfg.Optimizer, profile)
		pipeline := optimize.New(optCfg, f.model)
		optimized, optStats, err := pipeline.Run(ctx, query, hits)
		if err != nil {
			return nil, apperrors.NewInternal("retrieve: optimizer failed").WithCause(err)
		}
		hits = optimized
		stats = optStats
	}

	truncated := result.Truncated || stats.Truncated
	f.cache.PutQuery(ctx, user, fingerprint, &types.QueryCacheEntry{
		Query: query, Embedding: queryEmbedding, Results: hits, Stats: stats,
	})

	return &RetrievalResult{Hits: hits, Stats: stats, Degraded: degraded, Truncated: truncated}, nil
}

// scanOnly implements the "empty query with a filter" boundary case (spec.md
// §8): a pure filter scan, bypassing vector and lexical subqueries entirely.
func (f *Facade) scanOnly(ctx context.Context, table store.Table, expr *filter.Expr, k int) (*retrieve.Result, error) {
	compiled, err := filter.Compile(expr, f.registry, time.Now())
	if err != nil {
		return nil, err
	}
	rows, err := f.store.Scan(ctx, table, compiled, k, store.Order{Field: "importance", Descending: true})
	if err != nil {
		return nil, apperrors.NewTransient("retrieve: filter scan failed").WithCause(err)
	}
	hits := make([]*types.RetrieveHit, len(rows))
	for i, row := range rows {
		hits[i] = &types.RetrieveHit{Doc: rowToDoc(row), FusedScore: row.Importance, Reasons: []string{"filter_scan"}}
	}
	sortByScoreThenRecencyThenID(hits)
	return &retrieve.Result{Hits: hits}, nil
}

func sortByScoreThenRecencyThenID(hits []*types.RetrieveHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		if !a.Doc.CreatedAt.Equal(b.Doc.CreatedAt) {
			return a.Doc.CreatedAt.After(b.Doc.CreatedAt)
		}
		return a.Doc.ID < b.Doc.ID
	})
}

func rowToDoc(row store.Row) *types.Document {
	doc := &types.Document{
		ID: row.ID, Tags: row.Tags, Metadata: row.Metadata,
		Importance: row.Importance, Embedding: row.Embedding, CreatedAt: row.CreatedAt,
	}
	if v, ok := row.Fields["user_id"].(string); ok {
		doc.UserID = v
	}
	if v, ok := row.Fields["content"].(string); ok {
		doc.Content = v
	}
	return doc
}

func withUser(expr *filter.Expr, user string) *filter.Expr {
	userLeaf := filter.Leaf("user_id", filter.OpEQ, user)
	if expr == nil {
		return userLeaf
	}
	return filter.And(userLeaf, expr)
}

// SearchByTimeWindow constructs a time_window filter and invokes Retrieve
// (spec.md §4.H "thin wrappers that construct the appropriate filter").
func (f *Facade) SearchByTimeWindow(ctx context.Context, user, query, field, window string, k int, profile types.OptimizerProfile) (*RetrievalResult, error) {
	return f.Retrieve(ctx, user, query, filter.TimeWindow(field, window), k, profile)
}

// SearchByCategory filters knowledge items by category.
func (f *Facade) SearchByCategory(ctx context.Context, user, query string, category types.KnowledgeCategory, k int, profile types.OptimizerProfile) (*RetrievalResult, error) {
	return f.Retrieve(ctx, user, query, filter.Leaf("category", filter.OpEQ, string(category)), k, profile)
}

// SearchByTags filters by any-of the given tags.
func (f *Facade) SearchByTags(ctx context.Context, user, query string, tags []string, k int, profile types.OptimizerProfile) (*RetrievalResult, error) {
	return f.Retrieve(ctx, user, query, filter.Leaf("tags", filter.OpAnyOf, tags), k, profile)
}

// SearchImportantItems filters for importance at or above min.
func (f *Facade) SearchImportantItems(ctx context.Context, user, query string, min float64, k int, profile types.OptimizerProfile) (*RetrievalResult, error) {
	return f.Retrieve(ctx, user, query, filter.Leaf("importance", filter.OpGTE, min), k, profile)
}

// SearchWithMetadata filters on an arbitrary metadata.<key> path.
func (f *Facade) SearchWithMetadata(ctx context.Context, user, query, key string, value any, k int, profile types.OptimizerProfile) (*RetrievalResult, error) {
	return f.Retrieve(ctx, user, query, filter.Leaf("metadata."+key, filter.OpEQ, value), k, profile)
}
