// Package retrieve implements the Hybrid Retriever (spec.md §4.D): parallel
// ANN/lexical fan-out, score normalization, Reciprocal Rank Fusion, optional
// freshness/importance weighting, and deterministic tie-breaking.
package retrieve

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/layeredmemory/engine/internal/capability/embedding"
	"github.com/layeredmemory/engine/internal/config"
	apperrors "github.com/layeredmemory/engine/internal/errors"
	"github.com/layeredmemory/engine/internal/filter"
	"github.com/layeredmemory/engine/internal/store"
	"github.com/layeredmemory/engine/internal/types"
)

// DegradeLevel signals how far a retrieval had to back off under
// backpressure (spec.md §5 "Backpressure"): None -> NoRerank -> NoOptimizer.
// The retriever itself only ever produces None or NoRerank; NoOptimizer is
// the Facade's concern once the optimizer stage is skipped entirely.
type DegradeLevel int

const (
	DegradeNone DegradeLevel = iota
	DegradeNoRerank
	DegradeNoOptimizer
)

// FusionMode selects between RRF and the weighted-score variant (spec.md
// §4.D step 5: "A separate weighted-score variant is exposed").
type FusionMode int

const (
	FusionRRF FusionMode = iota
	FusionWeightedScore
)

// Query describes one retrieval request.
type Query struct {
	UserID string
	Text   string
	Filter *filter.Expr
	K      int
	Table  store.Table
	Fusion FusionMode

	// RelaxationOrder names filter fields to drop, in order, if fewer than K
	// results pass the filter (spec.md §4.D "Scope expansion"). Off by
	// default: leave nil/empty to disable.
	RelaxationOrder []string
}

// Result is the retriever's output for one query.
type Result struct {
	Hits      []*types.RetrieveHit
	Degraded  DegradeLevel
	Truncated bool
}

// Retriever is the Hybrid Retriever.
type Retriever struct {
	store    store.Store
	embedder embedding.Embedder
	registry *filter.TypeRegistry
	cfg      *config.RetrievalConfig
}

// New builds a Retriever over store, using embedder for query embedding and
// registry for filter compilation.
func New(st store.Store, embedder embedding.Embedder, registry *filter.TypeRegistry, cfg *config.RetrievalConfig) *Retriever {
	return &Retriever{store: st, embedder: embedder, registry: registry, cfg: cfg}
}

// tokenPattern is an ASCII word tokenizer; see DESIGN.md for why this
// doesn't reach for the teacher's gojieba-based CJK tokenizer.
var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// Retrieve runs the full pipeline described in spec.md §4.D.
func (r *Retriever) Retrieve(ctx context.Context, q Query) (*Result, error) {
	if q.K <= 0 {
		q.K = 10
	}

	compiled, err := filter.Compile(q.Filter, r.registry, time.Now())
	if err != nil {
		return nil, err
	}

	kFetch := q.K
	if r.cfg.KFetchMin > kFetch {
		kFetch = r.cfg.KFetchMin
	}

	degraded := DegradeNone
	if r.store.Overloaded(ctx) {
		degraded = DegradeNoRerank
	}

	annHits, lexHits, truncated, err := r.fetch(ctx, q, compiled, kFetch, degraded)
	if err != nil {
		return nil, err
	}

	if len(annHits) == 0 && len(lexHits) == 0 && len(q.RelaxationOrder) > 0 {
		relaxed := q.Filter
		for _, field := range q.RelaxationOrder {
			relaxed = dropField(relaxed, field)
			relaxedCompiled, err := filter.Compile(relaxed, r.registry, time.Now())
			if err != nil {
				return nil, err
			}
			annHits, lexHits, truncated, err = r.fetch(ctx, q, relaxedCompiled, kFetch, degraded)
			if err != nil {
				return nil, err
			}
			if len(annHits) > 0 || len(lexHits) > 0 {
				break
			}
		}
	}

	hits := fuse(annHits, lexHits, q.Fusion, r.cfg)
	applyFreshnessAndImportance(hits, r.cfg)
	sortHits(hits)

	if len(hits) > q.K {
		hits = hits[:q.K]
		truncated = true
	}

	return &Result{Hits: hits, Degraded: degraded, Truncated: truncated}, nil
}

func (r *Retriever) fetch(
	ctx context.Context, q Query, compiled *filter.Compiled, kFetch int, degraded DegradeLevel,
) ([]store.Hit, []store.Hit, bool, error) {
	// Embedding and both fetches run regardless of degradation level; the
	// level only changes what the Facade does with the hits afterwards.
	embeddingVec, err := r.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, nil, false, err
	}

	tokens := tokenize(q.Text)

	var annHits, lexHits []store.Hit
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := r.store.ANN(gctx, q.Table, embeddingVec, kFetch, compiled)
		if err != nil {
			return err
		}
		annHits = hits
		return nil
	})
	g.Go(func() error {
		hits, err := r.store.Lex(gctx, q.Table, tokens, kFetch, compiled)
		if err != nil {
			if unsupported, ok := err.(*store.ErrUnsupported); ok {
				_ = unsupported
				return nil
			}
			return err
		}
		lexHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, false, apperrors.NewTransient("hybrid retrieval fan-out failed").WithCause(err)
	}
	return annHits, lexHits, false, nil
}

// dropField removes every leaf referencing field from expr (spec.md §4.D
// "relax the filter along a caller-provided relaxation order").
func dropField(expr *filter.Expr, field string) *filter.Expr {
	if expr == nil {
		return nil
	}
	if expr.Field == field {
		return nil
	}
	if len(expr.Children) == 0 {
		return expr
	}
	children := make([]*filter.Expr, 0, len(expr.Children))
	for _, child := range expr.Children {
		if reduced := dropField(child, field); reduced != nil {
			children = append(children, reduced)
		}
	}
	if len(children) == 0 {
		return nil
	}
	return &filter.Expr{Group: expr.Group, Children: children}
}

func normalize(hits []store.Hit) map[string]float64 {
	out := make(map[string]float64, len(hits))
	if len(hits) == 0 {
		return out
	}
	max := hits[0].Score
	for _, h := range hits {
		if h.Score > max {
			max = h.Score
		}
	}
	for _, h := range hits {
		if max > 0 {
			out[h.Row.ID] = h.Score / max
		} else {
			out[h.Row.ID] = 0
		}
	}
	return out
}

func ranks(hits []store.Hit) map[string]int {
	out := make(map[string]int, len(hits))
	for i, h := range hits {
		out[h.Row.ID] = i + 1
	}
	return out
}

func fuse(annHits, lexHits []store.Hit, mode FusionMode, cfg *config.RetrievalConfig) []*types.RetrieveHit {
	rows := make(map[string]store.Row, len(annHits)+len(lexHits))
	for _, h := range annHits {
		rows[h.Row.ID] = h.Row
	}
	for _, h := range lexHits {
		rows[h.Row.ID] = h.Row
	}

	vecNorm := normalize(annHits)
	lexNorm := normalize(lexHits)
	vecRank := ranks(annHits)
	lexRank := ranks(lexHits)

	hits := make([]*types.RetrieveHit, 0, len(rows))
	for id, row := range rows {
		sv := vecNorm[id]
		sl := lexNorm[id]

		var fused float64
		var reasons []string
		switch mode {
		case FusionWeightedScore:
			fused = cfg.WeightVector*sv + cfg.WeightLex*sl
			reasons = []string{"weighted_score"}
		default:
			rv, hasV := vecRank[id]
			rl, hasL := lexRank[id]
			fused = rrfTerm(cfg.WeightVector, cfg.RRFConstant, rv, hasV) +
				rrfTerm(cfg.WeightLex, cfg.RRFConstant, rl, hasL)
			reasons = []string{"rrf"}
			if hasV {
				reasons = append(reasons, "vector_match")
			}
			if hasL {
				reasons = append(reasons, "lexical_match")
			}
		}

		hits = append(hits, &types.RetrieveHit{
			Doc:         rowToDocument(row),
			VectorScore: sv,
			LexScore:    sl,
			FusedScore:  fused,
			Reasons:     reasons,
		})
	}
	return hits
}

func rrfTerm(weight float64, c int, rank int, present bool) float64 {
	if !present {
		return 0
	}
	return weight / (float64(c) + float64(rank))
}

// applyFreshnessAndImportance multiplies each hit's fused score by a
// freshness factor exp(-lambda*age_days), derived from the configured
// half-life, and a clamped importance factor (spec.md §4.D step 6).
func applyFreshnessAndImportance(hits []*types.RetrieveHit, cfg *config.RetrievalConfig) {
	if cfg.HalfLifeDays <= 0 {
		return
	}
	lambda := math.Ln2 / cfg.HalfLifeDays
	now := time.Now()
	for _, h := range hits {
		ageDays := now.Sub(h.Doc.CreatedAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		freshness := math.Exp(-lambda * ageDays)
		importance := clamp(h.Doc.Importance, 0, 1)
		h.FusedScore *= freshness * (0.5 + 0.5*importance)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// sortHits applies the spec's tie-break order: fused_score -> importance ->
// recency, all descending, with ID as a final deterministic tie-break.
func sortHits(hits []*types.RetrieveHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		if a.Doc.Importance != b.Doc.Importance {
			return a.Doc.Importance > b.Doc.Importance
		}
		if !a.Doc.CreatedAt.Equal(b.Doc.CreatedAt) {
			return a.Doc.CreatedAt.After(b.Doc.CreatedAt)
		}
		return a.Doc.ID < b.Doc.ID
	})
}

func rowToDocument(row store.Row) *types.Document {
	doc := &types.Document{
		ID:         row.ID,
		Tags:       row.Tags,
		Metadata:   row.Metadata,
		Importance: row.Importance,
		Embedding:  row.Embedding,
		CreatedAt:  row.CreatedAt,
	}
	if v, ok := row.Fields["user_id"].(string); ok {
		doc.UserID = v
	}
	if v, ok := row.Fields["source_id"].(string); ok {
		doc.SourceID = v
	}
	if v, ok := row.Fields["content"].(string); ok {
		doc.Content = v
	}
	if v, ok := row.Fields["kind"].(string); ok {
		doc.Kind = types.EntityKind(v)
	}
	return doc
}
