// Package memory is an in-process, map-backed Store implementation satisfying
// the same interface as store/postgres, used for unit tests per the design
// note "the core must be buildable against a purely in-memory stub for tests".
package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	apperrors "github.com/layeredmemory/engine/internal/errors"
	"github.com/layeredmemory/engine/internal/filter"
	"github.com/layeredmemory/engine/internal/store"
)

// Store is a brute-force, in-memory implementation of store.Store: cosine
// scan for ANN, naive token-overlap scoring for Lex.
type Store struct {
	mu     sync.RWMutex
	tables map[store.Table]map[string]store.Row
}

// New creates an empty in-memory Store.
func New() *Store {
	return &Store{tables: make(map[store.Table]map[string]store.Row)}
}

var _ store.Store = (*Store)(nil)

func (s *Store) table(t store.Table) map[string]store.Row {
	if s.tables[t] == nil {
		s.tables[t] = make(map[string]store.Row)
	}
	return s.tables[t]
}

func (s *Store) Put(ctx context.Context, table store.Table, row store.Row) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewCancelled("context cancelled").WithCause(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table(table)[row.ID] = row
	return nil
}

func (s *Store) Update(ctx context.Context, table store.Table, id string, patch map[string]any) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewCancelled("context cancelled").WithCause(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tbl := s.table(table)
	row, ok := tbl[id]
	if !ok {
		return apperrors.NewNotFound("row not found: " + id)
	}
	if row.Fields == nil {
		row.Fields = map[string]any{}
	}
	for k, v := range patch {
		row.Fields[k] = v
	}
	tbl[id] = row
	return nil
}

func (s *Store) Delete(ctx context.Context, table store.Table, id string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewCancelled("context cancelled").WithCause(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.table(table), id)
	return nil
}

func (s *Store) Get(ctx context.Context, table store.Table, id string) (store.Row, bool, error) {
	if err := ctx.Err(); err != nil {
		return store.Row{}, false, apperrors.NewCancelled("context cancelled").WithCause(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.tables[table][id]
	return row, ok, nil
}

func (s *Store) rowSource(row store.Row) filter.FieldSource {
	flat := map[string]any{
		"id":         row.ID,
		"tags":       row.Tags,
		"importance": row.Importance,
		"created_at": row.CreatedAt,
	}
	if row.Metadata != nil {
		flat["metadata"] = row.Metadata
	}
	for k, v := range row.Fields {
		flat[k] = v
	}
	return filter.MapSource(flat)
}

func (s *Store) ANN(
	ctx context.Context, table store.Table, embedding []float32, k int, predicate *filter.Compiled,
) ([]store.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewCancelled("context cancelled").WithCause(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]store.Hit, 0, len(s.tables[table]))
	for _, row := range s.tables[table] {
		if predicate != nil && !predicate.Match(s.rowSource(row)) {
			continue
		}
		if len(row.Embedding) == 0 {
			continue
		}
		sim := cosineSimilarity(embedding, row.Embedding)
		hits = append(hits, store.Hit{Row: row, Score: sim})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Row.ID < hits[j].Row.ID
	})
	if k >= 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *Store) Lex(
	ctx context.Context, table store.Table, tokens []string, k int, predicate *filter.Compiled,
) ([]store.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewCancelled("context cancelled").WithCause(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	queryTokens := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		queryTokens[strings.ToLower(tok)] = struct{}{}
	}

	hits := make([]store.Hit, 0, len(s.tables[table]))
	for _, row := range s.tables[table] {
		if predicate != nil && !predicate.Match(s.rowSource(row)) {
			continue
		}
		score := lexScore(row, queryTokens)
		if score <= 0 {
			continue
		}
		hits = append(hits, store.Hit{Row: row, Score: score})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Row.ID < hits[j].Row.ID
	})
	if k >= 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *Store) Scan(
	ctx context.Context, table store.Table, predicate *filter.Compiled, limit int, order store.Order,
) ([]store.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewCancelled("context cancelled").WithCause(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]store.Row, 0, len(s.tables[table]))
	for _, row := range s.tables[table] {
		if predicate != nil && !predicate.Match(s.rowSource(row)) {
			continue
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		vi, vj := sortValue(rows[i], order.Field), sortValue(rows[j], order.Field)
		if order.Descending {
			return vi > vj
		}
		return vi < vj
	})
	if limit >= 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *Store) Tx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// The in-memory store is single-process; a coarse write lock around the
	// whole transaction gives the same all-or-nothing semantics the episodic
	// pipeline requires without a rollback log.
	snapshot := s.snapshotLocked()
	if err := fn(ctx, &txView{parent: s}); err != nil {
		s.tables = snapshot
		return err
	}
	return nil
}

func (s *Store) snapshotLocked() map[store.Table]map[string]store.Row {
	out := make(map[store.Table]map[string]store.Row, len(s.tables))
	for t, rows := range s.tables {
		rowsCopy := make(map[string]store.Row, len(rows))
		for id, r := range rows {
			rowsCopy[id] = r
		}
		out[t] = rowsCopy
	}
	return out
}

func (s *Store) Overloaded(ctx context.Context) bool { return false }

// txView exposes the already-locked parent store to the Tx callback without
// re-acquiring the mutex.
type txView struct {
	parent *Store
}

var _ store.Store = (*txView)(nil)

func (t *txView) Put(ctx context.Context, table store.Table, row store.Row) error {
	t.parent.table(table)[row.ID] = row
	return nil
}

func (t *txView) Update(ctx context.Context, table store.Table, id string, patch map[string]any) error {
	tbl := t.parent.table(table)
	row, ok := tbl[id]
	if !ok {
		return apperrors.NewNotFound("row not found: " + id)
	}
	fields := make(map[string]any, len(row.Fields)+len(patch))
	for k, v := range row.Fields {
		fields[k] = v
	}
	for k, v := range patch {
		fields[k] = v
	}
	row.Fields = fields
	tbl[id] = row
	return nil
}

func (t *txView) Delete(ctx context.Context, table store.Table, id string) error {
	delete(t.parent.table(table), id)
	return nil
}

func (t *txView) Get(ctx context.Context, table store.Table, id string) (store.Row, bool, error) {
	row, ok := t.parent.tables[table][id]
	return row, ok, nil
}

func (t *txView) ANN(ctx context.Context, table store.Table, embedding []float32, k int, predicate *filter.Compiled) ([]store.Hit, error) {
	return t.parent.ANN(ctx, table, embedding, k, predicate)
}

func (t *txView) Lex(ctx context.Context, table store.Table, tokens []string, k int, predicate *filter.Compiled) ([]store.Hit, error) {
	return t.parent.Lex(ctx, table, tokens, k, predicate)
}

func (t *txView) Scan(ctx context.Context, table store.Table, predicate *filter.Compiled, limit int, order store.Order) ([]store.Row, error) {
	return t.parent.Scan(ctx, table, predicate, limit, order)
}

func (t *txView) Tx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	return fn(ctx, t)
}

func (t *txView) Overloaded(ctx context.Context) bool { return false }

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// lexScore is a naive field-weighted token-overlap score (title >> content >>
// tags), standing in for a BM25-family ranker (spec.md: "equivalent in
// ordering, not algorithmic identity").
func lexScore(row store.Row, queryTokens map[string]struct{}) float64 {
	var score float64
	if title, ok := row.Fields["title"].(string); ok {
		score += 3 * overlapCount(title, queryTokens)
	}
	if content, ok := row.Fields["content"].(string); ok {
		score += overlapCount(content, queryTokens)
	}
	for _, tag := range row.Tags {
		if _, ok := queryTokens[strings.ToLower(tag)]; ok {
			score += 0.5
		}
	}
	return score
}

func overlapCount(text string, queryTokens map[string]struct{}) float64 {
	var count float64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		if _, ok := queryTokens[word]; ok {
			count++
		}
	}
	return count
}

func sortValue(row store.Row, field string) float64 {
	switch field {
	case "created_at", "":
		return float64(row.CreatedAt.UnixNano())
	case "importance":
		return row.Importance
	default:
		switch v := row.Fields[field].(type) {
		case int64:
			return float64(v)
		case float64:
			return v
		default:
			return 0
		}
	}
}
