// Package postgres implements the Vector Store contract over GORM + pgvector,
// grounded in the teacher's retriever/postgres repository: pgvector halfvec
// cosine search for ANN, a tsvector+GIN column for Lex, field weights
// title > content > tags (spec.md §6).
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/layeredmemory/engine/internal/errors"
	"github.com/layeredmemory/engine/internal/filter"
	"github.com/layeredmemory/engine/internal/logger"
	"github.com/layeredmemory/engine/internal/store"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is a GORM-backed store.Store implementation. One instance is shared
// across all tables; the table name is supplied per call.
type Store struct {
	db        *gorm.DB
	dimension map[store.Table]int
}

var _ store.Store = (*Store)(nil)

// New wraps db. dimension maps each table to its embedding column width
// (D_SEM for knowledge_base/user_persona, D_EPI for episodes/instances).
func New(db *gorm.DB, dimension map[store.Table]int) *Store {
	return &Store{db: db, dimension: dimension}
}

func toRow(r store.Row) row {
	extra := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		extra[k] = v
	}
	title, _ := r.Fields["title"].(string)
	content, _ := r.Fields["content"].(string)
	if content == "" {
		content, _ = r.Fields["raw_content"].(string)
	}
	return row{
		ID:          r.ID,
		UserID:      fmt.Sprintf("%v", r.Fields["user_id"]),
		Title:       title,
		Content:     content,
		Tags:        pgStringArray(r.Tags),
		Metadata:    pgJSONB(r.Metadata),
		Importance:  r.Importance,
		Embedding:   pgvector.NewHalfVector(r.Embedding),
		ExtraFields: pgJSONB(extra),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   time.Now(),
	}
}

func fromRow(r row) store.Row {
	fields := map[string]any(r.ExtraFields)
	if fields == nil {
		fields = map[string]any{}
	}
	fields["user_id"] = r.UserID
	if r.Title != "" {
		fields["title"] = r.Title
	}
	if r.Content != "" {
		fields["content"] = r.Content
	}
	return store.Row{
		ID:         r.ID,
		Fields:     fields,
		Tags:       []string(r.Tags),
		Metadata:   map[string]any(r.Metadata),
		Embedding:  r.Embedding.Slice(),
		Importance: r.Importance,
		CreatedAt:  r.CreatedAt,
	}
}

func (s *Store) Put(ctx context.Context, table store.Table, r store.Row) error {
	dbRow := toRow(r)
	err := s.db.WithContext(ctx).Table(string(table)).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&dbRow).Error
	if err != nil {
		logger.Errorf(ctx, "postgres store: put into %s failed: %v", table, err)
		return apperrors.NewTransient("store put failed").WithCause(err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, table store.Table, id string, patch map[string]any) error {
	result := s.db.WithContext(ctx).Table(string(table)).Where("id = ?", id).Updates(patch)
	if result.Error != nil {
		return apperrors.NewTransient("store update failed").WithCause(result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFound("row not found: " + id)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table store.Table, id string) error {
	if err := s.db.WithContext(ctx).Table(string(table)).Where("id = ?", id).Delete(&row{}).Error; err != nil {
		return apperrors.NewTransient("store delete failed").WithCause(err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, table store.Table, id string) (store.Row, bool, error) {
	var dbRow row
	err := s.db.WithContext(ctx).Table(string(table)).Where("id = ?", id).First(&dbRow).Error
	if err == gorm.ErrRecordNotFound {
		return store.Row{}, false, nil
	}
	if err != nil {
		return store.Row{}, false, apperrors.NewTransient("store get failed").WithCause(err)
	}
	return fromRow(dbRow), true, nil
}

func (s *Store) whereClauses(predicate *filter.Compiled) []clause.Expression {
	if predicate == nil {
		return nil
	}
	sql, args := predicate.SQL()
	if sql == "" || sql == "TRUE" {
		return nil
	}
	return []clause.Expression{clause.Expr{SQL: sql, Vars: args}}
}

// ANN performs a pgvector halfvec cosine search (1 - cosine_distance), the
// same `<=>` operator and projection the teacher's VectorRetrieve uses.
func (s *Store) ANN(
	ctx context.Context, table store.Table, embedding []float32, k int, predicate *filter.Compiled,
) ([]store.Hit, error) {
	dim := s.dimension[table]
	vec := pgvector.NewHalfVector(embedding)

	q := s.db.WithContext(ctx).Table(string(table)).
		Clauses(s.whereClauses(predicate)...).
		Select(fmt.Sprintf("*, (1 - (embedding::halfvec(%d) <=> ?::halfvec)) as score", dim), vec).
		Order(clause.Expr{SQL: fmt.Sprintf("embedding::halfvec(%d) <=> ?::halfvec", dim), Vars: []any{vec}}).
		Limit(k)

	var rows []rowWithScore
	if err := q.Find(&rows).Error; err != nil {
		logger.Errorf(ctx, "postgres store: ann over %s failed: %v", table, err)
		return nil, apperrors.NewTransient("store ann failed").WithCause(err)
	}
	hits := make([]store.Hit, len(rows))
	for i, r := range rows {
		hits[i] = store.Hit{Row: fromRow(r.row), Score: r.Score}
	}
	return hits, nil
}

// Lex performs a tsvector full-text search with field weighting
// (title > content > tags), matching the paradedb-equivalent full-text
// pattern the teacher uses, adapted to a tsvector+GIN column. Tokens are
// OR'd together via to_tsquery's "|" operator rather than plainto_tsquery,
// which ANDs every term and strips "|" as punctuation — a lex query must
// match a document containing any of the tokens (spec.md §8 scenario 1), not
// only one containing all of them.
func (s *Store) Lex(
	ctx context.Context, table store.Table, tokens []string, k int, predicate *filter.Compiled,
) ([]store.Hit, error) {
	query := toTsQueryOr(tokens)
	if query == "" {
		return nil, nil
	}

	q := s.db.WithContext(ctx).Table(string(table)).
		Clauses(s.whereClauses(predicate)...).
		Where("tsv @@ to_tsquery(?)", query).
		Select("*, ts_rank(tsv, to_tsquery(?)) as score", query).
		Order("score DESC").
		Limit(k)

	var rows []rowWithScore
	if err := q.Find(&rows).Error; err != nil {
		logger.Errorf(ctx, "postgres store: lex over %s failed: %v", table, err)
		return nil, apperrors.NewTransient("store lex failed").WithCause(err)
	}
	hits := make([]store.Hit, len(rows))
	for i, r := range rows {
		hits[i] = store.Hit{Row: fromRow(r.row), Score: r.Score}
	}
	return hits, nil
}

// tsQueryLexeme strips characters to_tsquery would otherwise treat as
// operator syntax (&, |, !, (, ), :) out of a raw query token.
var tsQueryLexeme = strings.NewReplacer("&", "", "|", "", "!", "", "(", "", ")", "", ":", "")

// toTsQueryOr builds a to_tsquery expression that matches any one of tokens,
// e.g. ["vector", "search"] -> "vector | search".
func toTsQueryOr(tokens []string) string {
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		clean := strings.TrimSpace(tsQueryLexeme.Replace(tok))
		if clean == "" {
			continue
		}
		terms = append(terms, clean)
	}
	return strings.Join(terms, " | ")
}

func (s *Store) Scan(
	ctx context.Context, table store.Table, predicate *filter.Compiled, limit int, order store.Order,
) ([]store.Row, error) {
	q := s.db.WithContext(ctx).Table(string(table)).Clauses(s.whereClauses(predicate)...)
	if order.Field != "" {
		dir := "ASC"
		if order.Descending {
			dir = "DESC"
		}
		q = q.Order(order.Field + " " + dir)
	}
	if limit >= 0 {
		q = q.Limit(limit)
	}
	var rows []row
	if err := q.Find(&rows).Error; err != nil {
		return nil, apperrors.NewTransient("store scan failed").WithCause(err)
	}
	out := make([]store.Row, len(rows))
	for i, r := range rows {
		out[i] = fromRow(r)
	}
	return out, nil
}

func (s *Store) Tx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		txStore := &Store{db: gtx, dimension: s.dimension}
		return fn(ctx, txStore)
	})
}

// Overloaded reports whether the underlying connection pool is saturated,
// checked via the sql.DB stats (spec.md §5 "Pool exhaustion ... fails with a
// transient error").
func (s *Store) Overloaded(ctx context.Context) bool {
	sqlDB, err := s.db.DB()
	if err != nil {
		return false
	}
	stats := sqlDB.Stats()
	return stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections
}
