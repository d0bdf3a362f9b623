// Package store defines the Vector Store abstraction (spec.md §4.A): a
// persistent KV store with vector ANN search and a full-text index, realized
// as tagged variants (store/postgres, store/memory, store/qdrant) per the
// design note "plugin-style storage and cache backends".
package store

import (
	"context"
	"time"

	"github.com/layeredmemory/engine/internal/filter"
)

// Table names the logical table the contract operates over (spec.md §6
// "Storage schema highlights").
type Table string

const (
	TablePersona      Table = "user_persona"
	TableKnowledge    Table = "knowledge_base"
	TableEpisode      Table = "episodes"
	TableInstance     Table = "instances"
	TableMessage      Table = "conversation_messages"
	TableConversation Table = "conversations"
	TableAudit        Table = "lifecycle_audit_log"
)

// Row is a store-agnostic payload: a flat map plus the metadata/tags/embedding
// fields the Filter Algebra and retriever both need.
type Row struct {
	ID         string
	Fields     map[string]any
	Tags       []string
	Metadata   map[string]any
	Embedding  []float32
	Importance float64
	CreatedAt  time.Time
}

// Hit is a single row returned from ANN or Lex, carrying its similarity/relevance.
type Hit struct {
	Row   Row
	Score float64 // ANN: cosine similarity; Lex: backend-specific, unnormalized relevance
}

// Store is the Vector Store contract from spec.md §4.A. All operations are
// atomic unless noted; ANN/Lex/Scan accept a pre-compiled filter so predicate
// evaluation is pushed down rather than applied after retrieval.
type Store interface {
	Put(ctx context.Context, table Table, row Row) error
	Update(ctx context.Context, table Table, id string, patch map[string]any) error
	Delete(ctx context.Context, table Table, id string) error

	// ANN returns the top-k rows by cosine similarity where predicate holds.
	ANN(ctx context.Context, table Table, embedding []float32, k int, predicate *filter.Compiled) ([]Hit, error)

	// Lex returns the top-k rows by field-weighted lexical relevance
	// (BM25-family; field weights: title >> content >> tags).
	Lex(ctx context.Context, table Table, tokens []string, k int, predicate *filter.Compiled) ([]Hit, error)

	// Scan returns paged rows for filter-only queries (no ranking).
	Scan(ctx context.Context, table Table, predicate *filter.Compiled, limit int, order Order) ([]Row, error)

	// Get fetches a single row by id, for point reads that don't warrant a Scan.
	Get(ctx context.Context, table Table, id string) (Row, bool, error)

	// Tx runs fn inside a bounded transaction, for the episodic pipeline's
	// all-or-nothing group commits.
	Tx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// Overloaded reports best-effort backpressure (spec.md §5 "Backpressure").
	Overloaded(ctx context.Context) bool
}

// Order describes the sort applied by Scan.
type Order struct {
	Field      string
	Descending bool
}

// ErrUnsupported is returned by a tagged Store variant for an operation its
// backing engine cannot perform (e.g. store/qdrant has no lexical index).
type ErrUnsupported struct {
	Op string
}

func (e *ErrUnsupported) Error() string { return "store: unsupported operation: " + e.Op }
