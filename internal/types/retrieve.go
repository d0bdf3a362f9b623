package types

import "time"

// EntityKind identifies which table a retrieved document came from.
type EntityKind string

const (
	EntityPersona       EntityKind = "persona"
	EntityKnowledgeItem EntityKind = "knowledge_item"
	EntityEpisode       EntityKind = "episode"
	EntityInstance      EntityKind = "instance"
)

// Document is a generic retrievable row: a flattened view over KnowledgeItem,
// Episode or Instance sufficient for ranking, filtering and optimization without
// the retriever/optimizer packages depending on every concrete entity type.
type Document struct {
	ID         string         `json:"id"`
	Kind       EntityKind     `json:"kind"`
	UserID     string         `json:"user_id"`
	SourceID   string         `json:"source_id"`
	Content    string         `json:"content"`
	Tags       []string       `json:"tags,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Importance float64        `json:"importance"`
	Embedding  []float32      `json:"embedding,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// RetrieveHit is a single ranked result returned by the hybrid retriever
// (spec.md §4.D step 7).
type RetrieveHit struct {
	Doc             *Document `json:"doc"`
	VectorScore     float64   `json:"vector_score"`
	LexScore        float64   `json:"lex_score"`
	FusedScore      float64   `json:"fused_score"`
	Reasons         []string  `json:"reasons,omitempty"`
	HasContradiction bool     `json:"has_contradiction,omitempty"`
	ContradictsWith []int     `json:"contradicts_with,omitempty"`
}
