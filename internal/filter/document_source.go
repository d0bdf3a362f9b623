package filter

import (
	"github.com/layeredmemory/engine/internal/types"
)

// DocumentSource adapts a types.Document to FieldSource for in-memory
// evaluation, exposing both its top-level scalar fields and its nested
// Metadata map under dot-notation paths.
func DocumentSource(doc *types.Document) FieldSource {
	flat := map[string]any{
		"id":         doc.ID,
		"kind":       string(doc.Kind),
		"user_id":    doc.UserID,
		"source_id":  doc.SourceID,
		"content":    doc.Content,
		"tags":       doc.Tags,
		"importance": doc.Importance,
		"created_at": doc.CreatedAt,
	}
	if doc.Metadata != nil {
		flat["metadata"] = doc.Metadata
	}
	return MapSource(flat)
}

// KnowledgeItemSource adapts a types.KnowledgeItem to FieldSource.
func KnowledgeItemSource(k *types.KnowledgeItem) FieldSource {
	flat := map[string]any{
		"id":               k.ID,
		"user_id":          k.UserID,
		"category":         string(k.Category),
		"content":          k.Content,
		"tags":             k.Tags,
		"importance":       k.Importance,
		"confidence":       k.Confidence,
		"created_at":       k.CreatedAt,
		"updated_at":       k.UpdatedAt,
		"last_accessed_at": k.LastAccessedAt,
	}
	if k.Metadata != nil {
		flat["metadata"] = k.Metadata
	}
	return MapSource(flat)
}

// EpisodeSource adapts a types.Episode to FieldSource.
func EpisodeSource(e *types.Episode) FieldSource {
	flat := map[string]any{
		"id":            e.ID,
		"user_id":       e.UserID,
		"source_kind":   string(e.SourceKind),
		"source_id":     e.SourceID,
		"message_count": e.MessageCount,
		"date_from":     e.DateFrom,
		"date_to":       e.DateTo,
		"tags":          e.Tags,
		"importance":    e.Importance,
		"created_at":    e.CreatedAt,
	}
	if e.Metadata != nil {
		flat["metadata"] = e.Metadata
	}
	return MapSource(flat)
}
