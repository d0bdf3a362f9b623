package filter

import "sync"

// TypeRegistry holds the declared type for every field the compiler can see,
// used by the compile-time type-check step (spec.md §4.C step 4). A registry
// is built once per Store implementation and shared across compiles.
type TypeRegistry struct {
	mu     sync.RWMutex
	fields map[string]FieldType
}

// NewTypeRegistry builds a registry seeded with fields.
func NewTypeRegistry(fields map[string]FieldType) *TypeRegistry {
	r := &TypeRegistry{fields: make(map[string]FieldType, len(fields))}
	for k, v := range fields {
		r.fields[k] = v
	}
	return r
}

// Declare registers or overrides a field's type.
func (r *TypeRegistry) Declare(field string, t FieldType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields[field] = t
}

// Lookup returns the declared type for field, if any. Fields under
// "metadata." are not required to be pre-declared; unknown fields are
// treated as untyped and pass type-check (a missing nested key is a runtime
// concern per spec.md §4.C, not a compile-time one).
func (r *TypeRegistry) Lookup(field string) (FieldType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.fields[field]
	return t, ok
}

// DefaultTypeRegistry declares the well-known entity fields used across
// KnowledgeItem, Episode and Instance (spec.md §3, §6).
func DefaultTypeRegistry() *TypeRegistry {
	return NewTypeRegistry(map[string]FieldType{
		"id":               TypeString,
		"user_id":          TypeString,
		"category":         TypeString,
		"content":          TypeString,
		"tags":             TypeArray,
		"importance":       TypeNumber,
		"confidence":       TypeNumber,
		"created_at":       TypeTimestamp,
		"updated_at":       TypeTimestamp,
		"last_accessed_at": TypeTimestamp,
		"source_kind":      TypeString,
		"source_id":        TypeString,
		"message_count":    TypeNumber,
		"date_from":        TypeTimestamp,
		"date_to":          TypeTimestamp,
		"compressed":       TypeBool,
	})
}
