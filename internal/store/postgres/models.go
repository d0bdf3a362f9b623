package postgres

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// row is the GORM model backing every logical table. A single wide table
// (discriminated by the store.Table passed to each call) keeps the schema
// close to the teacher's pgVector embedding table while still covering
// persona/knowledge/episode/instance payloads; TableName is set per-call via
// db.Table(string(table)) rather than a fixed struct tag, since store.Store
// is table-parameterized.
type row struct {
	ID             string         `gorm:"column:id;primaryKey"`
	UserID         string         `gorm:"column:user_id;index"`
	Title          string         `gorm:"column:title"`
	Content        string         `gorm:"column:content"`
	Tags           pgStringArray  `gorm:"column:tags;type:text[]"`
	Metadata       pgJSONB        `gorm:"column:metadata;type:jsonb"`
	Importance     float64        `gorm:"column:importance;index"`
	Embedding      pgvector.HalfVector `gorm:"column:embedding"`
	TSVector       string         `gorm:"column:tsv;type:tsvector;->"`
	ExtraFields    pgJSONB        `gorm:"column:extra_fields;type:jsonb"`
	CreatedAt      time.Time      `gorm:"column:created_at;index"`
	UpdatedAt      time.Time      `gorm:"column:updated_at"`
}

// rowWithScore adds the similarity/relevance score projected by an ANN or
// Lex query, mirroring the teacher's pgVectorWithScore pattern.
type rowWithScore struct {
	row
	Score float64 `gorm:"column:score"`
}
