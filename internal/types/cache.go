package types

import "time"

// CacheEntryKind identifies the three cache-only record kinds from spec.md §3.
type CacheEntryKind string

const (
	CacheKindPersona          CacheEntryKind = "persona"
	CacheKindQuery            CacheEntryKind = "query"
	CacheKindInputFingerprint CacheEntryKind = "input_fingerprint"
)

// CacheHitKind distinguishes an exact-key hit from a semantic-match hit (spec.md §4.F).
type CacheHitKind string

const (
	CacheHitNone     CacheHitKind = ""
	CacheHitExact    CacheHitKind = "exact"
	CacheHitSemantic CacheHitKind = "semantic"
)

// QueryCacheEntry is the value stored under query:<user>:<fingerprint>.
type QueryCacheEntry struct {
	Fingerprint string          `json:"fingerprint"`
	Query       string          `json:"query"`
	Embedding   []float32       `json:"embedding"`
	Results     []*RetrieveHit  `json:"results"`
	Stats       *OptimizerStats `json:"stats,omitempty"`
	StoredAt    time.Time       `json:"stored_at"`
	AccessCount int64           `json:"access_count"`
}
