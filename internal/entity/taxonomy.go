package entity

import "time"

// TaxonomyMatchCacheEntry maps a (normalized label, taxonomy template hash)
// pair to the taxonomy header it resolved to. Entries are written once on the
// first successful fallback match and are immutable afterwards; a changed
// template produces a different hash and therefore a disjoint key space.
type TaxonomyMatchCacheEntry struct {
	NormalizedLabel string    `json:"normalized_label"`
	TemplateHash    string    `json:"template_hash"`
	MatchedHeader   string    `json:"matched_header"`
	Source          string    `json:"source"` // "exact" | "cache" | "llm"
	CreatedAt       time.Time `json:"created_at"`
}
