package models

import "time"

// MemoryRecord is one entry in the append-only retrieval memory.
// Once written it is never edited in place; superseded records are merely
// outranked until eviction prunes them.
type MemoryRecord struct {
	ID         string    `json:"id"`
	Embedding  []float32 `json:"embedding,omitempty"`
	SourceText string    `json:"source_text"`
	AssetID    string    `json:"asset_id,omitempty"`
	Importance float64   `json:"importance"`
	Timestamp  time.Time `json:"timestamp"`
}

// ScoredRecord pairs a memory record with its combined retrieval score.
type ScoredRecord struct {
	Record MemoryRecord `json:"record"`
	Score  float64      `json:"score"`
}
