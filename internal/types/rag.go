package types

import "github.com/google/uuid"

// RAGChunk is one retrieved chunk joined with its parent insight metadata.
type RAGChunk struct {
	ChunkID        uuid.UUID `json:"chunk_id"`
	InsightID      uuid.UUID `json:"insight_id"`
	ChunkIndex     int       `json:"chunk_index"`
	ChunkText      string    `json:"chunk_text"`
	ChunkSize      int       `json:"chunk_size"`
	Score          float64   `json:"score"`
	InsightTitle   string    `json:"insight_title"`
	InsightURL     string    `json:"insight_url"`
	InsightSummary string    `json:"insight_summary"`
}

// RAGContext is the citation-indexed block of chunk texts passed to the LLM.
type RAGContext struct {
	Text               string      `json:"text"`
	Chunks             []*RAGChunk `json:"chunks"`
	TotalContextTokens int         `json:"total_context_tokens"`
	Keywords           []string    `json:"keywords"`
}
