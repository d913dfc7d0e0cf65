package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/marginalia-labs/marginalia/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestSortRAGChunksTieBreak(t *testing.T) {
	idA := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	idB := uuid.MustParse("00000000-0000-0000-0000-00000000000b")

	chunks := []*types.RAGChunk{
		{InsightID: idB, ChunkIndex: 0, Score: 0.5},
		{InsightID: idA, ChunkIndex: 1, Score: 0.5},
		{InsightID: idA, ChunkIndex: 0, Score: 0.5},
		{InsightID: idA, ChunkIndex: 0, Score: 0.9},
	}
	sortRAGChunks(chunks)

	assert.Equal(t, 0.9, chunks[0].Score, "descending score first")
	// Ties resolve by (insight_id, chunk_index) ascending.
	assert.Equal(t, idA, chunks[1].InsightID)
	assert.Equal(t, 0, chunks[1].ChunkIndex)
	assert.Equal(t, idA, chunks[2].InsightID)
	assert.Equal(t, 1, chunks[2].ChunkIndex)
	assert.Equal(t, idB, chunks[3].InsightID)
}
