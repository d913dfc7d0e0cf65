package service

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/marginalia-labs/marginalia/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ragChunk(text, title, url string, score float64) *types.RAGChunk {
	return &types.RAGChunk{
		ChunkID:      uuid.New(),
		InsightID:    uuid.New(),
		ChunkText:    text,
		ChunkSize:    len(text),
		Score:        score,
		InsightTitle: title,
		InsightURL:   url,
	}
}

func TestContextBuilderEmpty(t *testing.T) {
	builder := NewContextBuilder()

	rc := builder.Build(nil, 2000)
	require.NotNil(t, rc)
	assert.Empty(t, rc.Text)
	assert.Empty(t, rc.Chunks)
	assert.Zero(t, rc.TotalContextTokens)
}

func TestContextBuilderFormat(t *testing.T) {
	builder := NewContextBuilder()
	chunk := ragChunk("attention is all you need", "Transformers", "https://arxiv.org/abs/1706.03762", 0.91)
	chunk.InsightSummary = "the transformer paper"

	rc := builder.Build([]*types.RAGChunk{chunk}, 2000)
	require.Len(t, rc.Chunks, 1)
	assert.Contains(t, rc.Text, "【1 | 0.91】attention is all you need")
	assert.Contains(t, rc.Text, "来源标题: Transformers")
	assert.Contains(t, rc.Text, "来源链接: https://arxiv.org/abs/1706.03762")
	assert.Contains(t, rc.Text, "内容摘要: the transformer paper")
}

func TestContextBuilderOmitsEmptySummary(t *testing.T) {
	builder := NewContextBuilder()
	rc := builder.Build([]*types.RAGChunk{
		ragChunk("text body", "Title", "https://example.com", 0.5),
	}, 2000)
	assert.NotContains(t, rc.Text, "内容摘要")
}

func TestContextBuilderBudget(t *testing.T) {
	builder := NewContextBuilder()
	big := strings.Repeat("many words in a long chunk body ", 40)
	chunks := []*types.RAGChunk{
		ragChunk(big, "A", "https://a.example", 0.9),
		ragChunk(big, "B", "https://b.example", 0.8),
		ragChunk(big, "C", "https://c.example", 0.7),
	}

	rc := builder.Build(chunks, 100)
	assert.Len(t, rc.Chunks, 1,
		"always include at least one chunk even when it alone exceeds the budget")
	assert.Equal(t, "A", rc.Chunks[0].InsightTitle, "chunks accumulate in score order")
}

func TestContextBuilderKeywords(t *testing.T) {
	builder := NewContextBuilder()
	rc := builder.Build([]*types.RAGChunk{
		ragChunk("body", "Neural Networks Primer", "https://blog.example.com/nn", 0.9),
		ragChunk("body2", "Neural Networks Primer", "https://blog.example.com/nn2", 0.8),
	}, 2000)

	assert.Contains(t, rc.Keywords, "blog.example.com")
	assert.Contains(t, rc.Keywords, "Neural")
	// Duplicates collapse.
	count := 0
	for _, k := range rc.Keywords {
		if k == "Neural" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
