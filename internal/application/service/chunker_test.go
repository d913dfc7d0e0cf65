package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkerEmptyInput(t *testing.T) {
	chunker := NewChunkerService(DefaultChunkerConfig())

	assert.Empty(t, chunker.Split(""))
	assert.Empty(t, chunker.Split("   \n\n  "))
}

func TestChunkerShortInput(t *testing.T) {
	chunker := NewChunkerService(DefaultChunkerConfig())

	chunks := chunker.Split("a short paragraph")
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "a short paragraph", chunks[0].Text)
	assert.Equal(t, len("a short paragraph"), chunks[0].Size)
	assert.Greater(t, chunks[0].EstimatedTokens, 0)
}

func TestChunkerContiguousIndexes(t *testing.T) {
	chunker := NewChunkerService(DefaultChunkerConfig())

	var sb strings.Builder
	for i := 0; i < 60; i++ {
		sb.WriteString("This is sentence number one of a fairly long paragraph used for splitting. ")
		if i%5 == 4 {
			sb.WriteString("\n\n")
		}
	}
	chunks := chunker.Split(sb.String())
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index, "chunk_index values must be contiguous from 0")
		assert.Greater(t, c.Size, 0)
	}
}

func TestChunkerHardCap(t *testing.T) {
	cfg := ChunkerConfig{ChunkSize: 100, Overlap: 20}
	chunker := NewChunkerService(cfg)
	hardCap := cfg.ChunkSize + cfg.ChunkSize/4

	tests := []struct {
		name  string
		input string
	}{
		{"no separators at all", strings.Repeat("x", 1000)},
		{"only spaces", strings.Repeat("word ", 300)},
		{"paragraph structure", strings.Repeat("some words here. more words follow.\n\n", 30)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, c := range chunker.Split(tt.input) {
				assert.LessOrEqual(t, len([]rune(c.Text)), hardCap,
					"a chunk never exceeds 1.25x the target size")
			}
		})
	}
}

func TestChunkerOverlapCarriesTail(t *testing.T) {
	cfg := ChunkerConfig{ChunkSize: 100, Overlap: 30}
	chunker := NewChunkerService(cfg)

	input := strings.Repeat("alpha beta gamma delta epsilon zeta. ", 30)
	chunks := chunker.Split(input)
	require.Greater(t, len(chunks), 2)

	// Each chunk after the first should start with text carried over from
	// the preceding chunk.
	for i := 1; i < len(chunks); i++ {
		head := []rune(chunks[i].Text)
		if len(head) > 10 {
			head = head[:10]
		}
		assert.Contains(t, chunks[i-1].Text, string(head))
	}
}

func TestChunkerPreservesAllContent(t *testing.T) {
	chunker := NewChunkerService(ChunkerConfig{ChunkSize: 80, Overlap: 0})
	input := strings.TrimSpace(strings.Repeat("unique-token-stream flows onwards. ", 20))

	chunks := chunker.Split(input)
	var rejoined strings.Builder
	for _, c := range chunks {
		rejoined.WriteString(c.Text)
		rejoined.WriteString(" ")
	}
	// With zero overlap nothing should be lost.
	assert.Equal(t,
		strings.Fields(input),
		strings.Fields(strings.TrimSpace(rejoined.String())),
	)
}
