package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/marginalia-labs/marginalia/internal/application/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExtractedMemories(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
		wantErr bool
	}{
		{
			"plain array",
			`[{"memory_type":"fact","content":"works at a lab","importance_score":0.7}]`,
			1, false,
		},
		{
			"fenced output",
			"```json\n[{\"memory_type\":\"user_preference\",\"content\":\"prefers short answers\",\"importance_score\":0.9}]\n```",
			1, false,
		},
		{
			"prose wrapped",
			`Here is what I extracted: [{"memory_type":"context","content":"planning a trip","importance_score":0.4}] Hope that helps.`,
			1, false,
		},
		{"empty array", `[]`, 0, false},
		{"no json at all", `nothing to extract`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := parseExtractedMemories(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, items, tt.want)
		})
	}
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-0.5))
	assert.Equal(t, 1.0, clamp01(1.5))
	assert.Equal(t, 0.42, clamp01(0.42))
}

func TestValidMemoryType(t *testing.T) {
	assert.True(t, validMemoryType(repository.MemoryTypeFact))
	assert.True(t, validMemoryType(repository.MemoryTypePreference))
	assert.False(t, validMemoryType(repository.MemoryType("opinion")))
}

func memRow(content string, importance float64) *repository.ChatMemory {
	return &repository.ChatMemory{
		ID:              uuid.New(),
		MemoryType:      repository.MemoryTypeFact,
		Content:         content,
		ImportanceScore: importance,
		IsActive:        true,
	}
}

func TestMergeBySimilarity(t *testing.T) {
	svc := sharedPreprocess()

	rows := []*repository.ChatMemory{
		memRow("the user works on distributed database systems at a research lab", 0.6),
		memRow("the user works on distributed database systems at a research lab in europe", 0.8),
		memRow("the user enjoys hiking on weekends", 0.5),
	}
	merged := mergeBySimilarity(rows, 0.6, svc)
	require.Len(t, merged, 2, "near-duplicates merge, distinct memories survive")

	var dbEntry *repository.ChatMemory
	for _, m := range merged {
		if m.Content != "the user enjoys hiking on weekends" {
			dbEntry = m
		}
	}
	require.NotNil(t, dbEntry)
	assert.Equal(t, 0.8, dbEntry.ImportanceScore, "merged entry keeps the higher importance")
	assert.Contains(t, dbEntry.Content, "europe", "merged content is the longer variant")
}

func TestTextSimilarity(t *testing.T) {
	svc := sharedPreprocess()

	same := textSimilarity("enjoys hiking on weekends", "enjoys hiking on weekends", svc)
	assert.Greater(t, same, 0.99)

	disjoint := textSimilarity("enjoys hiking on weekends", "writing compilers in rust", svc)
	assert.Less(t, disjoint, 0.2)
}

func TestMergeContents(t *testing.T) {
	assert.Equal(t, "a longer text body", mergeContents("a longer text body", "longer text"))
	merged := mergeContents("first fact", "second fact")
	assert.Contains(t, merged, "first fact")
	assert.Contains(t, merged, "second fact")
}
