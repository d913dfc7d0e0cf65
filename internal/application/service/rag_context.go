package service

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/marginalia-labs/marginalia/internal/types"
	"github.com/marginalia-labs/marginalia/internal/utils"
)

// ContextBuilder formats retrieved chunks into a citation-numbered,
// token-budgeted prompt section.
type ContextBuilder struct{}

func NewContextBuilder() *ContextBuilder { return &ContextBuilder{} }

// Build accumulates chunks in score order until the token budget is exceeded.
// At least one chunk is always included when any were retrieved, even if it
// alone exceeds the budget. Zero chunks produce an empty context, not an error.
func (b *ContextBuilder) Build(chunks []*types.RAGChunk, budget int) *types.RAGContext {
	if budget <= 0 {
		budget = 2000
	}
	rc := &types.RAGContext{}
	if len(chunks) == 0 {
		return rc
	}

	var sb strings.Builder
	var total int
	for i, chunk := range chunks {
		chunkTokens := utils.EstimateTokensUnclamped(chunk.ChunkText)
		if total+chunkTokens > budget && len(rc.Chunks) > 0 {
			break
		}
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(fmt.Sprintf("【%d | %.2f】%s\n", len(rc.Chunks)+1, chunk.Score, chunk.ChunkText))
		sb.WriteString(fmt.Sprintf("来源标题: %s\n", chunk.InsightTitle))
		sb.WriteString(fmt.Sprintf("来源链接: %s", chunk.InsightURL))
		if chunk.InsightSummary != "" {
			sb.WriteString(fmt.Sprintf("\n内容摘要: %s", chunk.InsightSummary))
		}
		rc.Chunks = append(rc.Chunks, chunk)
		total += chunkTokens
	}
	rc.Text = sb.String()
	rc.TotalContextTokens = total
	rc.Keywords = extractKeywords(rc.Chunks)
	return rc
}

// extractKeywords collects unique domain and title tokens from the included
// chunks, used for audit logging on the persisted retrieval trace.
func extractKeywords(chunks []*types.RAGChunk) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(token string) {
		token = strings.TrimSpace(token)
		if token == "" {
			return
		}
		if _, dup := seen[token]; dup {
			return
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	for _, c := range chunks {
		if u, err := url.Parse(c.InsightURL); err == nil && u.Hostname() != "" {
			add(u.Hostname())
		}
		for _, word := range strings.Fields(c.InsightTitle) {
			if len([]rune(word)) > 1 {
				add(word)
			}
		}
	}
	return out
}
