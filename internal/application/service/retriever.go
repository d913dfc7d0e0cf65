package service

import (
	"context"
	"sort"

	"github.com/marginalia-labs/marginalia/internal/application/repository"
	"github.com/marginalia-labs/marginalia/internal/common"
	"github.com/marginalia-labs/marginalia/internal/logger"
	"github.com/marginalia-labs/marginalia/internal/types"
	"github.com/marginalia-labs/marginalia/internal/utils"
	"github.com/pgvector/pgvector-go"
)

// RetrieverService embeds the query and runs the cosine-similarity search
// over the user's chunks, joining parent insight metadata.
type RetrieverService struct {
	llm         *LLMService
	chunkRepo   repository.InsightChunkRepository
	insightRepo repository.InsightRepository
	contentRepo repository.InsightContentRepository
}

func NewRetrieverService(
	llm *LLMService,
	chunkRepo repository.InsightChunkRepository,
	insightRepo repository.InsightRepository,
	contentRepo repository.InsightContentRepository,
) *RetrieverService {
	return &RetrieverService{
		llm:         llm,
		chunkRepo:   chunkRepo,
		insightRepo: insightRepo,
		contentRepo: contentRepo,
	}
}

// Search retrieves the top-k chunks for query scoped to userID. Fail-closed:
// when query embedding fails, retrieval returns empty and the chat engine
// falls back to a no-context prompt.
func (s *RetrieverService) Search(
	ctx context.Context, query, userID string, k int, minScore float64,
) []*types.RAGChunk {
	if k <= 0 || minScore > 1.0 {
		return nil
	}
	queryVec, err := s.llm.Embed(ctx, query)
	if err != nil {
		common.PipelineWarn(ctx, "Search", "query_embedding_failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	rows, err := s.chunkRepo.SearchCosine(ctx, userID, pgvector.NewVector(queryVec), k, minScore)
	if err != nil {
		logger.Warnf(ctx, "db-side cosine search failed, falling back to client-side: %v", err)
		return s.searchClientSide(ctx, queryVec, userID, k, minScore)
	}

	out := make([]*types.RAGChunk, 0, len(rows))
	for _, row := range rows {
		out = append(out, &types.RAGChunk{
			ChunkID:        row.ChunkID,
			InsightID:      row.InsightID,
			ChunkIndex:     row.ChunkIndex,
			ChunkText:      row.ChunkText,
			ChunkSize:      row.ChunkSize,
			Score:          utils.ClampScore(row.Similarity),
			InsightTitle:   row.InsightTitle,
			InsightURL:     row.InsightURL,
			InsightSummary: row.InsightSummary,
		})
	}
	return out
}

// searchClientSide is the in-memory execution strategy: load every embedded
// chunk of the user and compute cosine locally. Acceptable while per-user
// chunk counts stay modest; the DB-side HNSW path is primary.
func (s *RetrieverService) searchClientSide(
	ctx context.Context, queryVec []float32, userID string, k int, minScore float64,
) []*types.RAGChunk {
	chunks, err := s.chunkRepo.AllEmbeddingsForUser(ctx, userID)
	if err != nil {
		logger.Errorf(ctx, "client-side chunk load failed: %v", err)
		return nil
	}

	scored := make([]*types.RAGChunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Embedding == nil {
			continue
		}
		score := utils.ClampScore(utils.CosineSimilarity(queryVec, c.Embedding.Slice()))
		if score < minScore {
			continue
		}
		scored = append(scored, &types.RAGChunk{
			ChunkID:    c.ID,
			InsightID:  c.InsightID,
			ChunkIndex: c.ChunkIndex,
			ChunkText:  c.ChunkText,
			ChunkSize:  c.ChunkSize,
			Score:      score,
		})
	}
	sortRAGChunks(scored)
	if len(scored) > k {
		scored = scored[:k]
	}
	s.joinInsightMetadata(ctx, scored)
	return scored
}

// sortRAGChunks orders by descending score with an ascending
// (insight_id, chunk_index) tiebreak.
func sortRAGChunks(chunks []*types.RAGChunk) {
	sort.SliceStable(chunks, func(a, b int) bool {
		if chunks[a].Score != chunks[b].Score {
			return chunks[a].Score > chunks[b].Score
		}
		ca, cb := chunks[a], chunks[b]
		if ca.InsightID != cb.InsightID {
			return ca.InsightID.String() < cb.InsightID.String()
		}
		return ca.ChunkIndex < cb.ChunkIndex
	})
}

func (s *RetrieverService) joinInsightMetadata(ctx context.Context, chunks []*types.RAGChunk) {
	for _, c := range chunks {
		insight, err := s.insightRepo.GetByID(ctx, c.InsightID)
		if err != nil {
			continue
		}
		c.InsightTitle = insight.Title
		c.InsightURL = insight.URL
		if content, err := s.contentRepo.GetByInsightID(ctx, c.InsightID); err == nil {
			c.InsightSummary = content.Summary
		}
	}
}
