package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// ChunkSearchRow is one row of the DB-side cosine search.
type ChunkSearchRow struct {
	ChunkID       uuid.UUID
	InsightID     uuid.UUID
	ChunkIndex    int
	ChunkText     string
	ChunkSize     int
	Similarity    float64
	InsightTitle  string
	InsightURL    string
	InsightSummary string
}

// InsightChunkRepository persists chunks and runs the cosine similarity search.
type InsightChunkRepository interface {
	ReplaceAll(ctx context.Context, insightID uuid.UUID, chunks []*InsightChunk) error
	CreateBatch(ctx context.Context, chunks []*InsightChunk) error
	DeleteByInsightID(ctx context.Context, insightID uuid.UUID) error
	CountByInsightID(ctx context.Context, insightID uuid.UUID) (total, withEmbedding int64, err error)
	// SearchCosine runs the DB-side HNSW cosine search scoped to one user.
	SearchCosine(
		ctx context.Context, userID string, query pgvector.Vector, k int, minScore float64,
	) ([]ChunkSearchRow, error)
	// AllEmbeddingsForUser supports the client-side cosine search strategy as a fallback.
	AllEmbeddingsForUser(ctx context.Context, userID string) ([]*InsightChunk, error)
}

type insightChunkRepository struct {
	db *gorm.DB
}

func NewInsightChunkRepository(db *gorm.DB) InsightChunkRepository {
	return &insightChunkRepository{db: db}
}

// ReplaceAll makes re-ingestion idempotent: re-running the pipeline
// for the same insight deletes existing chunks before reinsertion.
func (r *insightChunkRepository) ReplaceAll(
	ctx context.Context, insightID uuid.UUID, chunks []*InsightChunk,
) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("insight_id = ?", insightID).Delete(&InsightChunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		return tx.CreateInBatches(chunks, 96).Error
	})
}

// CreateBatch inserts one batch of already-embedded chunks, persisting partial
// progress across retries.
func (r *insightChunkRepository) CreateBatch(ctx context.Context, chunks []*InsightChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(chunks, 96).Error
}

func (r *insightChunkRepository) DeleteByInsightID(ctx context.Context, insightID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("insight_id = ?", insightID).Delete(&InsightChunk{}).Error
}

func (r *insightChunkRepository) CountByInsightID(
	ctx context.Context, insightID uuid.UUID,
) (total, withEmbedding int64, err error) {
	db := r.db.WithContext(ctx).Model(&InsightChunk{}).Where("insight_id = ?", insightID)
	if err = db.Count(&total).Error; err != nil {
		return
	}
	err = r.db.WithContext(ctx).Model(&InsightChunk{}).
		Where("insight_id = ? AND embedding IS NOT NULL", insightID).
		Count(&withEmbedding).Error
	return
}

// SearchCosine is the DB-side retrieval strategy: cosine
// distance over the pgvector HNSW index, filtered by ownership and a
// minimum-score floor, ordered by descending similarity with a
// (insight_id, chunk_index) tiebreak.
func (r *insightChunkRepository) SearchCosine(
	ctx context.Context, userID string, query pgvector.Vector, k int, minScore float64,
) ([]ChunkSearchRow, error) {
	if k <= 0 {
		return nil, nil
	}
	var rows []ChunkSearchRow
	sql := `
		SELECT
			c.id AS chunk_id,
			c.insight_id AS insight_id,
			c.chunk_index AS chunk_index,
			c.chunk_text AS chunk_text,
			c.chunk_size AS chunk_size,
			GREATEST(0, 1 - (c.embedding <=> ?)) AS similarity,
			i.title AS insight_title,
			i.url AS insight_url,
			ic.summary AS insight_summary
		FROM insight_chunks c
		JOIN insights i ON i.id = c.insight_id
		LEFT JOIN insight_contents ic ON ic.insight_id = c.insight_id
		WHERE i.user_id = ? AND c.embedding IS NOT NULL
		  AND GREATEST(0, 1 - (c.embedding <=> ?)) >= ?
		ORDER BY similarity DESC, c.insight_id ASC, c.chunk_index ASC
		LIMIT ?`
	err := r.db.WithContext(ctx).Raw(sql, query, userID, query, minScore, k).Scan(&rows).Error
	return rows, err
}

func (r *insightChunkRepository) AllEmbeddingsForUser(
	ctx context.Context, userID string,
) ([]*InsightChunk, error) {
	var chunks []*InsightChunk
	err := r.db.WithContext(ctx).
		Joins("JOIN insights i ON i.id = insight_chunks.insight_id").
		Where("i.user_id = ? AND insight_chunks.embedding IS NOT NULL", userID).
		Find(&chunks).Error
	return chunks, err
}
