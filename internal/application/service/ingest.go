package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/marginalia-labs/marginalia/internal/application/repository"
	"github.com/marginalia-labs/marginalia/internal/common"
	"github.com/marginalia-labs/marginalia/internal/logger"
	"github.com/marginalia-labs/marginalia/internal/models/chat"
	"github.com/pgvector/pgvector-go"
)

// ingestDeadline is the top-level budget for one background pipeline run.
const ingestDeadline = 5 * time.Minute

// summaryMaxTokens bounds the generated summary.
const summaryMaxTokens = 300

// summaryMaxChars keeps the persisted summary within its column.
const summaryMaxChars = 1500

// IngestService sequences fetch → extract → preprocess → summary → chunk →
// embed → persist for one insight. Failures degrade:
// the insight row stays usable with whatever fields were recovered.
type IngestService struct {
	fetch      *FetchService
	extract    *ExtractService
	preprocess *PreprocessService
	chunker    *ChunkerService
	llm        *LLMService
	cache      *SummaryCache
	pool       *CPUPool

	insightRepo repository.InsightRepository
	contentRepo repository.InsightContentRepository
	chunkRepo   repository.InsightChunkRepository
}

func NewIngestService(
	fetch *FetchService,
	extract *ExtractService,
	preprocess *PreprocessService,
	chunker *ChunkerService,
	llm *LLMService,
	cache *SummaryCache,
	pool *CPUPool,
	insightRepo repository.InsightRepository,
	contentRepo repository.InsightContentRepository,
	chunkRepo repository.InsightChunkRepository,
) *IngestService {
	return &IngestService{
		fetch:       fetch,
		extract:     extract,
		preprocess:  preprocess,
		chunker:     chunker,
		llm:         llm,
		cache:       cache,
		pool:        pool,
		insightRepo: insightRepo,
		contentRepo: contentRepo,
		chunkRepo:   chunkRepo,
	}
}

// RunPipeline executes the async ingestion pipeline for one insight. Idempotent:
// re-running deletes the insight's existing chunks before reinsertion and
// upserts insight_contents.
func (s *IngestService) RunPipeline(ctx context.Context, insightID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, ingestDeadline)
	defer cancel()
	ctx = logger.WithField(ctx, "insight_id", insightID.String())

	insight, err := s.insightRepo.GetByID(ctx, insightID)
	if err != nil {
		return err
	}

	// Step 1: fetch. Fetch errors are non-fatal: the insight keeps its
	// user-provided fields and no chunks are written.
	fetched, fetchErr := s.fetch.Fetch(ctx, insight.URL)
	if fetchErr != nil {
		common.PipelineWarn(ctx, "Ingest", "partial_ingest", map[string]interface{}{
			"url": insight.URL, "reason": fetchErr.Error(),
		})
		return nil
	}

	// Step 2: extract, with the render fallback for JS-gated pages.
	extracted := s.extract.Extract(fetched.HTML, insight.URL, DefaultExtractOptions())
	if len(extracted.Text) < renderThresholdChars && len(fetched.HTML) > 4*renderThresholdChars {
		if rendered, rerr := s.fetch.FetchRendered(ctx, insight.URL); rerr == nil {
			if re := s.extract.Extract(rendered.HTML, insight.URL, DefaultExtractOptions()); len(re.Text) > len(extracted.Text) {
				extracted = re
				fetched = rendered
			}
		}
	}

	// User-provided title wins over the fetched one.
	title := insight.Title
	if title == "" {
		title = extracted.Title
	}
	description := insight.Description
	if description == "" {
		description = extracted.Description
	}
	imageURL := insight.ImageURL
	if imageURL == "" {
		imageURL = extracted.ImageURL
	}

	if extracted.Text == "" {
		s.updateInsightFields(ctx, insight, title, description, imageURL)
		common.PipelineWarn(ctx, "Ingest", "partial_ingest", map[string]interface{}{
			"url": insight.URL, "reason": "no extractable body",
		})
		return nil
	}

	// Step 3: preprocess + summary, reusing a completed cache entry when the
	// metadata-preview endpoint already warmed it.
	var processed *PreprocessResult
	if err := s.pool.Do(ctx, func() {
		processed = s.preprocess.Process(extracted.Text, DefaultPreprocessConfig())
	}); err != nil {
		return err
	}

	summary := s.cachedOrGeneratedSummary(ctx, insight.URL, processed.ProcessedText)

	// Step 4: persist insight_contents (upsert keyed by insight_id).
	content := &repository.InsightContent{
		InsightID:   insight.ID,
		UserID:      insight.UserID,
		URL:         insight.URL,
		HTML:        fetched.HTML,
		Text:        processed.ProcessedText,
		Markdown:    extracted.Markdown,
		Summary:     summary,
		Thought:     insight.Thought,
		ContentType: fetched.ContentType,
		ExtractedAt: time.Now().UTC(),
	}
	if err := s.contentRepo.Upsert(ctx, content); err != nil {
		return err
	}
	common.PipelineInfo(ctx, "Ingest", "content_persisted", map[string]interface{}{
		"text_len": len(processed.ProcessedText), "compression": processed.CompressionRatio,
	})

	// Step 5: chunk the preprocessed body.
	var chunks []Chunk
	if err := s.pool.Do(ctx, func() {
		chunks = s.chunker.Split(processed.ProcessedText)
	}); err != nil {
		return err
	}

	// Step 6: embed and persist in batches of 96 so a partial failure
	// preserves prior progress; a failed batch is retried once and chunks
	// that still lack vectors persist with embedding = null.
	if err := s.persistChunksWithEmbeddings(ctx, insight.ID, chunks); err != nil {
		return err
	}

	// Step 7: finalize the insight row.
	s.updateInsightFields(ctx, insight, title, description, imageURL)
	common.PipelineInfo(ctx, "Ingest", "pipeline_done", map[string]interface{}{
		"chunks": len(chunks),
	})
	return nil
}

// cachedOrGeneratedSummary reuses a completed cache entry for this URL and otherwise generates and records a fresh summary.
func (s *IngestService) cachedOrGeneratedSummary(ctx context.Context, url, processedText string) string {
	if entry, ok := s.cache.Get(url); ok && entry.Status == SummaryCompleted {
		common.PipelineInfo(ctx, "Ingest", "summary_cache_hit", map[string]interface{}{"url": url})
		return entry.Summary
	}
	run, entry := s.cache.Begin(url)
	if !run {
		if entry.Status == SummaryGenerating {
			if waited, ok := s.cache.Wait(ctx, url); ok && waited.Status == SummaryCompleted {
				return waited.Summary
			}
			return ""
		}
		return entry.Summary
	}
	summary, err := s.GenerateSummary(ctx, processedText)
	if err != nil {
		s.cache.Fail(url, err.Error())
		common.PipelineWarn(ctx, "Ingest", "summary_failed", map[string]interface{}{
			"url": url, "error": err.Error(),
		})
		return ""
	}
	s.cache.Complete(url, summary)
	return summary
}

// GenerateSummary calls the chat model with the summary prompt over the
// preprocessed body, clamping the result to the persisted column size.
func (s *IngestService) GenerateSummary(ctx context.Context, text string) (string, error) {
	resp, err := s.llm.Complete(ctx, []chat.Message{
		{Role: "system", Content: GetPrompts().Summary},
		{Role: "user", Content: text},
	}, &chat.ChatOptions{MaxTokens: summaryMaxTokens, Temperature: 0.3})
	if err != nil {
		return "", err
	}
	summary := resp.Content
	if runes := []rune(summary); len(runes) > summaryMaxChars {
		summary = string(runes[:summaryMaxChars])
	}
	return summary, nil
}

// persistChunksWithEmbeddings embeds and stores the chunk set. Existing chunks are
// dropped first so chunk_index values stay contiguous per insight across
// re-ingestion.
func (s *IngestService) persistChunksWithEmbeddings(
	ctx context.Context, insightID uuid.UUID, chunks []Chunk,
) error {
	if err := s.chunkRepo.DeleteByInsightID(ctx, insightID); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	model := s.llm.EmbeddingModelName()
	for start := 0; start < len(chunks); start += embeddingBatchSize {
		end := start + embeddingBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vecs, embErr := s.llm.EmbedBatch(ctx, texts)
		if embErr != nil {
			// One more attempt for this batch; still-failed chunks persist
			// with a null embedding and stay invisible to retrieval.
			if retryVecs, retryErr := s.llm.EmbedBatch(ctx, texts); retryErr == nil {
				vecs = retryVecs
			} else {
				common.PipelineWarn(ctx, "Ingest", "embedding_batch_failed", map[string]interface{}{
					"batch_start": start, "error": retryErr.Error(),
				})
			}
		}

		now := time.Now().UTC()
		rows := make([]*repository.InsightChunk, len(batch))
		for i, c := range batch {
			row := &repository.InsightChunk{
				InsightID:       insightID,
				ChunkIndex:      c.Index,
				ChunkText:       c.Text,
				ChunkSize:       c.Size,
				EstimatedTokens: c.EstimatedTokens,
				ChunkMethod:     ChunkMethod,
				ChunkOverlap:    s.chunker.cfg.Overlap,
			}
			if vecs != nil && i < len(vecs) && len(vecs[i]) == 1536 {
				vec := pgvector.NewVector(vecs[i])
				row.Embedding = &vec
				row.EmbeddingModel = model
				row.EmbeddingTokens = c.EstimatedTokens
				row.EmbeddingGeneratedAt = &now
			}
			rows[i] = row
		}
		if err := s.chunkRepo.CreateBatch(ctx, rows); err != nil {
			return err
		}
	}
	return nil
}

func (s *IngestService) updateInsightFields(
	ctx context.Context, insight *repository.Insight, title, description, imageURL string,
) {
	insight.Title = title
	insight.Description = description
	insight.ImageURL = imageURL
	if err := s.insightRepo.Update(ctx, insight); err != nil {
		logger.Errorf(ctx, "update insight metadata failed: %v", err)
	}
}
