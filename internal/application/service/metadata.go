package service

import (
	"context"

	"github.com/marginalia-labs/marginalia/internal/common"
	"github.com/marginalia-labs/marginalia/internal/logger"
)

// MetadataService backs the metadata-preview endpoint: a synchronous
// fetch+extract for immediate display plus a background summary task that
// warms the summary cache so a later full ingest of the same URL skips its
// summary call (data flow A, cache-warming branch).
type MetadataService struct {
	fetch      *FetchService
	extract    *ExtractService
	preprocess *PreprocessService
	llm        *LLMService
	cache      *SummaryCache
	pool       *CPUPool
	ingest     *IngestService
}

func NewMetadataService(
	fetch *FetchService,
	extract *ExtractService,
	preprocess *PreprocessService,
	llm *LLMService,
	cache *SummaryCache,
	pool *CPUPool,
	ingest *IngestService,
) *MetadataService {
	return &MetadataService{
		fetch:      fetch,
		extract:    extract,
		preprocess: preprocess,
		llm:        llm,
		cache:      cache,
		pool:       pool,
		ingest:     ingest,
	}
}

// ExtractMetadata fetches and extracts url synchronously, returning whatever
// metadata was recoverable. A fetch failure degrades to empty fields rather
// than an error so the caller's form can still be submitted.
func (s *MetadataService) ExtractMetadata(ctx context.Context, url string) *ExtractResult {
	fetched, err := s.fetch.Fetch(ctx, url)
	if err != nil {
		common.PipelineWarn(ctx, "Metadata", "fetch_failed", map[string]interface{}{
			"url": url, "error": err.Error(),
		})
		return &ExtractResult{Title: titleFromURLPath(url)}
	}
	return s.extract.Extract(fetched.HTML, url, DefaultExtractOptions())
}

// WarmSummary runs the background cache-warming task for url: fetch →
// extract → preprocess → summary → cache. Concurrent callers for the same
// URL coalesce onto one generating entry.
func (s *MetadataService) WarmSummary(ctx context.Context, url string) {
	run, entry := s.cache.Begin(url)
	if !run {
		logger.Infof(ctx, "summary warm coalesced for %s (status=%s)", url, entry.Status)
		return
	}

	fetched, err := s.fetch.Fetch(ctx, url)
	if err != nil {
		s.cache.Fail(url, err.Error())
		return
	}
	extracted := s.extract.Extract(fetched.HTML, url, DefaultExtractOptions())
	if extracted.Text == "" {
		s.cache.Fail(url, "no extractable body")
		return
	}

	var processed *PreprocessResult
	if err := s.pool.Do(ctx, func() {
		processed = s.preprocess.Process(extracted.Text, DefaultPreprocessConfig())
	}); err != nil {
		s.cache.Fail(url, err.Error())
		return
	}

	summary, err := s.ingest.GenerateSummary(ctx, processed.ProcessedText)
	if err != nil {
		s.cache.Fail(url, err.Error())
		return
	}
	s.cache.Complete(url, summary)
	common.PipelineInfo(ctx, "Metadata", "summary_warmed", map[string]interface{}{
		"url": url, "summary_len": len(summary),
	})
}

// SummaryStatus returns the cache entry for url, if any.
func (s *MetadataService) SummaryStatus(url string) (*SummaryCacheEntry, bool) {
	return s.cache.Get(url)
}
