package service

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/marginalia-labs/marginalia/internal/application/repository"
	"github.com/marginalia-labs/marginalia/internal/errors"
	"github.com/marginalia-labs/marginalia/internal/logger"
	"github.com/marginalia-labs/marginalia/internal/utils"
	"golang.org/x/crypto/blake2b"
	"gorm.io/gorm"
)

// TaskEnqueuer decouples services from the queue backend: requests enqueue
// background work through it and the worker process consumes the tasks.
type TaskEnqueuer interface {
	EnqueueIngest(ctx context.Context, insightID uuid.UUID) error
	EnqueueWarmSummary(ctx context.Context, url string) error
	EnqueueMemoryExtraction(ctx context.Context, sessionID uuid.UUID, userID string) error
}

// InsightService owns insight CRUD, the synchronous half of ingestion and the incremental-sync ETag contract.
type InsightService struct {
	insightRepo repository.InsightRepository
	contentRepo repository.InsightContentRepository
	chunkRepo   repository.InsightChunkRepository
	tagRepo     repository.TagRepository
	enqueuer    TaskEnqueuer
}

func NewInsightService(
	insightRepo repository.InsightRepository,
	contentRepo repository.InsightContentRepository,
	chunkRepo repository.InsightChunkRepository,
	tagRepo repository.TagRepository,
	enqueuer TaskEnqueuer,
) *InsightService {
	return &InsightService{
		insightRepo: insightRepo,
		contentRepo: contentRepo,
		chunkRepo:   chunkRepo,
		tagRepo:     tagRepo,
		enqueuer:    enqueuer,
	}
}

// CreateInsight validates the URL, inserts the skeleton row with tentative
// fields, attaches any tags and enqueues the async pipeline. Ingestion
// failures never fail this call.
func (s *InsightService) CreateInsight(
	ctx context.Context, userID, url, thought string, tagIDs []uuid.UUID,
) (*repository.Insight, error) {
	if !utils.IsValidURL(url) || len(url) > 500 {
		return nil, errors.NewBadRequestError("url is missing or invalid")
	}
	thought, ok := utils.ValidateInput(thought)
	if !ok || len([]rune(thought)) > 2000 {
		return nil, errors.NewBadRequestError("thought is invalid or too long")
	}

	insight := &repository.Insight{
		UserID:  userID,
		URL:     url,
		Title:   titleFromURLPath(url),
		Thought: thought,
	}
	if err := s.insightRepo.Create(ctx, insight); err != nil {
		return nil, errors.NewInternalServerError("create insight", err)
	}

	for _, tagID := range tagIDs {
		tag, err := s.tagRepo.GetByID(ctx, tagID)
		if err != nil || tag.UserID != userID {
			continue
		}
		if err := s.tagRepo.AttachToInsight(ctx, insight.ID, tagID, userID); err != nil {
			logger.Warnf(ctx, "attach tag %s failed: %v", tagID, err)
		}
	}

	if err := s.enqueuer.EnqueueIngest(ctx, insight.ID); err != nil {
		// The insight exists; ingestion simply hasn't started. Surfaced as a
		// partial-ingest log, not an HTTP error.
		logger.ErrorWithFields(ctx, "enqueue ingest failed", map[string]interface{}{
			"insight_id": insight.ID.String(), "error": err.Error(),
		})
	}
	return insight, nil
}

// GetOwned loads an insight and enforces ownership.
func (s *InsightService) GetOwned(ctx context.Context, userID string, id uuid.UUID) (*repository.Insight, error) {
	insight, err := s.insightRepo.GetByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.NewNotFoundError("insight not found")
		}
		return nil, errors.NewInternalServerError("load insight", err)
	}
	if insight.UserID != userID {
		return nil, errors.NewForbiddenError("insight belongs to another user")
	}
	return insight, nil
}

// List returns one page of the user's insights with the total count.
func (s *InsightService) List(
	ctx context.Context, userID, search string, page, limit int,
) ([]*repository.Insight, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.insightRepo.List(ctx, userID, search, page, limit)
}

// ListAll returns every insight of the user.
func (s *InsightService) ListAll(ctx context.Context, userID string) ([]*repository.Insight, error) {
	return s.insightRepo.ListAll(ctx, userID)
}

// SyncIncremental implements the ETag-based incremental sync: the ETag is a
// digest over the user's newest updated_at and row count, so an unchanged
// corpus returns 200 with an empty array and the same ETag (Open Question
// resolved in DESIGN.md against a literal 304).
func (s *InsightService) SyncIncremental(
	ctx context.Context, userID string, since int64, etag string,
) (insights []*repository.Insight, newETag string, unchanged bool, err error) {
	all, err := s.insightRepo.ListAll(ctx, userID)
	if err != nil {
		return nil, "", false, errors.NewInternalServerError("sync load", err)
	}
	var newest int64
	for _, i := range all {
		if ts := i.UpdatedAt.Unix(); ts > newest {
			newest = ts
		}
	}
	sum := blake2b.Sum256([]byte(fmt.Sprintf("%s:%d:%d", userID, newest, len(all))))
	newETag = hex.EncodeToString(sum[:16])
	if etag != "" && etag == newETag {
		return nil, newETag, true, nil
	}
	changed, err := s.insightRepo.ListSince(ctx, userID, since)
	if err != nil {
		return nil, "", false, errors.NewInternalServerError("sync load", err)
	}
	return changed, newETag, false, nil
}

// UpdateInsight applies owner edits to mutable fields. Re-submitting the same
// body leaves the row unchanged modulo updated_at.
func (s *InsightService) UpdateInsight(
	ctx context.Context, userID string, id uuid.UUID, title, description, thought *string,
) (*repository.Insight, error) {
	insight, err := s.GetOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if title != nil {
		clean, ok := utils.ValidateInput(*title)
		if !ok {
			return nil, errors.NewBadRequestError("title is invalid")
		}
		insight.Title = clean
	}
	if description != nil {
		clean, ok := utils.ValidateInput(*description)
		if !ok {
			return nil, errors.NewBadRequestError("description is invalid")
		}
		insight.Description = clean
	}
	if thought != nil {
		clean, ok := utils.ValidateInput(*thought)
		if !ok || len([]rune(clean)) > 2000 {
			return nil, errors.NewBadRequestError("thought is invalid or too long")
		}
		insight.Thought = clean
	}
	if err := s.insightRepo.Update(ctx, insight); err != nil {
		return nil, errors.NewInternalServerError("update insight", err)
	}
	return insight, nil
}

// DeleteInsight removes the insight and cascades to content, chunks and tags.
func (s *InsightService) DeleteInsight(ctx context.Context, userID string, id uuid.UUID) error {
	if _, err := s.GetOwned(ctx, userID, id); err != nil {
		return err
	}
	if err := s.insightRepo.Delete(ctx, id); err != nil {
		return errors.NewInternalServerError("delete insight", err)
	}
	return nil
}

// ChunkSummary reports total and embedded chunk counts for one insight.
func (s *InsightService) ChunkSummary(
	ctx context.Context, userID string, id uuid.UUID,
) (total, withEmbedding int64, err error) {
	if _, err := s.GetOwned(ctx, userID, id); err != nil {
		return 0, 0, err
	}
	return s.chunkRepo.CountByInsightID(ctx, id)
}

// GetContent loads the extracted content row for an owned insight.
func (s *InsightService) GetContent(
	ctx context.Context, userID string, id uuid.UUID,
) (*repository.InsightContent, error) {
	if _, err := s.GetOwned(ctx, userID, id); err != nil {
		return nil, err
	}
	content, err := s.contentRepo.GetByInsightID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.NewNotFoundError("content not extracted yet")
		}
		return nil, errors.NewInternalServerError("load content", err)
	}
	return content, nil
}
