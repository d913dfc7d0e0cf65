package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InsightRepository persists Insight rows and cascades deletes to its children.
type InsightRepository interface {
	Create(ctx context.Context, insight *Insight) error
	Update(ctx context.Context, insight *Insight) error
	GetByID(ctx context.Context, id uuid.UUID) (*Insight, error)
	List(ctx context.Context, userID string, search string, page, limit int) ([]*Insight, int64, error)
	ListAll(ctx context.Context, userID string) ([]*Insight, error)
	ListSince(ctx context.Context, userID string, since int64) ([]*Insight, error)
	ListCreatedOrUpdatedSince(ctx context.Context, userID string, since int64) ([]*Insight, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type insightRepository struct {
	db *gorm.DB
}

func NewInsightRepository(db *gorm.DB) InsightRepository {
	return &insightRepository{db: db}
}

func (r *insightRepository) Create(ctx context.Context, insight *Insight) error {
	return r.db.WithContext(ctx).Create(insight).Error
}

func (r *insightRepository) Update(ctx context.Context, insight *Insight) error {
	return r.db.WithContext(ctx).Save(insight).Error
}

func (r *insightRepository) GetByID(ctx context.Context, id uuid.UUID) (*Insight, error) {
	var insight Insight
	if err := r.db.WithContext(ctx).First(&insight, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &insight, nil
}

func (r *insightRepository) List(
	ctx context.Context, userID, search string, page, limit int,
) ([]*Insight, int64, error) {
	q := r.db.WithContext(ctx).Model(&Insight{}).Where("user_id = ?", userID)
	if search != "" {
		like := "%" + search + "%"
		q = q.Where("title ILIKE ? OR description ILIKE ? OR url ILIKE ?", like, like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var insights []*Insight
	offset := (page - 1) * limit
	if offset < 0 {
		offset = 0
	}
	err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&insights).Error
	return insights, total, err
}

func (r *insightRepository) ListAll(ctx context.Context, userID string) ([]*Insight, error) {
	var insights []*Insight
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Find(&insights).Error
	return insights, err
}

// ListSince backs the incremental-sync endpoint.
func (r *insightRepository) ListSince(ctx context.Context, userID string, since int64) ([]*Insight, error) {
	var insights []*Insight
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND extract(epoch from updated_at) >= ?", userID, since).
		Order("updated_at ASC").Find(&insights).Error
	return insights, err
}

// ListCreatedOrUpdatedSince backs the digest builder's inclusive "created OR updated" window.
func (r *insightRepository) ListCreatedOrUpdatedSince(
	ctx context.Context, userID string, since int64,
) ([]*Insight, error) {
	var insights []*Insight
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND (extract(epoch from created_at) >= ? OR extract(epoch from updated_at) >= ?)",
			userID, since, since).
		Order("created_at DESC").Find(&insights).Error
	return insights, err
}

func (r *insightRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("insight_id = ?", id).Delete(&InsightChunk{}).Error; err != nil {
			return err
		}
		if err := tx.Where("insight_id = ?", id).Delete(&InsightContent{}).Error; err != nil {
			return err
		}
		if err := tx.Where("insight_id = ?", id).Delete(&InsightTag{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Insight{}, "id = ?", id).Error
	})
}
