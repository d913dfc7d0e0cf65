package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InsightContentRepository upserts the extracted body + summary.
type InsightContentRepository interface {
	Upsert(ctx context.Context, content *InsightContent) error
	GetByInsightID(ctx context.Context, insightID uuid.UUID) (*InsightContent, error)
}

type insightContentRepository struct {
	db *gorm.DB
}

func NewInsightContentRepository(db *gorm.DB) InsightContentRepository {
	return &insightContentRepository{db: db}
}

func (r *insightContentRepository) Upsert(ctx context.Context, content *InsightContent) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "insight_id"}},
		UpdateAll: true,
	}).Create(content).Error
}

func (r *insightContentRepository) GetByInsightID(
	ctx context.Context, insightID uuid.UUID,
) (*InsightContent, error) {
	var content InsightContent
	if err := r.db.WithContext(ctx).First(&content, "insight_id = ?", insightID).Error; err != nil {
		return nil, err
	}
	return &content, nil
}
