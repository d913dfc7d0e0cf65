package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TagRepository manages UserTag and its InsightTag associations.
type TagRepository interface {
	Create(ctx context.Context, tag *UserTag) error
	ListByUser(ctx context.Context, userID string) ([]*UserTag, error)
	GetByID(ctx context.Context, id uuid.UUID) (*UserTag, error)
	AttachToInsight(ctx context.Context, insightID, tagID uuid.UUID, userID string) error
	TagsForInsight(ctx context.Context, insightID uuid.UUID) ([]*UserTag, error)
	TagsForInsights(ctx context.Context, insightIDs []uuid.UUID) (map[uuid.UUID][]*UserTag, error)
}

type tagRepository struct {
	db *gorm.DB
}

func NewTagRepository(db *gorm.DB) TagRepository {
	return &tagRepository{db: db}
}

func (r *tagRepository) Create(ctx context.Context, tag *UserTag) error {
	return r.db.WithContext(ctx).Create(tag).Error
}

func (r *tagRepository) ListByUser(ctx context.Context, userID string) ([]*UserTag, error) {
	var tags []*UserTag
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("name ASC").Find(&tags).Error
	return tags, err
}

func (r *tagRepository) GetByID(ctx context.Context, id uuid.UUID) (*UserTag, error) {
	var tag UserTag
	if err := r.db.WithContext(ctx).First(&tag, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &tag, nil
}

// AttachToInsight enforces the (insight_id, tag_id) uniqueness invariant via upsert-ignore.
func (r *tagRepository) AttachToInsight(ctx context.Context, insightID, tagID uuid.UUID, userID string) error {
	link := &InsightTag{InsightID: insightID, TagID: tagID, UserID: userID}
	return r.db.WithContext(ctx).
		Where("insight_id = ? AND tag_id = ?", insightID, tagID).
		FirstOrCreate(link).Error
}

func (r *tagRepository) TagsForInsight(ctx context.Context, insightID uuid.UUID) ([]*UserTag, error) {
	var tags []*UserTag
	err := r.db.WithContext(ctx).
		Joins("JOIN insight_tags it ON it.tag_id = user_tags.id").
		Where("it.insight_id = ?", insightID).Find(&tags).Error
	return tags, err
}

func (r *tagRepository) TagsForInsights(
	ctx context.Context, insightIDs []uuid.UUID,
) (map[uuid.UUID][]*UserTag, error) {
	if len(insightIDs) == 0 {
		return map[uuid.UUID][]*UserTag{}, nil
	}
	type row struct {
		InsightID uuid.UUID
		UserTag
	}
	var rows []row
	err := r.db.WithContext(ctx).Table("insight_tags it").
		Select("it.insight_id as insight_id, ut.*").
		Joins("JOIN user_tags ut ON ut.id = it.tag_id").
		Where("it.insight_id IN ?", insightIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := map[uuid.UUID][]*UserTag{}
	for _, rr := range rows {
		tag := rr.UserTag
		out[rr.InsightID] = append(out[rr.InsightID], &tag)
	}
	return out, nil
}
