package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileRepository manages the 1:1 auth-identity profile row, including
// the memory_profile JSON document.
type ProfileRepository interface {
	GetByID(ctx context.Context, id string) (*Profile, error)
	Upsert(ctx context.Context, profile *Profile) error
	UpdateMemoryProfile(ctx context.Context, id string, memoryProfile []byte) error
}

type profileRepository struct{ db *gorm.DB }

func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) GetByID(ctx context.Context, id string) (*Profile, error) {
	var p Profile
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *profileRepository) Upsert(ctx context.Context, profile *Profile) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(profile).Error
}

func (r *profileRepository) UpdateMemoryProfile(ctx context.Context, id string, memoryProfile []byte) error {
	return r.db.WithContext(ctx).Model(&Profile{}).
		Where("id = ?", id).Update("memory_profile", memoryProfile).Error
}
