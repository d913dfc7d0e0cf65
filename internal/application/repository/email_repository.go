package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EmailPreferencesRepository manages per-user digest settings.
type EmailPreferencesRepository interface {
	GetByUser(ctx context.Context, userID string) (*EmailPreferences, error)
	Upsert(ctx context.Context, prefs *EmailPreferences) error
	ListEnabled(ctx context.Context) ([]*EmailPreferences, error)
	Disable(ctx context.Context, userID string) error
}

type emailPreferencesRepository struct{ db *gorm.DB }

func NewEmailPreferencesRepository(db *gorm.DB) EmailPreferencesRepository {
	return &emailPreferencesRepository{db: db}
}

func (r *emailPreferencesRepository) GetByUser(ctx context.Context, userID string) (*EmailPreferences, error) {
	var p EmailPreferences
	if err := r.db.WithContext(ctx).First(&p, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *emailPreferencesRepository) Upsert(ctx context.Context, prefs *EmailPreferences) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(prefs).Error
}

func (r *emailPreferencesRepository) ListEnabled(ctx context.Context) ([]*EmailPreferences, error) {
	var prefs []*EmailPreferences
	err := r.db.WithContext(ctx).Where("weekly_digest_enabled = true").Find(&prefs).Error
	return prefs, err
}

func (r *emailPreferencesRepository) Disable(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Model(&EmailPreferences{}).
		Where("user_id = ?", userID).Update("weekly_digest_enabled", false).Error
}

// EmailDigestRepository gives the idempotent (user_id, week_start) CAS insert
// that guarantees at most one digest send per user per week.
type EmailDigestRepository interface {
	TryBeginSend(ctx context.Context, userID string, weekStart time.Time) (digest *EmailDigest, alreadySent bool, err error)
	MarkSent(ctx context.Context, id uuid.UUID, messageID string, payload []byte) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
}

type emailDigestRepository struct{ db *gorm.DB }

func NewEmailDigestRepository(db *gorm.DB) EmailDigestRepository {
	return &emailDigestRepository{db: db}
}

// TryBeginSend performs the send CAS: insert a queued row, or
// if a row for (user_id, week_start) already exists with status=sent, report
// that so the caller returns skipped_reason=already_sent.
func (r *emailDigestRepository) TryBeginSend(
	ctx context.Context, userID string, weekStart time.Time,
) (*EmailDigest, bool, error) {
	var existing EmailDigest
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND week_start = ?", userID, weekStart).
		First(&existing).Error
	if err == nil {
		if existing.Status == DigestStatusSent {
			return &existing, true, nil
		}
		return &existing, false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, false, err
	}
	digest := &EmailDigest{
		UserID:    userID,
		WeekStart: weekStart,
		Status:    DigestStatusQueued,
	}
	if createErr := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "week_start"}},
		DoNothing: true,
	}).Create(digest).Error; createErr != nil {
		return nil, false, createErr
	}
	// Someone may have raced us; re-read authoritative row.
	if readErr := r.db.WithContext(ctx).
		Where("user_id = ? AND week_start = ?", userID, weekStart).
		First(&existing).Error; readErr != nil {
		return nil, false, readErr
	}
	return &existing, existing.Status == DigestStatusSent, nil
}

func (r *emailDigestRepository) MarkSent(ctx context.Context, id uuid.UUID, messageID string, payload []byte) error {
	return r.db.WithContext(ctx).Model(&EmailDigest{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     DigestStatusSent,
		"message_id": messageID,
		"payload":    payload,
	}).Error
}

func (r *emailDigestRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	return r.db.WithContext(ctx).Model(&EmailDigest{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      DigestStatusFailed,
			"error":       errMsg,
			"retry_count": gorm.Expr("retry_count + 1"),
		}).Error
}

// UnsubscribeTokenRepository manages the stable per-user unsubscribe token.
type UnsubscribeTokenRepository interface {
	GetOrCreate(ctx context.Context, userID string, generate func() string) (string, error)
	ResolveUser(ctx context.Context, token string) (string, error)
}

type unsubscribeTokenRepository struct{ db *gorm.DB }

func NewUnsubscribeTokenRepository(db *gorm.DB) UnsubscribeTokenRepository {
	return &unsubscribeTokenRepository{db: db}
}

func (r *unsubscribeTokenRepository) GetOrCreate(
	ctx context.Context, userID string, generate func() string,
) (string, error) {
	var existing UnsubscribeToken
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&existing).Error
	if err == nil {
		return existing.Token, nil
	}
	if err != gorm.ErrRecordNotFound {
		return "", err
	}
	tok := &UnsubscribeToken{Token: generate(), UserID: userID}
	if err := r.db.WithContext(ctx).Create(tok).Error; err != nil {
		return "", err
	}
	return tok.Token, nil
}

func (r *unsubscribeTokenRepository) ResolveUser(ctx context.Context, token string) (string, error) {
	var t UnsubscribeToken
	if err := r.db.WithContext(ctx).First(&t, "token = ?", token).Error; err != nil {
		return "", err
	}
	return t.UserID, nil
}

// EmailEventRepository records webhook callbacks and derives suppressions.
type EmailEventRepository interface {
	Create(ctx context.Context, ev *EmailEvent) error
}

type emailEventRepository struct{ db *gorm.DB }

func NewEmailEventRepository(db *gorm.DB) EmailEventRepository {
	return &emailEventRepository{db: db}
}

func (r *emailEventRepository) Create(ctx context.Context, ev *EmailEvent) error {
	return r.db.WithContext(ctx).Create(ev).Error
}

// EmailSuppressionRepository manages bounce/complaint/unsubscribe suppression.
type EmailSuppressionRepository interface {
	Add(ctx context.Context, s *EmailSuppression) error
	IsSuppressed(ctx context.Context, email string) (bool, error)
}

type emailSuppressionRepository struct{ db *gorm.DB }

func NewEmailSuppressionRepository(db *gorm.DB) EmailSuppressionRepository {
	return &emailSuppressionRepository{db: db}
}

func (r *emailSuppressionRepository) Add(ctx context.Context, s *EmailSuppression) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(s).Error
}

func (r *emailSuppressionRepository) IsSuppressed(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&EmailSuppression{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}
