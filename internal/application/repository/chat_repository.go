package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatSessionRepository manages session lifecycle.
type ChatSessionRepository interface {
	Create(ctx context.Context, session *ChatSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*ChatSession, error)
	Update(ctx context.Context, session *ChatSession) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	ListByUser(ctx context.Context, userID string, page, size int) ([]*ChatSession, int64, error)
}

type chatSessionRepository struct{ db *gorm.DB }

func NewChatSessionRepository(db *gorm.DB) ChatSessionRepository {
	return &chatSessionRepository{db: db}
}

func (r *chatSessionRepository) Create(ctx context.Context, session *ChatSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *chatSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*ChatSession, error) {
	var s ChatSession
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *chatSessionRepository) Update(ctx context.Context, session *ChatSession) error {
	return r.db.WithContext(ctx).Save(session).Error
}

// Deactivate soft-deactivates rather than hard-deleting.
func (r *chatSessionRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&ChatSession{}).
		Where("id = ?", id).Update("is_active", false).Error
}

func (r *chatSessionRepository) ListByUser(
	ctx context.Context, userID string, page, size int,
) ([]*ChatSession, int64, error) {
	q := r.db.WithContext(ctx).Model(&ChatSession{}).Where("user_id = ?", userID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var sessions []*ChatSession
	offset := (page - 1) * size
	if offset < 0 {
		offset = 0
	}
	err := q.Order("updated_at DESC").Offset(offset).Limit(size).Find(&sessions).Error
	return sessions, total, err
}

// ChatMessageRepository persists messages, totally ordered by created_at.
type ChatMessageRepository interface {
	Create(ctx context.Context, msg *ChatMessage) error
	ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]*ChatMessage, error)
	LastN(ctx context.Context, sessionID uuid.UUID, n int) ([]*ChatMessage, error)
}

type chatMessageRepository struct{ db *gorm.DB }

func NewChatMessageRepository(db *gorm.DB) ChatMessageRepository {
	return &chatMessageRepository{db: db}
}

func (r *chatMessageRepository) Create(ctx context.Context, msg *ChatMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *chatMessageRepository) ListBySession(
	ctx context.Context, sessionID uuid.UUID, limit int,
) ([]*ChatMessage, error) {
	q := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var msgs []*ChatMessage
	err := q.Find(&msgs).Error
	return msgs, err
}

// LastN returns the most recent n messages of a session in chronological order,
// backing the chat engine's "last N=20 messages" prompt assembly rule.
func (r *chatMessageRepository) LastN(ctx context.Context, sessionID uuid.UUID, n int) ([]*ChatMessage, error) {
	var msgs []*ChatMessage
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).
		Order("created_at DESC").Limit(n).Find(&msgs).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// ChatRagContextRepository persists the retrieval trace for an assistant message.
type ChatRagContextRepository interface {
	Create(ctx context.Context, rc *ChatRagContext) error
	GetByMessageID(ctx context.Context, messageID uuid.UUID) (*ChatRagContext, error)
}

type chatRagContextRepository struct{ db *gorm.DB }

func NewChatRagContextRepository(db *gorm.DB) ChatRagContextRepository {
	return &chatRagContextRepository{db: db}
}

func (r *chatRagContextRepository) Create(ctx context.Context, rc *ChatRagContext) error {
	return r.db.WithContext(ctx).Create(rc).Error
}

func (r *chatRagContextRepository) GetByMessageID(
	ctx context.Context, messageID uuid.UUID,
) (*ChatRagContext, error) {
	var rc ChatRagContext
	if err := r.db.WithContext(ctx).First(&rc, "message_id = ?", messageID).Error; err != nil {
		return nil, err
	}
	return &rc, nil
}

// ChatMemoryRepository persists extracted memories and serves consolidation.
type ChatMemoryRepository interface {
	Create(ctx context.Context, mem *ChatMemory) error
	TopForSession(ctx context.Context, sessionID uuid.UUID, limit int) ([]*ChatMemory, error)
	ActiveByUserAndType(ctx context.Context, userID string, t MemoryType) ([]*ChatMemory, error)
	DeactivateBatch(ctx context.Context, ids []uuid.UUID) error
}

type chatMemoryRepository struct{ db *gorm.DB }

func NewChatMemoryRepository(db *gorm.DB) ChatMemoryRepository {
	return &chatMemoryRepository{db: db}
}

func (r *chatMemoryRepository) Create(ctx context.Context, mem *ChatMemory) error {
	return r.db.WithContext(ctx).Create(mem).Error
}

func (r *chatMemoryRepository) TopForSession(
	ctx context.Context, sessionID uuid.UUID, limit int,
) ([]*ChatMemory, error) {
	var mems []*ChatMemory
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND is_active = true", sessionID).
		Order("importance_score DESC").Limit(limit).Find(&mems).Error
	return mems, err
}

func (r *chatMemoryRepository) ActiveByUserAndType(
	ctx context.Context, userID string, t MemoryType,
) ([]*ChatMemory, error) {
	var mems []*ChatMemory
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND memory_type = ? AND is_active = true", userID, t).
		Order("importance_score DESC").Find(&mems).Error
	return mems, err
}

func (r *chatMemoryRepository) DeactivateBatch(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&ChatMemory{}).
		Where("id IN ?", ids).Update("is_active", false).Error
}
