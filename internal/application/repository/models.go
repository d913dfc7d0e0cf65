// Package repository holds the GORM entities and data-access objects for
// every persisted table, plus the pgvector-backed cosine search used by
// the retriever.
package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// Insight is a user-owned bookmarked URL with extracted metadata.
type Insight struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID      string    `gorm:"type:varchar(64);index;not null"`
	URL         string    `gorm:"type:varchar(500);not null"`
	Title       string    `gorm:"type:text"`
	Description string    `gorm:"type:text"`
	ImageURL    string    `gorm:"type:text"`
	Thought     string    `gorm:"type:varchar(2000)"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Insight) TableName() string { return "insights" }

// BeforeCreate assigns a server-generated id when the caller left it zero.
func (i *Insight) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// InsightContent is the extracted article body and generated summary, 1:1 with Insight.
type InsightContent struct {
	InsightID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID      string    `gorm:"type:varchar(64);index;not null"`
	URL         string    `gorm:"type:varchar(500)"`
	HTML        string    `gorm:"type:text"`
	Text        string    `gorm:"type:text"`
	Markdown    string    `gorm:"type:text"`
	Summary     string    `gorm:"type:varchar(1500)"`
	Thought     string    `gorm:"type:varchar(2000)"`
	ContentType string    `gorm:"type:varchar(64)"`
	ExtractedAt time.Time
}

func (InsightContent) TableName() string { return "insight_contents" }

// InsightChunk is one atomic retrieval unit.
type InsightChunk struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey"`
	InsightID            uuid.UUID `gorm:"type:uuid;index;not null"`
	ChunkIndex           int       `gorm:"not null"`
	ChunkText            string    `gorm:"type:text;not null"`
	ChunkSize            int       `gorm:"not null"`
	EstimatedTokens      int       `gorm:"not null"`
	ChunkMethod          string    `gorm:"type:varchar(32)"`
	ChunkOverlap         int
	Embedding            *pgvector.Vector `gorm:"type:vector(1536)"`
	EmbeddingModel       string           `gorm:"type:varchar(128)"`
	EmbeddingTokens      int
	EmbeddingGeneratedAt *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (InsightChunk) TableName() string { return "insight_chunks" }

func (c *InsightChunk) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// UserTag is a named colored label owned by a user.
type UserTag struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    string    `gorm:"type:varchar(64);index;not null"`
	Name      string    `gorm:"type:varchar(128);not null"`
	Color     string    `gorm:"type:varchar(16)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (UserTag) TableName() string { return "user_tags" }

func (t *UserTag) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// InsightTag is the many-to-many association between insights and tags.
type InsightTag struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	InsightID uuid.UUID `gorm:"type:uuid;index;not null"`
	TagID     uuid.UUID `gorm:"type:uuid;index;not null"`
	UserID    string    `gorm:"type:varchar(64);index;not null"`
	CreatedAt time.Time
}

func (InsightTag) TableName() string { return "insight_tags" }

func (t *InsightTag) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// ChatSession is a conversation container.
type ChatSession struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    string    `gorm:"type:varchar(64);index;not null"`
	Title     string    `gorm:"type:varchar(128)"`
	IsActive  bool      `gorm:"default:true"`
	Metadata  []byte    `gorm:"type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ChatSession) TableName() string { return "chat_sessions" }

func (s *ChatSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// ChatRole enumerates the role of a ChatMessage.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
	ChatRoleSystem    ChatRole = "system"
)

// ChatMessage is a single turn of a session.
type ChatMessage struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey"`
	SessionID       uuid.UUID  `gorm:"type:uuid;index;not null"`
	Role            ChatRole   `gorm:"type:varchar(16);not null"`
	Content         string     `gorm:"type:text;not null"`
	Metadata        []byte     `gorm:"type:jsonb"`
	ParentMessageID *uuid.UUID `gorm:"type:uuid"`
	CreatedAt       time.Time  `gorm:"index"`
}

func (ChatMessage) TableName() string { return "chat_messages" }

func (m *ChatMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// MessageMetadata is the structured shape stored in ChatMessage.Metadata.
type MessageMetadata struct {
	Model            string   `json:"model,omitempty"`
	PromptTokens     int      `json:"prompt_tokens,omitempty"`
	CompletionTokens int      `json:"completion_tokens,omitempty"`
	LatencyMS        int64    `json:"latency_ms,omitempty"`
	RAGK             int      `json:"rag_k,omitempty"`
	Sources          []Source `json:"sources,omitempty"`
}

// Source is one cited chunk surfaced on the terminal "done" event.
type Source struct {
	ID        string  `json:"id"`
	InsightID string  `json:"insight_id"`
	Score     float64 `json:"score"`
	Index     int     `json:"index"`
	Title     string  `json:"title"`
	URL       string  `json:"url"`
}

// ChatRagContext is the retrieval trace for one assistant message.
type ChatRagContext struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey"`
	MessageID          uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	RagChunks          []byte    `gorm:"type:jsonb"`
	ContextText        string    `gorm:"type:text"`
	TotalContextTokens int
	ExtractedKeywords  []byte `gorm:"type:jsonb"`
	RagK               int
	RagMinScore        float64
}

func (ChatRagContext) TableName() string { return "chat_rag_contexts" }

func (c *ChatRagContext) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// MemoryType enumerates ChatMemory.MemoryType.
type MemoryType string

const (
	MemoryTypePreference MemoryType = "user_preference"
	MemoryTypeFact       MemoryType = "fact"
	MemoryTypeContext    MemoryType = "context"
	MemoryTypeInsight    MemoryType = "insight"
)

// ChatMemory is a durable datum extracted from a session.
type ChatMemory struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey"`
	SessionID       uuid.UUID  `gorm:"type:uuid;index;not null"`
	UserID          string     `gorm:"type:varchar(64);index;not null"`
	MemoryType      MemoryType `gorm:"type:varchar(32);not null"`
	Content         string     `gorm:"type:text;not null"`
	ImportanceScore float64    `gorm:"not null"`
	IsActive        bool       `gorm:"default:true;index"`
	Metadata        []byte     `gorm:"type:jsonb"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (ChatMemory) TableName() string { return "chat_memories" }

func (m *ChatMemory) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// MemoryProfile is the structured document stored on Profile.MemoryProfile.
type MemoryProfile struct {
	Version               int                       `json:"version"`
	Preferences           []ConsolidatedMemoryEntry `json:"preferences,omitempty"`
	Facts                 []ConsolidatedMemoryEntry `json:"facts,omitempty"`
	Context               []ConsolidatedMemoryEntry `json:"context,omitempty"`
	Insights              []ConsolidatedMemoryEntry `json:"insights,omitempty"`
	LastConsolidated      *time.Time                `json:"last_consolidated,omitempty"`
	ConsolidationSettings ConsolidationSettings     `json:"consolidation_settings"`
}

// ConsolidatedMemoryEntry is one merged entry within a memory_profile bucket.
type ConsolidatedMemoryEntry struct {
	Content         string    `json:"content"`
	ImportanceScore float64   `json:"importance_score"`
	SourceCount     int       `json:"source_count"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ConsolidationSettings are the user-editable consolidation knobs.
type ConsolidationSettings struct {
	AutoConsolidate        bool    `json:"auto_consolidate"`
	ConsolidationThreshold float64 `json:"consolidation_threshold"`
	MaxMemoriesPerType     int     `json:"max_memories_per_type"`
	ConsolidationStrategy  string  `json:"consolidation_strategy"` // similarity|importance|time
}

// DefaultConsolidationSettings are the out-of-the-box consolidation knobs.
func DefaultConsolidationSettings() ConsolidationSettings {
	return ConsolidationSettings{
		AutoConsolidate:        true,
		ConsolidationThreshold: 0.8,
		MaxMemoriesPerType:     50,
		ConsolidationStrategy:  "similarity",
	}
}

// Profile is 1:1 with the auth identity.
type Profile struct {
	ID            string `gorm:"type:varchar(64);primaryKey"`
	Username      string `gorm:"type:varchar(128)"`
	Nickname      string `gorm:"type:varchar(128)"`
	Email         string `gorm:"type:varchar(256)"`
	AvatarURL     string `gorm:"type:text"`
	Bio           string `gorm:"type:text"`
	MemoryProfile []byte `gorm:"type:jsonb"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (Profile) TableName() string { return "profiles" }

// EmailPreferences controls the digest dispatcher's per-user decision.
type EmailPreferences struct {
	UserID              string `gorm:"type:varchar(64);primaryKey"`
	WeeklyDigestEnabled bool   `gorm:"default:true"`
	PreferredDay        int    `gorm:"default:0"`  // 0=Sun..6=Sat
	PreferredHour       int    `gorm:"default:9"`
	Timezone            string `gorm:"type:varchar(64);default:'UTC'"`
	NoActivityPolicy    string `gorm:"type:varchar(16);default:'skip'"` // skip|brief|suggestions
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (EmailPreferences) TableName() string { return "email_preferences" }

// EmailDigestStatus enumerates EmailDigest.Status.
type EmailDigestStatus string

const (
	DigestStatusQueued EmailDigestStatus = "queued"
	DigestStatusSent   EmailDigestStatus = "sent"
	DigestStatusFailed EmailDigestStatus = "failed"
)

// EmailDigest is the per-(user,week) send audit row.
type EmailDigest struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey"`
	UserID     string            `gorm:"type:varchar(64);index;not null"`
	WeekStart  time.Time         `gorm:"index;not null"`
	Status     EmailDigestStatus `gorm:"type:varchar(16);not null"`
	MessageID  string            `gorm:"type:varchar(256)"`
	Payload    []byte            `gorm:"type:jsonb"`
	Error      string            `gorm:"type:text"`
	RetryCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (EmailDigest) TableName() string { return "email_digests" }

func (d *EmailDigest) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// UnsubscribeToken is the stable per-user unsubscribe link token.
type UnsubscribeToken struct {
	Token     string `gorm:"type:varchar(64);primaryKey"`
	UserID    string `gorm:"type:varchar(64);index;not null"`
	CreatedAt time.Time
}

func (UnsubscribeToken) TableName() string { return "unsubscribe_tokens" }

// EmailEvent records a provider webhook callback (bounce/complaint/open/etc.).
type EmailEvent struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    string    `gorm:"type:varchar(64);index"`
	Email     string    `gorm:"type:varchar(256)"`
	EventType string    `gorm:"type:varchar(32);not null"`
	Payload   []byte    `gorm:"type:jsonb"`
	CreatedAt time.Time
}

func (EmailEvent) TableName() string { return "email_events" }

func (e *EmailEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// EmailSuppression prevents further sends to an address after bounce/complaint/unsubscribe.
type EmailSuppression struct {
	Email     string `gorm:"type:varchar(256);primaryKey"`
	UserID    string `gorm:"type:varchar(64);index"`
	Reason    string `gorm:"type:varchar(32);not null"`
	CreatedAt time.Time
}

func (EmailSuppression) TableName() string { return "email_suppressions" }
