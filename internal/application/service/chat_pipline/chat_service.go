package chatpipline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marginalia-labs/marginalia/internal/application/repository"
	"github.com/marginalia-labs/marginalia/internal/application/service"
	"github.com/marginalia-labs/marginalia/internal/config"
	"github.com/marginalia-labs/marginalia/internal/errors"
	"github.com/marginalia-labs/marginalia/internal/logger"
	"github.com/marginalia-labs/marginalia/internal/types"
	"gorm.io/gorm"
)

const (
	historyTurns     = 20
	sessionMemories  = 5
	titleRuneLimit   = 40
)

// TurnOutcome summarizes one completed chat turn for the terminal done event.
type TurnOutcome struct {
	SessionID uuid.UUID
	MessageID uuid.UUID
	LatencyMS int64
	Sources   []repository.Source
}

// ChatService owns session lifecycle and turn processing for the chat engine
//, driving the event pipeline and persisting the results.
type ChatService struct {
	events      *EventManager
	cfg         *config.Config
	sessionRepo repository.ChatSessionRepository
	messageRepo repository.ChatMessageRepository
	ragRepo     repository.ChatRagContextRepository
	memoryRepo  repository.ChatMemoryRepository
	enqueuer    service.TaskEnqueuer

	// sessionLocks serializes concurrent turns for one session; the second
	// concurrent request is rejected rather than queued.
	sessionLocks sync.Map
}

func NewChatService(
	events *EventManager,
	cfg *config.Config,
	sessionRepo repository.ChatSessionRepository,
	messageRepo repository.ChatMessageRepository,
	ragRepo repository.ChatRagContextRepository,
	memoryRepo repository.ChatMemoryRepository,
	enqueuer service.TaskEnqueuer,
) *ChatService {
	return &ChatService{
		events:      events,
		cfg:         cfg,
		sessionRepo: sessionRepo,
		messageRepo: messageRepo,
		ragRepo:     ragRepo,
		memoryRepo:  memoryRepo,
		enqueuer:    enqueuer,
	}
}

// EnsureSession reuses the caller's active session or lazily creates one
// when no session id is provided.
func (s *ChatService) EnsureSession(
	ctx context.Context, userID string, sessionID *uuid.UUID,
) (*repository.ChatSession, error) {
	if sessionID != nil && *sessionID != uuid.Nil {
		session, err := s.sessionRepo.GetByID(ctx, *sessionID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, errors.NewNotFoundError("session not found")
			}
			return nil, errors.NewInternalServerError("load session", err)
		}
		if session.UserID != userID {
			return nil, errors.NewForbiddenError("session belongs to another user")
		}
		if !session.IsActive {
			return nil, errors.NewNotFoundError("session is inactive")
		}
		return session, nil
	}
	session := &repository.ChatSession{UserID: userID, IsActive: true}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, errors.NewInternalServerError("create session", err)
	}
	return session, nil
}

// StreamTurn processes one incoming user message. It persists the user
// message synchronously, then runs retrieval, prompt assembly and streaming
// generation, emitting deltas on the returned channel. The channel closes
// after the terminal outcome (or error) is delivered.
//
// Cancellation: when ctx ends mid-stream, generation aborts and the partial
// assistant text is discarded without persistence.
func (s *ChatService) StreamTurn(
	ctx context.Context, userID string, session *repository.ChatSession, message string,
) (<-chan types.StreamResponse, <-chan *TurnOutcome, error) {
	lock := s.lockFor(session.ID)
	if !lock.TryLock() {
		return nil, nil, errors.NewBadRequestError("another request for this session is in flight")
	}

	start := time.Now()
	userMsg := &repository.ChatMessage{
		SessionID: session.ID,
		Role:      repository.ChatRoleUser,
		Content:   message,
	}
	if err := s.messageRepo.Create(ctx, userMsg); err != nil {
		lock.Unlock()
		return nil, nil, errors.NewInternalServerError("persist user message", err)
	}

	cm := &types.ChatManage{
		SessionID:     session.ID,
		UserID:        userID,
		Query:         message,
		RagK:          s.cfg.RAG.DefaultK,
		RagMinScore:   s.cfg.RAG.DefaultMinScore,
		ContextBudget: s.cfg.RAG.MaxContextTokens,
		ResponseChan:  make(chan types.StreamResponse, 16),
	}
	s.loadMemories(ctx, cm)
	s.loadHistory(ctx, cm)

	outcomeChan := make(chan *TurnOutcome, 1)
	go func() {
		defer lock.Unlock()
		defer close(cm.ResponseChan)
		defer close(outcomeChan)

		for _, event := range []types.EventType{
			types.SEARCH, types.INTO_CHAT_MESSAGE, types.CHAT_COMPLETION_STREAM,
		} {
			if perr := s.events.Trigger(ctx, event, cm); perr != nil {
				pipelineError(ctx, "ChatService", "turn_failed", map[string]interface{}{
					"session_id": session.ID.String(), "event": string(event), "error": perr.Error(),
				})
				cm.ResponseChan <- types.StreamResponse{
					ResponseType: types.ResponseTypeError,
					Err:          perr,
					Done:         true,
				}
				return
			}
		}

		outcome := s.persistTurn(ctx, session, userMsg, cm, start)
		if outcome != nil {
			outcomeChan <- outcome
		}
	}()

	return cm.ResponseChan, outcomeChan, nil
}

// persistTurn stores the assistant message and retrieval trace, derives the
// session title on the first turn, and kicks off memory extraction. The
// assistant message is always persisted before memory extraction for the
// same turn runs.
func (s *ChatService) persistTurn(
	ctx context.Context,
	session *repository.ChatSession,
	userMsg *repository.ChatMessage,
	cm *types.ChatManage,
	start time.Time,
) *TurnOutcome {
	// Detached from the request context: the response already streamed and
	// persistence must not be lost to a late client disconnect.
	persistCtx, cancel := context.WithTimeout(logger.CloneContext(ctx), 10*time.Second)
	defer cancel()

	latency := time.Since(start).Milliseconds()
	sources := make([]repository.Source, 0, len(cm.RagContext.Chunks))
	for i, c := range cm.RagContext.Chunks {
		sources = append(sources, repository.Source{
			ID:        c.ChunkID.String(),
			InsightID: c.InsightID.String(),
			Score:     c.Score,
			Index:     i + 1,
			Title:     c.InsightTitle,
			URL:       c.InsightURL,
		})
	}
	meta, _ := json.Marshal(repository.MessageMetadata{
		Model:            cm.Model,
		PromptTokens:     cm.PromptTokens,
		CompletionTokens: cm.CompletionTokens,
		LatencyMS:        latency,
		RAGK:             cm.RagK,
		Sources:          sources,
	})
	assistantMsg := &repository.ChatMessage{
		SessionID:       session.ID,
		Role:            repository.ChatRoleAssistant,
		Content:         cm.Answer,
		Metadata:        meta,
		ParentMessageID: &userMsg.ID,
	}
	if err := s.messageRepo.Create(persistCtx, assistantMsg); err != nil {
		logger.Errorf(persistCtx, "persist assistant message failed: %v", err)
		return nil
	}

	ragChunks, _ := json.Marshal(cm.RagContext.Chunks)
	keywords, _ := json.Marshal(cm.RagContext.Keywords)
	if err := s.ragRepo.Create(persistCtx, &repository.ChatRagContext{
		MessageID:          assistantMsg.ID,
		RagChunks:          ragChunks,
		ContextText:        cm.RagContext.Text,
		TotalContextTokens: cm.RagContext.TotalContextTokens,
		ExtractedKeywords:  keywords,
		RagK:               cm.RagK,
		RagMinScore:        cm.RagMinScore,
	}); err != nil {
		logger.Errorf(persistCtx, "persist rag context failed: %v", err)
	}

	if session.Title == "" {
		session.Title = truncateTitle(cm.Query)
		if err := s.sessionRepo.Update(persistCtx, session); err != nil {
			logger.Warnf(persistCtx, "derive session title failed: %v", err)
		}
	}

	// Memory extraction failure never blocks the response.
	if err := s.enqueuer.EnqueueMemoryExtraction(persistCtx, session.ID, session.UserID); err != nil {
		logger.Warnf(persistCtx, "enqueue memory extraction failed: %v", err)
	}

	return &TurnOutcome{
		SessionID: session.ID,
		MessageID: assistantMsg.ID,
		LatencyMS: latency,
		Sources:   sources,
	}
}

// loadMemories renders the top session memories as short bullet lines.
func (s *ChatService) loadMemories(ctx context.Context, cm *types.ChatManage) {
	memories, err := s.memoryRepo.TopForSession(ctx, cm.SessionID, sessionMemories)
	if err != nil {
		logger.Warnf(ctx, "load session memories failed: %v", err)
		return
	}
	for _, m := range memories {
		cm.Memories = append(cm.Memories, m.Content)
	}
}

// loadHistory collects the last N turns including the just-persisted user message.
func (s *ChatService) loadHistory(ctx context.Context, cm *types.ChatManage) {
	msgs, err := s.messageRepo.LastN(ctx, cm.SessionID, historyTurns)
	if err != nil {
		logger.Warnf(ctx, "load session history failed: %v", err)
		cm.History = []types.HistoryMessage{{Role: "user", Content: cm.Query}}
		return
	}
	for _, m := range msgs {
		cm.History = append(cm.History, types.HistoryMessage{Role: string(m.Role), Content: m.Content})
	}
}

func (s *ChatService) lockFor(sessionID uuid.UUID) *sync.Mutex {
	actual, _ := s.sessionLocks.LoadOrStore(sessionID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

func truncateTitle(message string) string {
	runes := []rune(message)
	if len(runes) > titleRuneLimit {
		return string(runes[:titleRuneLimit])
	}
	return message
}

// Sessions lists the user's sessions with pagination.
func (s *ChatService) Sessions(
	ctx context.Context, userID string, page, size int,
) ([]*repository.ChatSession, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	return s.sessionRepo.ListByUser(ctx, userID, page, size)
}

// GetOwnedSession loads a session and enforces ownership.
func (s *ChatService) GetOwnedSession(
	ctx context.Context, userID string, id uuid.UUID,
) (*repository.ChatSession, error) {
	session, err := s.sessionRepo.GetByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.NewNotFoundError("session not found")
		}
		return nil, errors.NewInternalServerError("load session", err)
	}
	if session.UserID != userID {
		return nil, errors.NewForbiddenError("session belongs to another user")
	}
	return session, nil
}

// UpdateSessionTitle renames a session.
func (s *ChatService) UpdateSessionTitle(
	ctx context.Context, userID string, id uuid.UUID, title string,
) (*repository.ChatSession, error) {
	session, err := s.GetOwnedSession(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	session.Title = truncateTitle(title)
	if err := s.sessionRepo.Update(ctx, session); err != nil {
		return nil, errors.NewInternalServerError("update session", err)
	}
	return session, nil
}

// DeactivateSession soft-deactivates a session.
func (s *ChatService) DeactivateSession(ctx context.Context, userID string, id uuid.UUID) error {
	if _, err := s.GetOwnedSession(ctx, userID, id); err != nil {
		return err
	}
	return s.sessionRepo.Deactivate(ctx, id)
}

// Messages returns a session's messages in chronological order.
func (s *ChatService) Messages(
	ctx context.Context, userID string, id uuid.UUID, limit int,
) ([]*repository.ChatMessage, error) {
	if _, err := s.GetOwnedSession(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.messageRepo.ListBySession(ctx, id, limit)
}

// Context returns the recent conversation window plus the retrieval trace of
// the latest assistant message, backing the session-context endpoint.
func (s *ChatService) Context(
	ctx context.Context, userID string, id uuid.UUID, limitMessages int,
) ([]*repository.ChatMessage, *repository.ChatRagContext, error) {
	if limitMessages <= 0 {
		limitMessages = historyTurns
	}
	if _, err := s.GetOwnedSession(ctx, userID, id); err != nil {
		return nil, nil, err
	}
	msgs, err := s.messageRepo.LastN(ctx, id, limitMessages)
	if err != nil {
		return nil, nil, errors.NewInternalServerError("load messages", err)
	}
	var trace *repository.ChatRagContext
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == repository.ChatRoleAssistant {
			trace, _ = s.ragRepo.GetByMessageID(ctx, msgs[i].ID)
			break
		}
	}
	return msgs, trace, nil
}
