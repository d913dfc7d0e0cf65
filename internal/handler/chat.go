package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/marginalia-labs/marginalia/internal/application/repository"
	"github.com/marginalia-labs/marginalia/internal/application/service"
	chatpipline "github.com/marginalia-labs/marginalia/internal/application/service/chat_pipline"
	"github.com/marginalia-labs/marginalia/internal/errors"
	"github.com/marginalia-labs/marginalia/internal/logger"
	"github.com/marginalia-labs/marginalia/internal/middleware"
	"github.com/marginalia-labs/marginalia/internal/types"
)

// ChatHandler serves the streaming chat endpoint and the session CRUD surface.
type ChatHandler struct {
	service *chatpipline.ChatService
	limiter *service.RateLimiter
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(svc *chatpipline.ChatService, limiter *service.RateLimiter) *ChatHandler {
	return &ChatHandler{service: svc, limiter: limiter}
}

// ChatRequest is the body of one chat turn.
type ChatRequest struct {
	Message string `json:"message" binding:"required"`
}

type sseEvent struct {
	Type      string              `json:"type"`
	Content   string              `json:"content,omitempty"`
	Code      string              `json:"code,omitempty"`
	Message   string              `json:"message,omitempty"`
	RequestID string              `json:"request_id,omitempty"`
	LatencyMS int64               `json:"latency_ms,omitempty"`
	Sources   []repository.Source `json:"sources,omitempty"`
}

// Chat godoc
// @Summary      Chat with the knowledge assistant
// @Description  Streams token deltas as text/event-stream; the terminal event carries sources
// @Tags         chat
// @Accept       json
// @Produce      text/event-stream
// @Param        session_id  query  string       false  "existing session id"
// @Param        request     body   ChatRequest  true   "user message"
// @Security     Bearer
// @Router       /chat [post]
func (h *ChatHandler) Chat(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.UserID(c)

	// Rate limit before retrieval runs.
	key := userID
	if key == "" {
		key = c.ClientIP()
	}
	if ok, retryAfter := h.limiter.Allow(key); !ok {
		c.Error(errors.NewRateLimitedError("chat rate limit exceeded", retryAfter))
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		c.Error(errors.NewBadRequestError("message must not be empty"))
		return
	}

	var sessionID *uuid.UUID
	if raw := c.Query("session_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.Error(errors.NewBadRequestError("invalid session id"))
			return
		}
		sessionID = &id
	}

	session, err := h.service.EnsureSession(ctx, userID, sessionID)
	if err != nil {
		c.Error(err)
		return
	}
	c.Header("X-Session-ID", session.ID.String())

	stream, outcome, err := h.service.StreamTurn(ctx, userID, session, req.Message)
	if err != nil {
		c.Error(err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.Flush()

	for item := range stream {
		switch item.ResponseType {
		case types.ResponseTypeAnswer:
			writeSSE(c, sseEvent{Type: "content", Content: item.Content})
		case types.ResponseTypeError:
			writeSSE(c, sseEvent{Type: "error", Code: "upstream_error", Message: "generation failed"})
			logger.Errorf(ctx, "chat stream failed: %v", item.Err)
			return
		}
	}

	result, ok := <-outcome
	if !ok || result == nil {
		writeSSE(c, sseEvent{Type: "error", Code: "internal", Message: "response was not persisted"})
		return
	}
	writeSSE(c, sseEvent{
		Type:      "done",
		RequestID: c.GetString(types.RequestIDContextKey.String()),
		LatencyMS: result.LatencyMS,
		Sources:   result.Sources,
	})
}

func writeSSE(c *gin.Context, event sseEvent) {
	raw, err := json.Marshal(event)
	if err != nil {
		return
	}
	c.Writer.WriteString("data: ")
	c.Writer.Write(raw)
	c.Writer.WriteString("\n\n")
	c.Writer.Flush()
}

// Health godoc
// @Summary      Chat liveness probe
// @Tags         chat
// @Produce      json
// @Router       /chat/health [get]
func (h *ChatHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "status": "ok"})
}
