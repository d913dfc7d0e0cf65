package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	chatpipline "github.com/marginalia-labs/marginalia/internal/application/service/chat_pipline"
	"github.com/marginalia-labs/marginalia/internal/errors"
	"github.com/marginalia-labs/marginalia/internal/middleware"
)

// SessionHandler serves the chat session CRUD surface.
type SessionHandler struct {
	service *chatpipline.ChatService
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(svc *chatpipline.ChatService) *SessionHandler {
	return &SessionHandler{service: svc}
}

// CreateSession godoc
// @Summary      Create a chat session explicitly
// @Tags         sessions
// @Produce      json
// @Security     Bearer
// @Router       /chat/sessions [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	session, err := h.service.EnsureSession(c.Request.Context(), middleware.UserID(c), nil)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": session})
}

// ListSessions godoc
// @Summary      List the caller's sessions
// @Tags         sessions
// @Produce      json
// @Param        page  query  int  false  "page"
// @Param        size  query  int  false  "page size"
// @Security     Bearer
// @Router       /chat/sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	sessions, total, err := h.service.Sessions(c.Request.Context(), middleware.UserID(c), page, size)
	if err != nil {
		c.Error(errors.NewInternalServerError("list sessions", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "sessions": sessions, "total": total})
}

func (h *SessionHandler) sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.Error(errors.NewBadRequestError("invalid session id"))
		return uuid.Nil, false
	}
	return id, true
}

// GetSession godoc
// @Summary      Get one session
// @Tags         sessions
// @Produce      json
// @Param        id  path  string  true  "session id"
// @Security     Bearer
// @Router       /chat/sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	session, err := h.service.GetOwnedSession(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": session})
}

// UpdateSessionRequest renames a session.
type UpdateSessionRequest struct {
	Title string `json:"title" binding:"required"`
}

// UpdateSession godoc
// @Summary      Rename a session
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Param        id  path  string  true  "session id"
// @Security     Bearer
// @Router       /chat/sessions/{id} [put]
func (h *SessionHandler) UpdateSession(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	var req UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewBadRequestError(err.Error()))
		return
	}
	session, err := h.service.UpdateSessionTitle(c.Request.Context(), middleware.UserID(c), id, req.Title)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": session})
}

// DeleteSession godoc
// @Summary      Deactivate a session
// @Tags         sessions
// @Produce      json
// @Param        id  path  string  true  "session id"
// @Security     Bearer
// @Router       /chat/sessions/{id} [delete]
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	if err := h.service.DeactivateSession(c.Request.Context(), middleware.UserID(c), id); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListMessages godoc
// @Summary      List a session's messages in order
// @Tags         sessions
// @Produce      json
// @Param        id     path   string  true   "session id"
// @Param        limit  query  int     false  "max messages"
// @Security     Bearer
// @Router       /chat/sessions/{id}/messages [get]
func (h *SessionHandler) ListMessages(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	msgs, err := h.service.Messages(c.Request.Context(), middleware.UserID(c), id, limit)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messages": msgs})
}

// GetContext godoc
// @Summary      Get the recent conversation window plus the latest retrieval trace
// @Tags         sessions
// @Produce      json
// @Param        id              path   string  true   "session id"
// @Param        limit_messages  query  int     false  "window size"
// @Security     Bearer
// @Router       /chat/sessions/{id}/context [get]
func (h *SessionHandler) GetContext(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit_messages", "0"))
	msgs, trace, err := h.service.Context(c.Request.Context(), middleware.UserID(c), id, limit)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messages": msgs, "rag_context": trace})
}
