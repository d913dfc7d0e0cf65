package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marginalia-labs/marginalia/internal/application/repository"
	"github.com/marginalia-labs/marginalia/internal/application/service"
	"github.com/marginalia-labs/marginalia/internal/config"
	"github.com/marginalia-labs/marginalia/internal/errors"
	"github.com/marginalia-labs/marginalia/internal/logger"
	"github.com/marginalia-labs/marginalia/internal/middleware"
)

// EmailHandler serves digest preferences, the cron trigger, the provider
// webhook and the unsubscribe link.
type EmailHandler struct {
	cfg     *config.Config
	service *service.EmailDispatchService
}

// NewEmailHandler creates a new email handler.
func NewEmailHandler(cfg *config.Config, svc *service.EmailDispatchService) *EmailHandler {
	return &EmailHandler{cfg: cfg, service: svc}
}

// CronDigest godoc
// @Summary      Hourly digest trigger
// @Description  Authenticated by the shared X-Cron-Secret header; returns per-user decisions
// @Tags         email
// @Produce      json
// @Router       /email/cron/digest [post]
func (h *EmailHandler) CronDigest(c *gin.Context) {
	if h.cfg.Email.CronSecret == "" || c.GetHeader("X-Cron-Secret") != h.cfg.Email.CronSecret {
		c.Error(errors.NewAuthInvalidError("invalid cron secret"))
		return
	}
	decisions, err := h.service.DispatchAll(c.Request.Context(), time.Now().UTC(), false)
	if err != nil {
		c.Error(err)
		return
	}
	var sent int
	for _, d := range decisions {
		if d.Sent {
			sent++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"users":     len(decisions),
		"sent":      sent,
		"decisions": decisions,
	})
}

// TestSendRequest is the owner-authed single-user send.
type TestSendRequest struct {
	DryRun        bool   `json:"dry_run"`
	Force         bool   `json:"force"`
	EmailOverride string `json:"email_override"`
}

// TestSendDigest godoc
// @Summary      Send (or dry-run) the caller's own digest
// @Tags         email
// @Accept       json
// @Produce      json
// @Security     Bearer
// @Router       /email/digest/test-send [post]
func (h *EmailHandler) TestSendDigest(c *gin.Context) {
	var req TestSendRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.Error(errors.NewBadRequestError(err.Error()))
		return
	}
	prefs, err := h.service.Preferences(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.Error(err)
		return
	}
	decision := h.service.DispatchUser(
		c.Request.Context(), prefs, time.Now().UTC(), req.Force, req.DryRun, req.EmailOverride,
	)
	c.JSON(http.StatusOK, gin.H{"success": true, "decision": decision})
}

// GetPreferences godoc
// @Summary      Get digest preferences
// @Tags         email
// @Produce      json
// @Security     Bearer
// @Router       /email/preferences [get]
func (h *EmailHandler) GetPreferences(c *gin.Context) {
	prefs, err := h.service.Preferences(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": prefs})
}

// UpdatePreferences godoc
// @Summary      Update digest preferences
// @Tags         email
// @Accept       json
// @Produce      json
// @Security     Bearer
// @Router       /email/preferences [put]
func (h *EmailHandler) UpdatePreferences(c *gin.Context) {
	var req repository.EmailPreferences
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewBadRequestError(err.Error()))
		return
	}
	prefs, err := h.service.UpdatePreferences(c.Request.Context(), middleware.UserID(c), &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": prefs})
}

// BrevoWebhook godoc
// @Summary      Ingest a Brevo delivery event
// @Description  Bounces, complaints and unsubscribes create suppression rows
// @Tags         email
// @Accept       json
// @Produce      json
// @Router       /email/webhooks/brevo [post]
func (h *EmailHandler) BrevoWebhook(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.Error(errors.NewBadRequestError("unreadable webhook body"))
		return
	}
	var event service.WebhookEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		c.Error(errors.NewBadRequestError("malformed webhook body"))
		return
	}
	if err := h.service.HandleWebhook(c.Request.Context(), event, raw); err != nil {
		c.Error(err)
		return
	}
	logger.Infof(c.Request.Context(), "brevo webhook %s for %s recorded", event.Event, event.Email)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Unsubscribe godoc
// @Summary      One-click unsubscribe link target
// @Tags         email
// @Produce      json
// @Param        token  path  string  true  "unsubscribe token"
// @Router       /email/unsubscribe/{token} [get]
func (h *EmailHandler) Unsubscribe(c *gin.Context) {
	token := c.Param("token")
	if err := h.service.Unsubscribe(c.Request.Context(), token); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "detail": "weekly digest disabled"})
}
