package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/marginalia-labs/marginalia/internal/application/repository"
	"github.com/marginalia-labs/marginalia/internal/application/service"
	"github.com/marginalia-labs/marginalia/internal/errors"
	"github.com/marginalia-labs/marginalia/internal/middleware"
)

// MemoryHandler serves the user memory profile and consolidation surface.
type MemoryHandler struct {
	service *service.MemoryService
}

// NewMemoryHandler creates a new memory handler.
func NewMemoryHandler(svc *service.MemoryService) *MemoryHandler {
	return &MemoryHandler{service: svc}
}

// ConsolidateRequest selects buckets and strategy for a manual consolidation.
type ConsolidateRequest struct {
	MemoryTypes           []string `json:"memory_types"`
	ForceConsolidate      bool     `json:"force_consolidate"`
	ConsolidationStrategy string   `json:"consolidation_strategy"`
}

// Consolidate godoc
// @Summary      Merge extracted memories into the profile document
// @Tags         memory
// @Accept       json
// @Produce      json
// @Security     Bearer
// @Router       /user/memory/consolidate [post]
func (h *MemoryHandler) Consolidate(c *gin.Context) {
	var req ConsolidateRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.Error(errors.NewBadRequestError(err.Error()))
		return
	}
	profile, err := h.service.Consolidate(c.Request.Context(), middleware.UserID(c), service.ConsolidateOptions{
		MemoryTypes: req.MemoryTypes,
		Strategy:    req.ConsolidationStrategy,
		Force:       req.ForceConsolidate,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": profile})
}

// GetProfile godoc
// @Summary      Get the memory profile document
// @Tags         memory
// @Produce      json
// @Security     Bearer
// @Router       /user/memory/profile [get]
func (h *MemoryHandler) GetProfile(c *gin.Context) {
	profile, err := h.service.GetProfile(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": profile})
}

// GetSummary godoc
// @Summary      Get per-bucket memory counts
// @Tags         memory
// @Produce      json
// @Security     Bearer
// @Router       /user/memory/summary [get]
func (h *MemoryHandler) GetSummary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": summary})
}

// UpdateSettings godoc
// @Summary      Update consolidation settings
// @Tags         memory
// @Accept       json
// @Produce      json
// @Security     Bearer
// @Router       /user/memory/settings [put]
func (h *MemoryHandler) UpdateSettings(c *gin.Context) {
	var req repository.ConsolidationSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewBadRequestError(err.Error()))
		return
	}
	profile, err := h.service.UpdateSettings(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": profile})
}

// AutoConsolidate godoc
// @Summary      Run consolidation if the user's settings allow it
// @Tags         memory
// @Produce      json
// @Param        session_id  query  string  false  "scope hint, currently informational"
// @Security     Bearer
// @Router       /user/memory/auto-consolidate [post]
func (h *MemoryHandler) AutoConsolidate(c *gin.Context) {
	if raw := c.Query("session_id"); raw != "" {
		if _, err := uuid.Parse(raw); err != nil {
			c.Error(errors.NewBadRequestError("invalid session id"))
			return
		}
	}
	if err := h.service.AutoConsolidate(c.Request.Context(), middleware.UserID(c)); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
