package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/marginalia-labs/marginalia/internal/application/service"
	"github.com/marginalia-labs/marginalia/internal/errors"
	"github.com/marginalia-labs/marginalia/internal/logger"
	"github.com/marginalia-labs/marginalia/internal/middleware"
	secutils "github.com/marginalia-labs/marginalia/internal/utils"
)

// InsightHandler handles HTTP requests for insight operations.
type InsightHandler struct {
	service *service.InsightService
}

// NewInsightHandler creates a new instance of InsightHandler.
func NewInsightHandler(service *service.InsightService) *InsightHandler {
	return &InsightHandler{service: service}
}

// CreateInsightRequest defines the structure for insight creation requests.
type CreateInsightRequest struct {
	URL     string      `json:"url" binding:"required"`
	Thought string      `json:"thought"`
	TagIDs  []uuid.UUID `json:"tag_ids"`
}

// CreateInsight godoc
// @Summary      Save a URL
// @Description  Creates the insight synchronously and starts background ingestion
// @Tags         insights
// @Accept       json
// @Produce      json
// @Param        request  body      CreateInsightRequest  true  "URL and optional note"
// @Success      200      {object}  map[string]interface{}
// @Security     Bearer
// @Router       /insights [post]
func (h *InsightHandler) CreateInsight(c *gin.Context) {
	ctx := c.Request.Context()
	var req CreateInsightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewBadRequestError(err.Error()))
		return
	}
	userID := middleware.UserID(c)
	logger.Infof(ctx, "Creating insight for url %s", secutils.SanitizeForLog(req.URL))

	insight, err := h.service.CreateInsight(ctx, userID, req.URL, req.Thought, req.TagIDs)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": insight})
}

// ListInsights godoc
// @Summary      List insights
// @Tags         insights
// @Produce      json
// @Param        page    query  int     false  "page"
// @Param        limit   query  int     false  "page size"
// @Param        search  query  string  false  "title/description/url filter"
// @Security     Bearer
// @Router       /insights [get]
func (h *InsightHandler) ListInsights(c *gin.Context) {
	userID := middleware.UserID(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	search := c.Query("search")

	insights, total, err := h.service.List(c.Request.Context(), userID, search, page, limit)
	if err != nil {
		c.Error(errors.NewInternalServerError("list insights", err))
		return
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	totalPages := (total + int64(limit) - 1) / int64(limit)
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"insights": insights,
		"pagination": gin.H{
			"page": page, "limit": limit, "total": total, "total_pages": totalPages,
		},
	})
}

// ListAllInsights godoc
// @Summary      List every insight of the caller
// @Tags         insights
// @Produce      json
// @Security     Bearer
// @Router       /insights/all [get]
func (h *InsightHandler) ListAllInsights(c *gin.Context) {
	insights, err := h.service.ListAll(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.Error(errors.NewInternalServerError("list insights", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "insights": insights})
}

// SyncIncremental godoc
// @Summary      Incremental sync with ETag semantics
// @Description  Unchanged corpora return 200 with an empty array and the same ETag
// @Tags         insights
// @Produce      json
// @Param        since  query  int     false  "unix seconds watermark"
// @Param        etag   query  string  false  "previous ETag"
// @Security     Bearer
// @Router       /insights/sync/incremental [get]
func (h *InsightHandler) SyncIncremental(c *gin.Context) {
	since, _ := strconv.ParseInt(c.DefaultQuery("since", "0"), 10, 64)
	etag := c.Query("etag")
	if etag == "" {
		etag = c.GetHeader("If-None-Match")
	}

	insights, newETag, unchanged, err := h.service.SyncIncremental(
		c.Request.Context(), middleware.UserID(c), since, etag,
	)
	if err != nil {
		c.Error(err)
		return
	}
	c.Header("ETag", newETag)
	if unchanged {
		c.JSON(http.StatusOK, gin.H{"success": true, "insights": []struct{}{}, "etag": newETag})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "insights": insights, "etag": newETag})
}

// GetInsight godoc
// @Summary      Get one insight
// @Tags         insights
// @Produce      json
// @Param        id  path  string  true  "insight id"
// @Security     Bearer
// @Router       /insights/{id} [get]
func (h *InsightHandler) GetInsight(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.Error(errors.NewBadRequestError("invalid insight id"))
		return
	}
	insight, err := h.service.GetOwned(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": insight})
}

// UpdateInsightRequest carries the owner-editable fields; nil means unchanged.
type UpdateInsightRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Thought     *string `json:"thought"`
}

// UpdateInsight godoc
// @Summary      Update an insight
// @Tags         insights
// @Accept       json
// @Produce      json
// @Param        id  path  string  true  "insight id"
// @Security     Bearer
// @Router       /insights/{id} [put]
func (h *InsightHandler) UpdateInsight(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.Error(errors.NewBadRequestError("invalid insight id"))
		return
	}
	var req UpdateInsightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewBadRequestError(err.Error()))
		return
	}
	insight, err := h.service.UpdateInsight(
		c.Request.Context(), middleware.UserID(c), id, req.Title, req.Description, req.Thought,
	)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": insight})
}

// DeleteInsight godoc
// @Summary      Delete an insight and its content, chunks and tag links
// @Tags         insights
// @Produce      json
// @Param        id  path  string  true  "insight id"
// @Security     Bearer
// @Router       /insights/{id} [delete]
func (h *InsightHandler) DeleteInsight(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.Error(errors.NewBadRequestError("invalid insight id"))
		return
	}
	if err := h.service.DeleteInsight(c.Request.Context(), middleware.UserID(c), id); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetChunkSummary godoc
// @Summary      Report chunk counts for one insight
// @Tags         insights
// @Produce      json
// @Param        id  path  string  true  "insight id"
// @Security     Bearer
// @Router       /insight-chunks/{id}/summary [get]
func (h *InsightHandler) GetChunkSummary(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.Error(errors.NewBadRequestError("invalid insight id"))
		return
	}
	total, withEmbedding, err := h.service.ChunkSummary(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":               true,
		"total_chunks":          total,
		"chunks_with_embedding": withEmbedding,
	})
}

// GetInsightContent godoc
// @Summary      Get the extracted content and summary of one insight
// @Tags         insights
// @Produce      json
// @Param        id  path  string  true  "insight id"
// @Security     Bearer
// @Router       /insights/{id}/content [get]
func (h *InsightHandler) GetInsightContent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.Error(errors.NewBadRequestError("invalid insight id"))
		return
	}
	content, err := h.service.GetContent(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": content})
}
