package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/marginalia-labs/marginalia/internal/application/service"
	"github.com/marginalia-labs/marginalia/internal/errors"
	"github.com/marginalia-labs/marginalia/internal/logger"
	secutils "github.com/marginalia-labs/marginalia/internal/utils"
)

// MetadataHandler serves the metadata preview endpoint and the summary
// status query backed by the summary cache.
type MetadataHandler struct {
	service  *service.MetadataService
	enqueuer service.TaskEnqueuer
}

// NewMetadataHandler creates a new metadata handler.
func NewMetadataHandler(svc *service.MetadataService, enqueuer service.TaskEnqueuer) *MetadataHandler {
	return &MetadataHandler{service: svc, enqueuer: enqueuer}
}

// ExtractMetadata godoc
// @Summary      Preview a URL's metadata
// @Description  Synchronously extracts metadata and warms the summary cache in the background
// @Tags         metadata
// @Accept       x-www-form-urlencoded
// @Produce      json
// @Param        url  formData  string  true  "page URL"
// @Security     Bearer
// @Router       /metadata/extract [post]
func (h *MetadataHandler) ExtractMetadata(c *gin.Context) {
	ctx := c.Request.Context()
	rawURL := c.PostForm("url")
	if !secutils.IsValidURL(rawURL) {
		c.Error(errors.NewBadRequestError("url is missing or invalid"))
		return
	}

	result := h.service.ExtractMetadata(ctx, rawURL)
	if err := h.enqueuer.EnqueueWarmSummary(ctx, rawURL); err != nil {
		logger.Warnf(ctx, "enqueue summary warm failed: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"title":       result.Title,
			"description": result.Description,
			"image_url":   result.ImageURL,
		},
	})
}

// GetSummaryStatus godoc
// @Summary      Query the cached summary for a URL
// @Tags         metadata
// @Produce      json
// @Param        url  path  string  true  "URL-encoded page URL"
// @Security     Bearer
// @Router       /metadata/summary/{url} [get]
func (h *MetadataHandler) GetSummaryStatus(c *gin.Context) {
	rawURL := strings.TrimPrefix(c.Param("url"), "/")
	if decoded, err := url.QueryUnescape(rawURL); err == nil {
		rawURL = decoded
	}
	entry, ok := h.service.SummaryStatus(rawURL)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"success": true, "status": "not_found"})
		return
	}
	resp := gin.H{"success": true, "status": string(entry.Status)}
	if entry.Status == service.SummaryCompleted {
		resp["summary"] = entry.Summary
	}
	if entry.Status == service.SummaryFailed {
		resp["error"] = entry.Error
	}
	c.JSON(http.StatusOK, resp)
}
