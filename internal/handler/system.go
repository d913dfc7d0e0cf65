// Package handler implements the HTTP surface on gin: insights,
// metadata preview, chat, memory, email preferences and the ops endpoints.
package handler

import (
	"runtime"

	"github.com/gin-gonic/gin"
	"github.com/marginalia-labs/marginalia/internal/config"
	"github.com/marginalia-labs/marginalia/internal/logger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// SystemHandler serves version/build metadata and backend health.
type SystemHandler struct {
	cfg   *config.Config
	db    *gorm.DB
	redis redis.UniversalClient
}

// NewSystemHandler creates a new system handler.
func NewSystemHandler(cfg *config.Config, db *gorm.DB, redisClient redis.UniversalClient) *SystemHandler {
	return &SystemHandler{cfg: cfg, db: db, redis: redisClient}
}

// GetSystemInfoResponse defines the response structure for system info.
type GetSystemInfoResponse struct {
	Version        string `json:"version"`
	CommitID       string `json:"commit_id,omitempty"`
	BuildTime      string `json:"build_time,omitempty"`
	GoVersion      string `json:"go_version,omitempty"`
	DatabaseOK     bool   `json:"database_ok"`
	QueueOK        bool   `json:"queue_ok"`
	ChatModel      string `json:"chat_model,omitempty"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
}

// Version information injected at build time.
var (
	Version   = "unknown"
	CommitID  = "unknown"
	BuildTime = "unknown"
)

// GetSystemInfo godoc
// @Summary      Get system info
// @Description  Version, build metadata and backend health
// @Tags         system
// @Produce      json
// @Success      200  {object}  GetSystemInfoResponse
// @Router       /system/info [get]
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	ctx := c.Request.Context()

	dbOK := false
	if sqlDB, err := h.db.DB(); err == nil {
		dbOK = sqlDB.PingContext(ctx) == nil
	}
	queueOK := h.redis != nil && h.redis.Ping(ctx).Err() == nil

	response := GetSystemInfoResponse{
		Version:        Version,
		CommitID:       CommitID,
		BuildTime:      BuildTime,
		GoVersion:      runtime.Version(),
		DatabaseOK:     dbOK,
		QueueOK:        queueOK,
		ChatModel:      h.cfg.LLM.ChatModel,
		EmbeddingModel: h.cfg.LLM.EmbeddingModel,
	}

	logger.Info(ctx, "System info retrieved successfully")
	c.JSON(200, gin.H{"success": true, "data": response})
}
