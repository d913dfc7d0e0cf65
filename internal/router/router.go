// Package router wires the public HTTP surface onto gin.
package router

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/marginalia-labs/marginalia/internal/application/auth"
	"github.com/marginalia-labs/marginalia/internal/handler"
	"github.com/marginalia-labs/marginalia/internal/middleware"
)

// Handlers collects every handler the router mounts.
type Handlers struct {
	Insight  *handler.InsightHandler
	Metadata *handler.MetadataHandler
	Chat     *handler.ChatHandler
	Session  *handler.SessionHandler
	Memory   *handler.MemoryHandler
	Email    *handler.EmailHandler
	System   *handler.SystemHandler
}

// New builds the gin engine with the full middleware chain and route table.
func New(resolver *auth.TokenResolver, h Handlers) *gin.Engine {
	engine := gin.New()
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.ErrorRenderer())
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID", "If-None-Match"},
		ExposeHeaders:    []string{"X-Session-ID", "X-Request-ID", "ETag", "Retry-After"},
		AllowCredentials: false,
	}))

	v1 := engine.Group("/api/v1")
	authed := v1.Group("", middleware.Auth(resolver))

	// Insights.
	authed.POST("/insights", h.Insight.CreateInsight)
	authed.GET("/insights", h.Insight.ListInsights)
	authed.GET("/insights/all", h.Insight.ListAllInsights)
	authed.GET("/insights/sync/incremental", h.Insight.SyncIncremental)
	authed.GET("/insights/:id", h.Insight.GetInsight)
	authed.PUT("/insights/:id", h.Insight.UpdateInsight)
	authed.DELETE("/insights/:id", h.Insight.DeleteInsight)
	authed.GET("/insights/:id/content", h.Insight.GetInsightContent)
	authed.GET("/insight-chunks/:id/summary", h.Insight.GetChunkSummary)

	// Metadata preview + summary cache.
	authed.POST("/metadata/extract", h.Metadata.ExtractMetadata)
	authed.GET("/metadata/summary/*url", h.Metadata.GetSummaryStatus)

	// Chat.
	authed.POST("/chat", h.Chat.Chat)
	v1.GET("/chat/health", h.Chat.Health)
	authed.POST("/chat/sessions", h.Session.CreateSession)
	authed.GET("/chat/sessions", h.Session.ListSessions)
	authed.GET("/chat/sessions/:id", h.Session.GetSession)
	authed.PUT("/chat/sessions/:id", h.Session.UpdateSession)
	authed.DELETE("/chat/sessions/:id", h.Session.DeleteSession)
	authed.GET("/chat/sessions/:id/messages", h.Session.ListMessages)
	authed.GET("/chat/sessions/:id/context", h.Session.GetContext)

	// Memory.
	authed.POST("/user/memory/consolidate", h.Memory.Consolidate)
	authed.GET("/user/memory/profile", h.Memory.GetProfile)
	authed.GET("/user/memory/summary", h.Memory.GetSummary)
	authed.PUT("/user/memory/settings", h.Memory.UpdateSettings)
	authed.POST("/user/memory/auto-consolidate", h.Memory.AutoConsolidate)

	// Email digest.
	v1.POST("/email/cron/digest", h.Email.CronDigest)
	authed.POST("/email/digest/test-send", h.Email.TestSendDigest)
	authed.GET("/email/preferences", h.Email.GetPreferences)
	authed.PUT("/email/preferences", h.Email.UpdatePreferences)
	v1.POST("/email/webhooks/brevo", h.Email.BrevoWebhook)
	v1.GET("/email/unsubscribe/:token", h.Email.Unsubscribe)

	// Ops.
	v1.GET("/system/info", h.System.GetSystemInfo)

	return engine
}
