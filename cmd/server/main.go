// Command server runs the HTTP API: insights, metadata preview, chat,
// memory and email preferences. Background work is enqueued to Redis and
// consumed by cmd/worker.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/hibiken/asynq"
	"github.com/marginalia-labs/marginalia/internal/application/auth"
	"github.com/marginalia-labs/marginalia/internal/application/repository"
	"github.com/marginalia-labs/marginalia/internal/application/service"
	chatpipline "github.com/marginalia-labs/marginalia/internal/application/service/chat_pipline"
	"github.com/marginalia-labs/marginalia/internal/config"
	"github.com/marginalia-labs/marginalia/internal/handler"
	"github.com/marginalia-labs/marginalia/internal/logger"
	"github.com/marginalia-labs/marginalia/internal/router"
	"github.com/marginalia-labs/marginalia/internal/runtime"
	"github.com/marginalia-labs/marginalia/internal/tasks"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		logger.Errorf(ctx, "load config: %v", err)
		os.Exit(1)
	}
	logger.Configure(cfg.Log.Level, cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups, cfg.Log.MaxAgeDays)
	gin.SetMode(gin.ReleaseMode)

	if err := runMigrations(cfg); err != nil {
		logger.Errorf(ctx, "run migrations: %v", err)
		os.Exit(1)
	}

	container := buildContainer(cfg)
	runtime.SetContainer(container)

	err = container.Invoke(func(engine *gin.Engine, pool *service.CPUPool, preprocess *service.PreprocessService) error {
		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Infof(ctx, "listening on %s", cfg.Server.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf(ctx, "http server: %v", err)
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info(ctx, "shutting down")
		shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf(ctx, "shutdown: %v", err)
		}
		pool.Release()
		preprocess.Close()
		return nil
	})
	if err != nil {
		logger.Errorf(ctx, "start server: %v", err)
		os.Exit(1)
	}
}

// runMigrations applies the SQL migrations before the server accepts traffic.
func runMigrations(cfg *config.Config) error {
	m, err := migrate.New("file://migrations", cfg.Database.URL)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// buildContainer wires the full dependency graph.
func buildContainer(cfg *config.Config) *dig.Container {
	c := dig.New()

	must := func(err error) {
		if err != nil {
			logger.Errorf(context.Background(), "container wiring: %v", err)
			os.Exit(1)
		}
	}

	must(c.Provide(func() *config.Config { return cfg }))
	must(c.Provide(func(cfg *config.Config) (*gorm.DB, error) {
		return gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{})
	}))
	must(c.Provide(func(cfg *config.Config) redis.UniversalClient {
		return redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}))
	must(c.Provide(func(cfg *config.Config) *asynq.Client {
		return asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}))

	// Repositories.
	must(c.Provide(repository.NewInsightRepository))
	must(c.Provide(repository.NewInsightContentRepository))
	must(c.Provide(repository.NewInsightChunkRepository))
	must(c.Provide(repository.NewTagRepository))
	must(c.Provide(repository.NewChatSessionRepository))
	must(c.Provide(repository.NewChatMessageRepository))
	must(c.Provide(repository.NewChatRagContextRepository))
	must(c.Provide(repository.NewChatMemoryRepository))
	must(c.Provide(repository.NewProfileRepository))
	must(c.Provide(repository.NewEmailPreferencesRepository))
	must(c.Provide(repository.NewEmailDigestRepository))
	must(c.Provide(repository.NewUnsubscribeTokenRepository))
	must(c.Provide(repository.NewEmailEventRepository))
	must(c.Provide(repository.NewEmailSuppressionRepository))

	// Services.
	must(c.Provide(service.NewLLMService))
	must(c.Provide(service.NewFetchService))
	must(c.Provide(service.NewExtractService))
	must(c.Provide(service.NewPreprocessService))
	must(c.Provide(func() *service.ChunkerService {
		return service.NewChunkerService(service.DefaultChunkerConfig())
	}))
	must(c.Provide(func(cfg *config.Config) *service.SummaryCache {
		return service.NewSummaryCache(cfg.Summary.TTL)
	}))
	must(c.Provide(service.NewCPUPool))
	must(c.Provide(service.NewIngestService))
	must(c.Provide(service.NewMetadataService))
	must(c.Provide(service.NewRetrieverService))
	must(c.Provide(service.NewContextBuilder))
	must(c.Provide(func(cfg *config.Config) *service.RateLimiter {
		return service.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	}))
	must(c.Provide(func(client *asynq.Client) service.TaskEnqueuer {
		return tasks.NewEnqueuer(client)
	}))
	must(c.Provide(service.NewMemoryService))
	must(c.Provide(service.NewDigestBuilder))
	must(c.Provide(func(cfg *config.Config) service.EmailSender {
		return service.NewBrevoClient(cfg.Email.ProviderAPIKey)
	}))
	must(c.Provide(service.NewEmailDispatchService))

	// Chat pipeline.
	must(c.Provide(func(retriever *service.RetrieverService, builder *service.ContextBuilder, llm *service.LLMService) *chatpipline.EventManager {
		events := chatpipline.NewEventManager()
		chatpipline.NewPluginSearch(events, retriever)
		chatpipline.NewPluginIntoChatMessage(events, builder)
		chatpipline.NewPluginStream(events, llm)
		return events
	}))
	must(c.Provide(chatpipline.NewChatService))

	// Auth, handlers, router.
	must(c.Provide(auth.NewTokenResolver))
	must(c.Provide(handler.NewInsightHandler))
	must(c.Provide(handler.NewMetadataHandler))
	must(c.Provide(handler.NewChatHandler))
	must(c.Provide(handler.NewSessionHandler))
	must(c.Provide(handler.NewMemoryHandler))
	must(c.Provide(handler.NewEmailHandler))
	must(c.Provide(handler.NewSystemHandler))
	must(c.Provide(func(
		resolver *auth.TokenResolver,
		insight *handler.InsightHandler,
		metadata *handler.MetadataHandler,
		chat *handler.ChatHandler,
		session *handler.SessionHandler,
		memory *handler.MemoryHandler,
		email *handler.EmailHandler,
		system *handler.SystemHandler,
	) *gin.Engine {
		return router.New(resolver, router.Handlers{
			Insight:  insight,
			Metadata: metadata,
			Chat:     chat,
			Session:  session,
			Memory:   memory,
			Email:    email,
			System:   system,
		})
	}))

	return c
}
