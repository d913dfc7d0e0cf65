// Command worker consumes the background task queue (ingestion, summary
// warming, memory extraction, digest dispatch) and runs the in-process cron
// schedule that triggers the hourly digest fan-out.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/marginalia-labs/marginalia/internal/application/repository"
	"github.com/marginalia-labs/marginalia/internal/application/service"
	"github.com/marginalia-labs/marginalia/internal/config"
	"github.com/marginalia-labs/marginalia/internal/logger"
	"github.com/marginalia-labs/marginalia/internal/tasks"
	"github.com/robfig/cron/v3"
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

	db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{})
	if err != nil {
		logger.Errorf(ctx, "open database: %v", err)
		os.Exit(1)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	client := asynq.NewClient(redisOpt)
	defer client.Close()

	// Repositories and services, wired directly: the worker graph is small
	// enough not to need the dig container.
	insightRepo := repository.NewInsightRepository(db)
	contentRepo := repository.NewInsightContentRepository(db)
	chunkRepo := repository.NewInsightChunkRepository(db)
	tagRepo := repository.NewTagRepository(db)
	messageRepo := repository.NewChatMessageRepository(db)
	memoryRepo := repository.NewChatMemoryRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	prefsRepo := repository.NewEmailPreferencesRepository(db)
	digestRepo := repository.NewEmailDigestRepository(db)
	tokenRepo := repository.NewUnsubscribeTokenRepository(db)
	eventRepo := repository.NewEmailEventRepository(db)
	suppressRepo := repository.NewEmailSuppressionRepository(db)

	llm, err := service.NewLLMService(cfg)
	if err != nil {
		logger.Errorf(ctx, "build llm client: %v", err)
		os.Exit(1)
	}
	pool, err := service.NewCPUPool()
	if err != nil {
		logger.Errorf(ctx, "build worker pool: %v", err)
		os.Exit(1)
	}
	defer pool.Release()

	fetch := service.NewFetchService(cfg)
	extract := service.NewExtractService()
	preprocess := service.NewPreprocessService()
	defer preprocess.Close()
	chunker := service.NewChunkerService(service.DefaultChunkerConfig())
	cache := service.NewSummaryCache(cfg.Summary.TTL)

	ingest := service.NewIngestService(
		fetch, extract, preprocess, chunker, llm, cache, pool,
		insightRepo, contentRepo, chunkRepo,
	)
	metadata := service.NewMetadataService(fetch, extract, preprocess, llm, cache, pool, ingest)
	memory := service.NewMemoryService(llm, preprocess, messageRepo, memoryRepo, profileRepo)
	builder := service.NewDigestBuilder(insightRepo, contentRepo, tagRepo, profileRepo, llm)
	dispatch := service.NewEmailDispatchService(
		cfg, builder, service.NewBrevoClient(cfg.Email.ProviderAPIKey),
		prefsRepo, digestRepo, tokenRepo, eventRepo, suppressRepo, insightRepo, profileRepo,
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeIngestInsight, tasks.NewIngestTaskHandler(ingest).Handle)
	mux.HandleFunc(tasks.TypeWarmSummary, tasks.NewWarmSummaryTaskHandler(metadata).Handle)
	mux.HandleFunc(tasks.TypeExtractMemory, tasks.NewExtractMemoryTaskHandler(memory).Handle)
	mux.HandleFunc(tasks.TypeDispatchDigest, tasks.NewDispatchDigestTaskHandler(dispatch).Handle)

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 10,
		Queues:      map[string]int{"default": 1},
	})

	// The in-process scheduler enqueues the hourly digest fan-out. No
	// consolidation sweep is scheduled here: consolidation runs from the
	// memory-extraction task handler after each extraction.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Cron.DigestSchedule, func() {
		payload, _ := json.Marshal(tasks.DispatchDigestPayload{NowUTC: time.Now().UTC()})
		if _, err := client.Enqueue(asynq.NewTask(tasks.TypeDispatchDigest, payload)); err != nil {
			logger.Errorf(ctx, "enqueue digest dispatch: %v", err)
		}
	}); err != nil {
		logger.Errorf(ctx, "schedule digest dispatch: %v", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	go func() {
		if err := srv.Run(mux); err != nil {
			logger.Errorf(ctx, "asynq server: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info(ctx, "worker shutting down")
	srv.Shutdown()
}
