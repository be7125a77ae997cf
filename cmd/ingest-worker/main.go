// Package main 摄入工作器入口：嵌入流水线与 Outbox 中继
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"archive-search-api/internal/application/embedder"
	"archive-search-api/internal/application/outbox"
	"archive-search-api/internal/config"
	"archive-search-api/internal/infrastructure/embedding"
	"archive-search-api/internal/infrastructure/persistence/graph"
	"archive-search-api/internal/infrastructure/persistence/milvus"
	"archive-search-api/internal/infrastructure/persistence/postgres"
	"archive-search-api/internal/infrastructure/persistence/redis"
	"archive-search-api/pkg/logger"
	"archive-search-api/pkg/tracer"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx := context.Background()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "ingest-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(ctx) }()

	// PostgreSQL（必需，主库是唯一事实来源）
	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		logger.Fatal(ctx, "failed to init postgres", err)
	}
	defer func() { _ = pgClient.Close() }()

	// Milvus（必需，嵌入结果的落点）
	milvusClient, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		logger.Fatal(ctx, "failed to init milvus", err)
	}
	defer func() { _ = milvusClient.Close() }()
	milvusRepo := milvus.NewRepository(milvusClient, cfg.Embedding.Dimension)

	// FalkorDB（必需，中继的投影目标）
	graphClient, err := graph.NewClient(&cfg.Graph)
	if err != nil {
		logger.Fatal(ctx, "failed to init graph store", err)
	}
	defer func() { _ = graphClient.Close() }()
	graphStore := graph.NewStore(graphClient)

	// Redis（可选，仅用于删除后的缓存失效）
	var cacheInvalidator outbox.CacheInvalidator
	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Warn(ctx, "redis unavailable, cache invalidation disabled", "error", err.Error())
	} else {
		defer func() { _ = redisClient.Close() }()
		cacheInvalidator = redis.NewResultCache(redisClient, cfg.Search.CacheTTL)
	}

	chunkRepo := postgres.NewChunkRepository(pgClient)
	outboxRepo := postgres.NewOutboxRepository(pgClient)

	// 嵌入流水线
	worker := embedder.NewWorker(
		chunkRepo,
		embedding.NewClient(&cfg.Embedding),
		milvus.NewEmbedVectorStore(milvusRepo),
		cfg.Pipeline,
	)

	// Outbox 中继
	relay := outbox.NewRelay(outboxRepo, graphStore, milvusRepo, cacheInvalidator, cfg.Relay)

	// 配置热加载，批次和重试参数改动无需重启
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if err := config.Watch(watchCtx, func(next *config.Config) {
		worker.UpdateConfig(next.Pipeline)
		relay.UpdateConfig(next.Relay)
	}); err != nil {
		logger.Warn(ctx, "config hot reload disabled", "error", err.Error())
	}

	logger.Info(ctx, "ingest-worker starting",
		"poll_interval", cfg.Pipeline.PollInterval.String(),
		"relay_batch_size", cfg.Relay.BatchSize,
	)

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	worker.Start(workerCtx)
	relay.Start(workerCtx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "shutting down ingest-worker...")
	// 先停止认领并等当前周期收尾，再撤销上下文，进行中的子批次不被打断
	worker.Stop()
	relay.Stop()
	cancel()
	logger.Info(ctx, "ingest-worker exited")
}
