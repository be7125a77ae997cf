// Package main 检索 API 服务入口
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"archive-search-api/internal/application/ingest"
	"archive-search-api/internal/application/search"
	"archive-search-api/internal/config"
	"archive-search-api/internal/infrastructure/embedding"
	"archive-search-api/internal/infrastructure/persistence/graph"
	"archive-search-api/internal/infrastructure/persistence/milvus"
	"archive-search-api/internal/infrastructure/persistence/postgres"
	"archive-search-api/internal/infrastructure/persistence/redis"
	"archive-search-api/internal/infrastructure/rerank"
	"archive-search-api/internal/interfaces/http/handler"
	"archive-search-api/internal/interfaces/http/router"
	"archive-search-api/pkg/logger"
	"archive-search-api/pkg/tracer"

	"github.com/joho/godotenv"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx := context.Background()
	log := logger.FromContext(ctx)
	log.Info("starting search-svc",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	// 初始化追踪
	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		log.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// PostgreSQL（必需）
	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		logger.Fatal(ctx, "failed to init postgres", err)
	}
	defer func() { _ = pgClient.Close() }()

	// Redis（必需）
	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Fatal(ctx, "failed to init redis", err)
	}
	defer func() { _ = redisClient.Close() }()

	// Milvus（可选，不可用时检索退化为纯全文）
	var milvusRepo *milvus.Repository
	var milvusClient *milvus.Client
	milvusClient, err = milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		log.Warn("milvus unavailable, vector recall disabled", "error", err)
		milvusClient = nil
	} else {
		defer func() { _ = milvusClient.Close() }()
		milvusRepo = milvus.NewRepository(milvusClient, cfg.Embedding.Dimension)
	}

	// 图库（仅健康检查使用，图写入在 ingest-worker 侧）
	var graphStore *graph.Store
	graphClient, err := graph.NewClient(&cfg.Graph)
	if err != nil {
		log.Warn("graph store unavailable", "error", err)
	} else {
		defer func() { _ = graphClient.Close() }()
		graphStore = graph.NewStore(graphClient)
	}

	// 仓储
	docRepo := postgres.NewDocumentRepository(pgClient)
	chunkRepo := postgres.NewChunkRepository(pgClient)
	personRepo := postgres.NewPersonRepository(pgClient)
	outboxRepo := postgres.NewOutboxRepository(pgClient)
	txMgr := postgres.NewTxManager(pgClient)

	// 检索引擎依赖，向量/嵌入/重排/缓存均允许缺席
	var vectorIndex search.VectorIndex
	if milvusRepo != nil {
		vectorIndex = milvus.NewSearchVectorIndex(milvusRepo)
	}

	var queryEmbedder search.QueryEmbedder
	if cfg.Embedding.Endpoint != "" {
		queryEmbedder = embedding.NewClient(&cfg.Embedding)
	}

	var reranker search.Reranker
	if cfg.Rerank.Enabled {
		reranker = rerank.NewClient(&cfg.Rerank)
	}

	var resultCache search.ResultCache
	switch cfg.Search.CacheBackend {
	case "redis":
		resultCache = redis.NewResultCache(redisClient, cfg.Search.CacheTTL)
	case "memory":
		resultCache = search.NewMemoryCache(cfg.Search.CacheTTL, cfg.Search.CacheMaxEntries)
	}

	engine := search.NewEngine(chunkRepo, vectorIndex, queryEmbedder, reranker, resultCache, cfg.Search)
	ingestSvc := ingest.NewService(docRepo, chunkRepo, personRepo, outboxRepo, txMgr, cfg.Ingest)
	docCache := redis.NewCache(redisClient)

	// 配置热加载，检索调优参数改动无需重启
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if err := config.Watch(watchCtx, func(next *config.Config) {
		engine.UpdateConfig(next.Search)
	}); err != nil {
		log.Warn("config hot reload disabled", "error", err)
	}

	// 路由
	r := router.New(cfg, redis.NewRateLimiter(redisClient), router.Handlers{
		Health:   handler.NewHealthHandler(pgClient, redisClient, milvusClient, graphStore),
		Search:   handler.NewSearchHandler(engine),
		Document: handler.NewDocumentHandler(ingestSvc, docRepo, docCache),
		Person:   handler.NewPersonHandler(ingestSvc, personRepo),
		Admin:    handler.NewAdminHandler(chunkRepo, outboxRepo),
	})

	// 创建 HTTP 服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	// 启动服务器
	go func() {
		log.Info("http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}
