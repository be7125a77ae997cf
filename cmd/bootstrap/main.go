// Package main 系统初始化：建表与向量集合
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"archive-search-api/internal/config"
	"archive-search-api/internal/domain/entity"
	"archive-search-api/internal/infrastructure/persistence/milvus"
	"archive-search-api/internal/infrastructure/persistence/postgres"
)

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting system bootstrap...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// 2. PostgreSQL 建表
	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		log.Fatalf("failed to init postgres: %v", err)
	}
	defer func() { _ = pgClient.Close() }()

	fmt.Println("Running database migrations...")
	if err := pgClient.DB().WithContext(ctx).AutoMigrate(
		&entity.Document{},
		&entity.Chunk{},
		&entity.Person{},
		&entity.OutboxEvent{},
	); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	// 全文检索的表达式 GIN 索引，与检索语句的 to_tsvector 表达式保持一致
	fulltextDDL := `CREATE INDEX IF NOT EXISTS idx_chunks_text_tsv
		ON chunks USING GIN (to_tsvector('simple', text))`
	if err := pgClient.DB().WithContext(ctx).Exec(fulltextDDL).Error; err != nil {
		log.Fatalf("failed to create fulltext index: %v", err)
	}
	fmt.Println("Database migrations completed.")

	// 3. Milvus 向量集合
	milvusClient, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		log.Fatalf("failed to init milvus: %v", err)
	}
	defer func() { _ = milvusClient.Close() }()

	fmt.Println("Ensuring vector collection...")
	milvusRepo := milvus.NewRepository(milvusClient, cfg.Embedding.Dimension)
	if err := milvusRepo.EnsureChunkVectorsCollection(ctx); err != nil {
		log.Fatalf("failed to ensure vector collection: %v", err)
	}

	fmt.Println("Bootstrap completed successfully.")
}
