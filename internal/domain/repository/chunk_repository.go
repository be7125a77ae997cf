// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"archive-search-api/internal/domain/entity"
)

// FulltextHit 全文检索命中结果
type FulltextHit struct {
	Chunk *entity.Chunk
	Score float64
}

// ChunkRepository 分块仓储接口
type ChunkRepository interface {
	// CreateBatch 批量创建分块
	CreateBatch(ctx context.Context, chunks []*entity.Chunk) error

	// GetByID 根据 ID 获取分块
	GetByID(ctx context.Context, id string) (*entity.Chunk, error)

	// GetByIDs 批量获取分块，仅返回嵌入完成的
	GetByIDs(ctx context.Context, ids []string, doneOnly bool) ([]*entity.Chunk, error)

	// ClaimPending 原子认领一批待嵌入分块并置为 in_flight
	ClaimPending(ctx context.Context, limit int) ([]*entity.Chunk, error)

	// MarkDone 批量标记嵌入完成并清零重试计数
	MarkDone(ctx context.Context, ids []string, embeddedAt time.Time) error

	// MarkFailed 终态失败，不再重试，这次尝试计入重试计数
	MarkFailed(ctx context.Context, id string, reason string) error

	// Requeue 失败后重新排队，重试计数加一
	Requeue(ctx context.Context, id string, reason string) error

	// RequeueStaleInFlight 回收滞留的 in_flight 分块（进程崩溃遗留）
	RequeueStaleInFlight(ctx context.Context, olderThan time.Duration) (int64, error)

	// ResetFailed 将失败分块重置为 pending，documentID 为空时重置全部
	ResetFailed(ctx context.Context, documentID string) (int64, error)

	// ListFailed 分页获取失败分块
	ListFailed(ctx context.Context, pagination Pagination) (*PagedResult[*entity.Chunk], error)

	// CountByState 按嵌入状态统计分块数量
	CountByState(ctx context.Context) (map[entity.EmbeddingState]int64, error)

	// DeleteByDocument 删除文档下的全部分块
	DeleteByDocument(ctx context.Context, documentID string) error

	// FulltextSearch 基于 tsvector 的全文检索，按相关度降序，仅嵌入完成的分块可见
	FulltextSearch(ctx context.Context, query string, limit int) ([]*FulltextHit, error)
}
