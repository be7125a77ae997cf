// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"archive-search-api/internal/domain/entity"
	"archive-search-api/internal/domain/repository"
)

// ChunkRepository 分块仓储实现
type ChunkRepository struct {
	client *Client
}

// NewChunkRepository 创建分块仓储
func NewChunkRepository(client *Client) *ChunkRepository {
	return &ChunkRepository{client: client}
}

// CreateBatch 批量创建分块
func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []*entity.Chunk) error {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.CreateBatch")
	defer span.End()

	if len(chunks) == 0 {
		return nil
	}

	db := getDB(ctx, r.client.db)
	if err := db.CreateInBatches(chunks, 500).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create chunks: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取分块
func (r *ChunkRepository) GetByID(ctx context.Context, id string) (*entity.Chunk, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var chunk entity.Chunk
	if err := db.First(&chunk, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}
	return &chunk, nil
}

// GetByIDs 批量获取分块，doneOnly 时仅返回嵌入完成且文档未删除的
func (r *ChunkRepository) GetByIDs(ctx context.Context, ids []string, doneOnly bool) ([]*entity.Chunk, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.Chunk{}).
		Joins("JOIN documents ON documents.id = chunks.document_id AND documents.deleted_at IS NULL").
		Where("chunks.id = ANY(?)", pq.Array(ids))
	if doneOnly {
		query = query.Where("chunks.embedding_state = ?", entity.EmbeddingStateDone)
	}

	var chunks []*entity.Chunk
	if err := query.Find(&chunks).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get chunks by ids: %w", err)
	}
	return chunks, nil
}

// ClaimPending 原子认领一批待嵌入分块
// 单条语句完成选取与状态翻转，SKIP LOCKED 保证多 worker 互不阻塞
func (r *ChunkRepository) ClaimPending(ctx context.Context, limit int) ([]*entity.Chunk, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.ClaimPending")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var chunks []*entity.Chunk
	err := db.Raw(`
		UPDATE chunks SET embedding_state = ?, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM chunks
			WHERE embedding_state = ?
			ORDER BY created_at, seq_num
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`,
		entity.EmbeddingStateInFlight, entity.EmbeddingStatePending, limit,
	).Scan(&chunks).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to claim pending chunks: %w", err)
	}
	return chunks, nil
}

// MarkDone 批量标记嵌入完成
func (r *ChunkRepository) MarkDone(ctx context.Context, ids []string, embeddedAt time.Time) error {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.MarkDone")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.Chunk{}).
		Where("id = ANY(?)", pq.Array(ids)).
		Updates(map[string]interface{}{
			"embedding_state": entity.EmbeddingStateDone,
			"embedded_at":     embeddedAt,
			"retry_count":     0,
			"last_error":      "",
		}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to mark chunks done: %w", err)
	}
	return nil
}

// MarkFailed 终态失败，不再重试。触发失败的这次尝试同样计入重试计数。
func (r *ChunkRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.MarkFailed")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.Chunk{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"embedding_state": entity.EmbeddingStateFailed,
			"retry_count":     gorm.Expr("retry_count + 1"),
			"last_error":      reason,
		}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to mark chunk failed: %w", err)
	}
	return nil
}

// Requeue 失败后重新排队，重试计数加一
func (r *ChunkRepository) Requeue(ctx context.Context, id string, reason string) error {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.Requeue")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.Chunk{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"embedding_state": entity.EmbeddingStatePending,
			"retry_count":     gorm.Expr("retry_count + 1"),
			"last_error":      reason,
		}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to requeue chunk: %w", err)
	}
	return nil
}

// RequeueStaleInFlight 回收滞留的 in_flight 分块，不增加重试计数
func (r *ChunkRepository) RequeueStaleInFlight(ctx context.Context, olderThan time.Duration) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.RequeueStaleInFlight")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Model(&entity.Chunk{}).
		Where("embedding_state = ? AND updated_at < ?", entity.EmbeddingStateInFlight, time.Now().Add(-olderThan)).
		Update("embedding_state", entity.EmbeddingStatePending)
	if result.Error != nil {
		span.RecordError(result.Error)
		return 0, fmt.Errorf("failed to requeue stale chunks: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ResetFailed 将失败分块重置为 pending，documentID 为空时重置全部
func (r *ChunkRepository) ResetFailed(ctx context.Context, documentID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.ResetFailed")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.Chunk{}).Where("embedding_state = ?", entity.EmbeddingStateFailed)
	if documentID != "" {
		query = query.Where("document_id = ?", documentID)
	}

	result := query.Updates(map[string]interface{}{
		"embedding_state": entity.EmbeddingStatePending,
		"retry_count":     0,
		"last_error":      "",
	})
	if result.Error != nil {
		span.RecordError(result.Error)
		return 0, fmt.Errorf("failed to reset failed chunks: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ListFailed 分页获取失败分块
func (r *ChunkRepository) ListFailed(ctx context.Context, pagination repository.Pagination) (*repository.PagedResult[*entity.Chunk], error) {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.ListFailed")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.Chunk{}).Where("embedding_state = ?", entity.EmbeddingStateFailed)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count failed chunks: %w", err)
	}

	var chunks []*entity.Chunk
	if err := query.Order("updated_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&chunks).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list failed chunks: %w", err)
	}

	return repository.NewPagedResult(chunks, total, pagination), nil
}

// CountByState 按嵌入状态统计分块数量
func (r *ChunkRepository) CountByState(ctx context.Context) (map[entity.EmbeddingState]int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.CountByState")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var rows []struct {
		EmbeddingState entity.EmbeddingState
		Count          int64
	}
	if err := db.Model(&entity.Chunk{}).
		Select("embedding_state, COUNT(*) AS count").
		Group("embedding_state").
		Scan(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count chunks by state: %w", err)
	}

	counts := make(map[entity.EmbeddingState]int64, len(rows))
	for _, row := range rows {
		counts[row.EmbeddingState] = row.Count
	}
	return counts, nil
}

// DeleteByDocument 删除文档下的全部分块
func (r *ChunkRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.DeleteByDocument")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.Chunk{}, "document_id = ?", documentID).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete chunks by document: %w", err)
	}
	return nil
}

// fulltextRow 全文检索结果行
type fulltextRow struct {
	entity.Chunk `gorm:"embedded"`
	Score        float64
}

// FulltextSearch 基于 tsvector 的全文检索，按相关度降序。
// 仅嵌入完成的分块可被检索到，与向量侧的可见性口径一致。
func (r *ChunkRepository) FulltextSearch(ctx context.Context, query string, limit int) ([]*repository.FulltextHit, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.FulltextSearch")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var rows []fulltextRow
	err := db.Raw(`
		SELECT chunks.*,
		       ts_rank_cd(to_tsvector('simple', chunks.text), plainto_tsquery('simple', ?)) AS score
		FROM chunks
		JOIN documents ON documents.id = chunks.document_id AND documents.deleted_at IS NULL
		WHERE chunks.embedding_state = ?
		  AND to_tsvector('simple', chunks.text) @@ plainto_tsquery('simple', ?)
		ORDER BY score DESC, chunks.id
		LIMIT ?`,
		query, entity.EmbeddingStateDone, query, limit,
	).Scan(&rows).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to run fulltext search: %w", err)
	}

	hits := make([]*repository.FulltextHit, 0, len(rows))
	for i := range rows {
		chunk := rows[i].Chunk
		hits = append(hits, &repository.FulltextHit{Chunk: &chunk, Score: rows[i].Score})
	}
	return hits, nil
}
