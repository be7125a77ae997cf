// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"archive-search-api/internal/domain/entity"
	"archive-search-api/internal/domain/repository"
)

// OutboxRepository 出站事件仓储实现
type OutboxRepository struct {
	client *Client
}

// NewOutboxRepository 创建出站事件仓储
func NewOutboxRepository(client *Client) *OutboxRepository {
	return &OutboxRepository{client: client}
}

// Enqueue 写入出站事件，调用方应保证与业务写入同事务
func (r *OutboxRepository) Enqueue(ctx context.Context, event *entity.OutboxEvent) error {
	ctx, span := tracer.Start(ctx, "postgres.OutboxRepository.Enqueue")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(event).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to enqueue outbox event: %w", err)
	}
	return nil
}

// FetchUnprocessed 按创建顺序（自增 ID）获取未处理且未死信的事件
func (r *OutboxRepository) FetchUnprocessed(ctx context.Context, limit int) ([]*entity.OutboxEvent, error) {
	ctx, span := tracer.Start(ctx, "postgres.OutboxRepository.FetchUnprocessed")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var events []*entity.OutboxEvent
	if err := db.Where("processed_at IS NULL AND failed = false").
		Order("id ASC").
		Limit(limit).
		Find(&events).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch unprocessed events: %w", err)
	}
	return events, nil
}

// MarkProcessed 标记事件已成功应用，仅在尚未处理时生效。
// 成功的这次投递同样计入尝试次数。
func (r *OutboxRepository) MarkProcessed(ctx context.Context, id int64) error {
	ctx, span := tracer.Start(ctx, "postgres.OutboxRepository.MarkProcessed")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.OutboxEvent{}).
		Where("id = ? AND processed_at IS NULL", id).
		Updates(map[string]interface{}{
			"processed_at": time.Now(),
			"attempts":     gorm.Expr("attempts + 1"),
			"error":        "",
		}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

// RecordFailure 记录一次失败尝试，达到最大次数时置为死信
func (r *OutboxRepository) RecordFailure(ctx context.Context, id int64, errMsg string, maxAttempts int) error {
	ctx, span := tracer.Start(ctx, "postgres.OutboxRepository.RecordFailure")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts": gorm.Expr("attempts + 1"),
			"error":    errMsg,
			"failed":   gorm.Expr("attempts + 1 >= ?", maxAttempts),
		}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to record event failure: %w", err)
	}
	return nil
}

// ListDeadLetters 分页获取死信事件
func (r *OutboxRepository) ListDeadLetters(ctx context.Context, pagination repository.Pagination) (*repository.PagedResult[*entity.OutboxEvent], error) {
	ctx, span := tracer.Start(ctx, "postgres.OutboxRepository.ListDeadLetters")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.OutboxEvent{}).Where("failed = true")

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count dead letters: %w", err)
	}

	var events []*entity.OutboxEvent
	if err := query.Order("id ASC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&events).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}

	return repository.NewPagedResult(events, total, pagination), nil
}

// ResetDeadLetter 将死信事件重置为可重新投递
func (r *OutboxRepository) ResetDeadLetter(ctx context.Context, id int64) error {
	ctx, span := tracer.Start(ctx, "postgres.OutboxRepository.ResetDeadLetter")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Model(&entity.OutboxEvent{}).
		Where("id = ? AND failed = true", id).
		Updates(map[string]interface{}{
			"failed":   false,
			"attempts": 0,
			"error":    "",
		})
	if result.Error != nil {
		span.RecordError(result.Error)
		return fmt.Errorf("failed to reset dead letter: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountBacklog 统计未处理事件数量
func (r *OutboxRepository) CountBacklog(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.OutboxRepository.CountBacklog")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var count int64
	if err := db.Model(&entity.OutboxEvent{}).
		Where("processed_at IS NULL AND failed = false").
		Count(&count).Error; err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count outbox backlog: %w", err)
	}
	return count, nil
}
