// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"archive-search-api/internal/domain/entity"
)

// OutboxRepository 出站事件仓储接口
type OutboxRepository interface {
	// Enqueue 写入出站事件，应与业务写入处于同一事务
	Enqueue(ctx context.Context, event *entity.OutboxEvent) error

	// FetchUnprocessed 按创建顺序获取未处理且未死信的事件
	FetchUnprocessed(ctx context.Context, limit int) ([]*entity.OutboxEvent, error)

	// MarkProcessed 标记事件已成功应用，成功的这次投递同样计入尝试次数
	MarkProcessed(ctx context.Context, id int64) error

	// RecordFailure 记录一次失败尝试，超过最大次数时置为死信
	RecordFailure(ctx context.Context, id int64, errMsg string, maxAttempts int) error

	// ListDeadLetters 分页获取死信事件
	ListDeadLetters(ctx context.Context, pagination Pagination) (*PagedResult[*entity.OutboxEvent], error)

	// ResetDeadLetter 将死信事件重置为可重新投递
	ResetDeadLetter(ctx context.Context, id int64) error

	// CountBacklog 统计未处理事件数量
	CountBacklog(ctx context.Context) (int64, error)
}
