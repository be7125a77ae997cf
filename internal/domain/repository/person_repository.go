// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"archive-search-api/internal/domain/entity"
)

// PersonRepository 人物仓储接口
type PersonRepository interface {
	// Create 创建人物
	Create(ctx context.Context, person *entity.Person) error

	// GetByID 根据 ID 获取人物
	GetByID(ctx context.Context, id string) (*entity.Person, error)

	// GetByEmail 根据邮箱获取人物
	GetByEmail(ctx context.Context, email string) (*entity.Person, error)

	// MarkMerged 将 source 标记为合并进 target
	MarkMerged(ctx context.Context, sourceID, targetID string) error

	// ResolveCanonical 沿 merged_into 链解析出规范人物
	ResolveCanonical(ctx context.Context, id string) (*entity.Person, error)

	// Delete 删除人物
	Delete(ctx context.Context, id string) error
}
