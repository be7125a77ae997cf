// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"archive-search-api/internal/domain/entity"
)

// DocumentRepository 文档仓储接口
type DocumentRepository interface {
	// Create 创建文档
	Create(ctx context.Context, doc *entity.Document) error

	// GetByID 根据 ID 获取文档（不含已软删除）
	GetByID(ctx context.Context, id string) (*entity.Document, error)

	// GetByHash 根据内容哈希获取文档，用于去重
	GetByHash(ctx context.Context, hash string) (*entity.Document, error)

	// List 分页获取文档列表
	List(ctx context.Context, pagination Pagination) (*PagedResult[*entity.Document], error)

	// SoftDelete 软删除文档
	SoftDelete(ctx context.Context, id string) error
}
