// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"archive-search-api/internal/domain/entity"
)

// 合并链解析的最大深度，防御环状数据
const maxMergeChainDepth = 16

// PersonRepository 人物仓储实现
type PersonRepository struct {
	client *Client
}

// NewPersonRepository 创建人物仓储
func NewPersonRepository(client *Client) *PersonRepository {
	return &PersonRepository{client: client}
}

// Create 创建人物
func (r *PersonRepository) Create(ctx context.Context, person *entity.Person) error {
	ctx, span := tracer.Start(ctx, "postgres.PersonRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(person).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create person: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取人物
func (r *PersonRepository) GetByID(ctx context.Context, id string) (*entity.Person, error) {
	ctx, span := tracer.Start(ctx, "postgres.PersonRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var person entity.Person
	if err := db.First(&person, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get person: %w", err)
	}
	return &person, nil
}

// GetByEmail 根据邮箱获取人物
func (r *PersonRepository) GetByEmail(ctx context.Context, email string) (*entity.Person, error) {
	ctx, span := tracer.Start(ctx, "postgres.PersonRepository.GetByEmail")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var person entity.Person
	if err := db.First(&person, "email = ?", email).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get person by email: %w", err)
	}
	return &person, nil
}

// MarkMerged 将 source 标记为合并进 target，幂等
func (r *PersonRepository) MarkMerged(ctx context.Context, sourceID, targetID string) error {
	ctx, span := tracer.Start(ctx, "postgres.PersonRepository.MarkMerged")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.Person{}).
		Where("id = ?", sourceID).
		Update("merged_into", targetID).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to mark person merged: %w", err)
	}
	return nil
}

// ResolveCanonical 沿 merged_into 链解析出规范人物
func (r *PersonRepository) ResolveCanonical(ctx context.Context, id string) (*entity.Person, error) {
	ctx, span := tracer.Start(ctx, "postgres.PersonRepository.ResolveCanonical")
	defer span.End()

	current := id
	for i := 0; i < maxMergeChainDepth; i++ {
		person, err := r.GetByID(ctx, current)
		if err != nil {
			return nil, err
		}
		if person == nil {
			return nil, nil
		}
		if !person.IsMerged() {
			return person, nil
		}
		current = *person.MergedInto
	}
	return nil, fmt.Errorf("failed to resolve canonical person: merge chain too deep for %s", id)
}

// Delete 删除人物
func (r *PersonRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.PersonRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.Person{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete person: %w", err)
	}
	return nil
}
