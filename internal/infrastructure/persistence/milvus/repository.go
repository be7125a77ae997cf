// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"archive-search-api/pkg/metrics"
)

// Repository 向量仓储
type Repository struct {
	client    *Client
	dimension int
}

// NewRepository 创建向量仓储
func NewRepository(client *Client, dimension int) *Repository {
	return &Repository{client: client, dimension: dimension}
}

// VectorHit 向量检索命中结果
type VectorHit struct {
	ChunkID    string
	DocumentID string
	Score      float32
}

// CreateCollection 创建集合
func (r *Repository) CreateCollection(ctx context.Context, schema *entity.Schema) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateCollection",
		trace.WithAttributes(attribute.String("collection", schema.CollectionName)))
	defer span.End()

	collName := r.client.CollectionName(schema.CollectionName)
	schema.CollectionName = collName

	err := r.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// CreateIndex 创建 HNSW 索引
func (r *Repository) CreateIndex(ctx context.Context, collection string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateIndex",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	collName := r.client.CollectionName(collection)

	idx, err := entity.NewIndexHNSW(
		entity.COSINE,
		r.client.config.HNSWM,
		r.client.config.HNSWEfConstruction,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = r.client.milvus.CreateIndex(ctx, collName, "vector", idx, false)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// EnsureChunkVectorsCollection 确保 chunk_vectors 集合与索引可用（不存在则创建）
// 约束：不会做 drop/rebuild 等破坏性操作
func (r *Repository) EnsureChunkVectorsCollection(ctx context.Context) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}

	exists, err := r.client.HasCollection(ctx, CollectionChunkVectors)
	if err != nil {
		return err
	}
	if !exists {
		if err := r.CreateCollection(ctx, ChunkVectorsSchema(r.dimension)); err != nil {
			return err
		}
		if err := r.CreateIndex(ctx, CollectionChunkVectors); err != nil {
			return err
		}
	}

	return r.client.LoadCollection(ctx, CollectionChunkVectors)
}

// Upsert 幂等写入分块向量：先按 ID 删除旧行再插入
func (r *Repository) Upsert(ctx context.Context, vectors []*ChunkVector) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.Upsert",
		trace.WithAttributes(attribute.Int("count", len(vectors))))
	defer span.End()

	if len(vectors) == 0 {
		return nil
	}

	collName := r.client.CollectionName(CollectionChunkVectors)

	ids := make([]string, len(vectors))
	vecs := make([][]float32, len(vectors))
	docIDs := make([]string, len(vectors))
	for i, v := range vectors {
		ids[i] = v.ID
		vecs[i] = v.Vector
		docIDs[i] = v.DocumentID
	}

	if err := r.deleteByIDs(ctx, collName, ids); err != nil {
		span.RecordError(err)
		return err
	}

	idCol := entity.NewColumnVarChar("id", ids)
	vectorCol := entity.NewColumnFloatVector("vector", r.dimension, vecs)
	docCol := entity.NewColumnVarChar("document_id", docIDs)

	if _, err := r.client.milvus.Insert(ctx, collName, "", idCol, vectorCol, docCol); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert chunk vectors: %w", err)
	}

	return nil
}

// Search 近邻检索，按相似度降序返回
func (r *Repository) Search(ctx context.Context, queryVector []float32, topK int) ([]*VectorHit, error) {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return nil, fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.Search",
		trace.WithAttributes(attribute.Int("top_k", topK)))
	defer span.End()

	collName := r.client.CollectionName(CollectionChunkVectors)

	sp, err := entity.NewIndexHNSWSearchParam(128)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	start := time.Now()
	results, err := r.client.milvus.Search(ctx,
		collName,
		nil,
		"",
		[]string{"id", "document_id"},
		[]entity.Vector{entity.FloatVector(queryVector)},
		"vector",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		metrics.MilvusSearchTotal.WithLabelValues(CollectionChunkVectors, "error").Inc()
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search chunk vectors: %w", err)
	}
	metrics.MilvusSearchTotal.WithLabelValues(CollectionChunkVectors, "ok").Inc()
	metrics.MilvusSearchDuration.WithLabelValues(CollectionChunkVectors).Observe(time.Since(start).Seconds())

	var hits []*VectorHit
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			hit := &VectorHit{Score: result.Scores[i]}
			if idCol, ok := result.Fields.GetColumn("id").(*entity.ColumnVarChar); ok {
				hit.ChunkID = idCol.Data()[i]
			}
			if docCol, ok := result.Fields.GetColumn("document_id").(*entity.ColumnVarChar); ok {
				hit.DocumentID = docCol.Data()[i]
			}
			hits = append(hits, hit)
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(hits)))
	return hits, nil
}

// DeleteByDocument 删除文档的全部向量
func (r *Repository) DeleteByDocument(ctx context.Context, documentID string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.DeleteByDocument",
		trace.WithAttributes(attribute.String("document_id", documentID)))
	defer span.End()

	collName := r.client.CollectionName(CollectionChunkVectors)
	filter := fmt.Sprintf(`document_id == "%s"`, documentID)

	if err := r.client.milvus.Delete(ctx, collName, "", filter); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete vectors by document: %w", err)
	}
	return nil
}

// DeleteByIDs 删除指定分块的向量
func (r *Repository) DeleteByIDs(ctx context.Context, ids []string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.DeleteByIDs",
		trace.WithAttributes(attribute.Int("count", len(ids))))
	defer span.End()

	collName := r.client.CollectionName(CollectionChunkVectors)
	if err := r.deleteByIDs(ctx, collName, ids); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// deleteByIDs 按主键删除，ids 为空时为空操作
func (r *Repository) deleteByIDs(ctx context.Context, collName string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = `"` + id + `"`
	}
	filter := fmt.Sprintf(`id in [%s]`, strings.Join(quoted, ", "))

	if err := r.client.milvus.Delete(ctx, collName, "", filter); err != nil {
		return fmt.Errorf("failed to delete chunk vectors: %w", err)
	}
	return nil
}
