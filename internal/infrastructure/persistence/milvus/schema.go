// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionChunkVectors 分块向量集合
	CollectionChunkVectors = "chunk_vectors"
)

// ChunkVectorsSchema 分块向量 Collection Schema
func ChunkVectorsSchema(dim int) *entity.Schema {
	return &entity.Schema{
		CollectionName: CollectionChunkVectors,
		Description:    "Document chunk embeddings for semantic search",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "vector",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(dim),
				},
			},
			{
				Name:     "document_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
		},
	}
}

// ChunkVector 分块向量数据结构
type ChunkVector struct {
	ID         string    `json:"id"`
	Vector     []float32 `json:"vector"`
	DocumentID string    `json:"document_id"`
}
