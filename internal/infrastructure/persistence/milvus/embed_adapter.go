package milvus

import (
	"context"

	"archive-search-api/internal/application/embedder"
)

// EmbedVectorStore 将向量仓储适配为嵌入流水线的 VectorStore 端口
type EmbedVectorStore struct {
	repo *Repository
}

// NewEmbedVectorStore 创建向量写入适配器
func NewEmbedVectorStore(repo *Repository) *EmbedVectorStore {
	return &EmbedVectorStore{repo: repo}
}

var _ embedder.VectorStore = (*EmbedVectorStore)(nil)

func (a *EmbedVectorStore) Upsert(ctx context.Context, vectors []embedder.Vector) error {
	rows := make([]*ChunkVector, 0, len(vectors))
	for _, v := range vectors {
		rows = append(rows, &ChunkVector{
			ID:         v.ChunkID,
			Vector:     v.Values,
			DocumentID: v.DocumentID,
		})
	}
	return a.repo.Upsert(ctx, rows)
}
