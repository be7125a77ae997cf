package milvus

import (
	"context"

	"archive-search-api/internal/application/search"
)

// SearchVectorIndex 将向量仓储适配为检索引擎的 VectorIndex 端口
type SearchVectorIndex struct {
	repo *Repository
}

// NewSearchVectorIndex 创建向量检索适配器
func NewSearchVectorIndex(repo *Repository) *SearchVectorIndex {
	return &SearchVectorIndex{repo: repo}
}

var _ search.VectorIndex = (*SearchVectorIndex)(nil)

func (a *SearchVectorIndex) Search(ctx context.Context, queryVector []float32, topK int) ([]*search.VectorHit, error) {
	if a == nil || a.repo == nil {
		return nil, search.ErrVectorUnavailable
	}

	hits, err := a.repo.Search(ctx, queryVector, topK)
	if err != nil {
		return nil, err
	}

	out := make([]*search.VectorHit, 0, len(hits))
	for _, hit := range hits {
		if hit == nil {
			continue
		}
		out = append(out, &search.VectorHit{
			ChunkID:    hit.ChunkID,
			DocumentID: hit.DocumentID,
			Score:      hit.Score,
		})
	}
	return out, nil
}
