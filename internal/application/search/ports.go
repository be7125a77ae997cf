package search

import "context"

// VectorIndex 定义应用层对向量检索的最小依赖（port）
// 由基础设施层提供具体实现（例如 Milvus）
type VectorIndex interface {
	Search(ctx context.Context, queryVector []float32, topK int) ([]*VectorHit, error)
}

// QueryEmbedder 查询向量化端口
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Reranker 重排序端口，返回与输入文本一一对应的相关度分数
type Reranker interface {
	Rerank(ctx context.Context, query string, texts []string) ([]float64, error)
}

// ResultCache 检索结果缓存端口
type ResultCache interface {
	Get(ctx context.Context, key string) (*Result, bool)
	Set(ctx context.Context, key string, result *Result)
}
