// Package embedder 实现嵌入流水线：认领待处理分块、按 token 预算分批调用嵌入服务、回写向量
package embedder

import "context"

// Embedder 批量嵌入端口，一次调用对应一个子批次
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Vector 待写入向量库的一条向量
type Vector struct {
	ChunkID    string
	DocumentID string
	Values     []float32
}

// VectorStore 向量库写端口，Upsert 必须幂等
type VectorStore interface {
	Upsert(ctx context.Context, vectors []Vector) error
}
