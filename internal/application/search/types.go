// Package search 实现混合检索引擎
package search

// Request 检索请求
type Request struct {
	Query          string  `json:"query"`
	Limit          int     `json:"limit"`
	FulltextWeight float64 `json:"fulltext_weight"`
	VectorWeight   float64 `json:"vector_weight"`
}

// Item 单条检索结果。缺席阶段的分数直接省略，绝不伪造。
type Item struct {
	ChunkID      string   `json:"chunk_id"`
	DocumentID   string   `json:"document_id"`
	SeqNum       int      `json:"seq_num"`
	Snippet      string   `json:"snippet"`
	LexicalScore *float64 `json:"lexical_score,omitempty"`
	VectorScore  *float64 `json:"vector_score,omitempty"`
	FusedScore   float64  `json:"fused_score"`
	RerankScore  *float64 `json:"rerank_score,omitempty"`
	Score        float64  `json:"score"`
}

// Result 检索结果
type Result struct {
	Items          []*Item `json:"items"`
	Degraded       bool    `json:"degraded"`
	DegradedReason string  `json:"degraded_reason,omitempty"`
}

// candidate 融合阶段的中间候选
type candidate struct {
	chunkID string
	score   float64
	// bestRank 两路榜单中的最优名次，用于平分决胜
	bestRank int
	lexScore *float64
	vecScore *float64
}

// VectorHit 向量检索命中
type VectorHit struct {
	ChunkID    string
	DocumentID string
	Score      float32
}
