// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"archive-search-api/internal/application/search"
)

// SearchRequest 混合检索请求
type SearchRequest struct {
	Query          string  `json:"query" binding:"required,max=1024"`
	Limit          int     `json:"limit,omitempty"`
	FulltextWeight float64 `json:"fulltext_weight,omitempty"`
	VectorWeight   float64 `json:"vector_weight,omitempty"`
}

// SearchItem 单条检索结果，缺席阶段的分数省略
type SearchItem struct {
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

// SearchResponse 混合检索响应
type SearchResponse struct {
	Items          []*SearchItem `json:"items"`
	Degraded       bool          `json:"degraded"`
	DegradedReason string        `json:"degraded_reason,omitempty"`
}

// ToSearchResponse 将检索结果转换为响应
func ToSearchResponse(result *search.Result) *SearchResponse {
	items := make([]*SearchItem, 0, len(result.Items))
	for _, it := range result.Items {
		items = append(items, &SearchItem{
			ChunkID:      it.ChunkID,
			DocumentID:   it.DocumentID,
			SeqNum:       it.SeqNum,
			Snippet:      it.Snippet,
			LexicalScore: it.LexicalScore,
			VectorScore:  it.VectorScore,
			FusedScore:   it.FusedScore,
			RerankScore:  it.RerankScore,
			Score:        it.Score,
		})
	}
	return &SearchResponse{
		Items:          items,
		Degraded:       result.Degraded,
		DegradedReason: result.DegradedReason,
	}
}
