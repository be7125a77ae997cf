package search

import "errors"

var (
	// ErrEmptyQuery 查询为空
	ErrEmptyQuery = errors.New("query is empty")

	// ErrQueryTooLong 查询超过最大长度
	ErrQueryTooLong = errors.New("query exceeds maximum length")

	// ErrVectorUnavailable 向量检索能力不可用（Milvus 或嵌入服务故障）
	ErrVectorUnavailable = errors.New("vector search is unavailable")

	// ErrRerankUnavailable 重排序服务不可用
	ErrRerankUnavailable = errors.New("rerank is unavailable")
)

// 降级原因，写入响应供调用方区分
const (
	DegradedVectorUnavailable = "vector_unavailable"
	DegradedRerankUnavailable = "rerank_unavailable"
)
