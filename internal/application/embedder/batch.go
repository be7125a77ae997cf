package embedder

import "archive-search-api/internal/domain/entity"

// partitionByTokens 将认领到的分块切成子批次：每个子批次的 token 估算之和
// 不超过 maxTokens，且条数不超过 maxSize。单个超预算的分块独占一个子批次，
// 由嵌入服务自己决定接受或拒绝。
func partitionByTokens(chunks []*entity.Chunk, maxSize, maxTokens int) [][]*entity.Chunk {
	if len(chunks) == 0 {
		return nil
	}
	if maxSize <= 0 {
		maxSize = len(chunks)
	}

	batches := make([][]*entity.Chunk, 0, 4)
	var current []*entity.Chunk
	var currentTokens int

	for _, c := range chunks {
		tokens := c.TokenCount
		if tokens < 1 {
			tokens = 1
		}
		exceeds := len(current) > 0 &&
			(currentTokens+tokens > maxTokens || len(current) >= maxSize)
		if exceeds {
			batches = append(batches, current)
			current = nil
			currentTokens = 0
		}
		current = append(current, c)
		currentTokens += tokens
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// splitHalves 将子批次对半拆分，用于嵌入服务报输入过大时的结构化降级
func splitHalves(chunks []*entity.Chunk) ([]*entity.Chunk, []*entity.Chunk) {
	mid := len(chunks) / 2
	return chunks[:mid], chunks[mid:]
}
