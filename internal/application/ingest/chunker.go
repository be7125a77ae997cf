package ingest

import (
	"strings"

	"archive-search-api/internal/domain/entity"
)

// splitByRunes 按字符数切分文本，相邻分块之间保留 overlapRunes 的重叠
func splitByRunes(s string, maxRunes int, overlapRunes int) []string {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return nil
	}
	if maxRunes <= 0 {
		return []string{raw}
	}
	if overlapRunes < 0 {
		overlapRunes = 0
	}
	runes := []rune(raw)
	if len(runes) <= maxRunes {
		return []string{raw}
	}
	step := maxRunes - overlapRunes
	if step <= 0 {
		step = maxRunes
	}

	out := make([]string, 0, (len(runes)/step)+1)
	for start := 0; start < len(runes); start += step {
		end := start + maxRunes
		if end > len(runes) {
			end = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end >= len(runes) {
			break
		}
	}
	return out
}

// buildChunks 将文档正文切分为带序号与 token 估算的分块实体
func buildChunks(documentID, content string, maxRunes, overlapRunes int) []*entity.Chunk {
	pieces := splitByRunes(content, maxRunes, overlapRunes)
	chunks := make([]*entity.Chunk, 0, len(pieces))
	for i, text := range pieces {
		chunks = append(chunks, entity.NewChunk(documentID, i, text))
	}
	return chunks
}
