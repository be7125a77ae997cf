package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archive-search-api/internal/domain/entity"
)

func chunkWithTokens(id string, tokens int) *entity.Chunk {
	return &entity.Chunk{ID: id, TokenCount: tokens}
}

func TestPartitionByTokens(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		assert.Nil(t, partitionByTokens(nil, 10, 100))
	})

	t.Run("respects token budget", func(t *testing.T) {
		chunks := []*entity.Chunk{
			chunkWithTokens("a", 40),
			chunkWithTokens("b", 40),
			chunkWithTokens("c", 40),
		}
		batches := partitionByTokens(chunks, 10, 100)
		require.Len(t, batches, 2)
		assert.Len(t, batches[0], 2)
		assert.Len(t, batches[1], 1)
		for _, batch := range batches {
			total := 0
			for _, c := range batch {
				total += c.TokenCount
			}
			assert.LessOrEqual(t, total, 100)
		}
	})

	t.Run("respects max batch size", func(t *testing.T) {
		chunks := []*entity.Chunk{
			chunkWithTokens("a", 1),
			chunkWithTokens("b", 1),
			chunkWithTokens("c", 1),
		}
		batches := partitionByTokens(chunks, 2, 1000)
		require.Len(t, batches, 2)
	})

	t.Run("oversized chunk gets its own batch", func(t *testing.T) {
		chunks := []*entity.Chunk{
			chunkWithTokens("small", 10),
			chunkWithTokens("huge", 500),
			chunkWithTokens("tail", 10),
		}
		batches := partitionByTokens(chunks, 10, 100)
		require.Len(t, batches, 3)
		assert.Equal(t, "huge", batches[1][0].ID)
		assert.Len(t, batches[1], 1)
	})

	t.Run("preserves claim order", func(t *testing.T) {
		chunks := []*entity.Chunk{
			chunkWithTokens("a", 30),
			chunkWithTokens("b", 30),
			chunkWithTokens("c", 30),
			chunkWithTokens("d", 30),
		}
		var flat []string
		for _, batch := range partitionByTokens(chunks, 10, 60) {
			for _, c := range batch {
				flat = append(flat, c.ID)
			}
		}
		assert.Equal(t, []string{"a", "b", "c", "d"}, flat)
	})
}

func TestSplitHalves(t *testing.T) {
	chunks := []*entity.Chunk{
		chunkWithTokens("a", 1),
		chunkWithTokens("b", 1),
		chunkWithTokens("c", 1),
	}
	left, right := splitHalves(chunks)
	assert.Len(t, left, 1)
	assert.Len(t, right, 2)
}
