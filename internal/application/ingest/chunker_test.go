package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitByRunes(t *testing.T) {
	t.Run("empty input yields nothing", func(t *testing.T) {
		assert.Nil(t, splitByRunes("   ", 100, 10))
	})

	t.Run("short text stays whole", func(t *testing.T) {
		got := splitByRunes("hello world", 100, 10)
		require.Len(t, got, 1)
		assert.Equal(t, "hello world", got[0])
	})

	t.Run("long text respects max runes", func(t *testing.T) {
		text := strings.Repeat("a", 250)
		got := splitByRunes(text, 100, 20)
		require.NotEmpty(t, got)
		for _, chunk := range got {
			assert.LessOrEqual(t, len([]rune(chunk)), 100)
		}
	})

	t.Run("overlap repeats tail of previous chunk", func(t *testing.T) {
		text := "0123456789abcdefghij"
		got := splitByRunes(text, 10, 4)
		require.GreaterOrEqual(t, len(got), 2)
		// 第二块应以第一块的末尾 4 个字符开头
		assert.True(t, strings.HasPrefix(got[1], got[0][len(got[0])-4:]))
	})

	t.Run("non-positive max returns whole text", func(t *testing.T) {
		got := splitByRunes("some text", 0, 0)
		require.Len(t, got, 1)
	})

	t.Run("multibyte runes are not split mid-character", func(t *testing.T) {
		text := strings.Repeat("中文内容测试", 50)
		got := splitByRunes(text, 64, 8)
		for _, chunk := range got {
			assert.True(t, len([]rune(chunk)) <= 64)
			assert.Equal(t, chunk, string([]rune(chunk)))
		}
	})
}

func TestBuildChunks(t *testing.T) {
	chunks := buildChunks("doc-1", strings.Repeat("x", 300), 100, 0)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, "doc-1", c.DocumentID)
		assert.Equal(t, i, c.SeqNum)
		assert.Positive(t, c.TokenCount)
		assert.Equal(t, "pending", string(c.EmbeddingState))
	}
}
