package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChunkRetryBoundary(t *testing.T) {
	c := NewChunk("doc-1", 0, "body")

	t.Run("fresh chunk is retryable", func(t *testing.T) {
		assert.True(t, c.IsRetryable(3))
	})

	t.Run("last budgeted attempt is terminal", func(t *testing.T) {
		// 计入本次失败后 retry_count 将到达上限，不再排队
		c.RetryCount = 2
		assert.False(t, c.IsRetryable(3))
	})

	t.Run("failed counts the triggering attempt", func(t *testing.T) {
		c.RetryCount = 2
		c.MarkFailed("still down")
		assert.Equal(t, EmbeddingStateFailed, c.EmbeddingState)
		assert.Equal(t, 3, c.RetryCount)
		assert.Equal(t, "still down", c.LastError)
	})

	t.Run("done clears the retry ledger", func(t *testing.T) {
		c.RetryCount = 2
		c.LastError = "transient"
		now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
		c.MarkDone(now)
		assert.Equal(t, EmbeddingStateDone, c.EmbeddingState)
		assert.Zero(t, c.RetryCount)
		assert.Empty(t, c.LastError)
		assert.Equal(t, now, *c.EmbeddedAt)
	})
}
