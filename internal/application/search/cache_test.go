package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKey(t *testing.T) {
	// 归一化后的等价查询共享同一个键
	assert.Equal(t,
		CacheKey("Hello   World", 10, 0.5, 0.5),
		CacheKey("  hello world ", 10, 0.5, 0.5),
	)
	assert.NotEqual(t,
		CacheKey("hello", 10, 0.5, 0.5),
		CacheKey("hello", 20, 0.5, 0.5),
	)
	assert.NotEqual(t,
		CacheKey("hello", 10, 0.5, 0.5),
		CacheKey("hello", 10, 0.7, 0.3),
	)
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip preserves the result including degradation", func(t *testing.T) {
		c := NewMemoryCache(time.Minute, 16)
		want := &Result{
			Items:          []*Item{{ChunkID: "c-1", Score: 0.5}},
			Degraded:       true,
			DegradedReason: DegradedVectorUnavailable,
		}
		c.Set(ctx, "k", want)

		got, ok := c.Get(ctx, "k")
		require.True(t, ok)
		assert.Equal(t, want, got)
	})

	t.Run("expired entries miss", func(t *testing.T) {
		c := NewMemoryCache(-time.Second, 16)
		c.Set(ctx, "k", &Result{})
		_, ok := c.Get(ctx, "k")
		assert.False(t, ok)
	})

	t.Run("eviction keeps the cache bounded", func(t *testing.T) {
		c := NewMemoryCache(time.Minute, 4)
		for i := 0; i < 20; i++ {
			c.Set(ctx, fmt.Sprintf("k-%d", i), &Result{})
		}
		assert.LessOrEqual(t, len(c.entries), 4)
	})
}
