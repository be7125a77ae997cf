// Package redis 提供 Redis 缓存实现
package redis

import (
	"context"
	"encoding/json"
	"time"

	"archive-search-api/internal/application/search"
	"archive-search-api/pkg/logger"
)

// ResultCache 基于 Redis 的检索结果缓存，实现 search.ResultCache
type ResultCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewResultCache 创建检索结果缓存
func NewResultCache(client *Client, ttl time.Duration) *ResultCache {
	return &ResultCache{
		cache: NewCache(client),
		ttl:   ttl,
	}
}

var _ search.ResultCache = (*ResultCache)(nil)

// Get 读取缓存结果
func (c *ResultCache) Get(ctx context.Context, key string) (*search.Result, bool) {
	raw, err := c.cache.Get(ctx, key)
	if err != nil {
		if !IsNil(err) {
			logger.Warn(ctx, "search result cache read failed", "error", err.Error())
		}
		return nil, false
	}

	var result search.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		logger.Warn(ctx, "search result cache decode failed", "error", err.Error())
		return nil, false
	}
	return &result, true
}

// Set 写入缓存结果，失败只记录日志
func (c *ResultCache) Set(ctx context.Context, key string, result *search.Result) {
	if err := c.cache.Set(ctx, key, result, c.ttl); err != nil {
		logger.Warn(ctx, "search result cache write failed", "error", err.Error())
	}
}

// InvalidateSearchResults 清空全部检索结果缓存，文档删除后由中继调用
func (c *ResultCache) InvalidateSearchResults(ctx context.Context) error {
	return c.cache.InvalidateSearchResults(ctx)
}
