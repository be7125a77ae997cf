package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// CacheKey 构造缓存键：归一化查询 + 限制数 + 权重
func CacheKey(query string, limit int, fulltextWeight, vectorWeight float64) string {
	return fmt.Sprintf("search:%s:%d:%.2f:%.2f", NormalizeQuery(query), limit, fulltextWeight, vectorWeight)
}

// NormalizeQuery 查询归一化：小写并压缩空白
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// memoryCacheEntry 带过期时间的缓存条目
type memoryCacheEntry struct {
	result    *Result
	expiresAt time.Time
}

// MemoryCache 进程内 TTL 缓存，容量超限时剔除最早过期的条目
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]*memoryCacheEntry
	ttl        time.Duration
	maxEntries int
}

// NewMemoryCache 创建进程内缓存
func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	if maxEntries < 1 {
		maxEntries = 1024
	}
	return &MemoryCache{
		entries:    make(map[string]*memoryCacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

// Get 读取缓存，过期条目视为未命中并被删除
func (c *MemoryCache) Get(_ context.Context, key string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.result, true
}

// Set 写入缓存
func (c *MemoryCache) Set(_ context.Context, key string, result *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}

	c.entries[key] = &memoryCacheEntry{
		result:    result,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// evictLocked 先清理过期条目，仍超限时剔除最早过期的一条
func (c *MemoryCache) evictLocked() {
	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
	if len(c.entries) < c.maxEntries {
		return
	}

	var oldestKey string
	var oldest time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.expiresAt.Before(oldest) {
			oldestKey = key
			oldest = entry.expiresAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
