package embedder

import (
	"sync"
	"time"

	"archive-search-api/pkg/metrics"
)

// breaker 统计跨轮询周期的连续子批次失败，超过阈值后暂停拉取一个冷却窗口。
// 与分块级重试计数相互独立。
type breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration

	consecutive int
	openUntil   time.Time
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	return &breaker{threshold: threshold, cooldown: cooldown}
}

// Allow 返回当前是否允许继续拉取，熔断中返回剩余等待时长
func (b *breaker) Allow(now time.Time) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Before(b.openUntil) {
		return false, b.openUntil.Sub(now)
	}
	metrics.EmbeddingBreakerOpen.Set(0)
	return true, 0
}

// RecordSuccess 任意一次成功即复位连续失败计数
func (b *breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
}

// RecordFailure 记录一次子批次失败，达到阈值后打开熔断
func (b *breaker) RecordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutive++
	if b.threshold > 0 && b.consecutive >= b.threshold {
		b.openUntil = now.Add(b.cooldown)
		b.consecutive = 0
		metrics.EmbeddingBreakerOpen.Set(1)
	}
}
