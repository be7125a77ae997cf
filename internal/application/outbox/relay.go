// Package outbox 实现出站事件中继：按创建顺序把主库已提交的事实投影到图存储
package outbox

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"archive-search-api/internal/config"
	"archive-search-api/internal/domain/entity"
	"archive-search-api/internal/domain/repository"
	"archive-search-api/pkg/logger"
	"archive-search-api/pkg/metrics"
)

var tracer = otel.Tracer("outbox")

// VectorCleaner 文档删除时清理其向量，可为 nil
type VectorCleaner interface {
	DeleteByDocument(ctx context.Context, documentID string) error
}

// CacheInvalidator 实体删除后使检索结果缓存失效，可为 nil
type CacheInvalidator interface {
	InvalidateSearchResults(ctx context.Context) error
}

// Relay 出站事件中继工作器。应用失败只影响单个事件，
// 图存储长时间不可用时事件在主库中累积，恢复后继续投递。
type Relay struct {
	outbox repository.OutboxRepository
	graph  repository.GraphStore
	vector VectorCleaner
	cache  CacheInvalidator
	cfg    atomic.Pointer[config.RelayConfig]

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRelay 创建出站事件中继
func NewRelay(
	outbox repository.OutboxRepository,
	graph repository.GraphStore,
	vector VectorCleaner,
	cache CacheInvalidator,
	cfg config.RelayConfig,
) *Relay {
	r := &Relay{
		outbox: outbox,
		graph:  graph,
		vector: vector,
		cache:  cache,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	r.cfg.Store(&cfg)
	return r
}

// UpdateConfig 热更新中继参数，每个投递周期开始时取一次快照，进行中的周期不受影响
func (r *Relay) UpdateConfig(cfg config.RelayConfig) {
	r.cfg.Store(&cfg)
}

// Start 启动轮询循环
func (r *Relay) Start(ctx context.Context) {
	go r.loop(ctx)
}

// Stop 停止拉取并等待当前批次完成
func (r *Relay) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Relay) loop(ctx context.Context) {
	defer close(r.doneCh)

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		processed, err := r.RunOnce(ctx)
		if err != nil {
			logger.Error(ctx, "outbox relay cycle failed", err)
		}
		if processed == 0 {
			timer := time.NewTimer(r.pollInterval())
			select {
			case <-r.stopCh:
				timer.Stop()
				return
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}

func (r *Relay) pollInterval() time.Duration {
	if d := r.cfg.Load().PollInterval; d > 0 {
		return d
	}
	return 2 * time.Second
}

// RunOnce 执行一个投递周期，返回本周期取到的事件数
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "outbox.Relay.RunOnce")
	defer span.End()

	cfg := *r.cfg.Load()
	events, err := r.outbox.FetchUnprocessed(ctx, cfg.BatchSize)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	r.reportBacklog(ctx)
	if len(events) == 0 {
		return 0, nil
	}
	span.SetAttributes(attribute.Int("outbox.fetched", len(events)))

	// 事件必须按创建顺序应用：先建节点的事件先于引用它的合并/删除
	for _, event := range events {
		select {
		case <-ctx.Done():
			return len(events), ctx.Err()
		default:
		}
		r.relayEvent(ctx, event, cfg.MaxAttempts)
	}
	return len(events), nil
}

func (r *Relay) relayEvent(ctx context.Context, event *entity.OutboxEvent, maxAttempts int) {
	eventType := string(event.EventType)

	// 毒性事件短路：尝试次数已耗尽的直接死信，不再应用
	if event.Attempts >= maxAttempts {
		if err := r.outbox.RecordFailure(ctx, event.ID, "max attempts exceeded", maxAttempts); err != nil {
			logger.Error(ctx, "failed to dead-letter event", err, "event_id", event.ID)
			return
		}
		metrics.OutboxEventsTotal.WithLabelValues(eventType, "dead_letter").Inc()
		logger.Warn(ctx, "outbox event dead-lettered",
			"event_id", event.ID, "event_type", eventType, "attempts", event.Attempts)
		return
	}

	start := time.Now()
	if err := r.apply(ctx, event); err != nil {
		if recErr := r.outbox.RecordFailure(ctx, event.ID, err.Error(), maxAttempts); recErr != nil {
			logger.Error(ctx, "failed to record event failure", recErr, "event_id", event.ID)
			return
		}
		metrics.OutboxEventsTotal.WithLabelValues(eventType, "error").Inc()
		logger.Warn(ctx, "outbox event apply failed",
			"event_id", event.ID, "event_type", eventType, "error", err.Error())
		return
	}
	metrics.OutboxApplyDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())

	if err := r.outbox.MarkProcessed(ctx, event.ID); err != nil {
		// 已应用但未标记：下轮重投，幂等应用保证无副作用
		logger.Error(ctx, "failed to mark event processed", err, "event_id", event.ID)
		return
	}
	metrics.OutboxEventsTotal.WithLabelValues(eventType, "ok").Inc()
}

// apply 将单个事件幂等地应用到图存储
func (r *Relay) apply(ctx context.Context, event *entity.OutboxEvent) error {
	ctx, span := tracer.Start(ctx, "outbox.Relay.apply")
	span.SetAttributes(
		attribute.Int64("outbox.event_id", event.ID),
		attribute.String("outbox.event_type", string(event.EventType)),
	)
	defer span.End()

	switch event.EventType {
	case entity.OutboxEventDocumentAdded:
		var payload entity.DocumentAddedPayload
		if err := event.DecodePayload(&payload); err != nil {
			return err
		}
		return r.applyDocumentAdded(ctx, &payload)

	case entity.OutboxEventPersonMerged:
		var payload entity.PersonMergedPayload
		if err := event.DecodePayload(&payload); err != nil {
			return err
		}
		return r.graph.MergePersons(ctx, payload.SourceID, payload.TargetID)

	case entity.OutboxEventEntityDeleted:
		var payload entity.EntityDeletedPayload
		if err := event.DecodePayload(&payload); err != nil {
			return err
		}
		return r.applyEntityDeleted(ctx, &payload)

	default:
		return fmt.Errorf("unknown outbox event type: %s", event.EventType)
	}
}

func (r *Relay) applyDocumentAdded(ctx context.Context, payload *entity.DocumentAddedPayload) error {
	if err := r.graph.UpsertDocument(ctx, payload.DocumentID, payload.Title); err != nil {
		return err
	}
	if err := r.graph.UpsertPerson(ctx, payload.Sender.PersonID, payload.Sender.FullName, payload.Sender.Email); err != nil {
		return err
	}
	if err := r.graph.LinkSent(ctx, payload.Sender.PersonID, payload.DocumentID, payload.SentAt); err != nil {
		return err
	}
	for _, rcpt := range payload.Recipients {
		if err := r.graph.UpsertPerson(ctx, rcpt.PersonID, rcpt.FullName, rcpt.Email); err != nil {
			return err
		}
		if err := r.graph.LinkReceived(ctx, rcpt.PersonID, payload.DocumentID, payload.SentAt); err != nil {
			return err
		}
	}
	return nil
}

func (r *Relay) applyEntityDeleted(ctx context.Context, payload *entity.EntityDeletedPayload) error {
	if err := r.graph.DeleteEntity(ctx, payload.EntityKind, payload.EntityID); err != nil {
		return err
	}
	if payload.EntityKind == "document" && r.vector != nil {
		if err := r.vector.DeleteByDocument(ctx, payload.EntityID); err != nil {
			return err
		}
	}
	if r.cache != nil {
		if err := r.cache.InvalidateSearchResults(ctx); err != nil {
			// 缓存失效是尽力而为，过期时间兜底
			logger.Warn(ctx, "failed to invalidate search cache", "error", err.Error())
		}
	}
	return nil
}

func (r *Relay) reportBacklog(ctx context.Context) {
	count, err := r.outbox.CountBacklog(ctx)
	if err != nil {
		return
	}
	metrics.OutboxBacklog.Set(float64(count))
}
