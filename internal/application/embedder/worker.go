package embedder

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"archive-search-api/internal/config"
	"archive-search-api/internal/domain/entity"
	"archive-search-api/internal/domain/repository"
	"archive-search-api/internal/infrastructure/embedding"
	"archive-search-api/pkg/logger"
	"archive-search-api/pkg/metrics"
)

var tracer = otel.Tracer("embedder")

// Worker 嵌入流水线工作器，单进程内可与 Outbox 中继并行运行
type Worker struct {
	chunks   repository.ChunkRepository
	embedder Embedder
	vectors  VectorStore
	cfg      atomic.Pointer[config.PipelineConfig]
	breaker  *breaker
	now      func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWorker 创建嵌入流水线工作器
func NewWorker(
	chunks repository.ChunkRepository,
	emb Embedder,
	vectors VectorStore,
	cfg config.PipelineConfig,
) *Worker {
	w := &Worker{
		chunks:   chunks,
		embedder: emb,
		vectors:  vectors,
		breaker:  newBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	w.cfg.Store(&cfg)
	return w
}

// UpdateConfig 热更新流水线参数，每个周期开始时取一次快照，进行中的周期不受影响。
// 熔断阈值在构造时固定。
func (w *Worker) UpdateConfig(cfg config.PipelineConfig) {
	w.cfg.Store(&cfg)
}

// Start 启动轮询循环。先回收上次进程崩溃遗留的 in_flight 分块。
func (w *Worker) Start(ctx context.Context) {
	if staleAfter := w.cfg.Load().StaleClaimAfter; staleAfter > 0 {
		if n, err := w.chunks.RequeueStaleInFlight(ctx, staleAfter); err != nil {
			logger.Error(ctx, "failed to requeue stale in-flight chunks", err)
		} else if n > 0 {
			logger.Warn(ctx, "requeued stale in-flight chunks", "count", n)
		}
	}
	go w.loop(ctx)
}

// Stop 停止拉取新工作并等待当前周期完成
func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if ok, wait := w.breaker.Allow(w.now()); !ok {
			if !w.sleep(ctx, wait) {
				return
			}
			continue
		}

		processed, err := w.RunCycle(ctx)
		if err != nil {
			logger.Error(ctx, "embedding cycle failed", err)
		}
		if processed == 0 {
			if !w.sleep(ctx, w.cfg.Load().PollInterval) {
				return
			}
		}
	}
}

// sleep 可中断的等待，返回 false 表示应当退出循环
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-w.stopCh:
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// RunCycle 执行一个认领-处理周期，返回本周期认领到的分块数
func (w *Worker) RunCycle(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "embedder.Worker.RunCycle")
	defer span.End()

	cfg := *w.cfg.Load()
	claimed, err := w.chunks.ClaimPending(ctx, cfg.MaxBatchSize)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	w.reportBacklog(ctx)
	if len(claimed) == 0 {
		return 0, nil
	}
	span.SetAttributes(attribute.Int("embedder.claimed", len(claimed)))

	for _, batch := range partitionByTokens(claimed, cfg.MaxBatchSize, cfg.MaxTokensPerBatch) {
		select {
		case <-ctx.Done():
			return len(claimed), ctx.Err()
		default:
		}
		w.processSubBatch(ctx, batch, cfg.RetryMax)
	}
	return len(claimed), nil
}

// processSubBatch 处理一个子批次。失败按分块隔离，绝不让单个分块拖垮整个周期。
func (w *Worker) processSubBatch(ctx context.Context, batch []*entity.Chunk, retryMax int) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	vectors, err := w.embedder.Embed(ctx, texts)
	if err != nil {
		if errors.Is(err, embedding.ErrInputTooLarge) {
			if len(batch) > 1 {
				// 结构化降级：对半拆分后重试，而不是盲目重试原批次
				left, right := splitHalves(batch)
				w.processSubBatch(ctx, left, retryMax)
				w.processSubBatch(ctx, right, retryMax)
				return
			}
			logger.Warn(ctx, "chunk permanently too large for embedding provider",
				"chunk_id", batch[0].ID, "token_count", batch[0].TokenCount)
			w.failChunk(ctx, batch[0], "input too large for embedding provider")
			return
		}

		// 提供方明确拒绝（非限流的 4xx）是终态，不走重试阶梯也不计入熔断
		var perr *embedding.ProviderError
		if errors.As(err, &perr) && !perr.Retryable() {
			logger.Error(ctx, "embedding batch rejected by provider", err, "batch_size", len(batch))
			for _, c := range batch {
				w.failChunk(ctx, c, err.Error())
			}
			return
		}

		w.breaker.RecordFailure(w.now())
		logger.Error(ctx, "embedding sub-batch failed", err, "batch_size", len(batch))
		for _, c := range batch {
			if c.IsRetryable(retryMax) {
				w.requeueChunk(ctx, c, err.Error())
			} else {
				w.failChunk(ctx, c, err.Error())
			}
		}
		return
	}

	upserts := make([]Vector, len(batch))
	for i, c := range batch {
		upserts[i] = Vector{ChunkID: c.ID, DocumentID: c.DocumentID, Values: vectors[i]}
	}
	if err := w.vectors.Upsert(ctx, upserts); err != nil {
		w.breaker.RecordFailure(w.now())
		logger.Error(ctx, "failed to upsert vectors", err, "batch_size", len(batch))
		for _, c := range batch {
			if c.IsRetryable(retryMax) {
				w.requeueChunk(ctx, c, err.Error())
			} else {
				w.failChunk(ctx, c, err.Error())
			}
		}
		return
	}

	ids := make([]string, len(batch))
	for i, c := range batch {
		ids[i] = c.ID
	}
	if err := w.chunks.MarkDone(ctx, ids, w.now()); err != nil {
		// 向量已写入，done 标记失败会在回收后重嵌入，幂等 Upsert 保证无副作用
		logger.Error(ctx, "failed to mark chunks done", err, "batch_size", len(batch))
		return
	}
	w.breaker.RecordSuccess()
	metrics.EmbeddingChunksTotal.WithLabelValues("done").Add(float64(len(batch)))
}

func (w *Worker) requeueChunk(ctx context.Context, c *entity.Chunk, reason string) {
	if err := w.chunks.Requeue(ctx, c.ID, reason); err != nil {
		logger.Error(ctx, "failed to requeue chunk", err, "chunk_id", c.ID)
		return
	}
	metrics.EmbeddingChunksTotal.WithLabelValues("requeued").Inc()
}

func (w *Worker) failChunk(ctx context.Context, c *entity.Chunk, reason string) {
	if err := w.chunks.MarkFailed(ctx, c.ID, reason); err != nil {
		logger.Error(ctx, "failed to mark chunk failed", err, "chunk_id", c.ID)
		return
	}
	metrics.EmbeddingChunksTotal.WithLabelValues("failed").Inc()
}

func (w *Worker) reportBacklog(ctx context.Context) {
	counts, err := w.chunks.CountByState(ctx)
	if err != nil {
		return
	}
	for _, state := range []entity.EmbeddingState{
		entity.EmbeddingStatePending,
		entity.EmbeddingStateInFlight,
		entity.EmbeddingStateFailed,
	} {
		metrics.EmbeddingBacklog.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}
