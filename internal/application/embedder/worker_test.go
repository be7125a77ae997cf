package embedder

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archive-search-api/internal/config"
	"archive-search-api/internal/domain/entity"
	"archive-search-api/internal/domain/repository"
	"archive-search-api/internal/infrastructure/embedding"
)

type fakeChunkRepo struct {
	repository.ChunkRepository
	pending  []*entity.Chunk
	done     [][]string
	requeued map[string]int
	failed   map[string]string
}

func newFakeChunkRepo(pending ...*entity.Chunk) *fakeChunkRepo {
	return &fakeChunkRepo{
		pending:  pending,
		requeued: map[string]int{},
		failed:   map[string]string{},
	}
}

func (f *fakeChunkRepo) ClaimPending(_ context.Context, limit int) ([]*entity.Chunk, error) {
	if limit > len(f.pending) {
		limit = len(f.pending)
	}
	claimed := f.pending[:limit]
	f.pending = f.pending[limit:]
	return claimed, nil
}

func (f *fakeChunkRepo) MarkDone(_ context.Context, ids []string, _ time.Time) error {
	f.done = append(f.done, ids)
	return nil
}

func (f *fakeChunkRepo) Requeue(_ context.Context, id string, _ string) error {
	f.requeued[id]++
	return nil
}

func (f *fakeChunkRepo) MarkFailed(_ context.Context, id string, reason string) error {
	f.failed[id] = reason
	return nil
}

func (f *fakeChunkRepo) CountByState(_ context.Context) (map[entity.EmbeddingState]int64, error) {
	return map[entity.EmbeddingState]int64{}, nil
}

func (f *fakeChunkRepo) RequeueStaleInFlight(_ context.Context, _ time.Duration) (int64, error) {
	return 0, nil
}

type fakeEmbedder struct {
	err          error
	maxBatchSize int // 超过该条数时返回 ErrInputTooLarge，0 表示不限
	calls        [][]string
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	if f.maxBatchSize > 0 && len(texts) > f.maxBatchSize {
		return nil, embedding.ErrInputTooLarge
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

type fakeVectorStore struct {
	err      error
	upserted []Vector
}

func (f *fakeVectorStore) Upsert(_ context.Context, vectors []Vector) error {
	if f.err != nil {
		return f.err
	}
	f.upserted = append(f.upserted, vectors...)
	return nil
}

func pipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		MaxBatchSize:      200,
		MaxTokensPerBatch: 60000,
		RetryMax:          3,
		PollInterval:      time.Millisecond,
		BreakerThreshold:  10,
		BreakerCooldown:   time.Minute,
	}
}

func TestRunCycle(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy service marks all claimed chunks done", func(t *testing.T) {
		chunks := make([]*entity.Chunk, 0, 20)
		for i := 0; i < 20; i++ {
			chunks = append(chunks, entity.NewChunk("doc-1", i, fmt.Sprintf("chunk %d body", i)))
		}
		for i, c := range chunks {
			c.ID = fmt.Sprintf("c-%02d", i)
		}
		repo := newFakeChunkRepo(chunks...)
		store := &fakeVectorStore{}
		w := NewWorker(repo, &fakeEmbedder{}, store, pipelineConfig())

		n, err := w.RunCycle(ctx)
		require.NoError(t, err)
		assert.Equal(t, 20, n)
		assert.Len(t, store.upserted, 20)

		var doneIDs []string
		for _, batch := range repo.done {
			doneIDs = append(doneIDs, batch...)
		}
		assert.Len(t, doneIDs, 20)
		assert.Empty(t, repo.requeued)
		assert.Empty(t, repo.failed)
	})

	t.Run("empty claim is a no-op", func(t *testing.T) {
		repo := newFakeChunkRepo()
		w := NewWorker(repo, &fakeEmbedder{}, &fakeVectorStore{}, pipelineConfig())
		n, err := w.RunCycle(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("transient failure requeues with retry budget left", func(t *testing.T) {
		c := entity.NewChunk("doc-1", 0, "body")
		c.ID = "c-0"
		repo := newFakeChunkRepo(c)
		w := NewWorker(repo, &fakeEmbedder{err: fmt.Errorf("connection refused")}, &fakeVectorStore{}, pipelineConfig())

		_, err := w.RunCycle(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, repo.requeued["c-0"])
		assert.Empty(t, repo.failed)
	})

	t.Run("retry ladder terminates in failed state", func(t *testing.T) {
		c := entity.NewChunk("doc-1", 0, "body")
		c.ID = "c-0"
		c.RetryCount = 3 // 已达 RetryMax
		repo := newFakeChunkRepo(c)
		w := NewWorker(repo, &fakeEmbedder{err: fmt.Errorf("still down")}, &fakeVectorStore{}, pipelineConfig())

		_, err := w.RunCycle(ctx)
		require.NoError(t, err)
		assert.Empty(t, repo.requeued)
		assert.Contains(t, repo.failed, "c-0")
	})

	t.Run("chunk at the retry boundary fails instead of outliving the budget", func(t *testing.T) {
		c := entity.NewChunk("doc-1", 0, "body")
		c.ID = "c-0"
		c.RetryCount = 2 // 本次失败计入后到达 RetryMax
		repo := newFakeChunkRepo(c)
		w := NewWorker(repo, &fakeEmbedder{err: fmt.Errorf("timeout")}, &fakeVectorStore{}, pipelineConfig())

		_, err := w.RunCycle(ctx)
		require.NoError(t, err)
		assert.Empty(t, repo.requeued)
		assert.Contains(t, repo.failed, "c-0")
	})

	t.Run("terminal provider rejection skips the retry ladder", func(t *testing.T) {
		c := entity.NewChunk("doc-1", 0, "body")
		c.ID = "c-0"
		repo := newFakeChunkRepo(c)
		emb := &fakeEmbedder{err: &embedding.ProviderError{StatusCode: 400}}
		w := NewWorker(repo, emb, &fakeVectorStore{}, pipelineConfig())

		_, err := w.RunCycle(ctx)
		require.NoError(t, err)
		assert.Empty(t, repo.requeued)
		assert.Contains(t, repo.failed, "c-0")
	})

	t.Run("rate limiting stays on the retry ladder", func(t *testing.T) {
		c := entity.NewChunk("doc-1", 0, "body")
		c.ID = "c-0"
		repo := newFakeChunkRepo(c)
		emb := &fakeEmbedder{err: &embedding.ProviderError{StatusCode: 429}}
		w := NewWorker(repo, emb, &fakeVectorStore{}, pipelineConfig())

		_, err := w.RunCycle(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, repo.requeued["c-0"])
		assert.Empty(t, repo.failed)
	})

	t.Run("oversized batch is split until calls fit", func(t *testing.T) {
		chunks := make([]*entity.Chunk, 0, 8)
		for i := 0; i < 8; i++ {
			c := entity.NewChunk("doc-1", i, "body")
			c.ID = fmt.Sprintf("c-%d", i)
			chunks = append(chunks, c)
		}
		repo := newFakeChunkRepo(chunks...)
		emb := &fakeEmbedder{maxBatchSize: 2}
		store := &fakeVectorStore{}
		w := NewWorker(repo, emb, store, pipelineConfig())

		_, err := w.RunCycle(ctx)
		require.NoError(t, err)
		assert.Len(t, store.upserted, 8)
		assert.Empty(t, repo.failed)
		// 对半递归拆分最终以不超过服务容量的调用完成全部分块
		fitting := 0
		for _, call := range emb.calls {
			if len(call) <= 2 {
				fitting++
			}
		}
		assert.Equal(t, 4, fitting)
	})

	t.Run("single chunk too large is terminally failed", func(t *testing.T) {
		c := entity.NewChunk("doc-1", 0, "enormous body")
		c.ID = "c-big"
		repo := newFakeChunkRepo(c)
		emb := &fakeEmbedder{maxBatchSize: 0, err: embedding.ErrInputTooLarge}
		w := NewWorker(repo, emb, &fakeVectorStore{}, pipelineConfig())

		_, err := w.RunCycle(ctx)
		require.NoError(t, err)
		assert.Contains(t, repo.failed["c-big"], "too large")
		assert.Empty(t, repo.requeued)
	})

	t.Run("vector store failure follows the same retry ladder", func(t *testing.T) {
		c := entity.NewChunk("doc-1", 0, "body")
		c.ID = "c-0"
		repo := newFakeChunkRepo(c)
		w := NewWorker(repo, &fakeEmbedder{}, &fakeVectorStore{err: fmt.Errorf("milvus down")}, pipelineConfig())

		_, err := w.RunCycle(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, repo.requeued["c-0"])
	})
}

func TestWorkerBreakerIntegration(t *testing.T) {
	cfg := pipelineConfig()
	cfg.BreakerThreshold = 2
	cfg.MaxBatchSize = 1 // 每轮只认领一个分块，失败的子批次逐轮累积
	c1 := entity.NewChunk("doc-1", 0, "a")
	c1.ID = "c-1"
	c2 := entity.NewChunk("doc-1", 1, "b")
	c2.ID = "c-2"
	repo := newFakeChunkRepo(c1, c2)
	w := NewWorker(repo, &fakeEmbedder{err: fmt.Errorf("down")}, &fakeVectorStore{}, cfg)
	w.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	_, err := w.RunCycle(context.Background())
	require.NoError(t, err)
	_, err = w.RunCycle(context.Background())
	require.NoError(t, err)

	ok, wait := w.breaker.Allow(w.now())
	assert.False(t, ok)
	assert.Equal(t, cfg.BreakerCooldown, wait)
}
