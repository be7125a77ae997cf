package search

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archive-search-api/internal/config"
	"archive-search-api/internal/domain/entity"
	"archive-search-api/internal/domain/repository"
)

type fakeChunkRepo struct {
	repository.ChunkRepository
	fulltext      []*repository.FulltextHit
	fulltextErr   error
	fulltextCalls int
	visible       map[string]*entity.Chunk // GetByIDs 可见的分块
}

func (f *fakeChunkRepo) FulltextSearch(_ context.Context, _ string, _ int) ([]*repository.FulltextHit, error) {
	f.fulltextCalls++
	return f.fulltext, f.fulltextErr
}

func (f *fakeChunkRepo) GetByIDs(_ context.Context, ids []string, _ bool) ([]*entity.Chunk, error) {
	out := make([]*entity.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := f.visible[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeVectorIndex struct {
	hits []*VectorHit
	err  error
}

func (f *fakeVectorIndex) Search(_ context.Context, _ []float32, _ int) ([]*VectorHit, error) {
	return f.hits, f.err
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type fakeReranker struct {
	scores []float64
	err    error
}

func (f *fakeReranker) Rerank(_ context.Context, _ string, texts []string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.scores != nil {
		return f.scores, nil
	}
	out := make([]float64, len(texts))
	return out, nil
}

func chunkFixture(id string) *entity.Chunk {
	return &entity.Chunk{
		ID:             id,
		DocumentID:     "doc-1",
		Text:           "chunk body for " + id,
		EmbeddingState: entity.EmbeddingStateDone,
	}
}

func searchConfig() config.SearchConfig {
	return config.SearchConfig{
		CandidateLimit:  50,
		RRFK:            60,
		FulltextWeight:  0.5,
		VectorWeight:    0.5,
		RerankMin:       2,
		RerankOverfetch: 5,
		MaxQueryRunes:   100,
		DefaultLimit:    10,
		MaxLimit:        100,
		SnippetRunes:    200,
		CacheTTL:        time.Minute,
		CacheMaxEntries: 64,
	}
}

func fulltextHits(ids ...string) ([]*repository.FulltextHit, map[string]*entity.Chunk) {
	hits := make([]*repository.FulltextHit, 0, len(ids))
	visible := map[string]*entity.Chunk{}
	for i, id := range ids {
		c := chunkFixture(id)
		visible[id] = c
		hits = append(hits, &repository.FulltextHit{Chunk: c, Score: float64(len(ids) - i)})
	}
	return hits, visible
}

func TestSearchValidation(t *testing.T) {
	e := NewEngine(&fakeChunkRepo{}, nil, nil, nil, nil, searchConfig())

	_, err := e.Search(context.Background(), Request{Query: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = e.Search(context.Background(), Request{Query: strings.Repeat("长", 101)})
	assert.ErrorIs(t, err, ErrQueryTooLong)
}

func TestSearchDegradationMatrix(t *testing.T) {
	ctx := context.Background()

	t.Run("vector down yields lexical-only degraded result", func(t *testing.T) {
		hits, visible := fulltextHits("a", "b", "c")
		repo := &fakeChunkRepo{fulltext: hits, visible: visible}
		e := NewEngine(repo, &fakeVectorIndex{}, &fakeEmbedder{err: fmt.Errorf("provider down")},
			&fakeReranker{scores: []float64{3, 2, 1}}, nil, searchConfig())

		res, err := e.Search(ctx, Request{Query: "q"})
		require.NoError(t, err)
		assert.True(t, res.Degraded)
		assert.Contains(t, res.DegradedReason, DegradedVectorUnavailable)
		require.Len(t, res.Items, 3)
		assert.Equal(t, "a", res.Items[0].ChunkID)
		assert.Nil(t, res.Items[0].VectorScore)
	})

	t.Run("reranker absent with enough candidates is degraded", func(t *testing.T) {
		hits, visible := fulltextHits("a", "b", "c")
		repo := &fakeChunkRepo{fulltext: hits, visible: visible}
		e := NewEngine(repo, &fakeVectorIndex{}, &fakeEmbedder{}, nil, nil, searchConfig())

		res, err := e.Search(ctx, Request{Query: "q"})
		require.NoError(t, err)
		assert.True(t, res.Degraded)
		assert.Contains(t, res.DegradedReason, DegradedRerankUnavailable)
		assert.Nil(t, res.Items[0].RerankScore)
	})

	t.Run("too few candidates skips rerank silently", func(t *testing.T) {
		hits, visible := fulltextHits("a")
		repo := &fakeChunkRepo{fulltext: hits, visible: visible}
		e := NewEngine(repo, &fakeVectorIndex{}, &fakeEmbedder{}, nil, nil, searchConfig())

		res, err := e.Search(ctx, Request{Query: "q"})
		require.NoError(t, err)
		assert.False(t, res.Degraded)
	})

	t.Run("both stages down surfaces both reasons", func(t *testing.T) {
		hits, visible := fulltextHits("a", "b", "c")
		repo := &fakeChunkRepo{fulltext: hits, visible: visible}
		e := NewEngine(repo, nil, nil, nil, nil, searchConfig())

		res, err := e.Search(ctx, Request{Query: "q"})
		require.NoError(t, err)
		assert.True(t, res.Degraded)
		assert.Contains(t, res.DegradedReason, DegradedVectorUnavailable)
		assert.Contains(t, res.DegradedReason, DegradedRerankUnavailable)
		// 降级响应仍保持全文召回的顺序
		assert.Equal(t, "a", res.Items[0].ChunkID)
	})

	t.Run("fulltext failure is a hard error", func(t *testing.T) {
		repo := &fakeChunkRepo{fulltextErr: fmt.Errorf("postgres down")}
		e := NewEngine(repo, nil, nil, nil, nil, searchConfig())
		_, err := e.Search(ctx, Request{Query: "q"})
		assert.Error(t, err)
	})
}

func TestSearchHybrid(t *testing.T) {
	ctx := context.Background()

	t.Run("vector-only candidates are hydrated", func(t *testing.T) {
		hits, visible := fulltextHits("a", "b")
		visible["v"] = chunkFixture("v")
		repo := &fakeChunkRepo{fulltext: hits, visible: visible}
		vec := &fakeVectorIndex{hits: []*VectorHit{
			{ChunkID: "v", DocumentID: "doc-1", Score: 0.9},
			{ChunkID: "a", DocumentID: "doc-1", Score: 0.8},
		}}
		e := NewEngine(repo, vec, &fakeEmbedder{}, nil, nil, searchConfig())

		res, err := e.Search(ctx, Request{Query: "q"})
		require.NoError(t, err)
		got := make([]string, 0, len(res.Items))
		for _, it := range res.Items {
			got = append(got, it.ChunkID)
		}
		assert.Contains(t, got, "v")
		// a 同时命中两路，融合分最高
		assert.Equal(t, "a", got[0])
	})

	t.Run("chunks still awaiting embedding never surface", func(t *testing.T) {
		hits, visible := fulltextHits("a", "b")
		pending := chunkFixture("p")
		pending.EmbeddingState = entity.EmbeddingStatePending
		hits = append([]*repository.FulltextHit{{Chunk: pending, Score: 9}}, hits...)
		repo := &fakeChunkRepo{fulltext: hits, visible: visible}
		e := NewEngine(repo, nil, nil, nil, nil, searchConfig())

		res, err := e.Search(ctx, Request{Query: "q"})
		require.NoError(t, err)
		require.Len(t, res.Items, 2)
		for _, it := range res.Items {
			assert.NotEqual(t, "p", it.ChunkID)
		}
	})

	t.Run("invisible vector candidates are dropped", func(t *testing.T) {
		hits, visible := fulltextHits("a", "b")
		repo := &fakeChunkRepo{fulltext: hits, visible: visible}
		vec := &fakeVectorIndex{hits: []*VectorHit{
			{ChunkID: "ghost", DocumentID: "doc-gone", Score: 0.99},
		}}
		e := NewEngine(repo, vec, &fakeEmbedder{}, nil, nil, searchConfig())

		res, err := e.Search(ctx, Request{Query: "q"})
		require.NoError(t, err)
		for _, it := range res.Items {
			assert.NotEqual(t, "ghost", it.ChunkID)
		}
	})

	t.Run("rerank reorders and records rerank scores", func(t *testing.T) {
		hits, visible := fulltextHits("a", "b", "c")
		repo := &fakeChunkRepo{fulltext: hits, visible: visible}
		reranker := &fakeReranker{scores: []float64{0.1, 0.9, 0.5}}
		e := NewEngine(repo, nil, nil, reranker, nil, searchConfig())

		res, err := e.Search(ctx, Request{Query: "q"})
		require.NoError(t, err)
		require.Len(t, res.Items, 3)
		assert.Equal(t, "b", res.Items[0].ChunkID)
		require.NotNil(t, res.Items[0].RerankScore)
		assert.Equal(t, 0.9, *res.Items[0].RerankScore)
		assert.Positive(t, res.Items[0].FusedScore)
	})

	t.Run("rerank failure keeps fused order and flags degradation", func(t *testing.T) {
		hits, visible := fulltextHits("a", "b", "c")
		repo := &fakeChunkRepo{fulltext: hits, visible: visible}
		e := NewEngine(repo, nil, nil, &fakeReranker{err: fmt.Errorf("rerank down")}, nil, searchConfig())

		res, err := e.Search(ctx, Request{Query: "q"})
		require.NoError(t, err)
		assert.Contains(t, res.DegradedReason, DegradedRerankUnavailable)
		assert.Equal(t, "a", res.Items[0].ChunkID)
	})

	t.Run("limit clamps the result size", func(t *testing.T) {
		hits, visible := fulltextHits("a", "b", "c", "d", "e")
		repo := &fakeChunkRepo{fulltext: hits, visible: visible}
		e := NewEngine(repo, nil, nil, nil, nil, searchConfig())

		res, err := e.Search(ctx, Request{Query: "q", Limit: 2})
		require.NoError(t, err)
		assert.Len(t, res.Items, 2)
	})
}

func TestSearchCache(t *testing.T) {
	ctx := context.Background()
	hits, visible := fulltextHits("a", "b", "c")
	repo := &fakeChunkRepo{fulltext: hits, visible: visible}
	cfg := searchConfig()
	cache := NewMemoryCache(cfg.CacheTTL, cfg.CacheMaxEntries)
	e := NewEngine(repo, nil, nil, &fakeReranker{scores: []float64{3, 2, 1}}, cache, cfg)

	first, err := e.Search(ctx, Request{Query: "Same   Query"})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.fulltextCalls)

	// 归一化后等价的查询直接命中缓存，不再触发第二次召回
	second, err := e.Search(ctx, Request{Query: " same query "})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.fulltextCalls)
	assert.Equal(t, first, second)
}
