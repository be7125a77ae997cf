package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"archive-search-api/internal/config"
	"archive-search-api/internal/domain/entity"
	"archive-search-api/internal/domain/repository"
	"archive-search-api/pkg/logger"
	"archive-search-api/pkg/metrics"
)

// Engine 混合检索引擎：全文 + 向量双路召回，融合后可选重排
type Engine struct {
	chunks   repository.ChunkRepository
	vector   VectorIndex
	embedder QueryEmbedder
	reranker Reranker
	cache    ResultCache
	cfg      atomic.Pointer[config.SearchConfig]
}

// NewEngine 创建检索引擎，vector/embedder/reranker/cache 均允许为 nil（对应能力降级）
func NewEngine(
	chunks repository.ChunkRepository,
	vector VectorIndex,
	embedder QueryEmbedder,
	reranker Reranker,
	cache ResultCache,
	cfg config.SearchConfig,
) *Engine {
	e := &Engine{
		chunks:   chunks,
		vector:   vector,
		embedder: embedder,
		reranker: reranker,
		cache:    cache,
	}
	e.cfg.Store(&cfg)
	return e
}

// UpdateConfig 热更新检索参数，每个请求开始时取一次快照，进行中的请求不受影响
func (e *Engine) UpdateConfig(cfg config.SearchConfig) {
	e.cfg.Store(&cfg)
}

// vectorEnabled 向量召回能力是否配置齐全
func (e *Engine) vectorEnabled() bool {
	return e.vector != nil && e.embedder != nil
}

// Search 执行混合检索
func (e *Engine) Search(ctx context.Context, req Request) (*Result, error) {
	cfg := *e.cfg.Load()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if utf8.RuneCountInString(query) > cfg.MaxQueryRunes {
		return nil, ErrQueryTooLong
	}

	limit := req.Limit
	if limit <= 0 {
		limit = cfg.DefaultLimit
	}
	if limit > cfg.MaxLimit {
		limit = cfg.MaxLimit
	}

	fulltextWeight, vectorWeight := req.FulltextWeight, req.VectorWeight
	if fulltextWeight <= 0 && vectorWeight <= 0 {
		fulltextWeight, vectorWeight = cfg.FulltextWeight, cfg.VectorWeight
	}

	key := CacheKey(query, limit, fulltextWeight, vectorWeight)
	if e.cache != nil {
		if cached, ok := e.cache.Get(ctx, key); ok {
			metrics.SearchCacheHits.WithLabelValues("hit").Inc()
			return cached, nil
		}
		metrics.SearchCacheHits.WithLabelValues("miss").Inc()
	}

	start := time.Now()
	result, err := e.retrieve(ctx, cfg, query, limit, fulltextWeight, vectorWeight)
	if err != nil {
		metrics.SearchTotal.WithLabelValues("hybrid", "error").Inc()
		return nil, err
	}

	mode := "hybrid"
	if result.DegradedReason == DegradedVectorUnavailable {
		mode = "fulltext_only"
	}
	metrics.SearchTotal.WithLabelValues(mode, "ok").Inc()
	metrics.SearchDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())

	if e.cache != nil {
		e.cache.Set(ctx, key, result)
	}
	return result, nil
}

// retrieve 双路召回、融合、水合与重排
func (e *Engine) retrieve(ctx context.Context, cfg config.SearchConfig, query string, limit int, fulltextWeight, vectorWeight float64) (*Result, error) {
	var (
		ftHits  []*repository.FulltextHit
		vecHits []*VectorHit
		vecErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := e.chunks.FulltextSearch(gctx, query, cfg.CandidateLimit)
		if err != nil {
			return fmt.Errorf("fulltext recall failed: %w", err)
		}
		ftHits = hits
		return nil
	})
	g.Go(func() error {
		// 向量召回失败只降级，不影响整体结果
		hits, err := e.vectorRecall(gctx, query, cfg.CandidateLimit)
		if err != nil {
			vecErr = err
			return nil
		}
		vecHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var degradedReasons []string
	if vecErr != nil {
		degradedReasons = append(degradedReasons, DegradedVectorUnavailable)
		metrics.SearchDegraded.WithLabelValues(DegradedVectorUnavailable).Inc()
		logger.Warn(ctx, "vector recall degraded", "reason", vecErr.Error())
	}

	// 全文命中已携带分块内容。主库侧谓词之外引擎再校验一次状态，
	// 嵌入未完成的分块不允许进入候选
	chunkByID := make(map[string]*entity.Chunk, len(ftHits))
	ftList := make([]scoredID, 0, len(ftHits))
	for _, hit := range ftHits {
		if hit.Chunk.EmbeddingState != entity.EmbeddingStateDone {
			continue
		}
		chunkByID[hit.Chunk.ID] = hit.Chunk
		ftList = append(ftList, scoredID{id: hit.Chunk.ID, score: hit.Score})
	}

	vecList := make([]scoredID, 0, len(vecHits))
	for _, hit := range vecHits {
		vecList = append(vecList, scoredID{id: hit.ChunkID, score: float64(hit.Score)})
	}

	var fused []*candidate
	switch {
	case len(vecList) == 0:
		fused = fuseRRF(ftList, nil, cfg.RRFK)
	case fulltextWeight == vectorWeight:
		fused = fuseRRF(ftList, vecList, cfg.RRFK)
	default:
		fused = fuseWeighted(ftList, vecList, fulltextWeight, vectorWeight)
	}

	// 水合与重排在 limit×overfetch 的候选窗口内进行，
	// 多取一些以抵消主库侧不可见候选被丢弃的损耗
	window := limit
	if cfg.RerankOverfetch > 1 {
		window = limit * cfg.RerankOverfetch
	}
	if window > len(fused) {
		window = len(fused)
	}
	fused = fused[:window]

	ordered, err := e.hydrate(ctx, fused, chunkByID)
	if err != nil {
		return nil, err
	}

	ordered, rerankErr := e.rerank(ctx, query, ordered, cfg.RerankMin)
	if rerankErr != nil {
		degradedReasons = append(degradedReasons, DegradedRerankUnavailable)
		metrics.SearchDegraded.WithLabelValues(DegradedRerankUnavailable).Inc()
		logger.Warn(ctx, "rerank degraded", "reason", rerankErr.Error())
	}

	if len(ordered) > limit {
		ordered = ordered[:limit]
	}

	items := make([]*Item, 0, len(ordered))
	for _, oc := range ordered {
		items = append(items, &Item{
			ChunkID:      oc.chunk.ID,
			DocumentID:   oc.chunk.DocumentID,
			SeqNum:       oc.chunk.SeqNum,
			Snippet:      snippet(oc.chunk.Text, cfg.SnippetRunes),
			LexicalScore: oc.cand.lexScore,
			VectorScore:  oc.cand.vecScore,
			FusedScore:   oc.cand.score,
			RerankScore:  oc.rerank,
			Score:        oc.score,
		})
	}

	return &Result{
		Items:          items,
		Degraded:       len(degradedReasons) > 0,
		DegradedReason: strings.Join(degradedReasons, ","),
	}, nil
}

// vectorRecall 查询向量化后走近邻检索
func (e *Engine) vectorRecall(ctx context.Context, query string, candidateLimit int) ([]*VectorHit, error) {
	if !e.vectorEnabled() {
		return nil, ErrVectorUnavailable
	}

	queryVector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := e.vector.Search(ctx, queryVector, candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}
	return hits, nil
}

// orderedChunk 水合后的候选，保留各阶段分数
type orderedChunk struct {
	chunk  *entity.Chunk
	cand   *candidate
	score  float64
	rerank *float64
}

// hydrate 补全向量侧候选的分块内容
// 仅保留嵌入完成且文档可见的分块，向量侧可能落后于主库
func (e *Engine) hydrate(ctx context.Context, fused []*candidate, chunkByID map[string]*entity.Chunk) ([]*orderedChunk, error) {
	var missing []string
	for _, c := range fused {
		if _, ok := chunkByID[c.chunkID]; !ok {
			missing = append(missing, c.chunkID)
		}
	}

	if len(missing) > 0 {
		chunks, err := e.chunks.GetByIDs(ctx, missing, true)
		if err != nil {
			return nil, fmt.Errorf("failed to hydrate candidates: %w", err)
		}
		for _, chunk := range chunks {
			chunkByID[chunk.ID] = chunk
		}
	}

	ordered := make([]*orderedChunk, 0, len(fused))
	for _, c := range fused {
		chunk, ok := chunkByID[c.chunkID]
		if !ok {
			// 主库中已不可见的候选直接丢弃
			continue
		}
		ordered = append(ordered, &orderedChunk{chunk: chunk, cand: c, score: c.score})
	}
	return ordered, nil
}

// rerank 对候选窗口做重排，失败时保留融合顺序并返回错误供降级标记。
// 候选不足最小窗口时静默跳过；候选充足而重排器缺席才算降级。
func (e *Engine) rerank(ctx context.Context, query string, ordered []*orderedChunk, rerankMin int) ([]*orderedChunk, error) {
	if len(ordered) < rerankMin {
		return ordered, nil
	}
	if e.reranker == nil {
		return ordered, ErrRerankUnavailable
	}

	texts := make([]string, len(ordered))
	for i, oc := range ordered {
		texts[i] = oc.chunk.Text
	}

	scores, err := e.reranker.Rerank(ctx, query, texts)
	if err != nil || len(scores) != len(ordered) {
		if err == nil {
			err = fmt.Errorf("rerank returned %d scores for %d candidates", len(scores), len(ordered))
		}
		return ordered, err
	}

	reranked := make([]*orderedChunk, len(ordered))
	for i, oc := range ordered {
		score := scores[i]
		reranked[i] = &orderedChunk{chunk: oc.chunk, cand: oc.cand, score: score, rerank: &score}
	}
	// 稳定排序，平分时保留融合顺序
	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].score > reranked[j].score
	})
	return reranked, nil
}

// snippet 截取前 n 个 rune 作为摘要
func snippet(text string, n int) string {
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n])
}
