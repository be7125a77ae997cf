// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"archive-search-api/internal/infrastructure/persistence/graph"
	"archive-search-api/internal/infrastructure/persistence/milvus"
	"archive-search-api/internal/infrastructure/persistence/postgres"
	"archive-search-api/internal/infrastructure/persistence/redis"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	pg     *postgres.Client
	redis  *redis.Client
	milvus *milvus.Client
	graph  *graph.Store
}

// NewHealthHandler 创建健康检查处理器，milvus 与 graph 允许为 nil
func NewHealthHandler(pg *postgres.Client, redisClient *redis.Client, milvusClient *milvus.Client, graphStore *graph.Store) *HealthHandler {
	return &HealthHandler{
		pg:     pg,
		redis:  redisClient,
		milvus: milvusClient,
		graph:  graphStore,
	}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type readinessCheck struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

type readinessResponse struct {
	Status string                     `json:"status"`
	Checks map[string]*readinessCheck `json:"checks,omitempty"`
}

// probe 执行单项依赖检查并记录延迟
func probe(ctx context.Context, check *readinessCheck, fn func(context.Context) error) bool {
	start := time.Now()
	err := fn(ctx)
	check.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		check.Error = err.Error()
		return false
	}
	check.Status = "ok"
	return true
}

// Health 健康检查接口
// @Summary 健康检查
// @Description 检查服务健康状态
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
	})
}

// Ready 就绪检查接口
// @Summary 就绪检查
// @Description 检查服务是否可以接收流量。Postgres 与 Redis 为必需依赖，
// Milvus 与图库不可用时退化为 degraded，不影响就绪态。
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]*readinessCheck{
		"postgres": {Status: "error"},
		"redis":    {Status: "error"},
		"milvus":   {Status: "disabled"},
		"graph":    {Status: "disabled"},
	}

	// 必需依赖，任一失败则拒绝流量
	ready := probe(ctx, checks["postgres"], h.pg.HealthCheck)
	ready = probe(ctx, checks["redis"], h.redis.HealthCheck) && ready

	// Milvus 可选，不可用时检索退化为纯全文
	if h.milvus != nil && !probe(ctx, checks["milvus"], h.milvus.HealthCheck) {
		checks["milvus"].Status = "degraded"
	}

	// 图库可选，仅中继侧写入
	if h.graph != nil && !probe(ctx, checks["graph"], h.graph.Ping) {
		checks["graph"].Status = "degraded"
	}

	resp := readinessResponse{
		Status: "ok",
		Checks: checks,
	}
	if !ready {
		resp.Status = "not_ready"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Live 存活检查接口
// @Summary 存活检查
// @Description 检查服务是否存活
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
	})
}
