// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"archive-search-api/internal/domain/repository"
	"archive-search-api/internal/interfaces/http/dto"
	"archive-search-api/pkg/logger"
)

// AdminHandler 运维处理器，暴露流水线与出站事件的观测与修复操作
type AdminHandler struct {
	chunkRepo  repository.ChunkRepository
	outboxRepo repository.OutboxRepository
}

// NewAdminHandler 创建运维处理器
func NewAdminHandler(chunkRepo repository.ChunkRepository, outboxRepo repository.OutboxRepository) *AdminHandler {
	return &AdminHandler{
		chunkRepo:  chunkRepo,
		outboxRepo: outboxRepo,
	}
}

// PipelineStats 获取流水线状态统计
// @Summary 流水线状态统计
// @Description 按嵌入状态统计分块数量，并给出出站事件积压
// @Tags Admin
// @Produce json
// @Success 200 {object} dto.Response[dto.PipelineStatsResponse]
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/admin/pipeline/stats [get]
func (h *AdminHandler) PipelineStats(c *gin.Context) {
	ctx := c.Request.Context()

	states, err := h.chunkRepo.CountByState(ctx)
	if err != nil {
		respondError(c, err, "failed to count chunk states")
		return
	}
	backlog, err := h.outboxRepo.CountBacklog(ctx)
	if err != nil {
		respondError(c, err, "failed to count outbox backlog")
		return
	}

	dto.Success(c, dto.ToPipelineStatsResponse(states, backlog))
}

// ListFailedChunks 分页获取嵌入失败的分块
// @Summary 获取失败分块列表
// @Tags Admin
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} dto.Response[[]dto.FailedChunkResponse]
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/admin/pipeline/failed [get]
func (h *AdminHandler) ListFailedChunks(c *gin.Context) {
	ctx := c.Request.Context()
	page := dto.BindPage(c)

	result, err := h.chunkRepo.ListFailed(ctx, repository.NewPagination(page.Page, page.PageSize))
	if err != nil {
		respondError(c, err, "failed to list failed chunks")
		return
	}

	dto.SuccessWithPage(c, dto.ToFailedChunkResponses(result.Items),
		dto.NewPageMeta(result.Page, result.PageSize, int(result.Total)))
}

// ResetFailedChunks 重置失败分块
// @Summary 重置失败分块
// @Description 将失败分块重置为 pending 并清零重试计数，document_id 为空时重置全部
// @Tags Admin
// @Accept json
// @Produce json
// @Param request body dto.ResetFailedRequest false "重置范围"
// @Success 200 {object} dto.Response[dto.ResetFailedResponse]
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/admin/pipeline/failed/reset [post]
func (h *AdminHandler) ResetFailedChunks(c *gin.Context) {
	ctx := c.Request.Context()

	// 请求体可省略，省略时重置全部失败分块
	var req dto.ResetFailedRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			dto.BadRequest(c, "invalid request body: "+err.Error())
			return
		}
	}

	count, err := h.chunkRepo.ResetFailed(ctx, req.DocumentID)
	if err != nil {
		respondError(c, err, "failed to reset failed chunks")
		return
	}

	logger.Info(ctx, "failed chunks reset",
		"document_id", req.DocumentID,
		"reset_count", count,
	)
	dto.Success(c, dto.ResetFailedResponse{ResetCount: count})
}

// ListDeadLetters 分页获取死信事件
// @Summary 获取死信事件列表
// @Tags Admin
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} dto.Response[[]dto.DeadLetterResponse]
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/admin/outbox/dead-letters [get]
func (h *AdminHandler) ListDeadLetters(c *gin.Context) {
	ctx := c.Request.Context()
	page := dto.BindPage(c)

	result, err := h.outboxRepo.ListDeadLetters(ctx, repository.NewPagination(page.Page, page.PageSize))
	if err != nil {
		respondError(c, err, "failed to list dead letters")
		return
	}

	dto.SuccessWithPage(c, dto.ToDeadLetterResponses(result.Items),
		dto.NewPageMeta(result.Page, result.PageSize, int(result.Total)))
}

// ResetDeadLetter 重置死信事件
// @Summary 重置死信事件
// @Description 清除死信标记与尝试计数，事件按原始顺序重新投递
// @Tags Admin
// @Produce json
// @Param id path int true "事件 ID"
// @Success 204
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/admin/outbox/dead-letters/{id}/reset [post]
func (h *AdminHandler) ResetDeadLetter(c *gin.Context) {
	ctx := c.Request.Context()

	eventID := dto.BindEventID(c)
	if eventID <= 0 {
		dto.BadRequest(c, "invalid event id")
		return
	}

	if err := h.outboxRepo.ResetDeadLetter(ctx, eventID); err != nil {
		respondError(c, err, "failed to reset dead letter")
		return
	}

	logger.Info(ctx, "dead letter reset", "event_id", eventID)
	dto.NoContent(c)
}
