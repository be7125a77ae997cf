// Package handler 提供 HTTP 请求处理器
package handler

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"archive-search-api/internal/application/ingest"
	"archive-search-api/internal/domain/repository"
	"archive-search-api/internal/infrastructure/persistence/redis"
	"archive-search-api/internal/interfaces/http/dto"
	"archive-search-api/pkg/errors"
	"archive-search-api/pkg/logger"
)

// documentCacheTTL 文档详情缓存时长，文档写入后不可变，仅删除时失效
const documentCacheTTL = 5 * time.Minute

// DocumentHandler 文档处理器
type DocumentHandler struct {
	ingestSvc *ingest.Service
	docRepo   repository.DocumentRepository
	docCache  *redis.Cache
}

// NewDocumentHandler 创建文档处理器，docCache 可为 nil
func NewDocumentHandler(ingestSvc *ingest.Service, docRepo repository.DocumentRepository, docCache *redis.Cache) *DocumentHandler {
	return &DocumentHandler{
		ingestSvc: ingestSvc,
		docRepo:   docRepo,
		docCache:  docCache,
	}
}

// IngestDocument 写入文档
// @Summary 写入文档
// @Description 写入一篇归档文档，内容按哈希去重，分块与出站事件同事务落库
// @Tags Documents
// @Accept json
// @Produce json
// @Param request body dto.IngestDocumentRequest true "写入请求"
// @Success 201 {object} dto.Response[dto.IngestDocumentResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/documents [post]
func (h *DocumentHandler) IngestDocument(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.IngestDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.ingestSvc.IngestDocument(ctx, req.ToIngestRequest())
	if err != nil {
		respondError(c, err, "failed to ingest document")
		return
	}

	resp := dto.ToIngestDocumentResponse(result)
	if result.Deduplicated {
		dto.Success(c, resp)
		return
	}
	dto.Created(c, resp)
}

// GetDocument 获取文档详情
// @Summary 获取文档详情
// @Tags Documents
// @Produce json
// @Param did path string true "文档 ID"
// @Success 200 {object} dto.Response[dto.DocumentResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/documents/{did} [get]
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	ctx := c.Request.Context()
	documentID := dto.BindDocumentID(c)

	if h.docCache != nil {
		raw, err := h.docCache.GetOrLoadSafe(ctx, redis.BuildDocumentCacheKey(documentID), documentCacheTTL, func() (interface{}, error) {
			doc, err := h.docRepo.GetByID(ctx, documentID)
			if err != nil {
				return nil, err
			}
			if doc == nil {
				return nil, errors.ErrDocumentNotFound
			}
			return dto.ToDocumentResponse(doc), nil
		})
		if err != nil {
			respondError(c, err, "failed to get document")
			return
		}

		var resp dto.DocumentResponse
		if err := json.Unmarshal(raw, &resp); err == nil {
			dto.Success(c, resp)
			return
		}
		logger.Warn(ctx, "document cache decode failed, falling back to database", "document_id", documentID)
	}

	doc, err := h.docRepo.GetByID(ctx, documentID)
	if err != nil {
		respondError(c, err, "failed to get document")
		return
	}
	if doc == nil {
		dto.NotFound(c, "document not found")
		return
	}

	dto.Success(c, dto.ToDocumentResponse(doc))
}

// ListDocuments 分页获取文档列表
// @Summary 获取文档列表
// @Tags Documents
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} dto.Response[[]dto.DocumentResponse]
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/documents [get]
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	ctx := c.Request.Context()
	page := dto.BindPage(c)

	result, err := h.docRepo.List(ctx, repository.NewPagination(page.Page, page.PageSize))
	if err != nil {
		respondError(c, err, "failed to list documents")
		return
	}

	dto.SuccessWithPage(c, dto.ToDocumentResponses(result.Items),
		dto.NewPageMeta(result.Page, result.PageSize, int(result.Total)))
}

// DeleteDocument 删除文档
// @Summary 删除文档
// @Description 软删除文档及其分块，并通过出站事件级联清理向量与图数据
// @Tags Documents
// @Produce json
// @Param did path string true "文档 ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/documents/{did} [delete]
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	ctx := c.Request.Context()
	documentID := dto.BindDocumentID(c)

	doc, err := h.docRepo.GetByID(ctx, documentID)
	if err != nil {
		respondError(c, err, "failed to get document")
		return
	}
	if doc == nil {
		dto.NotFound(c, "document not found")
		return
	}

	if err := h.ingestSvc.DeleteDocument(ctx, documentID); err != nil {
		respondError(c, err, "failed to delete document")
		return
	}

	if h.docCache != nil {
		if err := h.docCache.Delete(ctx, redis.BuildDocumentCacheKey(documentID)); err != nil {
			logger.Warn(ctx, "document cache invalidation failed", "document_id", documentID, "error", err.Error())
		}
	}

	dto.NoContent(c)
}
