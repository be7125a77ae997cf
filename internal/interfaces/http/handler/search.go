// Package handler 提供 HTTP 请求处理器
package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"archive-search-api/internal/application/search"
	"archive-search-api/internal/interfaces/http/dto"
)

// SearchHandler 混合检索处理器
type SearchHandler struct {
	engine *search.Engine
}

// NewSearchHandler 创建混合检索处理器
func NewSearchHandler(engine *search.Engine) *SearchHandler {
	return &SearchHandler{
		engine: engine,
	}
}

// Search 混合检索
// @Summary 混合检索
// @Description 对归档文档执行全文与向量混合检索，可选重排
// @Tags Search
// @Accept json
// @Produce json
// @Param request body dto.SearchRequest true "检索请求"
// @Success 200 {object} dto.Response[dto.SearchResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/search [post]
func (h *SearchHandler) Search(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.engine.Search(ctx, search.Request{
		Query:          req.Query,
		Limit:          req.Limit,
		FulltextWeight: req.FulltextWeight,
		VectorWeight:   req.VectorWeight,
	})
	if err != nil {
		if errors.Is(err, search.ErrEmptyQuery) || errors.Is(err, search.ErrQueryTooLong) {
			dto.BadRequest(c, err.Error())
			return
		}
		respondError(c, err, "failed to execute search")
		return
	}

	dto.Success(c, dto.ToSearchResponse(result))
}
