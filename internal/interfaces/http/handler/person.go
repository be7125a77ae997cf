// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"archive-search-api/internal/application/ingest"
	"archive-search-api/internal/domain/repository"
	"archive-search-api/internal/interfaces/http/dto"
)

// PersonHandler 人物处理器
type PersonHandler struct {
	ingestSvc  *ingest.Service
	personRepo repository.PersonRepository
}

// NewPersonHandler 创建人物处理器
func NewPersonHandler(ingestSvc *ingest.Service, personRepo repository.PersonRepository) *PersonHandler {
	return &PersonHandler{
		ingestSvc:  ingestSvc,
		personRepo: personRepo,
	}
}

// GetPerson 获取人物详情
// @Summary 获取人物详情
// @Tags Persons
// @Produce json
// @Param pid path string true "人物 ID"
// @Success 200 {object} dto.Response[dto.PersonResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/persons/{pid} [get]
func (h *PersonHandler) GetPerson(c *gin.Context) {
	ctx := c.Request.Context()
	personID := dto.BindPersonID(c)

	person, err := h.personRepo.GetByID(ctx, personID)
	if err != nil {
		respondError(c, err, "failed to get person")
		return
	}
	if person == nil {
		dto.NotFound(c, "person not found")
		return
	}

	dto.Success(c, dto.ToPersonResponse(person))
}

// MergePersons 合并人物
// @Summary 合并人物
// @Description 将 source 人物合并进 target，历史边在图中保留生效时间
// @Tags Persons
// @Accept json
// @Produce json
// @Param request body dto.MergePersonsRequest true "合并请求"
// @Success 202 {object} dto.Response[dto.MergePersonsRequest]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/persons/merge [post]
func (h *PersonHandler) MergePersons(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.MergePersonsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.SourceID == req.TargetID {
		dto.BadRequest(c, "cannot merge a person into itself")
		return
	}

	for _, id := range []string{req.SourceID, req.TargetID} {
		person, err := h.personRepo.GetByID(ctx, id)
		if err != nil {
			respondError(c, err, "failed to get person")
			return
		}
		if person == nil {
			dto.NotFound(c, "person not found: "+id)
			return
		}
	}

	if err := h.ingestSvc.MergePersons(ctx, req.SourceID, req.TargetID); err != nil {
		respondError(c, err, "failed to merge persons")
		return
	}

	// 图侧边迁移经由出站事件异步完成
	dto.Accepted(c, req)
}
