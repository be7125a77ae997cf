package handler

import (
	"archive-search-api/internal/interfaces/http/dto"
	"archive-search-api/pkg/errors"
	"archive-search-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

// respondError 按错误类型写出响应：AppError 携带自身状态码，其余统一 500
func respondError(c *gin.Context, err error, fallbackMsg string) {
	if errors.IsAppError(err) {
		appErr := errors.AsAppError(err)
		c.JSON(appErr.HTTPStatus, dto.ErrorResponse{
			Code:    appErr.HTTPStatus,
			Message: appErr.Message,
			TraceID: c.GetString("trace_id"),
		})
		return
	}
	logger.Error(c.Request.Context(), fallbackMsg, err)
	dto.InternalError(c, fallbackMsg)
}
