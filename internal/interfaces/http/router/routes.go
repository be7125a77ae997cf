// Package router 提供 HTTP 路由配置
package router

import (
	"archive-search-api/internal/interfaces/http/handler"

	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(
	v1 *gin.RouterGroup,
	searchHandler *handler.SearchHandler,
	documentHandler *handler.DocumentHandler,
	personHandler *handler.PersonHandler,
	adminHandler *handler.AdminHandler,
) {
	// 混合检索
	v1.POST("/search", searchHandler.Search)

	// 文档管理
	documents := v1.Group("/documents")
	{
		documents.GET("", documentHandler.ListDocuments)
		documents.POST("", documentHandler.IngestDocument)
		documents.GET("/:did", documentHandler.GetDocument)
		documents.DELETE("/:did", documentHandler.DeleteDocument)
	}

	// 人物管理
	persons := v1.Group("/persons")
	{
		persons.GET("/:pid", personHandler.GetPerson)
		persons.POST("/merge", personHandler.MergePersons)
	}

	// 运维端点
	admin := v1.Group("/admin")
	{
		admin.GET("/pipeline/stats", adminHandler.PipelineStats)
		admin.GET("/pipeline/failed", adminHandler.ListFailedChunks)
		admin.POST("/pipeline/failed/reset", adminHandler.ResetFailedChunks)
		admin.GET("/outbox/dead-letters", adminHandler.ListDeadLetters)
		admin.POST("/outbox/dead-letters/:id/reset", adminHandler.ResetDeadLetter)
	}
}
