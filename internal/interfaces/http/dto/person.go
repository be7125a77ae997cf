// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"time"

	"archive-search-api/internal/domain/entity"
)

// MergePersonsRequest 人物合并请求
type MergePersonsRequest struct {
	SourceID string `json:"source_id" binding:"required"`
	TargetID string `json:"target_id" binding:"required"`
}

// PersonResponse 人物详情响应
type PersonResponse struct {
	ID         string    `json:"id"`
	FullName   string    `json:"full_name"`
	Email      string    `json:"email"`
	MergedInto string    `json:"merged_into,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ToPersonResponse 将人物实体转换为响应
func ToPersonResponse(p *entity.Person) *PersonResponse {
	resp := &PersonResponse{
		ID:        p.ID,
		FullName:  p.FullName,
		Email:     p.Email,
		CreatedAt: p.CreatedAt,
	}
	if p.MergedInto != nil {
		resp.MergedInto = *p.MergedInto
	}
	return resp
}
