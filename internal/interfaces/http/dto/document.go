// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"time"

	"archive-search-api/internal/application/ingest"
	"archive-search-api/internal/domain/entity"
)

// PersonInputRequest 写入请求中的人物
type PersonInputRequest struct {
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email" binding:"required,email"`
}

// IngestDocumentRequest 文档写入请求
type IngestDocumentRequest struct {
	Title      string               `json:"title" binding:"required,max=512"`
	Source     string               `json:"source,omitempty" binding:"max=512"`
	Content    string               `json:"content" binding:"required"`
	Sender     PersonInputRequest   `json:"sender" binding:"required"`
	Recipients []PersonInputRequest `json:"recipients,omitempty" binding:"dive"`
	SentAt     *time.Time           `json:"sent_at,omitempty"`
}

// ToIngestRequest 转换为应用层写入请求
func (r *IngestDocumentRequest) ToIngestRequest() *ingest.Request {
	req := &ingest.Request{
		Title:   r.Title,
		Source:  r.Source,
		Content: r.Content,
		Sender:  ingest.PersonInput{FullName: r.Sender.FullName, Email: r.Sender.Email},
	}
	for _, rec := range r.Recipients {
		req.Recipients = append(req.Recipients, ingest.PersonInput{FullName: rec.FullName, Email: rec.Email})
	}
	if r.SentAt != nil {
		req.SentAt = *r.SentAt
	}
	return req
}

// IngestDocumentResponse 文档写入响应
type IngestDocumentResponse struct {
	DocumentID   string    `json:"document_id"`
	Title        string    `json:"title"`
	ChunkCount   int       `json:"chunk_count"`
	Deduplicated bool      `json:"deduplicated"`
	CreatedAt    time.Time `json:"created_at"`
}

// ToIngestDocumentResponse 将写入结果转换为响应
func ToIngestDocumentResponse(result *ingest.Result) *IngestDocumentResponse {
	return &IngestDocumentResponse{
		DocumentID:   result.Document.ID,
		Title:        result.Document.Title,
		ChunkCount:   result.ChunkCount,
		Deduplicated: result.Deduplicated,
		CreatedAt:    result.Document.CreatedAt,
	}
}

// DocumentResponse 文档详情响应
type DocumentResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Source      string    `json:"source,omitempty"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ToDocumentResponse 将文档实体转换为响应
func ToDocumentResponse(doc *entity.Document) *DocumentResponse {
	return &DocumentResponse{
		ID:          doc.ID,
		Title:       doc.Title,
		Source:      doc.Source,
		ContentHash: doc.ContentHash,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}

// ToDocumentResponses 批量转换文档列表
func ToDocumentResponses(docs []*entity.Document) []*DocumentResponse {
	out := make([]*DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, ToDocumentResponse(doc))
	}
	return out
}
