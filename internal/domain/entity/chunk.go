// Package entity 定义领域实体
package entity

import (
	"time"
	"unicode/utf8"
)

// EmbeddingState 分块的嵌入状态
type EmbeddingState string

const (
	EmbeddingStatePending  EmbeddingState = "pending"
	EmbeddingStateInFlight EmbeddingState = "in_flight"
	EmbeddingStateDone     EmbeddingState = "done"
	EmbeddingStateFailed   EmbeddingState = "failed"
)

// Chunk 文档分块，是检索与嵌入的最小单位
type Chunk struct {
	ID             string         `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	DocumentID     string         `json:"document_id" gorm:"type:uuid;not null;uniqueIndex:idx_chunks_doc_seq"`
	SeqNum         int            `json:"seq_num" gorm:"not null;uniqueIndex:idx_chunks_doc_seq"`
	Text           string         `json:"text" gorm:"type:text;not null"`
	TokenCount     int            `json:"token_count" gorm:"not null;default:0"`
	EmbeddingState EmbeddingState `json:"embedding_state" gorm:"type:varchar(20);index;not null;default:'pending'"`
	RetryCount     int            `json:"retry_count" gorm:"not null;default:0"`
	LastError      string         `json:"last_error,omitempty" gorm:"type:text"`
	EmbeddedAt     *time.Time     `json:"embedded_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Chunk) TableName() string {
	return "chunks"
}

// NewChunk 创建新分块，初始状态为 pending
func NewChunk(documentID string, seqNum int, text string) *Chunk {
	return &Chunk{
		DocumentID:     documentID,
		SeqNum:         seqNum,
		Text:           text,
		TokenCount:     EstimateTokens(text),
		EmbeddingState: EmbeddingStatePending,
		CreatedAt:      time.Now(),
	}
}

// EstimateTokens 粗略估算文本的 token 数（约 4 字符一个 token，至少为 1）
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 1
	}
	tokens := (n + 3) / 4
	if tokens < 1 {
		return 1
	}
	return tokens
}

// MarkDone 标记嵌入完成并清零重试计数
func (c *Chunk) MarkDone(now time.Time) {
	c.EmbeddingState = EmbeddingStateDone
	c.EmbeddedAt = &now
	c.RetryCount = 0
	c.LastError = ""
}

// MarkFailed 标记嵌入失败并记录原因，这次尝试计入重试计数
func (c *Chunk) MarkFailed(reason string) {
	c.EmbeddingState = EmbeddingStateFailed
	c.RetryCount++
	c.LastError = reason
}

// IsRetryable 是否还允许重试。本次失败计入后仍未达到上限才可重新排队，
// 排队中的分块重试计数因此恒小于上限。
func (c *Chunk) IsRetryable(retryMax int) bool {
	return c.RetryCount+1 < retryMax
}
