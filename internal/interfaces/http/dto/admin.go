// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"encoding/json"
	"time"

	"archive-search-api/internal/domain/entity"
)

// PipelineStatsResponse 嵌入流水线与出站事件积压统计
type PipelineStatsResponse struct {
	ChunkStates   map[string]int64 `json:"chunk_states"`
	OutboxBacklog int64            `json:"outbox_backlog"`
}

// ToPipelineStatsResponse 汇总流水线状态统计
func ToPipelineStatsResponse(states map[entity.EmbeddingState]int64, backlog int64) *PipelineStatsResponse {
	out := make(map[string]int64, len(states))
	for state, count := range states {
		out[string(state)] = count
	}
	return &PipelineStatsResponse{
		ChunkStates:   out,
		OutboxBacklog: backlog,
	}
}

// FailedChunkResponse 嵌入失败分块
type FailedChunkResponse struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	SeqNum     int       `json:"seq_num"`
	RetryCount int       `json:"retry_count"`
	LastError  string    `json:"last_error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ToFailedChunkResponses 批量转换失败分块
func ToFailedChunkResponses(chunks []*entity.Chunk) []*FailedChunkResponse {
	out := make([]*FailedChunkResponse, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, &FailedChunkResponse{
			ID:         c.ID,
			DocumentID: c.DocumentID,
			SeqNum:     c.SeqNum,
			RetryCount: c.RetryCount,
			LastError:  c.LastError,
			UpdatedAt:  c.UpdatedAt,
		})
	}
	return out
}

// ResetFailedRequest 失败分块重置请求，documentID 为空则重置全部
type ResetFailedRequest struct {
	DocumentID string `json:"document_id,omitempty"`
}

// ResetFailedResponse 失败分块重置结果
type ResetFailedResponse struct {
	ResetCount int64 `json:"reset_count"`
}

// DeadLetterResponse 死信事件
type DeadLetterResponse struct {
	ID        int64           `json:"id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ToDeadLetterResponses 批量转换死信事件
func ToDeadLetterResponses(events []*entity.OutboxEvent) []*DeadLetterResponse {
	out := make([]*DeadLetterResponse, 0, len(events))
	for _, e := range events {
		out = append(out, &DeadLetterResponse{
			ID:        e.ID,
			EventType: string(e.EventType),
			Payload:   json.RawMessage(e.Payload),
			Attempts:  e.Attempts,
			Error:     e.Error,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}
