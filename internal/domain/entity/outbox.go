// Package entity 定义领域实体
package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// OutboxEventType 出站事件类型
type OutboxEventType string

const (
	OutboxEventDocumentAdded OutboxEventType = "document_added"
	OutboxEventPersonMerged  OutboxEventType = "person_merged"
	OutboxEventEntityDeleted OutboxEventType = "entity_deleted"
)

// EventPayload 用于 GORM JSONB 序列化的事件负载
type EventPayload json.RawMessage

// Value 实现 driver.Valuer 接口
func (p EventPayload) Value() (driver.Value, error) {
	if len(p) == 0 {
		return nil, nil
	}
	return []byte(p), nil
}

// Scan 实现 sql.Scanner 接口
func (p *EventPayload) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*p = append((*p)[:0], v...)
		return nil
	case string:
		*p = EventPayload(v)
		return nil
	default:
		return fmt.Errorf("failed to scan event payload: unsupported type %T", value)
	}
}

// MarshalJSON 实现 json.Marshaler 接口
func (p EventPayload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return []byte(p), nil
}

// UnmarshalJSON 实现 json.Unmarshaler 接口
func (p *EventPayload) UnmarshalJSON(data []byte) error {
	*p = append((*p)[:0], data...)
	return nil
}

// PersonRef 事件负载内嵌的人物快照，不依赖主库行存活
type PersonRef struct {
	PersonID string `json:"person_id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// DocumentAddedPayload 文档新增事件负载，自包含快照
type DocumentAddedPayload struct {
	DocumentID string      `json:"document_id"`
	Title      string      `json:"title"`
	Sender     PersonRef   `json:"sender"`
	Recipients []PersonRef `json:"recipients,omitempty"`
	SentAt     time.Time   `json:"sent_at"`
}

// PersonMergedPayload 人物合并事件负载
type PersonMergedPayload struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
}

// EntityDeletedPayload 实体删除事件负载
type EntityDeletedPayload struct {
	EntityKind string `json:"entity_kind"` // document 或 person
	EntityID   string `json:"entity_id"`
}

// OutboxEvent 出站事件，ID 为自增序列，即创建顺序
type OutboxEvent struct {
	ID          int64           `json:"id" gorm:"primaryKey;autoIncrement"`
	EventType   OutboxEventType `json:"event_type" gorm:"type:varchar(50);not null"`
	Payload     EventPayload    `json:"payload" gorm:"type:jsonb;not null"`
	Attempts    int             `json:"attempts" gorm:"not null;default:0"`
	Failed      bool            `json:"failed" gorm:"not null;default:false;index"`
	Error       string          `json:"error,omitempty" gorm:"type:text"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty" gorm:"index"`
	CreatedAt   time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (OutboxEvent) TableName() string {
	return "outbox_events"
}

// NewOutboxEvent 创建出站事件，负载会被 JSON 序列化
func NewOutboxEvent(eventType OutboxEventType, payload any) (*OutboxEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal outbox payload: %w", err)
	}
	return &OutboxEvent{
		EventType: eventType,
		Payload:   EventPayload(raw),
		CreatedAt: time.Now(),
	}, nil
}

// DecodePayload 将负载解码到目标结构
func (e *OutboxEvent) DecodePayload(dst any) error {
	if err := json.Unmarshal([]byte(e.Payload), dst); err != nil {
		return fmt.Errorf("failed to decode outbox payload: %w", err)
	}
	return nil
}

// IsProcessed 是否已成功应用
func (e *OutboxEvent) IsProcessed() bool {
	return e.ProcessedAt != nil
}

// IsDeadLetter 是否超过最大尝试次数进入死信状态
func (e *OutboxEvent) IsDeadLetter() bool {
	return e.Failed
}
