// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"
)

// GraphStore 图数据库端口，出站事件中继通过它维护文档-人物关系图
type GraphStore interface {
	// UpsertDocument 幂等写入文档节点
	UpsertDocument(ctx context.Context, documentID, title string) error

	// UpsertPerson 幂等写入人物节点
	UpsertPerson(ctx context.Context, personID, fullName, email string) error

	// LinkSent 建立发送人到文档的 SENT 边，valid_at 记录生效时间
	LinkSent(ctx context.Context, personID, documentID string, validAt time.Time) error

	// LinkReceived 建立收件人到文档的 RECEIVED 边
	LinkReceived(ctx context.Context, personID, documentID string, validAt time.Time) error

	// MergePersons 将 source 节点的有效边复制到 target，并使旧边失效
	MergePersons(ctx context.Context, sourceID, targetID string) error

	// DeleteEntity 删除节点及其关联边
	DeleteEntity(ctx context.Context, kind, id string) error

	// Ping 探活
	Ping(ctx context.Context) error
}
