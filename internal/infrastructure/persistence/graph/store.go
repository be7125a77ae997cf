// Package graph 提供 FalkorDB 图数据库访问层实现
package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"archive-search-api/internal/domain/repository"
	"archive-search-api/pkg/metrics"
)

// Store 文档-人物关系图的 GraphStore 实现
type Store struct {
	client *Client
}

// NewStore 创建图存储
func NewStore(client *Client) *Store {
	return &Store{client: client}
}

var _ repository.GraphStore = (*Store)(nil)

// escape 转义 Cypher 字符串字面量
func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func (s *Store) run(ctx context.Context, operation, cypher string) error {
	err := s.client.Query(ctx, cypher)
	if err != nil {
		metrics.GraphQueryTotal.WithLabelValues(operation, "error").Inc()
		return err
	}
	metrics.GraphQueryTotal.WithLabelValues(operation, "ok").Inc()
	return nil
}

// UpsertDocument 幂等写入文档节点
func (s *Store) UpsertDocument(ctx context.Context, documentID, title string) error {
	ctx, span := tracer.Start(ctx, "graph.Store.UpsertDocument")
	defer span.End()

	cypher := fmt.Sprintf(
		`MERGE (d:Document {id: '%s'}) SET d.title = '%s'`,
		escape(documentID), escape(title),
	)
	return s.run(ctx, "upsert_document", cypher)
}

// UpsertPerson 幂等写入人物节点
func (s *Store) UpsertPerson(ctx context.Context, personID, fullName, email string) error {
	ctx, span := tracer.Start(ctx, "graph.Store.UpsertPerson")
	defer span.End()

	cypher := fmt.Sprintf(
		`MERGE (p:Person {id: '%s'}) SET p.name = '%s', p.email = '%s'`,
		escape(personID), escape(fullName), escape(email),
	)
	return s.run(ctx, "upsert_person", cypher)
}

// LinkSent 建立发送人到文档的 SENT 边，只在首次建边时写 valid_at
func (s *Store) LinkSent(ctx context.Context, personID, documentID string, validAt time.Time) error {
	ctx, span := tracer.Start(ctx, "graph.Store.LinkSent")
	defer span.End()

	return s.run(ctx, "link_sent", s.linkCypher("SENT", personID, documentID, validAt))
}

// LinkReceived 建立收件人到文档的 RECEIVED 边
func (s *Store) LinkReceived(ctx context.Context, personID, documentID string, validAt time.Time) error {
	ctx, span := tracer.Start(ctx, "graph.Store.LinkReceived")
	defer span.End()

	return s.run(ctx, "link_received", s.linkCypher("RECEIVED", personID, documentID, validAt))
}

func (s *Store) linkCypher(relType, personID, documentID string, validAt time.Time) string {
	return fmt.Sprintf(
		`MATCH (p:Person {id: '%s'}), (d:Document {id: '%s'})
		 MERGE (p)-[r:%s]->(d)
		 ON CREATE SET r.valid_at = %d`,
		escape(personID), escape(documentID), relType, validAt.UnixMilli(),
	)
}

// MergePersons 将 source 的有效边复制到 target，旧边标记 invalid_at 而不删除
func (s *Store) MergePersons(ctx context.Context, sourceID, targetID string) error {
	ctx, span := tracer.Start(ctx, "graph.Store.MergePersons")
	defer span.End()

	src, tgt := escape(sourceID), escape(targetID)

	// 1) target 节点必须存在
	if err := s.run(ctx, "merge_persons", fmt.Sprintf(
		`MERGE (t:Person {id: '%s'})`, tgt,
	)); err != nil {
		return err
	}

	// 2) 逐类型复制 source 的有效边到 target，保留原 valid_at
	for _, relType := range []string{"SENT", "RECEIVED"} {
		if err := s.run(ctx, "merge_persons", fmt.Sprintf(
			`MATCH (s:Person {id: '%s'})-[r:%s]->(d:Document)
			 WHERE r.invalid_at IS NULL
			 MATCH (t:Person {id: '%s'})
			 MERGE (t)-[r2:%s]->(d)
			 ON CREATE SET r2.valid_at = r.valid_at`,
			src, relType, tgt, relType,
		)); err != nil {
			return err
		}
	}

	// 3) 旧边失效并记录合并指向，历史只追加不删除
	return s.run(ctx, "merge_persons", fmt.Sprintf(
		`MATCH (s:Person {id: '%s'})
		 SET s.merged_into = '%s'
		 WITH s
		 OPTIONAL MATCH (s)-[r]->(:Document)
		 WHERE r.invalid_at IS NULL
		 SET r.invalid_at = timestamp()`,
		src, tgt,
	))
}

// DeleteEntity 删除节点及其关联边
func (s *Store) DeleteEntity(ctx context.Context, kind, id string) error {
	ctx, span := tracer.Start(ctx, "graph.Store.DeleteEntity")
	defer span.End()

	var label string
	switch kind {
	case "document":
		label = "Document"
	case "person":
		label = "Person"
	default:
		return fmt.Errorf("unknown graph entity kind: %s", kind)
	}

	cypher := fmt.Sprintf(
		`MATCH (n:%s {id: '%s'}) DETACH DELETE n`,
		label, escape(id),
	)
	return s.run(ctx, "delete_entity", cypher)
}

// Ping 探活
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}
