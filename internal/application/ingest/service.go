// Package ingest 提供文档写入口，在单事务内落库文档、分块与出站事件
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"archive-search-api/internal/config"
	"archive-search-api/internal/domain/entity"
	"archive-search-api/internal/domain/repository"
	"archive-search-api/pkg/logger"
)

var tracer = otel.Tracer("ingest")

// PersonInput 写入请求中的人物描述
type PersonInput struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// Request 文档写入请求
type Request struct {
	Title      string        `json:"title"`
	Source     string        `json:"source"`
	Content    string        `json:"content"`
	Sender     PersonInput   `json:"sender"`
	Recipients []PersonInput `json:"recipients"`
	SentAt     time.Time     `json:"sent_at"`
}

// Result 写入结果
type Result struct {
	Document     *entity.Document `json:"document"`
	ChunkCount   int              `json:"chunk_count"`
	Deduplicated bool             `json:"deduplicated"`
}

// Service 聚合文档、分块、人物与出站事件的事务性写入
type Service struct {
	documents repository.DocumentRepository
	chunks    repository.ChunkRepository
	persons   repository.PersonRepository
	outbox    repository.OutboxRepository
	tx        repository.Transactor
	cfg       config.IngestConfig
	now       func() time.Time
}

// NewService 创建写入服务
func NewService(
	documents repository.DocumentRepository,
	chunks repository.ChunkRepository,
	persons repository.PersonRepository,
	outbox repository.OutboxRepository,
	tx repository.Transactor,
	cfg config.IngestConfig,
) *Service {
	return &Service{
		documents: documents,
		chunks:    chunks,
		persons:   persons,
		outbox:    outbox,
		tx:        tx,
		cfg:       cfg,
		now:       time.Now,
	}
}

// IngestDocument 写入一篇文档：哈希去重、切分分块、落人物、追加 document_added 事件。
// 所有写入处于同一事务，要么全部可见要么全部回滚。
func (s *Service) IngestDocument(ctx context.Context, req *Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "ingest.Service.IngestDocument")
	defer span.End()

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, fmt.Errorf("document content is empty")
	}
	if strings.TrimSpace(req.Sender.Email) == "" {
		return nil, fmt.Errorf("sender email is required")
	}

	// 去重只看内容哈希，同一封文档重复投递直接返回已有记录
	hash := entity.HashContent(content)
	existing, err := s.documents.GetByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to check document hash: %w", err)
	}
	if existing != nil {
		span.SetAttributes(attribute.Bool("ingest.deduplicated", true))
		return &Result{Document: existing, Deduplicated: true}, nil
	}

	doc := entity.NewDocument(strings.TrimSpace(req.Title), strings.TrimSpace(req.Source), content)
	var chunkCount int

	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.documents.Create(txCtx, doc); err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}

		chunks := buildChunks(doc.ID, content, s.cfg.ChunkRunes, s.cfg.ChunkOverlap)
		if err := s.chunks.CreateBatch(txCtx, chunks); err != nil {
			return fmt.Errorf("failed to create chunks: %w", err)
		}
		chunkCount = len(chunks)

		sender, err := s.upsertPerson(txCtx, req.Sender)
		if err != nil {
			return err
		}
		recipients := make([]entity.PersonRef, 0, len(req.Recipients))
		for _, in := range req.Recipients {
			if strings.TrimSpace(in.Email) == "" {
				continue
			}
			p, err := s.upsertPerson(txCtx, in)
			if err != nil {
				return err
			}
			recipients = append(recipients, personRef(p))
		}

		sentAt := req.SentAt
		if sentAt.IsZero() {
			sentAt = s.now()
		}
		event, err := entity.NewOutboxEvent(entity.OutboxEventDocumentAdded, entity.DocumentAddedPayload{
			DocumentID: doc.ID,
			Title:      doc.Title,
			Sender:     personRef(sender),
			Recipients: recipients,
			SentAt:     sentAt,
		})
		if err != nil {
			return err
		}
		return s.outbox.Enqueue(txCtx, event)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "document ingested",
		"document_id", doc.ID,
		"chunk_count", chunkCount,
	)
	span.SetAttributes(
		attribute.String("ingest.document_id", doc.ID),
		attribute.Int("ingest.chunk_count", chunkCount),
	)
	return &Result{Document: doc, ChunkCount: chunkCount}, nil
}

// DeleteDocument 软删除文档并追加 entity_deleted 事件，分块随文档级联删除
func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	ctx, span := tracer.Start(ctx, "ingest.Service.DeleteDocument")
	defer span.End()

	return s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.documents.SoftDelete(txCtx, documentID); err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		if err := s.chunks.DeleteByDocument(txCtx, documentID); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
		event, err := entity.NewOutboxEvent(entity.OutboxEventEntityDeleted, entity.EntityDeletedPayload{
			EntityKind: "document",
			EntityID:   documentID,
		})
		if err != nil {
			return err
		}
		return s.outbox.Enqueue(txCtx, event)
	})
}

// MergePersons 将 source 人物合并进 target 并追加 person_merged 事件
func (s *Service) MergePersons(ctx context.Context, sourceID, targetID string) error {
	ctx, span := tracer.Start(ctx, "ingest.Service.MergePersons")
	defer span.End()

	if sourceID == targetID {
		return fmt.Errorf("cannot merge a person into itself")
	}

	return s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.persons.MarkMerged(txCtx, sourceID, targetID); err != nil {
			return fmt.Errorf("failed to mark person merged: %w", err)
		}
		event, err := entity.NewOutboxEvent(entity.OutboxEventPersonMerged, entity.PersonMergedPayload{
			SourceID: sourceID,
			TargetID: targetID,
		})
		if err != nil {
			return err
		}
		return s.outbox.Enqueue(txCtx, event)
	})
}

// upsertPerson 按邮箱查找人物，不存在则创建，已合并则解析到规范人物
func (s *Service) upsertPerson(ctx context.Context, in PersonInput) (*entity.Person, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	existing, err := s.persons.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up person: %w", err)
	}
	if existing != nil {
		if existing.IsMerged() {
			canonical, err := s.persons.ResolveCanonical(ctx, existing.ID)
			if err != nil {
				return nil, err
			}
			return canonical, nil
		}
		return existing, nil
	}

	p := entity.NewPerson(strings.TrimSpace(in.FullName), email)
	if err := s.persons.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create person: %w", err)
	}
	return p, nil
}

func personRef(p *entity.Person) entity.PersonRef {
	return entity.PersonRef{PersonID: p.ID, FullName: p.FullName, Email: p.Email}
}
