package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archive-search-api/internal/config"
	"archive-search-api/internal/domain/entity"
	"archive-search-api/internal/domain/repository"
)

type fakeDocRepo struct {
	repository.DocumentRepository
	byHash  map[string]*entity.Document
	created []*entity.Document
	deleted []string
}

func (f *fakeDocRepo) GetByHash(_ context.Context, hash string) (*entity.Document, error) {
	return f.byHash[hash], nil
}

func (f *fakeDocRepo) Create(_ context.Context, doc *entity.Document) error {
	doc.ID = "doc-new"
	f.created = append(f.created, doc)
	return nil
}

func (f *fakeDocRepo) SoftDelete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeChunkRepo struct {
	repository.ChunkRepository
	created    []*entity.Chunk
	deletedDoc []string
}

func (f *fakeChunkRepo) CreateBatch(_ context.Context, chunks []*entity.Chunk) error {
	f.created = append(f.created, chunks...)
	return nil
}

func (f *fakeChunkRepo) DeleteByDocument(_ context.Context, documentID string) error {
	f.deletedDoc = append(f.deletedDoc, documentID)
	return nil
}

type fakePersonRepo struct {
	repository.PersonRepository
	byEmail map[string]*entity.Person
	byID    map[string]*entity.Person
	created []*entity.Person
	merged  [][2]string
}

func (f *fakePersonRepo) GetByEmail(_ context.Context, email string) (*entity.Person, error) {
	return f.byEmail[email], nil
}

func (f *fakePersonRepo) Create(_ context.Context, p *entity.Person) error {
	p.ID = "person-" + p.Email
	f.created = append(f.created, p)
	return nil
}

func (f *fakePersonRepo) MarkMerged(_ context.Context, sourceID, targetID string) error {
	f.merged = append(f.merged, [2]string{sourceID, targetID})
	return nil
}

func (f *fakePersonRepo) ResolveCanonical(_ context.Context, id string) (*entity.Person, error) {
	p := f.byID[id]
	for p != nil && p.IsMerged() {
		p = f.byID[*p.MergedInto]
	}
	return p, nil
}

type fakeOutboxRepo struct {
	repository.OutboxRepository
	events []*entity.OutboxEvent
}

func (f *fakeOutboxRepo) Enqueue(_ context.Context, event *entity.OutboxEvent) error {
	f.events = append(f.events, event)
	return nil
}

type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestService(docs *fakeDocRepo, chunks *fakeChunkRepo, persons *fakePersonRepo, outbox *fakeOutboxRepo) *Service {
	return NewService(docs, chunks, persons, outbox, passthroughTx{}, config.IngestConfig{
		ChunkRunes:   100,
		ChunkOverlap: 10,
	})
}

func TestIngestDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("writes document chunks persons and event", func(t *testing.T) {
		docs := &fakeDocRepo{byHash: map[string]*entity.Document{}}
		chunks := &fakeChunkRepo{}
		persons := &fakePersonRepo{byEmail: map[string]*entity.Person{}}
		outbox := &fakeOutboxRepo{}
		svc := newTestService(docs, chunks, persons, outbox)

		res, err := svc.IngestDocument(ctx, &Request{
			Title:      "quarterly report",
			Content:    strings.Repeat("numbers and words ", 20),
			Sender:     PersonInput{FullName: "Ann", Email: "ann@example.com"},
			Recipients: []PersonInput{{FullName: "Bob", Email: "bob@example.com"}},
			SentAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		assert.False(t, res.Deduplicated)
		assert.Equal(t, "doc-new", res.Document.ID)
		assert.Equal(t, len(chunks.created), res.ChunkCount)
		require.NotEmpty(t, chunks.created)
		assert.Len(t, persons.created, 2)

		require.Len(t, outbox.events, 1)
		assert.Equal(t, entity.OutboxEventDocumentAdded, outbox.events[0].EventType)
		var payload entity.DocumentAddedPayload
		require.NoError(t, outbox.events[0].DecodePayload(&payload))
		assert.Equal(t, "doc-new", payload.DocumentID)
		assert.Equal(t, "ann@example.com", payload.Sender.Email)
		require.Len(t, payload.Recipients, 1)
		assert.Equal(t, "bob@example.com", payload.Recipients[0].Email)
	})

	t.Run("duplicate content is deduplicated without new writes", func(t *testing.T) {
		content := "same content"
		existing := &entity.Document{ID: "doc-old", ContentHash: entity.HashContent(content)}
		docs := &fakeDocRepo{byHash: map[string]*entity.Document{existing.ContentHash: existing}}
		chunks := &fakeChunkRepo{}
		persons := &fakePersonRepo{byEmail: map[string]*entity.Person{}}
		outbox := &fakeOutboxRepo{}
		svc := newTestService(docs, chunks, persons, outbox)

		res, err := svc.IngestDocument(ctx, &Request{
			Content: content,
			Sender:  PersonInput{Email: "ann@example.com"},
		})
		require.NoError(t, err)
		assert.True(t, res.Deduplicated)
		assert.Equal(t, "doc-old", res.Document.ID)
		assert.Empty(t, docs.created)
		assert.Empty(t, chunks.created)
		assert.Empty(t, outbox.events)
	})

	t.Run("empty content is rejected", func(t *testing.T) {
		svc := newTestService(
			&fakeDocRepo{byHash: map[string]*entity.Document{}},
			&fakeChunkRepo{},
			&fakePersonRepo{byEmail: map[string]*entity.Person{}},
			&fakeOutboxRepo{},
		)
		_, err := svc.IngestDocument(ctx, &Request{Sender: PersonInput{Email: "a@b.c"}})
		assert.Error(t, err)
	})

	t.Run("merged sender resolves to canonical person", func(t *testing.T) {
		target := &entity.Person{ID: "p-target", Email: "target@example.com"}
		mergedInto := target.ID
		source := &entity.Person{ID: "p-source", Email: "ann@example.com", MergedInto: &mergedInto}
		persons := &fakePersonRepo{
			byEmail: map[string]*entity.Person{source.Email: source},
			byID:    map[string]*entity.Person{source.ID: source, target.ID: target},
		}
		outbox := &fakeOutboxRepo{}
		svc := newTestService(&fakeDocRepo{byHash: map[string]*entity.Document{}}, &fakeChunkRepo{}, persons, outbox)

		_, err := svc.IngestDocument(ctx, &Request{
			Content: "body text",
			Sender:  PersonInput{Email: "Ann@Example.com"},
		})
		require.NoError(t, err)
		require.Len(t, outbox.events, 1)
		var payload entity.DocumentAddedPayload
		require.NoError(t, outbox.events[0].DecodePayload(&payload))
		assert.Equal(t, "p-target", payload.Sender.PersonID)
	})
}

func TestDeleteDocument(t *testing.T) {
	docs := &fakeDocRepo{byHash: map[string]*entity.Document{}}
	chunks := &fakeChunkRepo{}
	outbox := &fakeOutboxRepo{}
	svc := newTestService(docs, chunks, &fakePersonRepo{byEmail: map[string]*entity.Person{}}, outbox)

	require.NoError(t, svc.DeleteDocument(context.Background(), "doc-1"))
	assert.Equal(t, []string{"doc-1"}, docs.deleted)
	assert.Equal(t, []string{"doc-1"}, chunks.deletedDoc)

	require.Len(t, outbox.events, 1)
	assert.Equal(t, entity.OutboxEventEntityDeleted, outbox.events[0].EventType)
	var payload entity.EntityDeletedPayload
	require.NoError(t, outbox.events[0].DecodePayload(&payload))
	assert.Equal(t, "document", payload.EntityKind)
	assert.Equal(t, "doc-1", payload.EntityID)
}

func TestMergePersons(t *testing.T) {
	persons := &fakePersonRepo{byEmail: map[string]*entity.Person{}}
	outbox := &fakeOutboxRepo{}
	svc := newTestService(&fakeDocRepo{byHash: map[string]*entity.Document{}}, &fakeChunkRepo{}, persons, outbox)

	t.Run("self merge rejected", func(t *testing.T) {
		assert.Error(t, svc.MergePersons(context.Background(), "p-1", "p-1"))
	})

	t.Run("marks merged and emits event", func(t *testing.T) {
		require.NoError(t, svc.MergePersons(context.Background(), "p-1", "p-2"))
		assert.Equal(t, [][2]string{{"p-1", "p-2"}}, persons.merged)
		require.Len(t, outbox.events, 1)
		assert.Equal(t, entity.OutboxEventPersonMerged, outbox.events[0].EventType)
	})
}
