package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-pdf-assistant/internal/model"
	"whatsapp-pdf-assistant/internal/testutil"
)

func seedDocument(t *testing.T, repo *DocumentRepository, userID uint, name string, chunks ...string) *model.Document {
	t.Helper()
	doc := &model.Document{UserID: userID, Filename: name}
	rows := make([]model.Chunk, len(chunks))
	for i, c := range chunks {
		rows[i] = model.Chunk{Seq: i, Content: c}
		rows[i].SetEmbedding([]float32{float32(i), 1})
	}
	require.NoError(t, repo.CreateWithChunks(context.Background(), doc, rows))
	return doc
}

func TestDocumentRepositoryListIsUploadOrdered(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	users := NewUserRepository(db)
	docs := NewDocumentRepository(db)

	u, err := users.GetOrCreateByPhone(ctx, "15550001", "Ana")
	require.NoError(t, err)
	other, err := users.GetOrCreateByPhone(ctx, "15550002", "Bo")
	require.NoError(t, err)

	seedDocument(t, docs, u.ID, "a.pdf", "x")
	seedDocument(t, docs, other.ID, "foreign.pdf", "x")
	seedDocument(t, docs, u.ID, "b.pdf", "y")
	seedDocument(t, docs, u.ID, "c.pdf", "z")

	list, err := docs.ListByUserID(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "a.pdf", list[0].Filename)
	assert.Equal(t, "b.pdf", list[1].Filename)
	assert.Equal(t, "c.pdf", list[2].Filename)

	latest, err := docs.GetLatestByUserID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "c.pdf", latest.Filename)

	foreign, err := docs.GetByIDAndUserID(ctx, list[0].ID, other.ID)
	require.NoError(t, err)
	assert.Nil(t, foreign)
}

func TestCreateWithChunksSelectsDocument(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	users := NewUserRepository(db)
	docs := NewDocumentRepository(db)
	chunks := NewChunkRepository(db)

	u, err := users.GetOrCreateByPhone(ctx, "15550001", "")
	require.NoError(t, err)
	doc := seedDocument(t, docs, u.ID, "doc.pdf", "one", "two", "three")
	assert.Equal(t, 3, doc.ChunkCount)

	reloaded, err := users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.SelectedDocumentID)
	assert.Equal(t, doc.ID, *reloaded.SelectedDocumentID)

	rows, err := chunks.ListByDocumentID(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "one", rows[0].Content)
	assert.Equal(t, []float32{0, 1}, rows[0].EmbeddingVector())
}

func TestDeleteCascadesAndClearsSelection(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	users := NewUserRepository(db)
	docs := NewDocumentRepository(db)
	chunks := NewChunkRepository(db)

	u, err := users.GetOrCreateByPhone(ctx, "15550001", "")
	require.NoError(t, err)
	first := seedDocument(t, docs, u.ID, "a.pdf", "x", "y")
	second := seedDocument(t, docs, u.ID, "b.pdf", "z")

	// second is selected; deleting first keeps the selection.
	deleted, err := docs.DeleteByIDAndUserID(ctx, first.ID, u.ID)
	require.NoError(t, err)
	require.NotNil(t, deleted)
	n, err := chunks.CountByDocumentID(ctx, first.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	reloaded, err := users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.SelectedDocumentID)
	assert.Equal(t, second.ID, *reloaded.SelectedDocumentID)

	deleted, err = docs.DeleteByIDAndUserID(ctx, second.ID, u.ID)
	require.NoError(t, err)
	require.NotNil(t, deleted)
	reloaded, err = users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.SelectedDocumentID)

	deleted, err = docs.DeleteByIDAndUserID(ctx, second.ID, u.ID)
	require.NoError(t, err)
	assert.Nil(t, deleted)
}

func TestDeleteAllIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	users := NewUserRepository(db)
	docs := NewDocumentRepository(db)

	u, err := users.GetOrCreateByPhone(ctx, "15550001", "")
	require.NoError(t, err)
	seedDocument(t, docs, u.ID, "a.pdf", "x")
	seedDocument(t, docs, u.ID, "b.pdf", "y")

	removed, err := docs.DeleteAllByUserID(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	removed, err = docs.DeleteAllByUserID(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, removed)

	reloaded, err := users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.SelectedDocumentID)
}
