package app

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"whatsapp-pdf-assistant/internal/ai"
	"whatsapp-pdf-assistant/internal/config"
	"whatsapp-pdf-assistant/internal/model"
	"whatsapp-pdf-assistant/internal/platform/logger"
	"whatsapp-pdf-assistant/internal/repository"
	"whatsapp-pdf-assistant/internal/storage"
	"whatsapp-pdf-assistant/internal/testutil"
)

const testPhone = "whatsapp:+15550001"

// letterVector embeds text as letter frequencies, so texts sharing letters
// score positively and digit-only text scores zero.
func letterVector(text string) []float32 {
	v := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	return v
}

type fakeEmbedder struct {
	mu      sync.Mutex
	batches int
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ ai.EmbeddingConfig, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return letterVector(text), nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, _ ai.EmbeddingConfig, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batches++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = letterVector(t)
	}
	return out, nil
}

type fakeCompleter struct {
	mu     sync.Mutex
	answer string
	err    error
	last   []ai.ChatMessage
}

func (f *fakeCompleter) Complete(_ context.Context, _ ai.ChatConfig, messages []ai.ChatMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = messages
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type harness struct {
	t         *testing.T
	db        *gorm.DB
	assistant *Assistant
	users     *repository.UserRepository
	docs      *repository.DocumentRepository
	messages  *repository.MessageRepository
	pipeline  *DocumentPipeline
	embedder  *fakeEmbedder
	completer *fakeCompleter
	blobs     *storage.LocalStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	blobs, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		t:         t,
		db:        db,
		users:     repository.NewUserRepository(db),
		docs:      repository.NewDocumentRepository(db),
		messages:  repository.NewMessageRepository(db),
		embedder:  &fakeEmbedder{},
		completer: &fakeCompleter{answer: "It is the powerhouse of the cell."},
		blobs:     blobs,
	}
	log := logger.NewNop()
	h.pipeline = NewDocumentPipeline(h.docs, blobs, h.embedder, ai.EmbeddingConfig{}, PipelineOptions{
		ChunkSize:      200,
		ChunkOverlap:   40,
		EmbedBatchSize: 2,
	}, log)
	h.pipeline.Extract = func(b []byte) (string, error) { return string(b), nil }

	h.assistant = NewAssistant(AssistantDeps{
		Users:           h.users,
		Documents:       h.docs,
		Feedback:        repository.NewFeedbackRepository(db),
		Blobs:           blobs,
		Ingestor:        h.pipeline,
		Retriever:       NewVectorRetriever(repository.NewChunkRepository(db), h.embedder, ai.EmbeddingConfig{}),
		Answerer:        NewLLMSynthesizer(h.completer, ai.ChatConfig{}),
		Locker:          newMutexLocker(),
		ConversationLog: NewDirectConversationLog(h.messages),
		Logger:          log,
		Timeouts:        config.TimeoutConfig{},
	})
	return h
}

func (h *harness) send(text string) string {
	return h.assistant.HandleMessage(context.Background(), InboundMessage{
		UserID:    testPhone,
		UserName:  "Ana",
		MessageID: "wamid.test",
		Text:      text,
	})
}

func (h *harness) upload(filename, content string) string {
	return h.assistant.HandleMessage(context.Background(), InboundMessage{
		UserID:   testPhone,
		UserName: "Ana",
		Attachments: []Attachment{{
			Filename: filename,
			MimeType: "application/pdf",
			Download: func(context.Context) ([]byte, string, error) { return []byte(content), "", nil },
		}},
	})
}

func (h *harness) user() *model.User {
	h.t.Helper()
	u, err := h.users.GetByPhone(context.Background(), "15550001")
	require.NoError(h.t, err)
	require.NotNil(h.t, u)
	return u
}

func (h *harness) documents() []model.Document {
	h.t.Helper()
	u := h.user()
	docs, err := h.docs.ListByUserID(context.Background(), u.ID)
	require.NoError(h.t, err)
	return docs
}

// mutexLocker is a single global lock, enough to serialize one test user.
type mutexLocker struct{ mu sync.Mutex }

func newMutexLocker() *mutexLocker { return &mutexLocker{} }

func (l *mutexLocker) Lock(context.Context, string) (func(), error) {
	l.mu.Lock()
	return l.mu.Unlock, nil
}
