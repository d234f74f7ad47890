package app

import (
	"context"
	"fmt"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"whatsapp-pdf-assistant/internal/ai"
	"whatsapp-pdf-assistant/internal/model"
	"whatsapp-pdf-assistant/internal/pkg/pdfextract"
	"whatsapp-pdf-assistant/internal/platform/logger"
	"whatsapp-pdf-assistant/internal/repository"
	"whatsapp-pdf-assistant/internal/storage"
)

const (
	defaultEmbedBatchSize   = 16
	defaultEmbedConcurrency = 4
	defaultMaxPDFBytes      = 20 << 20
)

// Embedder is the subset of the model client used for vectors.
type Embedder interface {
	Embed(ctx context.Context, cfg ai.EmbeddingConfig, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, cfg ai.EmbeddingConfig, texts []string) ([][]float32, error)
}

type IngestInput struct {
	UserID      uint
	Filename    string
	MediaID     string
	ContentType string
	Data        []byte
}

// Ingestor turns raw PDF bytes into a stored, searchable document.
type Ingestor interface {
	Ingest(ctx context.Context, input IngestInput) (*model.Document, error)
}

type PipelineOptions struct {
	ChunkSize        int
	ChunkOverlap     int
	EmbedBatchSize   int
	EmbedConcurrency int
	MaxPDFBytes      int
	KeyPrefix        string
}

// DocumentPipeline extracts, chunks, embeds and stores uploaded PDFs.
type DocumentPipeline struct {
	docs     *repository.DocumentRepository
	blobs    storage.BlobStore
	embedder Embedder
	embCfg   ai.EmbeddingConfig
	chunker  *Chunker
	opts     PipelineOptions
	log      *logger.Logger

	// Extract is swappable for tests.
	Extract func([]byte) (string, error)
}

func NewDocumentPipeline(
	docs *repository.DocumentRepository,
	blobs storage.BlobStore,
	embedder Embedder,
	embCfg ai.EmbeddingConfig,
	opts PipelineOptions,
	log *logger.Logger,
) *DocumentPipeline {
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = defaultEmbedBatchSize
	}
	if opts.EmbedConcurrency <= 0 {
		opts.EmbedConcurrency = defaultEmbedConcurrency
	}
	if opts.MaxPDFBytes <= 0 {
		opts.MaxPDFBytes = defaultMaxPDFBytes
	}
	return &DocumentPipeline{
		docs:     docs,
		blobs:    blobs,
		embedder: embedder,
		embCfg:   embCfg,
		chunker:  NewChunker(opts.ChunkSize, opts.ChunkOverlap),
		opts:     opts,
		log:      log.With("component", "document_pipeline"),
		Extract:  pdfextract.ExtractBytes,
	}
}

func (p *DocumentPipeline) Ingest(ctx context.Context, input IngestInput) (*model.Document, error) {
	if input.UserID == 0 {
		return nil, fmt.Errorf("ingest: %w: missing user", ErrIngestion)
	}
	if len(input.Data) == 0 {
		return nil, fmt.Errorf("ingest: %w: empty file", ErrIngestion)
	}
	if len(input.Data) > p.opts.MaxPDFBytes {
		return nil, &ValidationError{Message: fmt.Sprintf("That PDF is too large. Please send a file smaller than %d MB.", p.opts.MaxPDFBytes>>20)}
	}
	filename := cleanFilename(input.Filename)

	text, err := p.Extract(input.Data)
	if err != nil {
		return nil, ingestionError("extract text", err)
	}
	pieces := p.chunker.Split(text)
	if len(pieces) == 0 {
		return nil, fmt.Errorf("chunk text: %w: no content", ErrIngestion)
	}

	vectors, err := p.embedAll(ctx, pieces)
	if err != nil {
		return nil, ingestionError("embed chunks", err)
	}

	chunks := make([]model.Chunk, len(pieces))
	for i := range pieces {
		chunks[i] = model.Chunk{Seq: i, Content: pieces[i]}
		chunks[i].SetEmbedding(vectors[i])
	}

	key := storage.NewKey(p.opts.KeyPrefix, input.UserID, filename)
	contentType := input.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	if err := p.blobs.Put(ctx, key, input.Data, contentType); err != nil {
		return nil, ingestionError("store blob", err)
	}

	doc := &model.Document{
		UserID:     input.UserID,
		Filename:   filename,
		StorageKey: key,
		MediaID:    input.MediaID,
		SizeBytes:  int64(len(input.Data)),
	}
	if err := p.docs.CreateWithChunks(ctx, doc, chunks); err != nil {
		if delErr := p.blobs.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			p.log.Warn("remove orphan blob failed", "key", key, "error", delErr)
		}
		return nil, ingestionError("save document", err)
	}

	p.log.Info("document ingested", "document_id", doc.ID, "user_id", doc.UserID, "chunks", len(chunks), "bytes", doc.SizeBytes)
	return doc, nil
}

// embedAll embeds pieces in batches, several batches in flight at once.
// Output order matches input order.
func (p *DocumentPipeline) embedAll(ctx context.Context, pieces []string) ([][]float32, error) {
	vectors := make([][]float32, len(pieces))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.EmbedConcurrency)

	for start := 0; start < len(pieces); start += p.opts.EmbedBatchSize {
		start := start
		end := start + p.opts.EmbedBatchSize
		if end > len(pieces) {
			end = len(pieces)
		}
		g.Go(func() error {
			batch, err := p.embedder.EmbedBatch(gctx, p.embCfg, pieces[start:end])
			if err != nil {
				return err
			}
			if len(batch) != end-start {
				return fmt.Errorf("embedding count mismatch: got %d want %d", len(batch), end-start)
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func cleanFilename(name string) string {
	name = strings.TrimSpace(path.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		return "document.pdf"
	}
	if len([]rune(name)) > 200 {
		name = string([]rune(name)[:200])
	}
	return name
}
