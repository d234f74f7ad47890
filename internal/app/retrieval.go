package app

import (
	"context"
	"math"
	"sort"
	"strings"

	"whatsapp-pdf-assistant/internal/ai"
	"whatsapp-pdf-assistant/internal/model"
	"whatsapp-pdf-assistant/internal/repository"
)

const defaultTopK = 4

type ScoredChunk struct {
	Chunk model.Chunk
	Score float32
}

// Retriever ranks a document's chunks against a query, most relevant first.
type Retriever interface {
	Search(ctx context.Context, documentID uint, query string, topK int) ([]ScoredChunk, error)
}

// VectorRetriever scores chunks by cosine similarity of their embeddings.
type VectorRetriever struct {
	chunks   *repository.ChunkRepository
	embedder Embedder
	embCfg   ai.EmbeddingConfig
}

func NewVectorRetriever(chunks *repository.ChunkRepository, embedder Embedder, embCfg ai.EmbeddingConfig) *VectorRetriever {
	return &VectorRetriever{chunks: chunks, embedder: embedder, embCfg: embCfg}
}

// Search returns at most topK chunks with a positive score. An empty result
// is not an error.
func (r *VectorRetriever) Search(ctx context.Context, documentID uint, query string, topK int) ([]ScoredChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &ValidationError{Message: "Please type a question about your document."}
	}
	if topK <= 0 {
		topK = defaultTopK
	}

	all, err := r.chunks.ListByDocumentID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}

	queryVec, err := r.embedder.Embed(ctx, r.embCfg, query)
	if err != nil {
		return nil, classifyExternal("embed query", err)
	}

	scored := make([]ScoredChunk, 0, len(all))
	for i := range all {
		score := cosineSimilarity(queryVec, all[i].EmbeddingVector())
		if score <= 0 {
			continue
		}
		scored = append(scored, ScoredChunk{Chunk: all[i], Score: score})
	}
	return topKScored(scored, topK), nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// topKScored sorts by score descending; ties keep document order.
func topKScored(scored []ScoredChunk, k int) []ScoredChunk {
	if k <= 0 || len(scored) == 0 {
		return nil
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}
