package app

import (
	"context"
	"fmt"
	"strings"

	"whatsapp-pdf-assistant/internal/ai"
)

const answerSystemPrompt = `You are a PDF assistant chatting with a user on WhatsApp. You help them understand a document they sent you.
Answer only from the document excerpts you are given. If the excerpts do not contain the answer, say that the document does not seem to cover it and suggest asking something else about the document. Never invent facts.
Keep answers short enough to read on a phone. Use plain text; *single asterisks* for emphasis are fine.`

// Completer is the subset of the model client used for chat completions.
type Completer interface {
	Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error)
}

// Synthesizer writes the final reply from retrieved chunks.
type Synthesizer interface {
	Answer(ctx context.Context, query string, chunks []ScoredChunk) (string, error)
}

type LLMSynthesizer struct {
	client Completer
	cfg    ai.ChatConfig
}

func NewLLMSynthesizer(client Completer, cfg ai.ChatConfig) *LLMSynthesizer {
	return &LLMSynthesizer{client: client, cfg: cfg}
}

func (s *LLMSynthesizer) Answer(ctx context.Context, query string, chunks []ScoredChunk) (string, error) {
	if len(chunks) == 0 {
		return "", ErrRetrievalEmpty
	}
	messages := []ai.ChatMessage{
		{Role: "system", Content: answerSystemPrompt},
		{Role: "user", Content: buildAnswerPrompt(query, chunks)},
	}
	answer, err := s.client.Complete(ctx, s.cfg, messages)
	if err != nil {
		return "", classifyExternal("complete answer", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("complete answer: %w: empty completion", ErrExternalService)
	}
	return answer, nil
}

func buildAnswerPrompt(query string, chunks []ScoredChunk) string {
	var b strings.Builder
	b.WriteString("Document excerpts:\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "\n[%d]\n%s\n", i+1, strings.TrimSpace(c.Chunk.Content))
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(strings.TrimSpace(query))
	b.WriteString("\n\nAnswer:")
	return b.String()
}
