package app

import (
	"context"

	"whatsapp-pdf-assistant/internal/model"
	"whatsapp-pdf-assistant/internal/repository"
)

// ConversationLog records inbound and outbound messages. Implementations may
// persist asynchronously.
type ConversationLog interface {
	Publish(ctx context.Context, msg model.Message) error
}

// DirectConversationLog writes entries straight to the database. It is used
// when no message broker is configured.
type DirectConversationLog struct {
	repo *repository.MessageRepository
}

func NewDirectConversationLog(repo *repository.MessageRepository) *DirectConversationLog {
	return &DirectConversationLog{repo: repo}
}

func (l *DirectConversationLog) Publish(ctx context.Context, msg model.Message) error {
	return l.repo.Create(ctx, &msg)
}
