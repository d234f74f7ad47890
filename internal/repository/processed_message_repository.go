package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"whatsapp-pdf-assistant/internal/model"
)

type ProcessedMessageRepository struct {
	db *gorm.DB
}

func NewProcessedMessageRepository(db *gorm.DB) *ProcessedMessageRepository {
	return &ProcessedMessageRepository{db: db}
}

// MarkProcessed records the provider message id. It reports false when the id
// was already recorded.
func (r *ProcessedMessageRepository) MarkProcessed(ctx context.Context, provider, messageID string) (bool, error) {
	rec := model.ProcessedMessage{Provider: provider, MessageID: messageID}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return false, fmt.Errorf("mark message processed failed: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
