package model

import "time"

// ProcessedMessage records a provider message id that has already been handled,
// so webhook redeliveries are not answered twice.
type ProcessedMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Provider  string    `gorm:"size:16;not null;uniqueIndex:ux_provider_message,priority:1" json:"provider"`
	MessageID string    `gorm:"size:128;not null;uniqueIndex:ux_provider_message,priority:2" json:"message_id"`
	CreatedAt time.Time `json:"created_at"`
}

// AllModels lists every table for AutoMigrate.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Document{},
		&Chunk{},
		&Feedback{},
		&BugReport{},
		&ProcessedMessage{},
		&Message{},
	}
}
