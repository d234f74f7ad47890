package model

import "time"

// Document is one uploaded PDF. It is visible only to its owner.
type Document struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;index:idx_documents_user_created,priority:1" json:"user_id"`
	User       *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Filename   string    `gorm:"size:256;not null" json:"filename"`
	StorageKey string    `gorm:"size:512" json:"-"`
	MediaID    string    `gorm:"size:128" json:"media_id,omitempty"`
	SizeBytes  int64     `json:"size_bytes"`
	ChunkCount int       `gorm:"not null;default:0" json:"chunk_count"`
	CreatedAt  time.Time `gorm:"index:idx_documents_user_created,priority:2" json:"created_at"`
}
