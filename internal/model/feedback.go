package model

import "time"

type Feedback struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	UserName  string    `gorm:"size:128" json:"user_name"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

type BugReportStatus string

const (
	BugReportOpen       BugReportStatus = "open"
	BugReportInProgress BugReportStatus = "in_progress"
	BugReportResolved   BugReportStatus = "resolved"
)

func (s BugReportStatus) Valid() bool {
	switch s {
	case BugReportOpen, BugReportInProgress, BugReportResolved:
		return true
	}
	return false
}

type BugReport struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	UserID    uint            `gorm:"not null;index" json:"user_id"`
	UserName  string          `gorm:"size:128" json:"user_name"`
	Content   string          `gorm:"type:text;not null" json:"content"`
	Status    BugReportStatus `gorm:"size:16;not null;default:'open';index" json:"status"`
	CreatedAt time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
