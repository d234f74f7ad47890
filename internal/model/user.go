package model

import "time"

// PendingFlow tags a multi-step conversation the user is in the middle of.
// The zero value means the session is idle.
type PendingFlow string

const (
	FlowNone      PendingFlow = ""
	FlowBugReport PendingFlow = "bug_report"
	FlowFeedback  PendingFlow = "feedback"
)

// User is the per-phone-number session record.
type User struct {
	ID                 uint        `gorm:"primaryKey" json:"id"`
	Phone              string      `gorm:"size:32;not null;uniqueIndex" json:"phone"`
	Name               string      `gorm:"size:128" json:"name"`
	SelectedDocumentID *uint       `gorm:"index" json:"selected_document_id"`
	PendingFlow        PendingFlow `gorm:"size:32;not null;default:''" json:"pending_flow"`
	PendingStep        int         `gorm:"not null;default:0" json:"pending_step"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

func (u *User) Idle() bool {
	return u.PendingFlow == FlowNone
}

func (u *User) IsSelected(documentID uint) bool {
	return u.SelectedDocumentID != nil && *u.SelectedDocumentID == documentID
}
