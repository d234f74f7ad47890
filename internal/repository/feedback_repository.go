package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"whatsapp-pdf-assistant/internal/model"
)

type FeedbackRepository struct {
	db *gorm.DB
}

func NewFeedbackRepository(db *gorm.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// SubmitBugReport stores the report and ends the user's pending flow in the
// same transaction.
func (r *FeedbackRepository) SubmitBugReport(ctx context.Context, report *model.BugReport) error {
	if report.Status == "" {
		report.Status = model.BugReportOpen
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(report).Error; err != nil {
			return fmt.Errorf("create bug report failed: %w", err)
		}
		return clearPendingFlow(tx, report.UserID)
	})
}

// SubmitFeedback stores the feedback and ends the user's pending flow in the
// same transaction.
func (r *FeedbackRepository) SubmitFeedback(ctx context.Context, feedback *model.Feedback) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(feedback).Error; err != nil {
			return fmt.Errorf("create feedback failed: %w", err)
		}
		return clearPendingFlow(tx, feedback.UserID)
	})
}

func clearPendingFlow(tx *gorm.DB, userID uint) error {
	err := tx.Model(&model.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"pending_flow": model.FlowNone,
		"pending_step": 0,
	}).Error
	if err != nil {
		return fmt.Errorf("clear pending flow failed: %w", err)
	}
	return nil
}

func (r *FeedbackRepository) ListFeedback(ctx context.Context, limit, offset int) ([]model.Feedback, error) {
	var list []model.Feedback
	if err := paginate(r.db.WithContext(ctx), limit, offset).
		Order("created_at DESC").Order("id DESC").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list feedback failed: %w", err)
	}
	return list, nil
}

// ListBugReports returns reports newest first, optionally filtered by status.
func (r *FeedbackRepository) ListBugReports(ctx context.Context, status model.BugReportStatus, limit, offset int) ([]model.BugReport, error) {
	q := r.db.WithContext(ctx)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var list []model.BugReport
	if err := paginate(q, limit, offset).
		Order("created_at DESC").Order("id DESC").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list bug reports failed: %w", err)
	}
	return list, nil
}

func (r *FeedbackRepository) GetBugReport(ctx context.Context, id uint) (*model.BugReport, error) {
	var report model.BugReport
	if err := r.db.WithContext(ctx).First(&report, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get bug report failed: %w", err)
	}
	return &report, nil
}

// UpdateBugReportStatus returns nil when the report does not exist.
func (r *FeedbackRepository) UpdateBugReportStatus(ctx context.Context, id uint, status model.BugReportStatus) (*model.BugReport, error) {
	report, err := r.GetBugReport(ctx, id)
	if err != nil || report == nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(report).Update("status", status).Error; err != nil {
		return nil, fmt.Errorf("update bug report status failed: %w", err)
	}
	report.Status = status
	return report, nil
}

func paginate(q *gorm.DB, limit, offset int) *gorm.DB {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return q.Limit(limit).Offset(offset)
}
