package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"whatsapp-pdf-assistant/internal/model"
)

const chunkInsertBatch = 100

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// CreateWithChunks inserts the document and all of its chunks atomically and
// selects it for the owner.
func (r *DocumentRepository) CreateWithChunks(ctx context.Context, doc *model.Document, chunks []model.Chunk) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc.ChunkCount = len(chunks)
		if err := tx.Create(doc).Error; err != nil {
			return fmt.Errorf("create document failed: %w", err)
		}
		for i := range chunks {
			chunks[i].DocumentID = doc.ID
		}
		if len(chunks) > 0 {
			if err := tx.CreateInBatches(&chunks, chunkInsertBatch).Error; err != nil {
				return fmt.Errorf("create document chunks failed: %w", err)
			}
		}
		if err := tx.Model(&model.User{}).Where("id = ?", doc.UserID).
			Update("selected_document_id", doc.ID).Error; err != nil {
			return fmt.Errorf("select new document failed: %w", err)
		}
		return nil
	})
}

// ListByUserID returns the user's documents in upload order. This order
// defines the numbering used by /list, /select and /delete.
func (r *DocumentRepository) ListByUserID(ctx context.Context, userID uint) ([]model.Document, error) {
	var list []model.Document
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

func (r *DocumentRepository) GetLatestByUserID(ctx context.Context, userID uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) GetByIDAndUserID(ctx context.Context, id, userID uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

// DeleteByIDAndUserID removes the document, its chunks and any selection that
// points at it in one transaction. It returns nil when nothing was deleted.
func (r *DocumentRepository) DeleteByIDAndUserID(ctx context.Context, id, userID uint) (*model.Document, error) {
	var deleted *model.Document
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc model.Document
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&doc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("get document failed: %w", err)
		}
		if err := deleteDocuments(tx, userID, []uint{doc.ID}); err != nil {
			return err
		}
		deleted = &doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// DeleteAllByUserID removes every document the user owns and clears the
// selection. It returns the removed rows, possibly none.
func (r *DocumentRepository) DeleteAllByUserID(ctx context.Context, userID uint) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Order("id ASC").Find(&docs).Error; err != nil {
			return fmt.Errorf("list documents failed: %w", err)
		}
		ids := make([]uint, len(docs))
		for i := range docs {
			ids[i] = docs[i].ID
		}
		if err := deleteDocuments(tx, userID, ids); err != nil {
			return err
		}
		if err := tx.Model(&model.User{}).Where("id = ?", userID).
			Update("selected_document_id", nil).Error; err != nil {
			return fmt.Errorf("clear selection failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func deleteDocuments(tx *gorm.DB, userID uint, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := tx.Where("document_id IN ?", ids).Delete(&model.Chunk{}).Error; err != nil {
		return fmt.Errorf("delete chunks failed: %w", err)
	}
	if err := tx.Where("id IN ? AND user_id = ?", ids, userID).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete documents failed: %w", err)
	}
	if err := tx.Model(&model.User{}).
		Where("id = ? AND selected_document_id IN ?", userID, ids).
		Update("selected_document_id", nil).Error; err != nil {
		return fmt.Errorf("clear selection failed: %w", err)
	}
	return nil
}
