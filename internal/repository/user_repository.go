package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"whatsapp-pdf-assistant/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetOrCreateByPhone loads the session record for phone, creating it on first
// contact. A non-empty name refreshes the stored display name.
func (r *UserRepository) GetOrCreateByPhone(ctx context.Context, phone, name string) (*model.User, error) {
	user, err := r.GetByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = &model.User{Phone: phone, Name: name}
		if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
			// Another instance may have won the insert race.
			existing, getErr := r.GetByPhone(ctx, phone)
			if getErr != nil || existing == nil {
				return nil, fmt.Errorf("create user failed: %w", err)
			}
			return existing, nil
		}
		return user, nil
	}
	if name != "" && user.Name != name {
		if err := r.db.WithContext(ctx).Model(user).Update("name", name).Error; err != nil {
			return nil, fmt.Errorf("update user name failed: %w", err)
		}
		user.Name = name
	}
	return user, nil
}

func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("phone = ?", phone).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by phone failed: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by id failed: %w", err)
	}
	return &user, nil
}

// SaveSession persists the selection and pending-flow columns, including
// NULL selections.
func (r *UserRepository) SaveSession(ctx context.Context, user *model.User) error {
	err := r.db.WithContext(ctx).
		Model(user).
		Select("SelectedDocumentID", "PendingFlow", "PendingStep").
		Updates(user).Error
	if err != nil {
		return fmt.Errorf("save user session failed: %w", err)
	}
	return nil
}
