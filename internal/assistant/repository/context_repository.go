package repository

import (
	"context"
	"errors"

	"friendlymail-backend/internal/assistant/domain"

	"gorm.io/gorm"
)

type contextRepository struct {
	db *gorm.DB
}

// NewContextRepository creates a new instance of contextRepository
func NewContextRepository(db *gorm.DB) ContextRepository {
	return &contextRepository{db: db}
}

func (r *contextRepository) FindActive(ctx context.Context, userID string) (*domain.AIContext, error) {
	var c domain.AIContext
	err := r.db.WithContext(ctx).Where("user_id = ? AND is_active = ?", userID, true).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
