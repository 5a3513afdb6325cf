package repository

import (
	"context"
	"errors"

	emaildomain "friendlymail-backend/internal/email/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type emailRepository struct {
	db *gorm.DB
}

// NewEmailRepository creates a new instance of emailRepository
func NewEmailRepository(db *gorm.DB) EmailRepository {
	return &emailRepository{db: db}
}

func (r *emailRepository) InsertIfAbsent(ctx context.Context, email *emaildomain.Email) (bool, error) {
	if email.ID == "" {
		email.ID = uuid.New().String()
	}
	// Atomic insert: INSERT ... ON CONFLICT (account_id, provider_id) DO NOTHING
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "provider_id"}},
		DoNothing: true,
	}).Create(email)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *emailRepository) FindByID(ctx context.Context, id string) (*emaildomain.Email, error) {
	var email emaildomain.Email
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &email, nil
}

func (r *emailRepository) CountByAccount(ctx context.Context, accountID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&emaildomain.Email{}).Where("account_id = ?", accountID).Count(&n).Error
	return n, err
}
