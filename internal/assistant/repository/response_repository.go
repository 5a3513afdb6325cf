package repository

import (
	"context"
	"errors"
	"fmt"

	"friendlymail-backend/internal/assistant/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type responseRepository struct {
	db *gorm.DB
}

// NewResponseRepository creates a new instance of responseRepository
func NewResponseRepository(db *gorm.DB) ResponseRepository {
	return &responseRepository{db: db}
}

func (r *responseRepository) Create(ctx context.Context, response *domain.AIResponse) error {
	if response.ID == "" {
		response.ID = uuid.New().String()
	}
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(response).Error
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: response for intent %s", domain.ErrIntegrity, response.EmailIntentID)
	}
	return err
}

func (r *responseRepository) FindByID(ctx context.Context, id string) (*domain.AIResponse, error) {
	var response domain.AIResponse
	err := r.db.WithContext(ctx).
		Preload("EmailIntent.Email.Account").
		Where("id = ?", id).
		First(&response).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &response, nil
}

func (r *responseRepository) Transition(ctx context.Context, id string, from []domain.ResponseStatus, updates map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.AIResponse{}).
		Where("id = ? AND status IN ?", id, from).
		UpdateColumns(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *responseRepository) ownedBy(userID string) *gorm.DB {
	return r.db.Model(&domain.AIResponse{}).
		Joins("JOIN email_intents ON email_intents.id = ai_responses.email_intent_id").
		Joins("JOIN emails ON emails.id = email_intents.email_id").
		Joins("JOIN email_accounts ON email_accounts.id = emails.account_id").
		Where("email_accounts.user_id = ?", userID)
}

func (r *responseRepository) ListByUser(ctx context.Context, userID string, status domain.ResponseStatus, limit, offset int) ([]*domain.AIResponse, int64, error) {
	q := r.ownedBy(userID).WithContext(ctx)
	if status != "" {
		q = q.Where("ai_responses.status = ?", status)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var responses []*domain.AIResponse
	q = q.Preload("EmailIntent.Email").Order("ai_responses.generated_at DESC, ai_responses.id ASC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	if err := q.Find(&responses).Error; err != nil {
		return nil, 0, err
	}
	return responses, total, nil
}

func (r *responseRepository) CountByStatus(ctx context.Context, userID string) (map[domain.ResponseStatus]int64, error) {
	var rows []struct {
		Status domain.ResponseStatus
		Count  int64
	}
	err := r.ownedBy(userID).WithContext(ctx).
		Select("ai_responses.status AS status, COUNT(*) AS count").
		Group("ai_responses.status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[domain.ResponseStatus]int64, len(domain.ResponseStatuses))
	for _, s := range domain.ResponseStatuses {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
