package repository

import (
	"context"
	"errors"
	"fmt"

	"friendlymail-backend/internal/assistant/domain"
	emaildomain "friendlymail-backend/internal/email/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type intentRepository struct {
	db *gorm.DB
}

// NewIntentRepository creates a new instance of intentRepository
func NewIntentRepository(db *gorm.DB) IntentRepository {
	return &intentRepository{db: db}
}

func (r *intentRepository) Create(ctx context.Context, intent *domain.EmailIntent) error {
	if intent.ID == "" {
		intent.ID = uuid.New().String()
	}
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(intent).Error
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: email %s", domain.ErrOutcomeExists, intent.EmailID)
	}
	return err
}

func (r *intentRepository) FindByEmailID(ctx context.Context, emailID string) (*domain.EmailIntent, error) {
	var intent domain.EmailIntent
	err := r.db.WithContext(ctx).Where("email_id = ?", emailID).First(&intent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *intentRepository) FindUnprocessed(ctx context.Context, userID string, limit int) ([]*emaildomain.Email, error) {
	var emails []*emaildomain.Email
	q := r.db.WithContext(ctx).
		Joins("JOIN email_accounts ON email_accounts.id = emails.account_id").
		Joins("LEFT JOIN email_intents ON email_intents.email_id = emails.id").
		Where("email_accounts.user_id = ? AND email_intents.id IS NULL", userID).
		Order("emails.created_at ASC, emails.received_at ASC, emails.id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&emails).Error
	return emails, err
}

func (r *intentRepository) CountByDecision(ctx context.Context, userID string) (map[domain.Decision]int64, error) {
	var rows []struct {
		Decision domain.Decision
		Count    int64
	}
	err := r.db.WithContext(ctx).Model(&domain.EmailIntent{}).
		Select("email_intents.ai_decision AS decision, COUNT(*) AS count").
		Joins("JOIN emails ON emails.id = email_intents.email_id").
		Joins("JOIN email_accounts ON email_accounts.id = emails.account_id").
		Where("email_accounts.user_id = ?", userID).
		Group("email_intents.ai_decision").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[domain.Decision]int64, len(rows))
	for _, row := range rows {
		counts[row.Decision] = row.Count
	}
	return counts, nil
}
