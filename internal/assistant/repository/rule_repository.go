package repository

import (
	"context"
	"errors"
	"time"

	"friendlymail-backend/internal/assistant/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ruleRepository struct {
	db *gorm.DB
}

// NewRuleRepository creates a new instance of ruleRepository
func NewRuleRepository(db *gorm.DB) RuleRepository {
	return &ruleRepository{db: db}
}

func scoped(db *gorm.DB, scope domain.RuleScope) *gorm.DB {
	if scope.RoleID != "" {
		return db.Where("role_id = ?", scope.RoleID)
	}
	return db.Where("context_id = ?", scope.ContextID)
}

func (r *ruleRepository) Create(ctx context.Context, rule *domain.TemporalRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	rule.ApplyDefaults()
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *ruleRepository) Update(ctx context.Context, rule *domain.TemporalRule) error {
	rule.ApplyDefaults()
	return r.db.WithContext(ctx).Model(rule).
		Select("name", "description", "start_date", "end_date", "keywords", "email_filters",
			"response_template", "status", "priority", "updated_at").
		Updates(rule).Error
}

func (r *ruleRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.TemporalRule{}).Error
}

func (r *ruleRepository) FindByID(ctx context.Context, id string) (*domain.TemporalRule, error) {
	var rule domain.TemporalRule
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *ruleRepository) ListByScope(ctx context.Context, scope domain.RuleScope) ([]*domain.TemporalRule, error) {
	var rules []*domain.TemporalRule
	err := scoped(r.db.WithContext(ctx), scope).
		Order("priority DESC, created_at DESC").
		Find(&rules).Error
	return rules, err
}

func (r *ruleRepository) FindEligible(ctx context.Context, scope domain.RuleScope, now time.Time) ([]*domain.TemporalRule, error) {
	var rules []*domain.TemporalRule
	err := scoped(r.db.WithContext(ctx), scope).
		Where("status = ? AND start_date <= ? AND end_date >= ?", domain.RuleStatusActive, now, now).
		Order("priority DESC, created_at DESC").
		Find(&rules).Error
	return rules, err
}
