package usecase

import (
	"context"
	"fmt"
	"strings"

	"friendlymail-backend/internal/assistant/domain"
	"friendlymail-backend/internal/assistant/repository"
)

type ruleUsecase struct {
	roles RoleUsecase
	rules repository.RuleRepository
}

// NewRuleUsecase creates a new instance of ruleUsecase
func NewRuleUsecase(roles RoleUsecase, rules repository.RuleRepository) RuleUsecase {
	return &ruleUsecase{roles: roles, rules: rules}
}

func validateRule(rule *domain.TemporalRule) error {
	rule.Name = strings.TrimSpace(rule.Name)
	if rule.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if rule.StartDate.IsZero() || rule.EndDate.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", domain.ErrValidation)
	}
	if rule.Status != "" && !rule.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrValidation, rule.Status)
	}
	return nil
}

// ruleOf loads ruleID and checks that it belongs to roleID.
func (u *ruleUsecase) ruleOf(ctx context.Context, roleID, ruleID string) (*domain.TemporalRule, error) {
	rule, err := u.rules.FindByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if rule == nil || rule.RoleID == nil || *rule.RoleID != roleID {
		return nil, domain.ErrNotFound
	}
	return rule, nil
}

func (u *ruleUsecase) ListRules(ctx context.Context, userID, roleID string) ([]*domain.TemporalRule, error) {
	role, err := u.roles.GetRole(ctx, userID, roleID)
	if err != nil {
		return nil, err
	}
	return u.rules.ListByScope(ctx, domain.ScopeFor(role))
}

func (u *ruleUsecase) CreateRule(ctx context.Context, userID, roleID string, rule *domain.TemporalRule) error {
	role, err := u.roles.GetRole(ctx, userID, roleID)
	if err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}
	rule.ID = ""
	rule.RoleID = &role.ID
	rule.ContextID = nil
	return u.rules.Create(ctx, rule)
}

func (u *ruleUsecase) UpdateRule(ctx context.Context, userID, roleID string, rule *domain.TemporalRule) (*domain.TemporalRule, error) {
	if _, err := u.roles.GetRole(ctx, userID, roleID); err != nil {
		return nil, err
	}
	existing, err := u.ruleOf(ctx, roleID, rule.ID)
	if err != nil {
		return nil, err
	}
	if err := validateRule(rule); err != nil {
		return nil, err
	}

	existing.Name = rule.Name
	existing.Description = rule.Description
	existing.StartDate = rule.StartDate
	existing.EndDate = rule.EndDate
	existing.Keywords = rule.Keywords
	existing.EmailFilters = rule.EmailFilters
	existing.ResponseTemplate = rule.ResponseTemplate
	existing.Status = rule.Status
	existing.Priority = rule.Priority
	if err := u.rules.Update(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (u *ruleUsecase) DeleteRule(ctx context.Context, userID, roleID, ruleID string) error {
	if _, err := u.roles.GetRole(ctx, userID, roleID); err != nil {
		return err
	}
	if _, err := u.ruleOf(ctx, roleID, ruleID); err != nil {
		return err
	}
	return u.rules.Delete(ctx, ruleID)
}
