package usecase

import (
	"context"
	"strings"
	"time"

	"friendlymail-backend/internal/assistant/domain"
	"friendlymail-backend/internal/assistant/repository"
	emaildomain "friendlymail-backend/internal/email/domain"
)

type ruleMatcher struct {
	rules repository.RuleRepository
}

// NewRuleMatcher returns a first-match-wins matcher over eligible rules.
func NewRuleMatcher(rules repository.RuleRepository) RuleMatcher {
	return &ruleMatcher{rules: rules}
}

// Match returns the highest-priority eligible rule with a keyword in the
// subject or body, or nil.
func (m *ruleMatcher) Match(ctx context.Context, email *emaildomain.Email, role *domain.Role, now time.Time) (*domain.TemporalRule, error) {
	candidates, err := m.rules.FindEligible(ctx, domain.ScopeFor(role), now)
	if err != nil {
		return nil, err
	}
	content := strings.ToLower(email.Subject + " " + email.PlainText())
	for _, rule := range candidates {
		if rule.Eligible(now) && rule.Matches(content) {
			return rule, nil
		}
	}
	return nil, nil
}
