package repository

import (
	"context"
	"time"

	"friendlymail-backend/internal/assistant/domain"
	emaildomain "friendlymail-backend/internal/email/domain"
)

// RoleRepository persists roles and owns the one-active-role invariant.
type RoleRepository interface {
	// Create stores role. An active role deactivates its siblings in the
	// same transaction.
	Create(ctx context.Context, role *domain.Role) error
	// Update writes the editable fields of role. Activation is not changed.
	Update(ctx context.Context, role *domain.Role) error
	FindByID(ctx context.Context, id string) (*domain.Role, error)
	FindActive(ctx context.Context, userID string) (*domain.Role, error)
	// ListByUser orders active first, then most recently updated.
	ListByUser(ctx context.Context, userID string) ([]*domain.Role, error)
	Activate(ctx context.Context, userID, roleID string) error
	// Delete refuses to remove the last role of a user. Deleting the active
	// role activates the most recently updated sibling.
	Delete(ctx context.Context, userID, roleID string) error
}

// ContextRepository reads the legacy single-persona configuration.
type ContextRepository interface {
	FindActive(ctx context.Context, userID string) (*domain.AIContext, error)
}

type RuleRepository interface {
	Create(ctx context.Context, rule *domain.TemporalRule) error
	Update(ctx context.Context, rule *domain.TemporalRule) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*domain.TemporalRule, error)
	ListByScope(ctx context.Context, scope domain.RuleScope) ([]*domain.TemporalRule, error)
	// FindEligible returns active rules whose window contains now, ordered
	// priority DESC then created_at DESC.
	FindEligible(ctx context.Context, scope domain.RuleScope, now time.Time) ([]*domain.TemporalRule, error)
}

type IntentRepository interface {
	// Create returns domain.ErrOutcomeExists when the email already has one.
	Create(ctx context.Context, intent *domain.EmailIntent) error
	FindByEmailID(ctx context.Context, emailID string) (*domain.EmailIntent, error)
	// FindUnprocessed returns the user's emails without an outcome in
	// discovery order.
	FindUnprocessed(ctx context.Context, userID string, limit int) ([]*emaildomain.Email, error)
	CountByDecision(ctx context.Context, userID string) (map[domain.Decision]int64, error)
}

type ResponseRepository interface {
	Create(ctx context.Context, response *domain.AIResponse) error
	// FindByID loads the response with its intent, email and account.
	FindByID(ctx context.Context, id string) (*domain.AIResponse, error)
	// Transition applies updates only while the stored status is one of
	// from. It reports whether a row changed.
	Transition(ctx context.Context, id string, from []domain.ResponseStatus, updates map[string]interface{}) (bool, error)
	ListByUser(ctx context.Context, userID string, status domain.ResponseStatus, limit, offset int) ([]*domain.AIResponse, int64, error)
	CountByStatus(ctx context.Context, userID string) (map[domain.ResponseStatus]int64, error)
}
