package usecase

import (
	"context"
	"time"

	"friendlymail-backend/internal/assistant/domain"
	emaildomain "friendlymail-backend/internal/email/domain"
)

// Classifier never fails: model or parse errors come back as an escalate
// classification.
type Classifier interface {
	Classify(ctx context.Context, email *emaildomain.Email, role *domain.Role) domain.Classification
}

// Draft is a generated reply before it is stored.
type Draft struct {
	Subject  string
	Body     string
	Fallback bool
}

// Generator never fails: errors produce the fallback reply.
type Generator interface {
	Generate(ctx context.Context, email *emaildomain.Email, role *domain.Role, rule *domain.TemporalRule) Draft
}

type RuleMatcher interface {
	Match(ctx context.Context, email *emaildomain.Email, role *domain.Role, now time.Time) (*domain.TemporalRule, error)
}

// AccountLookup resolves the mailbox an email belongs to.
type AccountLookup interface {
	GetAccount(ctx context.Context, id string) (*emaildomain.EmailAccount, error)
}

// MessageSender delivers a reply through the account's provider and returns
// the provider message id.
type MessageSender interface {
	Deliver(ctx context.Context, account *emaildomain.EmailAccount, msg emaildomain.OutgoingMessage) (string, error)
}

// EventKind is what a Notifier is told about.
type EventKind string

const (
	EventDraftPending EventKind = "draft_pending"
	EventEscalated    EventKind = "escalated"
	EventSendFailed   EventKind = "send_failed"
)

// Event describes something the owner may want to hear about.
type Event struct {
	Kind       EventKind
	UserID     string
	EmailID    string
	Subject    string
	ResponseID string
	Reason     string
}

// Notifier is optional; implementations must not block for long.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

type RoleUsecase interface {
	// GetActiveRole returns the active role, the adapted legacy context
	// when no role is active, or nil.
	GetActiveRole(ctx context.Context, userID string) (*domain.Role, error)
	ListRoles(ctx context.Context, userID string) ([]*domain.Role, error)
	GetRole(ctx context.Context, userID, roleID string) (*domain.Role, error)
	CreateRole(ctx context.Context, role *domain.Role) error
	UpdateRole(ctx context.Context, userID string, role *domain.Role) (*domain.Role, error)
	ActivateRole(ctx context.Context, userID, roleID string) error
	DeleteRole(ctx context.Context, userID, roleID string) error
}

type RuleUsecase interface {
	ListRules(ctx context.Context, userID, roleID string) ([]*domain.TemporalRule, error)
	CreateRule(ctx context.Context, userID, roleID string, rule *domain.TemporalRule) error
	UpdateRule(ctx context.Context, userID, roleID string, rule *domain.TemporalRule) (*domain.TemporalRule, error)
	DeleteRule(ctx context.Context, userID, roleID, ruleID string) error
}

// ProcessResult is the outcome of one ProcessEmail call.
type ProcessResult struct {
	Intent   *domain.EmailIntent
	Response *domain.AIResponse
	Skipped  bool
	// AutoSend is set when Response was drafted under a role that sends
	// without review.
	AutoSend bool
}

// BatchSummary counts what one ProcessPending call did.
type BatchSummary struct {
	Processed int `json:"processed"`
	Responses int `json:"responses_generated"`
	Escalated int `json:"escalated"`
	Ignored   int `json:"ignored"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	// AutoSendIDs lists the drafts created in this batch under an
	// auto-send role.
	AutoSendIDs []string `json:"auto_send_ids,omitempty"`
}

type DecisionEngine interface {
	// ProcessEmail is idempotent: an email that already has an outcome is
	// skipped.
	ProcessEmail(ctx context.Context, email *emaildomain.Email) (*ProcessResult, error)
	// ProcessPending runs ProcessEmail over up to limit emails of userID
	// that have no outcome yet.
	ProcessPending(ctx context.Context, userID string, limit int) (BatchSummary, error)
}

// ResponseStats is the per-status count for one user.
type ResponseStats struct {
	ByStatus   map[domain.ResponseStatus]int64 `json:"by_status"`
	ByDecision map[domain.Decision]int64       `json:"by_decision"`
	Total      int64                           `json:"total"`
}

type ResponseLifecycle interface {
	Get(ctx context.Context, userID, responseID string) (*domain.AIResponse, error)
	List(ctx context.Context, userID string, status domain.ResponseStatus, limit, offset int) ([]*domain.AIResponse, int64, error)
	Stats(ctx context.Context, userID string) (*ResponseStats, error)
	Approve(ctx context.Context, userID, responseID string) (*domain.AIResponse, error)
	Reject(ctx context.Context, userID, responseID, feedback string) (*domain.AIResponse, error)
	Resend(ctx context.Context, userID, responseID string) (*domain.AIResponse, error)
	Edit(ctx context.Context, userID, responseID, subject, body string) (*domain.AIResponse, error)
}
