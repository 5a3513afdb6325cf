package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"friendlymail-backend/internal/assistant/domain"
	"friendlymail-backend/internal/assistant/repository"
	emaildomain "friendlymail-backend/internal/email/domain"
	"friendlymail-backend/pkg/metrics"

	"go.uber.org/zap"
)

const (
	reasonNoRole        = "No AI role configured"
	reasonDomainBlocked = "Sender domain not in allowed list"
)

// EngineOptions tunes the decision engine.
type EngineOptions struct {
	// StrictTopics downgrades respond decisions that fail the topic and
	// confidence re-check.
	StrictTopics bool
	Now          func() time.Time
}

type decisionEngine struct {
	roles      RoleUsecase
	accounts   AccountLookup
	intents    repository.IntentRepository
	responses  repository.ResponseRepository
	classifier Classifier
	matcher    RuleMatcher
	generator  Generator
	notifier   Notifier
	opts       EngineOptions
	log        *zap.Logger
}

// NewDecisionEngine wires the per-message pipeline. notifier may be nil.
func NewDecisionEngine(
	roles RoleUsecase,
	accounts AccountLookup,
	intents repository.IntentRepository,
	responses repository.ResponseRepository,
	classifier Classifier,
	matcher RuleMatcher,
	generator Generator,
	notifier Notifier,
	opts EngineOptions,
	log *zap.Logger,
) DecisionEngine {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &decisionEngine{
		roles:      roles,
		accounts:   accounts,
		intents:    intents,
		responses:  responses,
		classifier: classifier,
		matcher:    matcher,
		generator:  generator,
		notifier:   notifier,
		opts:       opts,
		log:        log.Named("engine"),
	}
}

func (e *decisionEngine) ownerOf(ctx context.Context, email *emaildomain.Email) (string, error) {
	if email.Account != nil {
		return email.Account.UserID, nil
	}
	account, err := e.accounts.GetAccount(ctx, email.AccountID)
	if err != nil {
		return "", err
	}
	if account == nil {
		return "", fmt.Errorf("%w: account %s", domain.ErrNotFound, email.AccountID)
	}
	return account.UserID, nil
}

func (e *decisionEngine) ProcessEmail(ctx context.Context, email *emaildomain.Email) (*ProcessResult, error) {
	existing, err := e.intents.FindByEmailID(ctx, email.ID)
	if err != nil {
		return nil, fmt.Errorf("look up outcome: %w", err)
	}
	if existing != nil {
		return &ProcessResult{Intent: existing, Skipped: true}, nil
	}

	userID, err := e.ownerOf(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("resolve owner: %w", err)
	}
	role, err := e.roles.GetActiveRole(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load active role: %w", err)
	}

	var (
		cls  domain.Classification
		rule *domain.TemporalRule
	)
	switch {
	case role == nil:
		cls = domain.Classification{IntentType: domain.IntentUnclear, Confidence: 0, Decision: domain.DecisionEscalate, Reason: reasonNoRole}
	case !role.AllowsSenderDomain(email.SenderDomain()):
		cls = domain.Classification{IntentType: domain.IntentAdministrative, Confidence: 1, Decision: domain.DecisionEscalate, Reason: reasonDomainBlocked}
	default:
		cls = e.classifier.Classify(ctx, email, role)
		if e.opts.StrictTopics {
			cls = enforceTopics(cls, role, email)
		}
		if cls.Decision == domain.DecisionRespond {
			rule, err = e.matcher.Match(ctx, email, role, e.opts.Now())
			if err != nil {
				e.log.Warn("rule lookup failed, continuing without rule", zap.String("email_id", email.ID), zap.Error(err))
				rule = nil
			}
		}
	}

	intent := &domain.EmailIntent{
		EmailID:          email.ID,
		IntentType:       cls.IntentType,
		ConfidenceScore:  cls.Confidence,
		Decision:         cls.Decision,
		DecisionReason:   cls.Reason,
		ProcessingTimeMs: cls.Latency.Milliseconds(),
	}
	if rule != nil {
		intent.MatchedRuleID = &rule.ID
	}
	if err := e.intents.Create(ctx, intent); err != nil {
		if errors.Is(err, domain.ErrOutcomeExists) {
			// another run stored the outcome first
			return &ProcessResult{Skipped: true}, nil
		}
		return nil, fmt.Errorf("store outcome: %w", err)
	}

	result := &ProcessResult{Intent: intent}
	switch intent.Decision {
	case domain.DecisionRespond:
		result.Response = e.draft(ctx, email, role, rule, intent)
		if result.Response != nil {
			result.AutoSend = role.AutoSend
			e.notify(ctx, Event{Kind: EventDraftPending, UserID: userID, EmailID: email.ID, Subject: email.Subject, ResponseID: result.Response.ID})
		}
	case domain.DecisionEscalate:
		e.notify(ctx, Event{Kind: EventEscalated, UserID: userID, EmailID: email.ID, Subject: email.Subject, Reason: intent.DecisionReason})
	}
	return result, nil
}

// draft generates and stores the reply. Failures are logged and leave the
// outcome without a response.
func (e *decisionEngine) draft(ctx context.Context, email *emaildomain.Email, role *domain.Role, rule *domain.TemporalRule, intent *domain.EmailIntent) *domain.AIResponse {
	d := e.generator.Generate(ctx, email, role, rule)
	response := &domain.AIResponse{
		EmailIntentID:   intent.ID,
		ResponseText:    d.Body,
		ResponseSubject: d.Subject,
		Status:          domain.StatusPendingApproval,
	}
	if err := e.responses.Create(ctx, response); err != nil {
		e.log.Error("failed to store draft response", zap.String("email_id", email.ID), zap.Error(err))
		return nil
	}
	metrics.RecordDraft(rule != nil)
	return response
}

func (e *decisionEngine) notify(ctx context.Context, event Event) {
	if e.notifier != nil {
		e.notifier.Notify(ctx, event)
	}
}

func (e *decisionEngine) ProcessPending(ctx context.Context, userID string, limit int) (BatchSummary, error) {
	var summary BatchSummary
	start := time.Now()
	defer func() { metrics.RecordBatch(time.Since(start)) }()

	emails, err := e.intents.FindUnprocessed(ctx, userID, limit)
	if err != nil {
		return summary, fmt.Errorf("list unprocessed emails: %w", err)
	}

	for _, email := range emails {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		result, err := e.ProcessEmail(ctx, email)
		if err != nil {
			summary.Failed++
			e.log.Error("failed to process email", zap.String("user_id", userID), zap.String("email_id", email.ID), zap.Error(err))
			continue
		}
		if result.Skipped {
			summary.Skipped++
			continue
		}
		summary.Processed++
		switch result.Intent.Decision {
		case domain.DecisionRespond:
			if result.Response != nil {
				summary.Responses++
				if result.AutoSend {
					summary.AutoSendIDs = append(summary.AutoSendIDs, result.Response.ID)
				}
			}
		case domain.DecisionEscalate:
			summary.Escalated++
		case domain.DecisionIgnore:
			summary.Ignored++
		}
	}

	e.log.Info("batch processed",
		zap.String("user_id", userID),
		zap.Int("processed", summary.Processed),
		zap.Int("responses", summary.Responses),
		zap.Int("escalated", summary.Escalated),
		zap.Int("ignored", summary.Ignored),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
	return summary, nil
}
