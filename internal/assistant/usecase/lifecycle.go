package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"friendlymail-backend/internal/assistant/domain"
	"friendlymail-backend/internal/assistant/repository"
	emaildomain "friendlymail-backend/internal/email/domain"

	"go.uber.org/zap"
)

type responseLifecycle struct {
	responses   repository.ResponseRepository
	intents     repository.IntentRepository
	sender      MessageSender
	notifier    Notifier
	sendTimeout time.Duration
	now         func() time.Time
	log         *zap.Logger
}

// NewResponseLifecycle creates the draft state machine. notifier may be nil.
func NewResponseLifecycle(responses repository.ResponseRepository, intents repository.IntentRepository, sender MessageSender, notifier Notifier, sendTimeout time.Duration, log *zap.Logger) ResponseLifecycle {
	if log == nil {
		log = zap.NewNop()
	}
	return &responseLifecycle{
		responses:   responses,
		intents:     intents,
		sender:      sender,
		notifier:    notifier,
		sendTimeout: sendTimeout,
		now:         time.Now,
		log:         log.Named("lifecycle"),
	}
}

// load fetches a response and checks it belongs to one of userID's accounts.
func (l *responseLifecycle) load(ctx context.Context, userID, responseID string) (*domain.AIResponse, error) {
	response, err := l.responses.FindByID(ctx, responseID)
	if err != nil {
		return nil, err
	}
	if response == nil {
		return nil, domain.ErrNotFound
	}
	if account := accountOf(response); account == nil || account.UserID != userID {
		return nil, domain.ErrUnauthorized
	}
	return response, nil
}

func accountOf(r *domain.AIResponse) *emaildomain.EmailAccount {
	if r.EmailIntent == nil || r.EmailIntent.Email == nil {
		return nil
	}
	return r.EmailIntent.Email.Account
}

// transition applies updates when the stored status is still one of from,
// then reloads. A lost race reports the status that won.
func (l *responseLifecycle) transition(ctx context.Context, r *domain.AIResponse, action string, from []domain.ResponseStatus, updates map[string]interface{}) (*domain.AIResponse, error) {
	ok, err := l.responses.Transition(ctx, r.ID, from, updates)
	if err != nil {
		return nil, err
	}
	fresh, err := l.responses.FindByID(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return nil, domain.ErrNotFound
	}
	if !ok {
		return fresh, &domain.TransitionError{Action: action, From: fresh.Status}
	}
	return fresh, nil
}

func (l *responseLifecycle) Get(ctx context.Context, userID, responseID string) (*domain.AIResponse, error) {
	return l.load(ctx, userID, responseID)
}

func (l *responseLifecycle) List(ctx context.Context, userID string, status domain.ResponseStatus, limit, offset int) ([]*domain.AIResponse, int64, error) {
	return l.responses.ListByUser(ctx, userID, status, limit, offset)
}

func (l *responseLifecycle) Stats(ctx context.Context, userID string) (*ResponseStats, error) {
	byStatus, err := l.responses.CountByStatus(ctx, userID)
	if err != nil {
		return nil, err
	}
	byDecision, err := l.intents.CountByDecision(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats := &ResponseStats{ByStatus: byStatus, ByDecision: byDecision}
	for _, n := range byStatus {
		stats.Total += n
	}
	return stats, nil
}

// Approve moves a pending draft to approved and delivers it. A failed send
// leaves the draft approved so it can be resent.
func (l *responseLifecycle) Approve(ctx context.Context, userID, responseID string) (*domain.AIResponse, error) {
	response, err := l.load(ctx, userID, responseID)
	if err != nil {
		return nil, err
	}
	if !response.CanApprove() {
		return response, &domain.TransitionError{Action: "approve", From: response.Status}
	}

	response, err = l.transition(ctx, response, "approve",
		[]domain.ResponseStatus{domain.StatusPendingApproval},
		map[string]interface{}{"status": domain.StatusApproved, "approved_at": l.now()})
	if err != nil {
		return response, err
	}
	return l.deliver(ctx, response)
}

func (l *responseLifecycle) Resend(ctx context.Context, userID, responseID string) (*domain.AIResponse, error) {
	response, err := l.load(ctx, userID, responseID)
	if err != nil {
		return nil, err
	}
	if !response.CanResend() {
		return response, &domain.TransitionError{Action: "resend", From: response.Status}
	}
	return l.deliver(ctx, response)
}

func (l *responseLifecycle) Reject(ctx context.Context, userID, responseID, feedback string) (*domain.AIResponse, error) {
	response, err := l.load(ctx, userID, responseID)
	if err != nil {
		return nil, err
	}
	if !response.CanReject() {
		return response, &domain.TransitionError{Action: "reject", From: response.Status}
	}
	return l.transition(ctx, response, "reject",
		[]domain.ResponseStatus{domain.StatusPendingApproval},
		map[string]interface{}{"status": domain.StatusRejected, "user_feedback": strings.TrimSpace(feedback)})
}

func (l *responseLifecycle) Edit(ctx context.Context, userID, responseID, subject, body string) (*domain.AIResponse, error) {
	response, err := l.load(ctx, userID, responseID)
	if err != nil {
		return nil, err
	}
	if !response.CanEdit() {
		return response, &domain.TransitionError{Action: "edit", From: response.Status}
	}
	updates := map[string]interface{}{}
	if s := strings.TrimSpace(subject); s != "" {
		if utf8.RuneCountInString(s) > domain.MaxSubjectLength {
			return nil, fmt.Errorf("%w: subject exceeds %d characters", domain.ErrValidation, domain.MaxSubjectLength)
		}
		updates["response_subject"] = s
	}
	if strings.TrimSpace(body) != "" {
		updates["response_text"] = body
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: subject or body is required", domain.ErrValidation)
	}
	return l.transition(ctx, response, "edit",
		[]domain.ResponseStatus{domain.StatusPendingApproval, domain.StatusApproved}, updates)
}

// deliver sends an approved or sent response and records the result.
func (l *responseLifecycle) deliver(ctx context.Context, response *domain.AIResponse) (*domain.AIResponse, error) {
	account := accountOf(response)
	if account == nil {
		return response, fmt.Errorf("%w: response %s has no originating account", domain.ErrDeliveryFailed, response.ID)
	}
	email := response.EmailIntent.Email
	msg := emaildomain.OutgoingMessage{
		From:                account.EmailAddress,
		To:                  email.SenderAddress(),
		Subject:             response.ResponseSubject,
		Body:                response.ResponseText,
		ThreadID:            email.ThreadID,
		InReplyToProviderID: email.ProviderID,
		InReplyToMessageID:  email.InternetMessageID,
	}

	sendCtx := ctx
	if l.sendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, l.sendTimeout)
		defer cancel()
	}
	providerID, err := l.sender.Deliver(sendCtx, account, msg)
	if err != nil {
		l.log.Warn("delivery failed, response stays approved",
			zap.String("response_id", response.ID),
			zap.String("provider", string(account.Provider)),
			zap.Error(err))
		if l.notifier != nil {
			l.notifier.Notify(ctx, Event{Kind: EventSendFailed, UserID: account.UserID, EmailID: email.ID, Subject: email.Subject, ResponseID: response.ID, Reason: err.Error()})
		}
		return response, fmt.Errorf("%w: %w", domain.ErrDeliveryFailed, err)
	}

	response, err = l.transition(ctx, response, "send",
		[]domain.ResponseStatus{domain.StatusApproved, domain.StatusSent},
		map[string]interface{}{"status": domain.StatusSent, "sent_at": l.now(), "provider_message_id": providerID})
	if err != nil {
		return response, err
	}
	l.log.Info("response sent", zap.String("response_id", response.ID), zap.String("provider_message_id", providerID))
	return response, nil
}
