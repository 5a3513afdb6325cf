package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"friendlymail-backend/internal/assistant/domain"
	emaildomain "friendlymail-backend/internal/email/domain"
	"friendlymail-backend/pkg/ai"

	"go.uber.org/zap"
)

// FallbackReply is sent when the model cannot produce a reply.
func FallbackReply(roleName string) string {
	return fmt.Sprintf("Thank you for your email. I'll get back to you soon.\n\nBest regards,\n%s", roleName)
}

type llmGenerator struct {
	llm     ai.Completer
	timeout time.Duration
	log     *zap.Logger
}

// NewGenerator returns a Generator backed by a language model.
func NewGenerator(llm ai.Completer, timeout time.Duration, log *zap.Logger) Generator {
	if log == nil {
		log = zap.NewNop()
	}
	return &llmGenerator{llm: llm, timeout: timeout, log: log.Named("generator")}
}

func (g *llmGenerator) Generate(ctx context.Context, email *emaildomain.Email, role *domain.Role, rule *domain.TemporalRule) Draft {
	draft := Draft{Subject: domain.ReplySubject(email.Subject)}

	body, err := g.generate(ctx, email, role, rule)
	if err != nil {
		g.log.Warn("reply generation failed, using fallback",
			zap.String("email_id", email.ID),
			zap.Error(err))
		draft.Body = FallbackReply(role.Name)
		draft.Fallback = true
		return draft
	}
	draft.Body = body
	return draft
}

func (g *llmGenerator) generate(ctx context.Context, email *emaildomain.Email, role *domain.Role, rule *domain.TemporalRule) (string, error) {
	if g.llm == nil {
		return "", ai.ErrNoProvider
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	text, err := g.llm.Complete(ctx, ai.CompletionRequest{
		SystemPrompt: buildGenerateSystemPrompt(role, rule),
		UserPrompt:   buildGenerateUserPrompt(email),
		Temperature:  0.3,
		MaxTokens:    800,
	})
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ai.ErrEmptyResponse
	}
	return text, nil
}
