package ai

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// FallbackService routes a completion through an ordered provider list. The
// first provider to answer wins; connection and quota failures move on to the
// next one, as does any other provider error.
type FallbackService struct {
	providers []Completer
	log       *zap.Logger
}

// NewFallbackService creates a new fallback service over the given providers.
func NewFallbackService(log *zap.Logger, providers ...Completer) *FallbackService {
	if log == nil {
		log = zap.NewNop()
	}
	return &FallbackService{providers: providers, log: log.Named("ai")}
}

func (f *FallbackService) Name() string {
	names := make([]string, 0, len(f.providers))
	for _, p := range f.providers {
		names = append(names, p.Name())
	}
	return "fallback(" + strings.Join(names, ",") + ")"
}

func (f *FallbackService) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	var lastErr error
	for i, p := range f.providers {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := p.Complete(ctx, req)
		if err == nil {
			if i > 0 {
				f.log.Info("fallback provider answered", zap.String("provider", p.Name()))
			}
			return text, nil
		}
		lastErr = err

		reason := "error"
		switch {
		case isConnectionError(err):
			reason = "connection"
		case isQuotaError(err):
			reason = "quota"
		}
		f.log.Warn("provider failed, trying next",
			zap.String("provider", p.Name()),
			zap.String("reason", reason),
			zap.Error(err))
	}
	if lastErr == nil {
		return "", ErrNoProvider
	}
	return "", fmt.Errorf("all AI providers failed: %w", lastErr)
}
