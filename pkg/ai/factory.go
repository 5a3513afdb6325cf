package ai

import (
	"context"
	"errors"
	"fmt"

	"friendlymail-backend/pkg/circuitbreaker"
	"friendlymail-backend/pkg/gemini"

	"go.uber.org/zap"
)

// Config holds AI provider configuration
type Config struct {
	Provider ProviderType

	OpenAIAPIKey  string
	OpenAIBaseURL string
	GeminiAPIKey  string

	// Settings supplies models and the Ollama URL at call time.
	Settings *RuntimeSettings
	Breaker  circuitbreaker.Config
}

// NewCompleter creates a Completer based on the config.
// This is the factory function - switch AI provider by changing cfg.Provider.
// Every provider is guarded by its own circuit breaker; "auto" chains every
// configured provider through a FallbackService.
func NewCompleter(cfg Config, log *zap.Logger) (Completer, error) {
	if cfg.Settings == nil {
		cfg.Settings = NewRuntimeSettings(SettingsSnapshot{})
	}
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker = circuitbreaker.DefaultConfig()
	}
	guard := func(c Completer) Completer { return NewGuardedService(c, cfg.Breaker) }

	openai := func() Completer {
		return NewOpenAIServiceWithGetters(cfg.OpenAIAPIKey, func() string { return cfg.OpenAIBaseURL }, cfg.Settings.OpenAIModel)
	}
	gem := func() Completer {
		return &geminiAdapter{svc: gemini.NewGeminiServiceWithGetter(cfg.GeminiAPIKey, cfg.Settings.GeminiModel)}
	}
	ollama := func() Completer {
		return NewOllamaServiceWithGetters(cfg.Settings.OllamaBaseURL, cfg.Settings.OllamaModel)
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI provider")
		}
		return guard(openai()), nil

	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for Gemini provider")
		}
		return guard(gem()), nil

	case ProviderOllama:
		return guard(ollama()), nil

	case ProviderAuto, "":
		var chain []Completer
		if cfg.OpenAIAPIKey != "" {
			chain = append(chain, guard(openai()))
		}
		if cfg.GeminiAPIKey != "" {
			chain = append(chain, guard(gem()))
		}
		chain = append(chain, guard(ollama()))
		if len(chain) == 1 {
			return chain[0], nil
		}
		return NewFallbackService(log, chain...), nil

	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}

// geminiAdapter bridges gemini.GeminiService to Completer.
type geminiAdapter struct {
	svc *gemini.GeminiService
}

func (g *geminiAdapter) Name() string { return string(ProviderGemini) }

func (g *geminiAdapter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	text, err := g.svc.Generate(ctx, gemini.Request{
		SystemInstruction: req.SystemPrompt,
		Prompt:            req.UserPrompt,
		JSON:              req.JSONMode,
		Temperature:       req.Temperature,
		MaxOutputTokens:   req.MaxTokens,
	})
	if err != nil {
		var apiErr *gemini.APIError
		if errors.As(err, &apiErr) {
			return "", &APIError{Provider: g.Name(), StatusCode: apiErr.StatusCode, Body: apiErr.Body}
		}
		return "", err
	}
	if req.JSONMode {
		text = ExtractJSONObject(text)
	}
	return text, nil
}
