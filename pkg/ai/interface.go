package ai

import (
	"context"
)

// CompletionRequest is a single system+user prompt round trip.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	// JSONMode asks the provider to return a single JSON object.
	JSONMode bool
	// SchemaHint is an optional JSON schema for the expected object. Providers
	// that support structured output pass it through; others ignore it.
	SchemaHint  string
	Temperature float64
	MaxTokens   int
}

// Completer is the interface every language model provider implements.
// Implement this interface to add new AI providers.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Name() string
}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
)
