package ai

import "sync"

// RuntimeSettings holds provider settings that can change while the server
// runs. Providers read them on every call through getters.
type RuntimeSettings struct {
	mu            sync.RWMutex
	openAIModel   string
	geminiModel   string
	ollamaBaseURL string
	ollamaModel   string
}

// SettingsSnapshot is the JSON shape of RuntimeSettings.
type SettingsSnapshot struct {
	OpenAIModel   string `json:"openai_model,omitempty"`
	GeminiModel   string `json:"gemini_model,omitempty"`
	OllamaBaseURL string `json:"ollama_base_url,omitempty"`
	OllamaModel   string `json:"ollama_model,omitempty"`
}

func NewRuntimeSettings(initial SettingsSnapshot) *RuntimeSettings {
	s := &RuntimeSettings{}
	s.Update(initial)
	return s
}

func (s *RuntimeSettings) Snapshot() SettingsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SettingsSnapshot{
		OpenAIModel:   s.openAIModel,
		GeminiModel:   s.geminiModel,
		OllamaBaseURL: s.ollamaBaseURL,
		OllamaModel:   s.ollamaModel,
	}
}

// Update applies the non-empty fields of patch.
func (s *RuntimeSettings) Update(patch SettingsSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if patch.OpenAIModel != "" {
		s.openAIModel = patch.OpenAIModel
	}
	if patch.GeminiModel != "" {
		s.geminiModel = patch.GeminiModel
	}
	if patch.OllamaBaseURL != "" {
		s.ollamaBaseURL = patch.OllamaBaseURL
	}
	if patch.OllamaModel != "" {
		s.ollamaModel = patch.OllamaModel
	}
}

func (s *RuntimeSettings) OpenAIModel() string   { return s.Snapshot().OpenAIModel }
func (s *RuntimeSettings) GeminiModel() string   { return s.Snapshot().GeminiModel }
func (s *RuntimeSettings) OllamaBaseURL() string { return s.Snapshot().OllamaBaseURL }
func (s *RuntimeSettings) OllamaModel() string   { return s.Snapshot().OllamaModel }
