package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type GeminiService struct {
	ApiKey   string
	BaseURL  string
	getModel func() string
	client   *http.Client
}

// Request is one generateContent call.
type Request struct {
	SystemInstruction string
	Prompt            string
	JSON              bool
	Temperature       float64
	MaxOutputTokens   int
}

// APIError is a non-200 answer from the Gemini API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Gemini API error (%d): %s", e.StatusCode, e.Body)
}

func NewGeminiService(apiKey string) *GeminiService {
	return NewGeminiServiceWithGetter(apiKey, func() string { return "gemini-2.5-flash" })
}

func NewGeminiServiceWithGetter(apiKey string, getModel func() string) *GeminiService {
	return &GeminiService{
		ApiKey:   apiKey,
		BaseURL:  defaultBaseURL,
		getModel: getModel,
		client:   &http.Client{},
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Generate calls generateContent and returns the first candidate's text.
func (g *GeminiService) Generate(ctx context.Context, r Request) (string, error) {
	model := g.getModel()
	if model == "" {
		model = "gemini-2.5-flash"
	}
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", strings.TrimRight(g.BaseURL, "/"), model, g.ApiKey)

	payload := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: r.Prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     r.Temperature,
			MaxOutputTokens: r.MaxOutputTokens,
		},
	}
	if r.SystemInstruction != "" {
		payload.SystemInstruction = &content{Parts: []part{{Text: r.SystemInstruction}}}
	}
	if r.JSON {
		payload.GenerationConfig.ResponseMimeType = "application/json"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result generateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", err
	}
	if len(result.Candidates) > 0 && len(result.Candidates[0].Content.Parts) > 0 {
		if text := strings.TrimSpace(result.Candidates[0].Content.Parts[0].Text); text != "" {
			return text, nil
		}
	}
	return "", fmt.Errorf("no content returned")
}
