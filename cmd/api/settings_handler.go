package api

import (
	"net/http"
	"net/url"

	"friendlymail-backend/pkg/ai"

	"github.com/gin-gonic/gin"
)

// SettingsHandler exposes the language model settings that can change at
// runtime. Providers pick up new values on their next call.
type SettingsHandler struct {
	settings *ai.RuntimeSettings
}

func NewSettingsHandler(settings *ai.RuntimeSettings) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// GetAISettings returns current AI configuration
// GET /api/settings/ai
func (h *SettingsHandler) GetAISettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings.Snapshot())
}

// UpdateAISettings applies the non-empty fields of the request
// PUT /api/settings/ai
func (h *SettingsHandler) UpdateAISettings(c *gin.Context) {
	var req ai.SettingsSnapshot
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.OllamaBaseURL != "" {
		u, err := url.Parse(req.OllamaBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ollama_base_url must be an http(s) URL"})
			return
		}
	}

	h.settings.Update(req)
	c.JSON(http.StatusOK, gin.H{
		"message":  "AI settings updated",
		"settings": h.settings.Snapshot(),
	})
}
