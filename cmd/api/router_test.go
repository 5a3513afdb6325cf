package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"friendlymail-backend/internal/app"
	"friendlymail-backend/internal/testutil"
	"friendlymail-backend/pkg/ai"
	"friendlymail-backend/pkg/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	db := testutil.NewDB(t)
	if err := app.Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	cfg := config.Defaults()
	cfg.AI.Provider = "ollama"
	cfg.JWTSecret = "router-test"
	a, err := app.New(context.Background(), cfg, db, zap.NewNop())
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(a.Close)
	return NewHandler(a).Engine()
}

func request(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRoutesEndToEnd(t *testing.T) {
	h := newTestServer(t)

	if w := request(h, http.MethodGet, "/health", "", ""); w.Code != http.StatusOK {
		t.Fatalf("health = %d", w.Code)
	}
	if w := request(h, http.MethodGet, "/api/assistant/roles", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated roles = %d, want 401", w.Code)
	}

	w := request(h, http.MethodPost, "/api/auth/register", "", `{"email":"ta@uni.edu","password":"secret1","name":"TA"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("register = %d (%s)", w.Code, w.Body.String())
	}
	var tokens struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &tokens); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	w = request(h, http.MethodPost, "/api/assistant/roles", tokens.AccessToken,
		`{"name":"Course TA","can_respond_topics":"exam dates\nassignments","complexity_level":"medium"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create role = %d (%s)", w.Code, w.Body.String())
	}
	var role struct {
		ID       string `json:"id"`
		IsActive bool   `json:"is_active"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &role)
	if !role.IsActive {
		t.Error("new role should be active")
	}

	if w := request(h, http.MethodDelete, "/api/assistant/roles/"+role.ID, tokens.AccessToken, ""); w.Code != http.StatusConflict {
		t.Errorf("delete last role = %d, want 409", w.Code)
	}

	w = request(h, http.MethodPost, "/api/assistant/roles/"+role.ID+"/rules", tokens.AccessToken,
		`{"name":"Midterm","start_date":"2026-01-01T00:00:00Z","end_date":"2026-12-31T00:00:00Z","keywords":"midterm","status":"active","priority":5}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create rule = %d (%s)", w.Code, w.Body.String())
	}

	// no mail yet, so the batch has nothing to do
	w = request(h, http.MethodPost, "/api/assistant/process", tokens.AccessToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("process = %d (%s)", w.Code, w.Body.String())
	}

	w = request(h, http.MethodGet, "/api/assistant/responses/stats", tokens.AccessToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("stats = %d", w.Code)
	}
	var stats struct {
		Total int64 `json:"total"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &stats)
	if stats.Total != 0 {
		t.Errorf("total = %d, want 0", stats.Total)
	}

	if w := request(h, http.MethodGet, "/api/assistant/responses/missing", tokens.AccessToken, ""); w.Code != http.StatusNotFound {
		t.Errorf("missing response = %d, want 404", w.Code)
	}
}

func TestSettingsHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	settings := ai.NewRuntimeSettings(ai.SettingsSnapshot{OllamaBaseURL: "http://localhost:11434", OllamaModel: "llama3"})
	h := NewSettingsHandler(settings)
	r := gin.New()
	r.GET("/ai", h.GetAISettings)
	r.PUT("/ai", h.UpdateAISettings)

	if w := request(r, http.MethodPut, "/ai", "", `{"ollama_base_url":"ftp://nope"}`); w.Code != http.StatusBadRequest {
		t.Errorf("bad url = %d, want 400", w.Code)
	}
	if w := request(r, http.MethodPut, "/ai", "", `{"ollama_model":"qwen2"}`); w.Code != http.StatusOK {
		t.Fatalf("update = %d", w.Code)
	}
	got := settings.Snapshot()
	if got.OllamaModel != "qwen2" || got.OllamaBaseURL != "http://localhost:11434" {
		t.Errorf("settings = %+v", got)
	}
}
