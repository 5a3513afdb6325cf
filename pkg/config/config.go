package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	LogLevel    string `yaml:"log_level"`

	JWTSecret        string        `yaml:"jwt_secret"`
	JWTAccessExpiry  time.Duration `yaml:"jwt_access_expiry"`
	JWTRefreshExpiry time.Duration `yaml:"jwt_refresh_expiry"`

	GoogleClientID        string `yaml:"google_client_id"`
	GoogleClientSecret    string `yaml:"google_client_secret"`
	MicrosoftClientID     string `yaml:"microsoft_client_id"`
	MicrosoftClientSecret string `yaml:"microsoft_client_secret"`
	MicrosoftTenant       string `yaml:"microsoft_tenant"`

	AI   AIConfig   `yaml:"ai"`
	Sync SyncConfig `yaml:"sync"`

	RedisAddr           string `yaml:"redis_addr"`
	FirebaseCredentials string `yaml:"firebase_credentials"`
	GoogleProjectID     string `yaml:"google_project_id"`
	GooglePubSubTopic   string `yaml:"google_pubsub_topic"`
	GooglePubSubSub     string `yaml:"google_pubsub_subscription"`
	GoogleCredentials   string `yaml:"google_credentials"`
}

// AIConfig selects the language model provider and bounds every call.
type AIConfig struct {
	Provider        string        `yaml:"provider"` // openai, gemini, ollama or auto
	OpenAIAPIKey    string        `yaml:"openai_api_key"`
	OpenAIBaseURL   string        `yaml:"openai_base_url"`
	OpenAIModel     string        `yaml:"openai_model"`
	GeminiAPIKey    string        `yaml:"gemini_api_key"`
	GeminiModel     string        `yaml:"gemini_model"`
	OllamaBaseURL   string        `yaml:"ollama_base_url"`
	OllamaModel     string        `yaml:"ollama_model"`
	ClassifyTimeout time.Duration `yaml:"classify_timeout"`
	GenerateTimeout time.Duration `yaml:"generate_timeout"`
	StrictTopics    bool          `yaml:"strict_topic_check"`
}

// SyncConfig drives the periodic sync-and-process pass.
type SyncConfig struct {
	IntervalMinutes int           `yaml:"interval_minutes"`
	Workers         int           `yaml:"workers"`
	BatchLimit      int           `yaml:"batch_limit"`
	SendTimeout     time.Duration `yaml:"send_timeout"`
	FetchLimit      int           `yaml:"fetch_limit"`
	LockTTL         time.Duration `yaml:"lock_ttl"`
}

// Interval returns the scheduler tick as a duration.
func (s SyncConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() *Config {
	return &Config{
		Port:             "8080",
		DatabaseURL:      "host=localhost user=postgres password=postgres dbname=friendlymail port=5432 sslmode=disable",
		LogLevel:         "info",
		JWTSecret:        "your-secret-key-change-in-production",
		JWTAccessExpiry:  15 * time.Minute,
		JWTRefreshExpiry: 168 * time.Hour,
		MicrosoftTenant:  "common",
		AI: AIConfig{
			Provider:        "auto",
			OpenAIBaseURL:   "https://api.openai.com/v1",
			OpenAIModel:     "gpt-4o-mini",
			GeminiModel:     "gemini-2.5-flash",
			OllamaBaseURL:   "http://localhost:11434",
			OllamaModel:     "llama3",
			ClassifyTimeout: 30 * time.Second,
			GenerateTimeout: 45 * time.Second,
		},
		Sync: SyncConfig{
			IntervalMinutes: 20,
			Workers:         4,
			BatchLimit:      10,
			SendTimeout:     30 * time.Second,
			FetchLimit:      50,
			LockTTL:         10 * time.Minute,
		},
		GooglePubSubTopic: "gmail-updates",
		GooglePubSubSub:   "gmail-updates-sub",
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and finally environment variables (.env is honoured).
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTAccessExpiry = getDuration("JWT_ACCESS_EXPIRY", cfg.JWTAccessExpiry)
	cfg.JWTRefreshExpiry = getDuration("JWT_REFRESH_EXPIRY", cfg.JWTRefreshExpiry)

	cfg.GoogleClientID = getEnv("GOOGLE_CLIENT_ID", cfg.GoogleClientID)
	cfg.GoogleClientSecret = getEnv("GOOGLE_CLIENT_SECRET", cfg.GoogleClientSecret)
	cfg.MicrosoftClientID = getEnv("MICROSOFT_CLIENT_ID", cfg.MicrosoftClientID)
	cfg.MicrosoftClientSecret = getEnv("MICROSOFT_CLIENT_SECRET", cfg.MicrosoftClientSecret)
	cfg.MicrosoftTenant = getEnv("MICROSOFT_TENANT", cfg.MicrosoftTenant)

	cfg.AI.Provider = strings.ToLower(getEnv("AI_PROVIDER", cfg.AI.Provider))
	cfg.AI.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.AI.OpenAIAPIKey)
	cfg.AI.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.AI.OpenAIBaseURL)
	cfg.AI.OpenAIModel = getEnv("OPENAI_MODEL", cfg.AI.OpenAIModel)
	cfg.AI.GeminiAPIKey = getEnv("GEMINI_API_KEY", cfg.AI.GeminiAPIKey)
	cfg.AI.GeminiModel = getEnv("GEMINI_MODEL", cfg.AI.GeminiModel)
	cfg.AI.OllamaBaseURL = getEnv("OLLAMA_BASE_URL", cfg.AI.OllamaBaseURL)
	cfg.AI.OllamaModel = getEnv("OLLAMA_MODEL", cfg.AI.OllamaModel)
	cfg.AI.ClassifyTimeout = getDuration("AI_CLASSIFY_TIMEOUT", cfg.AI.ClassifyTimeout)
	cfg.AI.GenerateTimeout = getDuration("AI_GENERATE_TIMEOUT", cfg.AI.GenerateTimeout)
	cfg.AI.StrictTopics = getBool("STRICT_TOPIC_CHECK", cfg.AI.StrictTopics)

	cfg.Sync.IntervalMinutes = getInt("AUTO_SYNC_INTERVAL_MINUTES", cfg.Sync.IntervalMinutes)
	cfg.Sync.Workers = getInt("AUTO_SYNC_WORKERS", cfg.Sync.Workers)
	cfg.Sync.BatchLimit = getInt("PROCESS_BATCH_LIMIT", cfg.Sync.BatchLimit)
	cfg.Sync.SendTimeout = getDuration("SEND_TIMEOUT", cfg.Sync.SendTimeout)
	cfg.Sync.FetchLimit = getInt("SYNC_FETCH_LIMIT", cfg.Sync.FetchLimit)
	cfg.Sync.LockTTL = getDuration("SYNC_LOCK_TTL", cfg.Sync.LockTTL)

	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.FirebaseCredentials = getEnv("FIREBASE_CREDENTIALS", cfg.FirebaseCredentials)
	cfg.GoogleProjectID = getEnv("GOOGLE_PROJECT_ID", cfg.GoogleProjectID)
	cfg.GooglePubSubTopic = getEnv("GOOGLE_PUBSUB_TOPIC", cfg.GooglePubSubTopic)
	cfg.GooglePubSubSub = getEnv("GOOGLE_PUBSUB_SUBSCRIPTION", cfg.GooglePubSubSub)
	cfg.GoogleCredentials = getEnv("GOOGLE_APPLICATION_CREDENTIALS", cfg.GoogleCredentials)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
