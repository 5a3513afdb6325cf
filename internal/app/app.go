// Package app wires repositories, providers and use cases into one container
// shared by the API server and the operator CLI.
package app

import (
	"context"
	"fmt"
	"strings"

	assistantdomain "friendlymail-backend/internal/assistant/domain"
	assistantrepo "friendlymail-backend/internal/assistant/repository"
	"friendlymail-backend/internal/assistant/scheduler"
	assistantusecase "friendlymail-backend/internal/assistant/usecase"
	authdomain "friendlymail-backend/internal/auth/domain"
	authrepo "friendlymail-backend/internal/auth/repository"
	authusecase "friendlymail-backend/internal/auth/usecase"
	emaildomain "friendlymail-backend/internal/email/domain"
	emailrepo "friendlymail-backend/internal/email/repository"
	emailusecase "friendlymail-backend/internal/email/usecase"
	"friendlymail-backend/internal/notification"
	"friendlymail-backend/pkg/ai"
	"friendlymail-backend/pkg/config"
	"friendlymail-backend/pkg/fcm"
	"friendlymail-backend/pkg/gmail"
	"friendlymail-backend/pkg/outlook"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Models lists every table the service owns, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&authdomain.User{},
		&authdomain.RefreshToken{},
		&authdomain.FCMToken{},
		&emaildomain.EmailAccount{},
		&emaildomain.Email{},
		&assistantdomain.AIContext{},
		&assistantdomain.Role{},
		&assistantdomain.TemporalRule{},
		&assistantdomain.EmailIntent{},
		&assistantdomain.AIResponse{},
	}
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

type App struct {
	Config *config.Config
	Log    *zap.Logger
	DB     *gorm.DB

	FCMTokens authrepo.FCMTokenRepository

	Auth      authusecase.AuthUsecase
	Mailbox   emailusecase.MailboxUsecase
	Roles     assistantusecase.RoleUsecase
	Rules     assistantusecase.RuleUsecase
	Engine    assistantusecase.DecisionEngine
	Lifecycle assistantusecase.ResponseLifecycle
	Locker    assistantusecase.Locker
	Scheduler *scheduler.Scheduler
	Settings  *ai.RuntimeSettings

	redis *redis.Client
}

// New builds the container. Optional integrations (redis, FCM) are skipped
// with a warning when unconfigured or unreachable.
func New(ctx context.Context, cfg *config.Config, db *gorm.DB, log *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log, DB: db}

	// Repositories
	userRepo := authrepo.NewUserRepository(db)
	a.FCMTokens = authrepo.NewFCMTokenRepository(db)
	accountRepo := emailrepo.NewAccountRepository(db)
	emailRepository := emailrepo.NewEmailRepository(db)
	roleRepo := assistantrepo.NewRoleRepository(db)
	contextRepo := assistantrepo.NewContextRepository(db)
	ruleRepo := assistantrepo.NewRuleRepository(db)
	intentRepo := assistantrepo.NewIntentRepository(db)
	responseRepo := assistantrepo.NewResponseRepository(db)

	// Mail providers
	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret, log)
	outlookService := outlook.NewService(cfg.MicrosoftClientID, cfg.MicrosoftClientSecret, cfg.MicrosoftTenant, log)

	// Language model
	a.Settings = ai.NewRuntimeSettings(ai.SettingsSnapshot{
		OpenAIModel:   cfg.AI.OpenAIModel,
		GeminiModel:   cfg.AI.GeminiModel,
		OllamaBaseURL: cfg.AI.OllamaBaseURL,
		OllamaModel:   cfg.AI.OllamaModel,
	})
	llm, err := ai.NewCompleter(ai.Config{
		Provider:      ai.ProviderType(cfg.AI.Provider),
		OpenAIAPIKey:  cfg.AI.OpenAIAPIKey,
		OpenAIBaseURL: cfg.AI.OpenAIBaseURL,
		GeminiAPIKey:  cfg.AI.GeminiAPIKey,
		Settings:      a.Settings,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("init AI provider: %w", err)
	}
	log.Info("AI provider initialized", zap.String("provider", llm.Name()))

	// Locking
	a.Locker = assistantusecase.NewLocalLocker()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, using in-process locks", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			_ = rdb.Close()
		} else {
			a.redis = rdb
			a.Locker = assistantusecase.NewRedisLocker(rdb, log)
			log.Info("redis locks enabled", zap.String("addr", cfg.RedisAddr))
		}
	}

	// Push notifications
	var notifier assistantusecase.Notifier
	if cfg.FirebaseCredentials != "" {
		fcmClient, err := fcm.NewClient(ctx, cfg.FirebaseCredentials, log)
		if err != nil {
			log.Warn("FCM disabled", zap.Error(err))
		} else {
			notifier = notification.NewPushNotifier(fcmClient, a.FCMTokens, log)
		}
	}

	// Use cases
	a.Auth = authusecase.NewAuthUsecase(userRepo, a.FCMTokens, cfg, log)
	a.Mailbox = emailusecase.NewMailboxUsecase(accountRepo, emailRepository, cfg.Sync.FetchLimit, log, gmailService, outlookService)
	a.Roles = assistantusecase.NewRoleUsecase(roleRepo, contextRepo, log)
	a.Rules = assistantusecase.NewRuleUsecase(a.Roles, ruleRepo)
	a.Engine = assistantusecase.NewDecisionEngine(
		a.Roles,
		a.Mailbox,
		intentRepo,
		responseRepo,
		assistantusecase.NewClassifier(llm, cfg.AI.ClassifyTimeout, log),
		assistantusecase.NewRuleMatcher(ruleRepo),
		assistantusecase.NewGenerator(llm, cfg.AI.GenerateTimeout, log),
		notifier,
		assistantusecase.EngineOptions{StrictTopics: cfg.AI.StrictTopics},
		log,
	)
	a.Lifecycle = assistantusecase.NewResponseLifecycle(responseRepo, intentRepo, a.Mailbox, notifier, cfg.Sync.SendTimeout, log)
	a.Scheduler = scheduler.New(a.Mailbox, a.Roles, a.Engine, a.Lifecycle, a.Locker, scheduler.Options{
		Interval:   cfg.Sync.Interval(),
		Workers:    cfg.Sync.Workers,
		BatchLimit: cfg.Sync.BatchLimit,
		LockTTL:    cfg.Sync.LockTTL,
	}, log)

	return a, nil
}

// StartPushListener subscribes to Gmail notifications when a Google project
// is configured. It returns nil when push is disabled.
func (a *App) StartPushListener(ctx context.Context) (*notification.Listener, error) {
	cfg := a.Config
	if cfg.GoogleProjectID == "" {
		a.Log.Info("GOOGLE_PROJECT_ID not set, gmail push disabled")
		return nil, nil
	}

	// accept a full resource name as well as the short topic id
	topicName := cfg.GooglePubSubTopic
	if parts := strings.Split(topicName, "/"); len(parts) > 1 {
		topicName = parts[len(parts)-1]
	}

	listener, err := notification.NewListener(ctx, cfg.GoogleProjectID, topicName, cfg.GooglePubSubSub, cfg.GoogleCredentials, a.Mailbox, a.Scheduler, a.Log)
	if err != nil {
		return nil, err
	}
	if n, err := listener.WatchAccounts(ctx, a.Mailbox); err != nil {
		a.Log.Warn("renew gmail watches", zap.Error(err))
	} else {
		a.Log.Info("gmail watches renewed", zap.Int("accounts", n))
	}

	go func() {
		if err := listener.Start(ctx); err != nil {
			a.Log.Error("gmail push listener stopped", zap.Error(err))
		}
	}()
	return listener, nil
}

func (a *App) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
