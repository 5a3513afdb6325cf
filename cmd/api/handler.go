package api

import (
	"net/http"
	"time"

	"friendlymail-backend/internal/app"
	assistantDelivery "friendlymail-backend/internal/assistant/delivery"
	authDelivery "friendlymail-backend/internal/auth/delivery"
	emailDelivery "friendlymail-backend/internal/email/delivery"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	app              *app.App
	authHandler      *authDelivery.AuthHandler
	accountHandler   *emailDelivery.AccountHandler
	assistantHandler *assistantDelivery.AssistantHandler
	settingsHandler  *SettingsHandler
}

func NewHandler(a *app.App) *Handler {
	return &Handler{
		app:              a,
		authHandler:      authDelivery.NewAuthHandler(a.Auth),
		accountHandler:   emailDelivery.NewAccountHandler(a.Mailbox),
		assistantHandler: assistantDelivery.NewAssistantHandler(a.Roles, a.Rules, a.Lifecycle, a.Engine, a.Locker, a.Config.Sync.LockTTL, a.Log),
		settingsHandler:  NewSettingsHandler(a.Settings),
	}
}

// Engine builds the gin engine with middleware and every route mounted.
func (h *Handler) Engine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.app.Log), cors())

	SetupRoutes(r, h.app.Auth, h.authHandler, h.accountHandler, h.assistantHandler, h.settingsHandler, h.app.DB)
	return r
}

// Server returns an http.Server for addr serving Engine.
func (h *Handler) Server(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// CORS middleware
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.FullPath() == "/health" || c.FullPath() == "/metrics" {
			return
		}
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}
