package api

import (
	"net/http"

	assistantDelivery "friendlymail-backend/internal/assistant/delivery"
	authDelivery "friendlymail-backend/internal/auth/delivery"
	authUsecase "friendlymail-backend/internal/auth/usecase"
	emailDelivery "friendlymail-backend/internal/email/delivery"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

func SetupRoutes(
	r *gin.Engine,
	authUc authUsecase.AuthUsecase,
	authHandler *authDelivery.AuthHandler,
	accountHandler *emailDelivery.AccountHandler,
	assistantHandler *assistantDelivery.AssistantHandler,
	settingsHandler *SettingsHandler,
	db *gorm.DB,
) {
	r.GET("/health", healthCheck(db))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		requireAuth := authDelivery.AuthMiddleware(authUc)

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/me", requireAuth, authHandler.Me)
		}

		// FCM routes (protected)
		fcm := api.Group("/fcm")
		fcm.Use(requireAuth)
		{
			fcm.POST("/register", authHandler.RegisterFCMToken)
			fcm.DELETE("/:token", authHandler.UnregisterFCMToken)
		}

		// Mailbox routes (protected)
		accounts := api.Group("/accounts")
		accounts.Use(requireAuth)
		{
			accounts.GET("", accountHandler.ListAccounts)
			accounts.POST("", accountHandler.ConnectAccount)
			accounts.POST("/:id/sync", accountHandler.SyncAccount)
		}

		// Assistant routes (protected)
		assistant := api.Group("/assistant")
		assistant.Use(requireAuth)
		{
			assistant.GET("/roles", assistantHandler.ListRoles)
			assistant.POST("/roles", assistantHandler.CreateRole)
			assistant.GET("/roles/:id", assistantHandler.GetRole)
			assistant.PUT("/roles/:id", assistantHandler.UpdateRole)
			assistant.DELETE("/roles/:id", assistantHandler.DeleteRole)
			assistant.POST("/roles/:id/activate", assistantHandler.ActivateRole)

			assistant.GET("/roles/:id/rules", assistantHandler.ListRules)
			assistant.POST("/roles/:id/rules", assistantHandler.CreateRule)
			assistant.PUT("/roles/:id/rules/:ruleId", assistantHandler.UpdateRule)
			assistant.DELETE("/roles/:id/rules/:ruleId", assistantHandler.DeleteRule)

			assistant.GET("/responses", assistantHandler.ListResponses)
			assistant.GET("/responses/stats", assistantHandler.ResponseStats)
			assistant.GET("/responses/:id", assistantHandler.GetResponse)
			assistant.PUT("/responses/:id", assistantHandler.EditResponse)
			assistant.POST("/responses/:id/approve", assistantHandler.ApproveResponse)
			assistant.POST("/responses/:id/reject", assistantHandler.RejectResponse)
			assistant.POST("/responses/:id/resend", assistantHandler.ResendResponse)

			assistant.POST("/process", assistantHandler.ProcessPending)
		}

		// Settings routes (protected)
		settings := api.Group("/settings")
		settings.Use(requireAuth)
		{
			settings.GET("/ai", settingsHandler.GetAISettings)
			settings.PUT("/ai", settingsHandler.UpdateAISettings)
		}
	}
}

func healthCheck(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
