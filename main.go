package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "friendlymail-backend/cmd/api"
	"friendlymail-backend/internal/app"
	"friendlymail-backend/pkg/config"
	"friendlymail-backend/pkg/database"
	"friendlymail-backend/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	// Auto-migrate database schemas
	if err := app.Migrate(db); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	a, err := app.New(ctx, cfg, db, log)
	if err != nil {
		log.Fatal("failed to initialize", zap.Error(err))
	}
	defer a.Close()

	// Background work: periodic auto-sync and gmail push
	a.Scheduler.Start(ctx)
	defer a.Scheduler.Stop()

	listener, err := a.StartPushListener(ctx)
	if err != nil {
		log.Error("gmail push disabled", zap.Error(err))
	}
	if listener != nil {
		defer listener.Close()
	}

	srv := api.NewHandler(a).Server(":" + cfg.Port)
	go func() {
		log.Info("server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
}
