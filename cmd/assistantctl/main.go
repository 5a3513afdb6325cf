// Command assistantctl runs maintenance tasks against the friendlymail
// database without starting the HTTP server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"friendlymail-backend/internal/app"
	"friendlymail-backend/internal/assistant/scheduler"
	"friendlymail-backend/internal/assistant/usecase"
	"friendlymail-backend/pkg/config"
	"friendlymail-backend/pkg/database"
	"friendlymail-backend/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var dsn string

func main() {
	rootCmd := &cobra.Command{
		Use:           "assistantctl",
		Short:         "Operate the friendlymail assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dsn, "db", "", "database DSN (defaults to DATABASE_URL)")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(processCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type env struct {
	cfg *config.Config
	log *zap.Logger
	db  *gorm.DB
}

func setup() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dsn != "" {
		cfg.DatabaseURL = dsn
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	db, err := database.NewPostgresConnection(cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, db: db}, nil
}

func buildApp(ctx context.Context) (*app.App, *env, error) {
	e, err := setup()
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(ctx, e.cfg, e.db, e.log)
	if err != nil {
		return nil, nil, err
	}
	return a, e, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.log.Sync()

			if err := app.Migrate(e.db); err != nil {
				return err
			}
			fmt.Printf("Migrated %d tables\n", len(app.Models()))
			return nil
		},
	}
}

func syncCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one auto-sync pass (sync, process, auto-send)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, e, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			defer e.log.Sync()

			var summary scheduler.RunSummary
			if userID != "" {
				if summary, err = a.Scheduler.RunUser(cmd.Context(), userID); err != nil {
					return err
				}
			} else {
				summary = a.Scheduler.RunOnce(cmd.Context())
			}

			fmt.Printf("Owners:    %d (ok %d, failed %d, busy %d)\n", summary.Owners, summary.Succeeded, summary.Failed, summary.Busy)
			fmt.Printf("Synced:    %d new messages\n", summary.Synced)
			fmt.Printf("Processed: %d (responses %d, escalated %d, ignored %d, failed %d)\n",
				summary.Batch.Processed, summary.Batch.Responses, summary.Batch.Escalated, summary.Batch.Ignored, summary.Batch.Failed)
			fmt.Printf("Auto-sent: %d\n", summary.AutoSent)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "only sync this user's accounts")
	return cmd
}

func processCmd() *cobra.Command {
	var userID string
	var limit int

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run the decision engine over a user's unprocessed mail",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			a, e, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			defer e.log.Sync()

			unlock, ok, err := a.Locker.TryLock(cmd.Context(), usecase.OwnerLockKey(userID), e.cfg.Sync.LockTTL)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("user %s is already being processed", userID)
			}
			defer unlock()

			summary, err := a.Engine.ProcessPending(cmd.Context(), userID, limit)
			if err != nil {
				return err
			}
			fmt.Printf("Processed %d: %d responses, %d escalated, %d ignored, %d skipped, %d failed\n",
				summary.Processed, summary.Responses, summary.Escalated, summary.Ignored, summary.Skipped, summary.Failed)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user ID (required)")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum messages to process")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
