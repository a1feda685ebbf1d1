package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yatrisafe/tourist-safety/internal/audit"
	auditPostgres "github.com/yatrisafe/tourist-safety/internal/audit/postgres"
	"github.com/yatrisafe/tourist-safety/internal/core/events"
	"github.com/yatrisafe/tourist-safety/internal/session"
	sessionPostgres "github.com/yatrisafe/tourist-safety/internal/session/postgres"
	"github.com/yatrisafe/tourist-safety/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start and manage background workers: the session sweeper and the security event listener.`,
}

var sweeperWorkerCmd = &cobra.Command{
	Use:   "sweeper",
	Short: "Start the session sweeper",
	Long:  `Periodically deactivate sessions past their absolute expiry.`,
	Run: func(cmd *cobra.Command, args []string) {
		startSweeperWorker()
	},
}

var eventWorkerCmd = &cobra.Command{
	Use:   "events",
	Short: "Start the security event listener",
	Long:  `Subscribe to security events and log them; the delivery side of reset tokens and lockout alerts hangs off this bus.`,
	Run: func(cmd *cobra.Command, args []string) {
		startEventWorker()
	},
}

var sweepInterval time.Duration

func startSweeperWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	lg := logger.LoggerWrapper()

	_, gormDB, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init db: %v\n", err)
		os.Exit(1)
	}

	auditService := audit.NewService(auditPostgres.NewAuditRepository(gormDB), lg)
	sessions := session.NewService(
		sessionPostgres.NewSessionRepository(gormDB),
		auditService,
		config.Security.SessionDuration,
		lg,
	)

	lg.Info("session sweeper started", "interval", sweepInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigChan:
			lg.Info("received signal, shutting down sweeper", "signal", sig)
			return
		case <-ticker.C:
			swept, err := sessions.SweepExpired(ctx)
			if err != nil {
				lg.Error("session sweep failed", "error", err)
				continue
			}
			if swept > 0 {
				lg.Info("sweep pass complete", "swept", swept)
			}
		}
	}
}

func startEventWorker() {
	_, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	lg := logger.LoggerWrapper()

	eventBus := events.NewEventBus(lg)

	logHandler := func(ctx context.Context, event events.Event) error {
		lg.Info("security event received",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	}

	for _, eventType := range []string{
		events.EventUserRegistered,
		events.EventUserLogin,
		events.EventLoginFailed,
		events.EventAccountLocked,
		events.EventPasswordChanged,
		events.EventPasswordReset,
		events.EventSessionEnded,
	} {
		eventBus.Subscribe(eventType, logHandler)
	}

	lg.Info("security event listener started. Waiting for events...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	lg.Info("received signal, shutting down event listener", "signal", sig)
}

func init() {
	sweeperWorkerCmd.Flags().DurationVar(&sweepInterval, "interval", 5*time.Minute, "How often to sweep expired sessions")

	workerCmd.AddCommand(sweeperWorkerCmd)
	workerCmd.AddCommand(eventWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
