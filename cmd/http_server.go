package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yatrisafe/tourist-safety/internal"
	"github.com/yatrisafe/tourist-safety/internal/audit"
	auditPostgres "github.com/yatrisafe/tourist-safety/internal/audit/postgres"
	"github.com/yatrisafe/tourist-safety/internal/auth"
	authPostgres "github.com/yatrisafe/tourist-safety/internal/auth/postgres"
	"github.com/yatrisafe/tourist-safety/internal/core/events"
	"github.com/yatrisafe/tourist-safety/internal/rbac"
	rbacPostgres "github.com/yatrisafe/tourist-safety/internal/rbac/postgres"
	"github.com/yatrisafe/tourist-safety/internal/security"
	securityPostgres "github.com/yatrisafe/tourist-safety/internal/security/postgres"
	"github.com/yatrisafe/tourist-safety/internal/session"
	sessionPostgres "github.com/yatrisafe/tourist-safety/internal/session/postgres"
	"github.com/yatrisafe/tourist-safety/internal/transport/rest"
	"github.com/yatrisafe/tourist-safety/internal/transport/swagger"
	"github.com/yatrisafe/tourist-safety/internal/user"
	userPostgres "github.com/yatrisafe/tourist-safety/internal/user/postgres"
	"github.com/yatrisafe/tourist-safety/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

const sessionSweepInterval = 5 * time.Minute

type Dependencies struct {
	Config   *internal.Config
	DB       *sqlx.DB
	Router   *chi.Mux
	Sessions *session.Service
	Bus      *events.EventBus
	Logger   *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go runSessionSweeper(sweepCtx, deps.Sessions, deps.Logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		stopSweeper()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		if err := deps.Bus.Drain(ctx); err != nil {
			deps.Logger.Warn("event bus drain interrupted", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		stopSweeper()
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

// runSessionSweeper deactivates expired sessions on a fixed interval.
func runSessionSweeper(ctx context.Context, sessions *session.Service, lg *slog.Logger) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sessions.SweepExpired(ctx); err != nil {
				lg.Error("session sweep failed", "error", err)
			}
		}
	}
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.InitWithOptions(config.Observability.Logging.Level, config.Observability.Logging.Format)
	lg := logger.LoggerWrapper()

	sqlxDB, gormDB, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	ctx := context.Background()
	if err := swagger.ValidateSpec(ctx, "./api/openapi.yml"); err != nil {
		return nil, fmt.Errorf("openapi spec check failed: %w", err)
	}

	bus := events.NewEventBus(lg)
	registerEventLogging(bus, lg)

	auditService := audit.NewService(auditPostgres.NewAuditRepository(gormDB), lg)
	sessionService := session.NewService(
		sessionPostgres.NewSessionRepository(gormDB),
		auditService,
		config.Security.SessionDuration,
		lg,
	)
	guard := security.NewGuard(
		securityPostgres.NewSecurityStateRepository(gormDB),
		auditService,
		bus,
		security.Config{
			LockoutThreshold:   config.Security.LockoutThreshold,
			LockoutDuration:    config.Security.LockoutDuration,
			ResetTokenDuration: config.Security.ResetTokenDuration,
		},
		lg,
	)
	resolver := rbac.NewResolver(rbacPostgres.NewRoleRepository(gormDB), lg)
	if err := resolver.ValidateCatalog(ctx); err != nil {
		return nil, fmt.Errorf("role catalog check failed: %w", err)
	}

	hasher, err := auth.NewPasswordHasher(config.Security.BCryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize password hasher: %w", err)
	}
	tokenGenerator := auth.NewJWTTokenGenerator(config.Security.JWTSecret, config.Security.AccessTokenDuration)

	authService := auth.NewService(
		authPostgres.NewAuthRepository(gormDB),
		hasher,
		tokenGenerator,
		sessionService,
		guard,
		resolver,
		auditService,
		bus,
		config.Security,
		lg,
	)
	userService := user.NewService(
		userPostgres.NewUserRepository(gormDB),
		sessionService,
		resolver,
		auditService,
		lg,
	)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, rest.RouterDeps{
		DB:             sqlxDB.DB,
		AuthHandler:    auth.NewHandler(authService),
		UserHandler:    user.NewHandler(userService),
		RBACHandler:    rbac.NewHandler(resolver),
		AuditHandler:   audit.NewHandler(auditService),
		AllowedOrigins: config.Server.AllowedOrigins,
		Logger:         lg,
	})

	return &Dependencies{
		Config:   config,
		DB:       sqlxDB,
		Router:   router,
		Sessions: sessionService,
		Bus:      bus,
		Logger:   lg,
	}, nil
}

// registerEventLogging attaches the default subscribers: security events are
// at least logged even when no external delivery channel is configured.
func registerEventLogging(bus *events.EventBus, lg *slog.Logger) {
	logEvent := func(ctx context.Context, event events.Event) error {
		lg.Info("security event",
			"event_type", event.EventType(),
			"event_id", event.EventID())
		return nil
	}

	bus.Subscribe(events.EventAccountLocked, logEvent)
	bus.Subscribe(events.EventPasswordReset, logEvent)
	bus.Subscribe(events.EventPasswordChanged, logEvent)
	bus.Subscribe(events.EventUserRegistered, logEvent)
}

// initDB opens one pgx connection pool and hands the same pool to both sqlx
// (health checks, migrations) and GORM (repositories).
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, *gorm.DB, error) {
	const driver = "pgx"

	sqlxDB, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	sqlxDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlxDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlxDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlxDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlxDB.Ping(); err != nil {
		_ = sqlxDB.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	gormDB, err := gorm.Open(gormPostgres.New(gormPostgres.Config{Conn: sqlxDB.DB}), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		_ = sqlxDB.Close()
		return nil, nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	return sqlxDB, gormDB, nil
}
