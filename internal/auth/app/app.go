package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finsightai/finsight/internal/auth/billing"
	httpapi "github.com/finsightai/finsight/internal/auth/http"
	"github.com/finsightai/finsight/internal/auth/metrics"
	"github.com/finsightai/finsight/internal/auth/service"
	"github.com/finsightai/finsight/internal/auth/store/drivers/postgres"
	"github.com/finsightai/finsight/internal/auth/store/drivers/sqlite"
	"github.com/finsightai/finsight/internal/auth/store/sqlstore"
	"github.com/finsightai/finsight/pkg/cryptox"
	"github.com/finsightai/finsight/pkg/httpx"
	"github.com/finsightai/finsight/pkg/jwtx"
	"github.com/finsightai/finsight/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application owns the store, the background workers and the HTTP server.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db         *sqlstore.Store
	keyManager *jwtx.KeyManager

	memberships  *service.MembershipRegistry
	ledger       *service.SubscriptionLedger
	tokens       *service.TokenService
	gate         *service.AuthorizationGate
	users        *service.UserService
	webhooks     *service.WebhookReconciler
	demo         *service.DemoAccessGate
	housekeeping *service.HousekeepingService

	server     *http.Server
	router     *httpapi.Router
	stopStats  context.CancelFunc
	serverErrs chan error
}

// New validates cfg and wires every dependency. Nothing is started yet.
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "finsight-auth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	keyManager, err := InitAuthKeys(app.cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize JWT keys: %w", err)
	}
	app.keyManager = keyManager

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Handler exposes the router, mainly for tests that drive it in-process.
func (app *Application) Handler() http.Handler { return app.router }

// Start launches housekeeping, the pool gauges and the HTTP server. It does
// not block.
func (app *Application) Start(ctx context.Context) error {
	app.housekeeping.Start()

	if app.cfg.DBStatsInterval > 0 {
		statsCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		app.stopStats = cancel
		go metrics.StartDBStatsCollector(statsCtx, app.db.DB(), app.cfg.DBStatsInterval)
	}

	app.serverErrs = make(chan error, 1)
	go func() {
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.serverErrs <- err
		}
		close(app.serverErrs)
	}()

	app.logger.Info("auth service starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"database_driver", app.cfg.DatabaseDriver,
	)
	return nil
}

// Run starts the application and blocks until a signal arrives or the
// server fails.
func (app *Application) Run() error {
	if err := app.Start(context.Background()); err != nil {
		return err
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err, ok := <-app.serverErrs:
		if ok && err != nil {
			_ = app.Stop(context.Background())
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()
	if err := app.Stop(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// Stop releases everything Start acquired, in reverse order.
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("shutting down auth service...")

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeeping.Stop()
	if app.stopStats != nil {
		app.stopStats()
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

func (app *Application) initDatabase() error {
	var (
		db  *sqlstore.Store
		err error
	)
	switch app.cfg.DatabaseDriver {
	case "postgres":
		db, err = postgres.NewStore(app.cfg.DatabaseURL, postgres.DefaultPoolConfig)
	default:
		db, err = sqlite.NewStore(app.cfg.DatabaseFile)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.Ping(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("database unreachable: %w", err)
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}
	app.db = db

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.DatabaseDriver)
	return nil
}

func (app *Application) initServices() {
	app.memberships = &service.MembershipRegistry{Store: app.db}
	app.ledger = &service.SubscriptionLedger{
		Store:       app.db,
		TrialPeriod: app.cfg.TrialPeriod,
	}
	app.tokens = &service.TokenService{
		Store:       app.db,
		Keys:        app.keyManager,
		Memberships: app.memberships,
		Ledger:      app.ledger,
		Issuer:      app.cfg.Issuer,
		AccessTTL:   app.cfg.AccessTTL,
		RefreshTTL:  app.cfg.RefreshTTL,
	}
	app.gate = &service.AuthorizationGate{
		Tokens:      app.tokens,
		Memberships: app.memberships,
		Ledger:      app.ledger,
		Grace:       app.cfg.ClockLeeway,
	}
	app.users = &service.UserService{
		Store:       app.db,
		Hasher:      cryptox.NewPasswordHasher(app.cfg.PasswordPepper),
		Tokens:      app.tokens,
		Memberships: app.memberships,
		Ledger:      app.ledger,
	}

	if app.cfg.StripeWebhookSecret == "" {
		app.logger.Warn("STRIPE_WEBHOOK_SECRET not set, billing webhooks will be rejected")
	}
	app.webhooks = &service.WebhookReconciler{
		Store:  app.db,
		Ledger: app.ledger,
		Auth:   billing.NewStripeAuthenticator(app.cfg.StripeWebhookSecret),
	}

	app.demo = &service.DemoAccessGate{
		Store:    app.db,
		Notifier: service.LogNotifier{},
		TTL:      app.cfg.DemoTokenTTL,
	}

	app.housekeeping = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.WebhookRetention,
	)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.keyManager, BuildVersion, app.db, app.logger)

	router.Limits = httpx.RateLimitProfilesFromEnv()
	router.UserService = app.users
	router.Tokens = app.tokens
	router.Memberships = app.memberships
	router.Ledger = app.ledger
	router.Gate = app.gate
	router.Webhooks = app.webhooks
	router.Demo = app.demo
	router.ExposeDemoToken = app.cfg.DemoExposeToken
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
