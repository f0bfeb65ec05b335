package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/threst22/pinnaclestore/api/routes"
	"github.com/threst22/pinnaclestore/internal/accounts"
	"github.com/threst22/pinnaclestore/internal/approvals"
	"github.com/threst22/pinnaclestore/internal/auth"
	"github.com/threst22/pinnaclestore/internal/catalog"
	"github.com/threst22/pinnaclestore/internal/notifications"
	"github.com/threst22/pinnaclestore/internal/pricing"
	"github.com/threst22/pinnaclestore/internal/purchase"
	"github.com/threst22/pinnaclestore/internal/settings"
	"github.com/threst22/pinnaclestore/pkg/auth/session"
	"github.com/threst22/pinnaclestore/pkg/config"
	"github.com/threst22/pinnaclestore/pkg/db"
	"github.com/threst22/pinnaclestore/pkg/logger"
	"github.com/threst22/pinnaclestore/pkg/metrics"
	"github.com/threst22/pinnaclestore/pkg/migrate"
	"github.com/threst22/pinnaclestore/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	purchaseMetrics := metrics.NewPurchaseMetrics(registry)

	conn := dbClient.DB()

	accountsService, err := accounts.NewService(accounts.NewRepository(conn), cfg.Password, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create accounts service", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(accountsService, sessionManager, cfg.JWT, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notifications.NewRepository(conn), cfg.Rewards.MailboxCap)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	pricingService, err := pricing.NewService(pricing.NewRepository(conn))
	if err != nil {
		logg.Error(context.Background(), "failed to create pricing service", err)
		os.Exit(1)
	}

	settingsService, err := settings.NewService(context.Background(), settings.NewRepository(conn), pricingService, dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create settings service", err)
		os.Exit(1)
	}

	catalogService, err := catalog.NewService(catalog.NewRepository(conn), pricingService, settingsService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	engine, err := purchase.NewService(purchase.NewRepository(conn), dbClient, notificationsService, purchaseMetrics, logg, cfg.Rewards)
	if err != nil {
		logg.Error(context.Background(), "failed to create purchase engine", err)
		os.Exit(1)
	}

	approvalsService, err := approvals.NewService(approvals.NewRepository(conn), engine, notificationsService, dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create approvals service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			sessionManager,
			authService,
			accountsService,
			catalogService,
			engine,
			approvalsService,
			notificationsService,
			settingsService,
			registry,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
