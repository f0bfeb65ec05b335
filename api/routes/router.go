package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/threst22/pinnaclestore/api/controllers"
	"github.com/threst22/pinnaclestore/api/middleware"
	"github.com/threst22/pinnaclestore/internal/accounts"
	"github.com/threst22/pinnaclestore/internal/approvals"
	"github.com/threst22/pinnaclestore/internal/auth"
	"github.com/threst22/pinnaclestore/internal/catalog"
	"github.com/threst22/pinnaclestore/internal/notifications"
	"github.com/threst22/pinnaclestore/internal/purchase"
	"github.com/threst22/pinnaclestore/internal/settings"
	"github.com/threst22/pinnaclestore/pkg/auth/session"
	"github.com/threst22/pinnaclestore/pkg/config"
	"github.com/threst22/pinnaclestore/pkg/db"
	"github.com/threst22/pinnaclestore/pkg/enums"
	"github.com/threst22/pinnaclestore/pkg/logger"
	"github.com/threst22/pinnaclestore/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	sessionManager session.AccessSessionChecker,
	authService auth.Service,
	accountsService accounts.Service,
	catalogService catalog.Service,
	engine purchase.Engine,
	approvalsService approvals.Service,
	notificationsService notifications.Service,
	settingsService settings.Service,
	registry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	var cachePinger redis.Pinger
	if redisClient != nil {
		cachePinger = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, cachePinger))
	})

	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Post("/api/v1/auth/login", controllers.AuthLogin(authService, logg))

	var idempotencyStore redis.IdempotencyStore
	if redisClient != nil {
		idempotencyStore = redisClient
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessionManager, logg))
		r.Use(middleware.Idempotency(idempotencyStore, cfg.Rewards.IdempotencyTTL, logg))

		r.Post("/auth/logout", controllers.AuthLogout(authService, logg))
		r.Post("/auth/change-password", controllers.ChangePassword(authService, logg))

		r.Get("/me", controllers.AccountMe(accountsService, logg))
		r.Patch("/me/name", controllers.AccountUpdateName(accountsService, logg))
		r.Get("/leaderboard", controllers.Leaderboard(accountsService, logg))

		r.Get("/catalog", controllers.CatalogStorefront(catalogService, logg))
		r.Get("/settings", controllers.SettingsGet(settingsService, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
		})

		r.Post("/requests", controllers.RequestSubmit(approvalsService, logg))
		r.Get("/requests/mine", controllers.MyRequests(approvalsService, logg))
		r.Get("/history/mine", controllers.MyHistory(engine, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(string(enums.AccountRoleAdmin), logg))

			r.Get("/admin/ping", controllers.AdminPing())

			r.Route("/catalog/manage", func(r chi.Router) {
				r.Get("/", controllers.CatalogList(catalogService, logg))
				r.Post("/", controllers.CatalogCreate(catalogService, logg))
				r.Post("/import", controllers.CatalogImport(catalogService, logg))
				r.Get("/{itemId}", controllers.CatalogGet(catalogService, logg))
				r.Patch("/{itemId}", controllers.CatalogUpdate(catalogService, logg))
				r.Delete("/{itemId}", controllers.CatalogDelete(catalogService, logg))
			})

			r.Get("/requests", controllers.PendingRequests(approvalsService, logg))
			r.Post("/requests/{requestId}/approve", controllers.RequestApprove(approvalsService, logg))
			r.Post("/requests/{requestId}/deny", controllers.RequestDeny(approvalsService, logg))

			r.Post("/checkout", controllers.Checkout(engine, logg))
			r.Get("/history", controllers.HistoryList(engine, logg))

			r.Route("/accounts", func(r chi.Router) {
				r.Get("/", controllers.AccountRoster(accountsService, logg))
				r.Post("/", controllers.AccountProvision(accountsService, logg))
				r.Post("/grants/import", controllers.AccountGrantImport(accountsService, logg))
				r.Post("/{accountId}/grant", controllers.AccountGrant(accountsService, logg))
				r.Post("/{accountId}/reset-password", controllers.AccountResetPassword(accountsService, logg))
			})

			r.Put("/settings", controllers.SettingsUpdate(settingsService, logg))
		})
	})

	return r
}
