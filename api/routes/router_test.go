package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/threst22/pinnaclestore/internal/accounts"
	"github.com/threst22/pinnaclestore/internal/approvals"
	"github.com/threst22/pinnaclestore/internal/auth"
	"github.com/threst22/pinnaclestore/internal/catalog"
	"github.com/threst22/pinnaclestore/internal/notifications"
	"github.com/threst22/pinnaclestore/internal/purchase"
	"github.com/threst22/pinnaclestore/internal/settings"
	pkgauth "github.com/threst22/pinnaclestore/pkg/auth"
	"github.com/threst22/pinnaclestore/pkg/auth/session"
	"github.com/threst22/pinnaclestore/pkg/config"
	"github.com/threst22/pinnaclestore/pkg/db/models"
	"github.com/threst22/pinnaclestore/pkg/enums"
	"github.com/threst22/pinnaclestore/pkg/logger"
	"github.com/threst22/pinnaclestore/pkg/pagination"
	"github.com/threst22/pinnaclestore/pkg/redis"
)

func TestRouterHealthLive(t *testing.T) {
	router := buildTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if env := resp.Header().Get("X-Pinnacle-Env"); env != "test" {
		t.Fatalf("expected env header test got %q", env)
	}
}

func TestRouterRejectsMissingToken(t *testing.T) {
	router := buildTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestRouterRejectsEmployeeOnAdminRoutes(t *testing.T) {
	cfg := testRouterConfig()
	router := buildTestRouterWithConfig(t, cfg)
	token := mintRouterToken(t, cfg.JWT, enums.AccountRoleEmployee)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestRouterAllowsAdminOnAdminRoutes(t *testing.T) {
	cfg := testRouterConfig()
	router := buildTestRouterWithConfig(t, cfg)
	token := mintRouterToken(t, cfg.JWT, enums.AccountRoleAdmin)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestRouterStorefrontForEmployee(t *testing.T) {
	cfg := testRouterConfig()
	router := buildTestRouterWithConfig(t, cfg)
	token := mintRouterToken(t, cfg.JWT, enums.AccountRoleEmployee)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func buildTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return buildTestRouterWithConfig(t, testRouterConfig())
}

func buildTestRouterWithConfig(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard})
	return NewRouter(
		cfg,
		logg,
		stubDBPinger{},
		(*redis.Client)(nil),
		stubSessionChecker{ok: true},
		stubAuthService{},
		stubAccountsService{},
		stubCatalogService{},
		stubPurchaseEngine{},
		stubApprovalsService{},
		stubNotificationsService{},
		stubSettingsService{},
		nil,
	)
}

func testRouterConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "router-test-secret",
			Issuer:            "pinnaclestore-test",
			ExpirationMinutes: 60,
		},
		Rewards: config.RewardsConfig{IdempotencyTTL: time.Hour},
	}
}

func mintRouterToken(t *testing.T, cfg config.JWTConfig, role enums.AccountRole) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(cfg, time.Now(), pkgauth.AccessTokenPayload{
		AccountID: uuid.New(),
		Role:      role,
		JTI:       session.NewAccessID(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

type stubDBPinger struct{}

func (stubDBPinger) Ping(ctx context.Context) error { return nil }

type stubSessionChecker struct{ ok bool }

func (s stubSessionChecker) HasSession(ctx context.Context, accessID string) (bool, error) {
	return s.ok, nil
}

type stubAuthService struct{}

func (stubAuthService) Login(ctx context.Context, input auth.LoginInput) (*auth.LoginResult, error) {
	panic("unimplemented")
}
func (stubAuthService) Logout(ctx context.Context, accessID string) error { panic("unimplemented") }
func (stubAuthService) ChangePassword(ctx context.Context, accountID uuid.UUID, current, next string) error {
	panic("unimplemented")
}

type stubAccountsService struct{}

func (stubAccountsService) Provision(ctx context.Context, input accounts.ProvisionInput) (*accounts.ProvisionResult, error) {
	panic("unimplemented")
}
func (stubAccountsService) Get(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	return &models.Account{ID: accountID}, nil
}
func (stubAccountsService) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	panic("unimplemented")
}
func (stubAccountsService) UpdateName(ctx context.Context, accountID uuid.UUID, name string) error {
	panic("unimplemented")
}
func (stubAccountsService) SetPassword(ctx context.Context, accountID uuid.UUID, password string, requireChange bool) error {
	panic("unimplemented")
}
func (stubAccountsService) ResetPassword(ctx context.Context, accountID uuid.UUID) (string, error) {
	panic("unimplemented")
}
func (stubAccountsService) GrantPoints(ctx context.Context, accountID uuid.UUID, points int) (*models.Account, error) {
	panic("unimplemented")
}
func (stubAccountsService) ImportGrantsCSV(ctx context.Context, reader io.Reader) (*accounts.GrantImportResult, error) {
	panic("unimplemented")
}
func (stubAccountsService) Roster(ctx context.Context) ([]models.Account, error) {
	panic("unimplemented")
}
func (stubAccountsService) Leaderboard(ctx context.Context, limit int) ([]models.Account, error) {
	return []models.Account{}, nil
}

type stubCatalogService struct{}

func (stubCatalogService) Create(ctx context.Context, input catalog.CreateItemInput) (*models.CatalogItem, error) {
	panic("unimplemented")
}
func (stubCatalogService) Update(ctx context.Context, itemID uuid.UUID, input catalog.UpdateItemInput) (*models.CatalogItem, error) {
	panic("unimplemented")
}
func (stubCatalogService) Delete(ctx context.Context, itemID uuid.UUID) error {
	panic("unimplemented")
}
func (stubCatalogService) Get(ctx context.Context, itemID uuid.UUID) (*models.CatalogItem, error) {
	panic("unimplemented")
}
func (stubCatalogService) List(ctx context.Context) ([]models.CatalogItem, error) {
	panic("unimplemented")
}
func (stubCatalogService) ListInStock(ctx context.Context) ([]models.CatalogItem, error) {
	return []models.CatalogItem{}, nil
}
func (stubCatalogService) ImportCSV(ctx context.Context, reader io.Reader) (*catalog.ImportResult, error) {
	panic("unimplemented")
}

type stubPurchaseEngine struct{}

func (stubPurchaseEngine) Execute(ctx context.Context, input purchase.ExecuteInput) (*purchase.Receipt, error) {
	panic("unimplemented")
}
func (stubPurchaseEngine) ExecuteTx(ctx context.Context, tx *gorm.DB, input purchase.ExecuteInput) (*purchase.Receipt, error) {
	panic("unimplemented")
}
func (stubPurchaseEngine) HistoryPage(ctx context.Context, params pagination.Params) (*purchase.HistoryPage, error) {
	panic("unimplemented")
}
func (stubPurchaseEngine) HistoryForAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]models.PurchaseHistoryRecord, error) {
	panic("unimplemented")
}

type stubApprovalsService struct{}

func (stubApprovalsService) Submit(ctx context.Context, accountID uuid.UUID, lines []purchase.Line) (*models.PurchaseRequest, error) {
	panic("unimplemented")
}
func (stubApprovalsService) Approve(ctx context.Context, requestID uuid.UUID) (*approvals.Resolution, error) {
	panic("unimplemented")
}
func (stubApprovalsService) Deny(ctx context.Context, requestID uuid.UUID) error {
	panic("unimplemented")
}
func (stubApprovalsService) ListPending(ctx context.Context) ([]models.PurchaseRequest, error) {
	panic("unimplemented")
}
func (stubApprovalsService) ListForAccount(ctx context.Context, accountID uuid.UUID) ([]models.PurchaseRequest, error) {
	panic("unimplemented")
}

type stubNotificationsService struct{}

func (stubNotificationsService) Post(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, kind enums.NotificationKind, message string) error {
	panic("unimplemented")
}
func (stubNotificationsService) List(ctx context.Context, accountID uuid.UUID) (*notifications.ListResult, error) {
	panic("unimplemented")
}
func (stubNotificationsService) MarkAllRead(ctx context.Context, accountID uuid.UUID) (int64, error) {
	panic("unimplemented")
}

type stubSettingsService struct{}

func (stubSettingsService) Get(ctx context.Context) (*models.GlobalSettings, error) {
	panic("unimplemented")
}
func (stubSettingsService) Update(ctx context.Context, input settings.UpdateInput) (*models.GlobalSettings, error) {
	panic("unimplemented")
}
func (stubSettingsService) InflationPercent(ctx context.Context) (decimal.Decimal, error) {
	panic("unimplemented")
}
