package approvals

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/threst22/pinnaclestore/internal/notifications"
	"github.com/threst22/pinnaclestore/internal/purchase"
	"github.com/threst22/pinnaclestore/pkg/config"
	"github.com/threst22/pinnaclestore/pkg/db/models"
	"github.com/threst22/pinnaclestore/pkg/enums"
	pkgerrors "github.com/threst22/pinnaclestore/pkg/errors"
	"github.com/threst22/pinnaclestore/pkg/metrics"
	"github.com/threst22/pinnaclestore/pkg/types"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type approvalsFixture struct {
	db      *gorm.DB
	svc     Service
	engine  purchase.Engine
	mailbox notifications.Service
}

func setupApprovalsFixture(t *testing.T) *approvalsFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Account{},
		&models.CatalogItem{},
		&models.PurchaseRequest{},
		&models.PurchaseHistoryRecord{},
		&models.Notification{},
	))

	mailbox, err := notifications.NewService(notifications.NewRepository(db), 20)
	require.NoError(t, err)

	engine, err := purchase.NewService(
		purchase.NewRepository(db),
		gormTxRunner{db: db},
		mailbox,
		metrics.NewPurchaseMetrics(nil),
		nil,
		config.RewardsConfig{HistoryCap: 500, PurchaseMaxRetries: 1, PurchaseRetryBackoff: time.Millisecond},
	)
	require.NoError(t, err)

	svc, err := NewService(NewRepository(db), engine, mailbox, gormTxRunner{db: db}, nil)
	require.NoError(t, err)

	return &approvalsFixture{db: db, svc: svc, engine: engine, mailbox: mailbox}
}

func (f *approvalsFixture) seedAccount(t *testing.T, balance int) *models.Account {
	t.Helper()
	account := &models.Account{
		ID:            uuid.New(),
		Username:      fmt.Sprintf("user-%s", uuid.NewString()[:8]),
		Name:          "Robin Patel",
		PasswordHash:  "x",
		Role:          enums.AccountRoleEmployee,
		PointsBalance: balance,
	}
	require.NoError(t, f.db.Create(account).Error)
	return account
}

func (f *approvalsFixture) seedItem(t *testing.T, name string, price, stock int) *models.CatalogItem {
	t.Helper()
	item := &models.CatalogItem{
		ID:              uuid.New(),
		Name:            name,
		BasePricePoints: price,
		PricePoints:     price,
		Stock:           stock,
	}
	require.NoError(t, f.db.Create(item).Error)
	return item
}

func (f *approvalsFixture) notificationsFor(t *testing.T, accountID uuid.UUID) []models.Notification {
	t.Helper()
	var posted []models.Notification
	require.NoError(t, f.db.Where("account_id = ?", accountID).Order("created_at ASC").Find(&posted).Error)
	return posted
}

func TestSubmitSnapshotsCurrentPrices(t *testing.T) {
	f := setupApprovalsFixture(t)
	ctx := context.Background()

	account := f.seedAccount(t, 1000)
	item := f.seedItem(t, "Desk Lamp", 600, 5)

	request, err := f.svc.Submit(ctx, account.ID, []purchase.Line{{ItemID: item.ID, Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, 600, request.TotalPoints)
	assert.Equal(t, account.Name, request.AccountName)

	lines, err := types.UnmarshalLines(request.Lines)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "Desk Lamp", lines[0].Name)
	assert.Equal(t, 600, lines[0].UnitPrice)

	// Submission never touches balance or stock.
	var gotAccount models.Account
	require.NoError(t, f.db.First(&gotAccount, "id = ?", account.ID).Error)
	assert.Equal(t, 1000, gotAccount.PointsBalance)
	var gotItem models.CatalogItem
	require.NoError(t, f.db.First(&gotItem, "id = ?", item.ID).Error)
	assert.Equal(t, 5, gotItem.Stock)
}

func TestSubmitRejectsUnaffordableOrOutOfStockCarts(t *testing.T) {
	f := setupApprovalsFixture(t)
	ctx := context.Background()

	account := f.seedAccount(t, 100)
	pricey := f.seedItem(t, "Monitor", 600, 5)
	scarce := f.seedItem(t, "Hoodie", 50, 1)

	_, err := f.svc.Submit(ctx, account.ID, []purchase.Line{{ItemID: pricey.ID, Quantity: 1}})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientPoints) {
		t.Fatalf("expected insufficient points, got %v", err)
	}

	_, err = f.svc.Submit(ctx, account.ID, []purchase.Line{{ItemID: scarce.ID, Quantity: 2}})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	_, err = f.svc.Submit(ctx, account.ID, nil)
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for empty cart, got %v", err)
	}
}

func TestApproveExecutesPurchaseAndConsumesRequest(t *testing.T) {
	f := setupApprovalsFixture(t)
	ctx := context.Background()

	account := f.seedAccount(t, 1000)
	item := f.seedItem(t, "Desk Lamp", 600, 5)

	request, err := f.svc.Submit(ctx, account.ID, []purchase.Line{{ItemID: item.ID, Quantity: 1}})
	require.NoError(t, err)

	resolution, err := f.svc.Approve(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, ResolutionApproved, resolution.Status)
	assert.False(t, resolution.PriceChanged)
	require.NotNil(t, resolution.Receipt)
	assert.Equal(t, 400, resolution.Receipt.NewBalance)

	var gotAccount models.Account
	require.NoError(t, f.db.First(&gotAccount, "id = ?", account.ID).Error)
	assert.Equal(t, 400, gotAccount.PointsBalance)

	var gotItem models.CatalogItem
	require.NoError(t, f.db.First(&gotItem, "id = ?", item.ID).Error)
	assert.Equal(t, 4, gotItem.Stock)

	var pending int64
	require.NoError(t, f.db.Model(&models.PurchaseRequest{}).Count(&pending).Error)
	assert.Equal(t, int64(0), pending)

	posted := f.notificationsFor(t, account.ID)
	require.Len(t, posted, 1)
	assert.Equal(t, enums.NotificationKindSuccess, posted[0].Kind)
	assert.Contains(t, posted[0].Message, "Desk Lamp x1")
}

func TestApproveResolvesDuplicateLineSubmission(t *testing.T) {
	f := setupApprovalsFixture(t)
	ctx := context.Background()

	account := f.seedAccount(t, 1000)
	item := f.seedItem(t, "Desk Lamp", 100, 5)

	request, err := f.svc.Submit(ctx, account.ID, []purchase.Line{
		{ItemID: item.ID, Quantity: 1},
		{ItemID: item.ID, Quantity: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, 300, request.TotalPoints)

	snapshot, err := types.UnmarshalLines(request.Lines)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, 3, snapshot[0].Quantity)

	resolution, err := f.svc.Approve(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, ResolutionApproved, resolution.Status)
	require.NotNil(t, resolution.Receipt)
	assert.Equal(t, 700, resolution.Receipt.NewBalance)

	var gotItem models.CatalogItem
	require.NoError(t, f.db.First(&gotItem, "id = ?", item.ID).Error)
	assert.Equal(t, 2, gotItem.Stock)

	var pending int64
	require.NoError(t, f.db.Model(&models.PurchaseRequest{}).Count(&pending).Error)
	assert.Equal(t, int64(0), pending)
}

func TestApproveRecomputesAtCurrentPrice(t *testing.T) {
	f := setupApprovalsFixture(t)
	ctx := context.Background()

	account := f.seedAccount(t, 1000)
	item := f.seedItem(t, "Desk Lamp", 600, 5)

	request, err := f.svc.Submit(ctx, account.ID, []purchase.Line{{ItemID: item.ID, Quantity: 1}})
	require.NoError(t, err)

	// Inflation bump after submission: price 600 -> 700.
	require.NoError(t, f.db.Model(&models.CatalogItem{}).
		Where("id = ?", item.ID).
		UpdateColumn("price_points", 700).Error)

	resolution, err := f.svc.Approve(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, ResolutionApproved, resolution.Status)
	assert.True(t, resolution.PriceChanged)
	assert.Equal(t, 700, resolution.Receipt.TotalPoints)
	assert.Equal(t, 300, resolution.Receipt.NewBalance)

	posted := f.notificationsFor(t, account.ID)
	require.Len(t, posted, 2)
	kinds := map[enums.NotificationKind]bool{}
	for _, n := range posted {
		kinds[n.Kind] = true
	}
	assert.True(t, kinds[enums.NotificationKindSuccess])
	assert.True(t, kinds[enums.NotificationKindWarning])
}

func TestApproveAutoDeniesWhenPointsNoLongerCover(t *testing.T) {
	f := setupApprovalsFixture(t)
	ctx := context.Background()

	account := f.seedAccount(t, 650)
	item := f.seedItem(t, "Desk Lamp", 600, 5)

	request, err := f.svc.Submit(ctx, account.ID, []purchase.Line{{ItemID: item.ID, Quantity: 1}})
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&models.CatalogItem{}).
		Where("id = ?", item.ID).
		UpdateColumn("price_points", 700).Error)

	resolution, err := f.svc.Approve(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, ResolutionDenied, resolution.Status)
	assert.Contains(t, resolution.Reason, "points")

	// Auto-denial consumes the request but leaves ledger and stock alone.
	var pending int64
	require.NoError(t, f.db.Model(&models.PurchaseRequest{}).Count(&pending).Error)
	assert.Equal(t, int64(0), pending)

	var gotAccount models.Account
	require.NoError(t, f.db.First(&gotAccount, "id = ?", account.ID).Error)
	assert.Equal(t, 650, gotAccount.PointsBalance)

	var gotItem models.CatalogItem
	require.NoError(t, f.db.First(&gotItem, "id = ?", item.ID).Error)
	assert.Equal(t, 5, gotItem.Stock)

	var history int64
	require.NoError(t, f.db.Model(&models.PurchaseHistoryRecord{}).Count(&history).Error)
	assert.Equal(t, int64(0), history)

	posted := f.notificationsFor(t, account.ID)
	require.Len(t, posted, 1)
	assert.Equal(t, enums.NotificationKindError, posted[0].Kind)
	assert.Contains(t, posted[0].Message, "denied")
}

func TestApproveAutoDeniesWhenStockRanOut(t *testing.T) {
	f := setupApprovalsFixture(t)
	ctx := context.Background()

	account := f.seedAccount(t, 1000)
	item := f.seedItem(t, "Hoodie", 100, 2)

	request, err := f.svc.Submit(ctx, account.ID, []purchase.Line{{ItemID: item.ID, Quantity: 2}})
	require.NoError(t, err)

	// Someone else bought the stock between submission and approval.
	require.NoError(t, f.db.Model(&models.CatalogItem{}).
		Where("id = ?", item.ID).
		UpdateColumn("stock", 1).Error)

	resolution, err := f.svc.Approve(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, ResolutionDenied, resolution.Status)
	assert.Contains(t, resolution.Reason, "stock")

	var gotAccount models.Account
	require.NoError(t, f.db.First(&gotAccount, "id = ?", account.ID).Error)
	assert.Equal(t, 1000, gotAccount.PointsBalance)

	var gotItem models.CatalogItem
	require.NoError(t, f.db.First(&gotItem, "id = ?", item.ID).Error)
	assert.Equal(t, 1, gotItem.Stock)
}

func TestResolutionHappensExactlyOnce(t *testing.T) {
	f := setupApprovalsFixture(t)
	ctx := context.Background()

	account := f.seedAccount(t, 1000)
	item := f.seedItem(t, "Desk Lamp", 600, 5)

	request, err := f.svc.Submit(ctx, account.ID, []purchase.Line{{ItemID: item.ID, Quantity: 1}})
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, request.ID)
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, request.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict on second approve, got %v", err)
	}
	err = f.svc.Deny(ctx, request.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict on deny after approve, got %v", err)
	}

	// Exactly one engine application and one success notification.
	var gotAccount models.Account
	require.NoError(t, f.db.First(&gotAccount, "id = ?", account.ID).Error)
	assert.Equal(t, 400, gotAccount.PointsBalance)

	var history int64
	require.NoError(t, f.db.Model(&models.PurchaseHistoryRecord{}).Count(&history).Error)
	assert.Equal(t, int64(1), history)

	posted := f.notificationsFor(t, account.ID)
	assert.Len(t, posted, 1)
}

func TestDenyConsumesRequestWithoutLedgerChange(t *testing.T) {
	f := setupApprovalsFixture(t)
	ctx := context.Background()

	account := f.seedAccount(t, 1000)
	item := f.seedItem(t, "Desk Lamp", 600, 5)

	request, err := f.svc.Submit(ctx, account.ID, []purchase.Line{{ItemID: item.ID, Quantity: 1}})
	require.NoError(t, err)

	require.NoError(t, f.svc.Deny(ctx, request.ID))

	var pending int64
	require.NoError(t, f.db.Model(&models.PurchaseRequest{}).Count(&pending).Error)
	assert.Equal(t, int64(0), pending)

	var gotAccount models.Account
	require.NoError(t, f.db.First(&gotAccount, "id = ?", account.ID).Error)
	assert.Equal(t, 1000, gotAccount.PointsBalance)

	posted := f.notificationsFor(t, account.ID)
	require.Len(t, posted, 1)
	assert.Equal(t, enums.NotificationKindError, posted[0].Kind)
	assert.Contains(t, posted[0].Message, "Desk Lamp x1")
}

func TestListPendingAndListForAccount(t *testing.T) {
	f := setupApprovalsFixture(t)
	ctx := context.Background()

	first := f.seedAccount(t, 1000)
	second := f.seedAccount(t, 1000)
	item := f.seedItem(t, "Pen", 10, 100)

	_, err := f.svc.Submit(ctx, first.ID, []purchase.Line{{ItemID: item.ID, Quantity: 1}})
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, second.ID, []purchase.Line{{ItemID: item.ID, Quantity: 2}})
	require.NoError(t, err)

	pending, err := f.svc.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	mine, err := f.svc.ListForAccount(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, first.ID, mine[0].AccountID)
}
