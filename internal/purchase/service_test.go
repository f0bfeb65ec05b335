package purchase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/threst22/pinnaclestore/internal/notifications"
	"github.com/threst22/pinnaclestore/pkg/config"
	"github.com/threst22/pinnaclestore/pkg/db/models"
	"github.com/threst22/pinnaclestore/pkg/enums"
	pkgerrors "github.com/threst22/pinnaclestore/pkg/errors"
	"github.com/threst22/pinnaclestore/pkg/metrics"
	"github.com/threst22/pinnaclestore/pkg/pagination"
	"github.com/threst22/pinnaclestore/pkg/types"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func setupPurchaseTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Account{},
		&models.CatalogItem{},
		&models.PurchaseHistoryRecord{},
		&models.Notification{},
	))
	return db
}

func newTestEngine(t *testing.T, db *gorm.DB, cfg config.RewardsConfig) Engine {
	t.Helper()

	mailbox, err := notifications.NewService(notifications.NewRepository(db), 20)
	require.NoError(t, err)

	if cfg.HistoryCap == 0 {
		cfg.HistoryCap = 500
	}
	if cfg.PurchaseRetryBackoff == 0 {
		cfg.PurchaseRetryBackoff = time.Millisecond
	}
	engine, err := NewService(NewRepository(db), gormTxRunner{db: db}, mailbox, metrics.NewPurchaseMetrics(nil), nil, cfg)
	require.NoError(t, err)
	return engine
}

func seedAccount(t *testing.T, db *gorm.DB, balance int) *models.Account {
	t.Helper()
	account := &models.Account{
		ID:            uuid.New(),
		Username:      fmt.Sprintf("user-%s", uuid.NewString()[:8]),
		Name:          "Casey Jones",
		PasswordHash:  "x",
		Role:          enums.AccountRoleEmployee,
		PointsBalance: balance,
	}
	require.NoError(t, db.Create(account).Error)
	return account
}

func seedItem(t *testing.T, db *gorm.DB, name string, price, stock int) *models.CatalogItem {
	t.Helper()
	item := &models.CatalogItem{
		ID:              uuid.New(),
		Name:            name,
		BasePricePoints: price,
		PricePoints:     price,
		Stock:           stock,
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

func TestExecuteAppliesDebitStockAndHistory(t *testing.T) {
	db := setupPurchaseTestDB(t)
	engine := newTestEngine(t, db, config.RewardsConfig{})
	ctx := context.Background()

	account := seedAccount(t, db, 1000)
	item := seedItem(t, db, "Desk Lamp", 600, 5)

	receipt, err := engine.Execute(ctx, ExecuteInput{
		AccountID: account.ID,
		Lines:     []Line{{ItemID: item.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 400, receipt.NewBalance)
	assert.Equal(t, 600, receipt.TotalPoints)

	var gotAccount models.Account
	require.NoError(t, db.First(&gotAccount, "id = ?", account.ID).Error)
	assert.Equal(t, 400, gotAccount.PointsBalance)

	var gotItem models.CatalogItem
	require.NoError(t, db.First(&gotItem, "id = ?", item.ID).Error)
	assert.Equal(t, 4, gotItem.Stock)

	var records []models.PurchaseHistoryRecord
	require.NoError(t, db.Find(&records).Error)
	require.Len(t, records, 1)
	assert.Equal(t, account.ID, records[0].AccountID)
	assert.Equal(t, account.Name, records[0].AccountName)
	assert.Equal(t, 600, records[0].TotalPoints)

	lines, err := types.UnmarshalLines(records[0].Lines)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "Desk Lamp", lines[0].Name)
	assert.Equal(t, 600, lines[0].UnitPrice)
	assert.Equal(t, 1, lines[0].Quantity)
}

func TestExecuteInsufficientPointsLeavesStateUntouched(t *testing.T) {
	db := setupPurchaseTestDB(t)
	engine := newTestEngine(t, db, config.RewardsConfig{})
	ctx := context.Background()

	account := seedAccount(t, db, 500)
	item := seedItem(t, db, "Desk Lamp", 600, 5)

	_, err := engine.Execute(ctx, ExecuteInput{
		AccountID: account.ID,
		Lines:     []Line{{ItemID: item.ID, Quantity: 1}},
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientPoints) {
		t.Fatalf("expected insufficient points, got %v", err)
	}

	var gotAccount models.Account
	require.NoError(t, db.First(&gotAccount, "id = ?", account.ID).Error)
	assert.Equal(t, 500, gotAccount.PointsBalance)

	var gotItem models.CatalogItem
	require.NoError(t, db.First(&gotItem, "id = ?", item.ID).Error)
	assert.Equal(t, 5, gotItem.Stock)

	var count int64
	require.NoError(t, db.Model(&models.PurchaseHistoryRecord{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestExecuteInsufficientStockRollsBackDebit(t *testing.T) {
	db := setupPurchaseTestDB(t)
	engine := newTestEngine(t, db, config.RewardsConfig{})
	ctx := context.Background()

	account := seedAccount(t, db, 1000)
	plenty := seedItem(t, db, "Sticker Pack", 100, 10)
	scarce := seedItem(t, db, "Hoodie", 100, 1)

	_, err := engine.Execute(ctx, ExecuteInput{
		AccountID: account.ID,
		Lines: []Line{
			{ItemID: plenty.ID, Quantity: 1},
			{ItemID: scarce.ID, Quantity: 2},
		},
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	// The debit and the first decrement must roll back with the failure.
	var gotAccount models.Account
	require.NoError(t, db.First(&gotAccount, "id = ?", account.ID).Error)
	assert.Equal(t, 1000, gotAccount.PointsBalance)

	var gotItem models.CatalogItem
	require.NoError(t, db.First(&gotItem, "id = ?", plenty.ID).Error)
	assert.Equal(t, 10, gotItem.Stock)
	gotItem = models.CatalogItem{}
	require.NoError(t, db.First(&gotItem, "id = ?", scarce.ID).Error)
	assert.Equal(t, 1, gotItem.Stock)

	var count int64
	require.NoError(t, db.Model(&models.PurchaseHistoryRecord{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestExecuteInsufficientPointsWinsOverStock(t *testing.T) {
	db := setupPurchaseTestDB(t)
	engine := newTestEngine(t, db, config.RewardsConfig{})
	ctx := context.Background()

	account := seedAccount(t, db, 100)
	item := seedItem(t, db, "Monitor", 600, 0)

	_, err := engine.Execute(ctx, ExecuteInput{
		AccountID: account.ID,
		Lines:     []Line{{ItemID: item.ID, Quantity: 1}},
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientPoints) {
		t.Fatalf("expected insufficient points to take precedence, got %v", err)
	}
}

func TestExecuteApprovalPostsSuccessNotification(t *testing.T) {
	db := setupPurchaseTestDB(t)
	engine := newTestEngine(t, db, config.RewardsConfig{})
	ctx := context.Background()

	account := seedAccount(t, db, 1000)
	item := seedItem(t, db, "Water Bottle", 150, 3)

	_, err := engine.Execute(ctx, ExecuteInput{
		AccountID:  account.ID,
		Lines:      []Line{{ItemID: item.ID, Quantity: 2}},
		IsApproval: true,
	})
	require.NoError(t, err)

	var posted []models.Notification
	require.NoError(t, db.Where("account_id = ?", account.ID).Find(&posted).Error)
	require.Len(t, posted, 1)
	assert.Equal(t, enums.NotificationKindSuccess, posted[0].Kind)
	assert.Contains(t, posted[0].Message, "Water Bottle x2")
	assert.Contains(t, posted[0].Message, "300 points")
}

func TestExecuteDirectCheckoutSkipsNotification(t *testing.T) {
	db := setupPurchaseTestDB(t)
	engine := newTestEngine(t, db, config.RewardsConfig{})
	ctx := context.Background()

	account := seedAccount(t, db, 1000)
	item := seedItem(t, db, "Water Bottle", 150, 3)

	_, err := engine.Execute(ctx, ExecuteInput{
		AccountID: account.ID,
		Lines:     []Line{{ItemID: item.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Where("account_id = ?", account.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestExecuteChargesCurrentPriceNotBase(t *testing.T) {
	db := setupPurchaseTestDB(t)
	engine := newTestEngine(t, db, config.RewardsConfig{})
	ctx := context.Background()

	account := seedAccount(t, db, 1000)
	item := &models.CatalogItem{
		ID:              uuid.New(),
		Name:            "Keyboard",
		BasePricePoints: 100,
		PricePoints:     115,
		Stock:           2,
	}
	require.NoError(t, db.Create(item).Error)

	receipt, err := engine.Execute(ctx, ExecuteInput{
		AccountID: account.ID,
		Lines:     []Line{{ItemID: item.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 115, receipt.TotalPoints)
	assert.Equal(t, 885, receipt.NewBalance)
}

func TestExecuteValidation(t *testing.T) {
	db := setupPurchaseTestDB(t)
	engine := newTestEngine(t, db, config.RewardsConfig{})
	ctx := context.Background()

	itemID := uuid.New()
	tests := []struct {
		name  string
		input ExecuteInput
	}{
		{name: "missing account", input: ExecuteInput{Lines: []Line{{ItemID: itemID, Quantity: 1}}}},
		{name: "empty cart", input: ExecuteInput{AccountID: uuid.New()}},
		{name: "zero quantity", input: ExecuteInput{AccountID: uuid.New(), Lines: []Line{{ItemID: itemID, Quantity: 0}}}},
		{name: "missing item id", input: ExecuteInput{AccountID: uuid.New(), Lines: []Line{{Quantity: 1}}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.Execute(ctx, tc.input)
			if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestExecuteMergesDuplicateLines(t *testing.T) {
	db := setupPurchaseTestDB(t)
	engine := newTestEngine(t, db, config.RewardsConfig{})
	ctx := context.Background()

	account := seedAccount(t, db, 100)
	item := seedItem(t, db, "Mug", 10, 5)

	receipt, err := engine.Execute(ctx, ExecuteInput{
		AccountID: account.ID,
		Lines: []Line{
			{ItemID: item.ID, Quantity: 1},
			{ItemID: item.ID, Quantity: 2},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 30, receipt.TotalPoints)
	assert.Equal(t, 70, receipt.NewBalance)
	require.Len(t, receipt.Lines, 1)
	assert.Equal(t, 3, receipt.Lines[0].Quantity)

	var updatedItem models.CatalogItem
	require.NoError(t, db.First(&updatedItem, "id = ?", item.ID).Error)
	assert.Equal(t, 2, updatedItem.Stock)
}

func TestExecuteUnknownAccountAndItem(t *testing.T) {
	db := setupPurchaseTestDB(t)
	engine := newTestEngine(t, db, config.RewardsConfig{})
	ctx := context.Background()

	_, err := engine.Execute(ctx, ExecuteInput{
		AccountID: uuid.New(),
		Lines:     []Line{{ItemID: uuid.New(), Quantity: 1}},
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for unknown account, got %v", err)
	}

	account := seedAccount(t, db, 100)
	_, err = engine.Execute(ctx, ExecuteInput{
		AccountID: account.ID,
		Lines:     []Line{{ItemID: uuid.New(), Quantity: 1}},
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for unknown item, got %v", err)
	}
}

func TestHistoryTrimKeepsNewestRecords(t *testing.T) {
	db := setupPurchaseTestDB(t)
	engine := newTestEngine(t, db, config.RewardsConfig{HistoryCap: 3})
	ctx := context.Background()

	account := seedAccount(t, db, 10000)
	item := seedItem(t, db, "Pen", 10, 100)

	for i := 0; i < 5; i++ {
		_, err := engine.Execute(ctx, ExecuteInput{
			AccountID: account.ID,
			Lines:     []Line{{ItemID: item.ID, Quantity: 1}},
		})
		require.NoError(t, err)
	}

	page, err := engine.HistoryPage(ctx, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, page.Records, 3)
	assert.Empty(t, page.NextCursor)
}

func TestHistoryPageWalksWithCursor(t *testing.T) {
	db := setupPurchaseTestDB(t)
	engine := newTestEngine(t, db, config.RewardsConfig{})
	ctx := context.Background()

	account := seedAccount(t, db, 10000)
	item := seedItem(t, db, "Pen", 10, 100)

	for i := 0; i < 5; i++ {
		_, err := engine.Execute(ctx, ExecuteInput{
			AccountID: account.ID,
			Lines:     []Line{{ItemID: item.ID, Quantity: 1}},
		})
		require.NoError(t, err)
	}

	seen := map[uuid.UUID]bool{}
	cursor := ""
	pages := 0
	for {
		page, err := engine.HistoryPage(ctx, pagination.Params{Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		require.LessOrEqual(t, len(page.Records), 2)
		for _, record := range page.Records {
			require.False(t, seen[record.ID], "record repeated across pages")
			seen[record.ID] = true
		}
		pages++
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	assert.Len(t, seen, 5)
	assert.Equal(t, 3, pages)
}

func TestHistoryPageRejectsBadCursor(t *testing.T) {
	db := setupPurchaseTestDB(t)
	engine := newTestEngine(t, db, config.RewardsConfig{})

	_, err := engine.HistoryPage(context.Background(), pagination.Params{Cursor: "not-a-cursor"})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

// memEngineStore backs the engine with in-memory state. It acts as both
// Repository and transaction runner: the mutex is held for a whole
// transaction and state is restored on error, modeling the serialized
// guarded updates the database provides.
type memEngineStore struct {
	mu      sync.Mutex
	account models.Account
	item    models.CatalogItem
	history []models.PurchaseHistoryRecord
}

func (m *memEngineStore) WithTx(tx *gorm.DB) Repository { return m }

// memTxRunner serializes transactions over the store and rolls state back
// when the transaction function fails.
type memTxRunner struct {
	store *memEngineStore
}

func (r memTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	savedAccount := r.store.account
	savedItem := r.store.item
	savedHistory := append([]models.PurchaseHistoryRecord(nil), r.store.history...)
	if err := fn(nil); err != nil {
		r.store.account = savedAccount
		r.store.item = savedItem
		r.store.history = savedHistory
		return err
	}
	return nil
}

func (m *memEngineStore) GetAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	if accountID != m.account.ID {
		return nil, gorm.ErrRecordNotFound
	}
	account := m.account
	return &account, nil
}

func (m *memEngineStore) GetItems(ctx context.Context, itemIDs []uuid.UUID) ([]models.CatalogItem, error) {
	for _, id := range itemIDs {
		if id == m.item.ID {
			return []models.CatalogItem{m.item}, nil
		}
	}
	return nil, nil
}

func (m *memEngineStore) DebitBalance(ctx context.Context, accountID uuid.UUID, amount int) (bool, error) {
	if accountID != m.account.ID || m.account.PointsBalance < amount {
		return false, nil
	}
	m.account.PointsBalance -= amount
	return true, nil
}

func (m *memEngineStore) DecrementStock(ctx context.Context, itemID uuid.UUID, quantity int) (bool, error) {
	if itemID != m.item.ID || m.item.Stock < quantity {
		return false, nil
	}
	m.item.Stock -= quantity
	return true, nil
}

func (m *memEngineStore) CreateHistory(ctx context.Context, record *models.PurchaseHistoryRecord) error {
	m.history = append(m.history, *record)
	return nil
}

func (m *memEngineStore) TrimHistory(ctx context.Context, cap int) (int64, error) { return 0, nil }

func (m *memEngineStore) ListHistoryPage(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.PurchaseHistoryRecord, error) {
	return m.history, nil
}

func (m *memEngineStore) ListHistoryByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]models.PurchaseHistoryRecord, error) {
	return m.history, nil
}

func TestConcurrentExecutesNeverOversellStock(t *testing.T) {
	store := &memEngineStore{
		account: models.Account{ID: uuid.New(), Name: "Casey Jones", PointsBalance: 100},
		item:    models.CatalogItem{ID: uuid.New(), Name: "Mug", PricePoints: 10, Stock: 2},
	}
	engine, err := NewService(store, memTxRunner{store: store}, noopPoster{}, metrics.NewPurchaseMetrics(nil), nil,
		config.RewardsConfig{HistoryCap: 500, PurchaseRetryBackoff: time.Millisecond})
	require.NoError(t, err)

	input := ExecuteInput{
		AccountID: store.account.ID,
		Lines:     []Line{{ItemID: store.item.ID, Quantity: 2}},
	}

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, execErr := engine.Execute(context.Background(), input)
			errs <- execErr
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for execErr := range errs {
		if execErr == nil {
			succeeded++
			continue
		}
		assert.True(t, pkgerrors.HasCode(execErr, pkgerrors.CodeInsufficientStock),
			"loser should report insufficient stock, got %v", execErr)
	}
	assert.Equal(t, 1, succeeded, "exactly one purchase may win the last units")
	assert.Equal(t, 0, store.item.Stock)
	assert.Equal(t, 80, store.account.PointsBalance)
	assert.Len(t, store.history, 1)
}

type noopPoster struct{}

func (noopPoster) Post(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, kind enums.NotificationKind, message string) error {
	return nil
}

func TestHistoryForAccountFiltersByAccount(t *testing.T) {
	db := setupPurchaseTestDB(t)
	engine := newTestEngine(t, db, config.RewardsConfig{})
	ctx := context.Background()

	buyer := seedAccount(t, db, 1000)
	other := seedAccount(t, db, 1000)
	item := seedItem(t, db, "Pen", 10, 100)

	for _, account := range []*models.Account{buyer, buyer, other} {
		_, err := engine.Execute(ctx, ExecuteInput{
			AccountID: account.ID,
			Lines:     []Line{{ItemID: item.ID, Quantity: 1}},
		})
		require.NoError(t, err)
	}

	records, err := engine.HistoryForAccount(ctx, buyer.ID, 0)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
