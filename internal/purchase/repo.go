package purchase

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/threst22/pinnaclestore/pkg/db/models"
	"github.com/threst22/pinnaclestore/pkg/pagination"
)

// Repository exposes the guarded writes the purchase engine relies on.
// Balance and stock mutations are conditional updates so the database, not
// the application, enforces the non-negative invariants under concurrency.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error)
	GetItems(ctx context.Context, itemIDs []uuid.UUID) ([]models.CatalogItem, error)
	DebitBalance(ctx context.Context, accountID uuid.UUID, amount int) (bool, error)
	DecrementStock(ctx context.Context, itemID uuid.UUID, quantity int) (bool, error)
	CreateHistory(ctx context.Context, record *models.PurchaseHistoryRecord) error
	TrimHistory(ctx context.Context, cap int) (int64, error)
	ListHistoryPage(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.PurchaseHistoryRecord, error)
	ListHistoryByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]models.PurchaseHistoryRecord, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a purchase repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) GetAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).First(&account, "id = ?", accountID).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repositoryImpl) GetItems(ctx context.Context, itemIDs []uuid.UUID) ([]models.CatalogItem, error) {
	var items []models.CatalogItem
	if err := r.db.WithContext(ctx).Where("id IN ?", itemIDs).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// DebitBalance subtracts amount only when the balance covers it. A false
// return means the guard rejected the write, not that the account is missing.
func (r *repositoryImpl) DebitBalance(ctx context.Context, accountID uuid.UUID, amount int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ? AND points_balance >= ?", accountID, amount).
		UpdateColumn("points_balance", gorm.Expr("points_balance - ?", amount))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) DecrementStock(ctx context.Context, itemID uuid.UUID, quantity int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CatalogItem{}).
		Where("id = ? AND stock >= ?", itemID, quantity).
		UpdateColumn("stock", gorm.Expr("stock - ?", quantity))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) CreateHistory(ctx context.Context, record *models.PurchaseHistoryRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// TrimHistory evicts the oldest records past the global recency window.
func (r *repositoryImpl) TrimHistory(ctx context.Context, cap int) (int64, error) {
	if cap <= 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Exec(
		`DELETE FROM purchase_history_records
		 WHERE id NOT IN (
			SELECT id FROM purchase_history_records
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		 )`,
		cap,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repositoryImpl) ListHistoryPage(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.PurchaseHistoryRecord, error) {
	var records []models.PurchaseHistoryRecord
	query := r.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if cursor != nil {
		query = query.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repositoryImpl) ListHistoryByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]models.PurchaseHistoryRecord, error) {
	var records []models.PurchaseHistoryRecord
	query := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
