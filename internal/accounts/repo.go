package accounts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/threst22/pinnaclestore/pkg/db/models"
	"github.com/threst22/pinnaclestore/pkg/enums"
)

// Repository exposes account persistence helpers. Balance debits belong to
// the purchase engine; this layer only provisions accounts and applies plain
// grant increments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, account *models.Account) error
	Get(ctx context.Context, accountID uuid.UUID) (*models.Account, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	List(ctx context.Context) ([]models.Account, error)
	Leaderboard(ctx context.Context, limit int) ([]models.Account, error)
	UpdateName(ctx context.Context, accountID uuid.UUID, name string) (bool, error)
	UpdatePassword(ctx context.Context, accountID uuid.UUID, hash string, requireChange bool) (bool, error)
	GrantPoints(ctx context.Context, accountID uuid.UUID, points int) (bool, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an accounts repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *repositoryImpl) Get(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).First(&account, "id = ?", accountID).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repositoryImpl) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).First(&account, "username = ?", username).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repositoryImpl) List(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	if err := r.db.WithContext(ctx).Order("username ASC").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repositoryImpl) Leaderboard(ctx context.Context, limit int) ([]models.Account, error) {
	var accounts []models.Account
	query := r.db.WithContext(ctx).
		Where("role = ?", enums.AccountRoleEmployee).
		Order("points_balance DESC, username ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repositoryImpl) UpdateName(ctx context.Context, accountID uuid.UUID, name string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", accountID).
		UpdateColumn("name", name)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) UpdatePassword(ctx context.Context, accountID uuid.UUID, hash string, requireChange bool) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", accountID).
		UpdateColumns(map[string]any{
			"password_hash":           hash,
			"require_password_change": requireChange,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) GrantPoints(ctx context.Context, accountID uuid.UUID, points int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", accountID).
		UpdateColumn("points_balance", gorm.Expr("points_balance + ?", points))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
