package approvals

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/threst22/pinnaclestore/pkg/db/models"
)

// Repository exposes persistence helpers for pending purchase requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.PurchaseRequest) error
	Get(ctx context.Context, requestID uuid.UUID) (*models.PurchaseRequest, error)
	ListPending(ctx context.Context) ([]models.PurchaseRequest, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]models.PurchaseRequest, error)
	DeleteIfExists(ctx context.Context, requestID uuid.UUID) (bool, error)
	GetAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error)
	GetItems(ctx context.Context, itemIDs []uuid.UUID) ([]models.CatalogItem, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an approvals repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, request *models.PurchaseRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repositoryImpl) Get(ctx context.Context, requestID uuid.UUID) (*models.PurchaseRequest, error) {
	var request models.PurchaseRequest
	if err := r.db.WithContext(ctx).First(&request, "id = ?", requestID).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repositoryImpl) ListPending(ctx context.Context) ([]models.PurchaseRequest, error) {
	var requests []models.PurchaseRequest
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *repositoryImpl) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]models.PurchaseRequest, error) {
	var requests []models.PurchaseRequest
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC, id ASC").
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

// DeleteIfExists removes the request row and reports whether this caller won
// the delete. A false return means another resolution got there first.
func (r *repositoryImpl) DeleteIfExists(ctx context.Context, requestID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Where("id = ?", requestID).Delete(&models.PurchaseRequest{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
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
