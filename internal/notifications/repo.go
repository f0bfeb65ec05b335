package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/threst22/pinnaclestore/pkg/db/models"
)

// Repository exposes persistence helpers for the per-account mailbox.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, notification *models.Notification) error
	TrimToCap(ctx context.Context, accountID uuid.UUID, cap int) (int64, error)
	List(ctx context.Context, accountID uuid.UUID) ([]models.Notification, error)
	MarkAllRead(ctx context.Context, accountID uuid.UUID, now time.Time) (int64, error)
	UnreadCount(ctx context.Context, accountID uuid.UUID) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a mailbox repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

// TrimToCap deletes the oldest rows so the account keeps at most cap entries.
func (r *repositoryImpl) TrimToCap(ctx context.Context, accountID uuid.UUID, cap int) (int64, error) {
	if cap <= 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Exec(
		`DELETE FROM notifications
		 WHERE account_id = ?
		   AND id NOT IN (
			SELECT id FROM notifications
			WHERE account_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		 )`,
		accountID, accountID, cap,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repositoryImpl) List(ctx context.Context, accountID uuid.UUID) ([]models.Notification, error) {
	var notifications []models.Notification
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").
		Find(&notifications).Error
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *repositoryImpl) MarkAllRead(ctx context.Context, accountID uuid.UUID, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("account_id = ? AND read_at IS NULL", accountID).
		UpdateColumn("read_at", now)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repositoryImpl) UnreadCount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("account_id = ? AND read_at IS NULL", accountID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
