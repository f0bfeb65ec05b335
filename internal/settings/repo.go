package settings

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/threst22/pinnaclestore/pkg/db/models"
)

// Repository exposes the singleton settings row.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context) (*models.GlobalSettings, error)
	EnsureDefault(ctx context.Context) error
	UpdateVersioned(ctx context.Context, next *models.GlobalSettings, expectedVersion int) (bool, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a settings repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Get(ctx context.Context) (*models.GlobalSettings, error) {
	var settings models.GlobalSettings
	if err := r.db.WithContext(ctx).First(&settings, "id = ?", models.SettingsID).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}

// EnsureDefault inserts the seed row when it is missing.
func (r *repositoryImpl) EnsureDefault(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.GlobalSettings{ID: models.SettingsID, Theme: "indigo", Version: 1}).Error
}

// UpdateVersioned writes the row only when the stored version still matches.
// A false return means a concurrent update won.
func (r *repositoryImpl) UpdateVersioned(ctx context.Context, next *models.GlobalSettings, expectedVersion int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.GlobalSettings{}).
		Where("id = ? AND version = ?", models.SettingsID, expectedVersion).
		Updates(map[string]any{
			"theme":             next.Theme,
			"logo_url":          next.LogoURL,
			"inflation_percent": next.InflationPercent,
			"version":           expectedVersion + 1,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
