package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CatalogItem is a storefront listing. PricePoints is derived from
// BasePricePoints and the global inflation percent; only the pricing engine
// writes it, and only the purchase engine decrements Stock.
type CatalogItem struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name            string    `gorm:"column:name;type:text;not null"`
	BasePricePoints int       `gorm:"column:base_price_points;not null"`
	PricePoints     int       `gorm:"column:price_points;not null"`
	Stock           int       `gorm:"column:stock;not null;default:0"`
	ImageURL        *string   `gorm:"column:image_url;type:text"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *CatalogItem) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
