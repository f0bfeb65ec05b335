package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PurchaseRequest is an employee cart awaiting admin resolution. There is no
// stored terminal status: approve and deny both delete the row, and that
// delete is the concurrency guard against double resolution.
type PurchaseRequest struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	AccountID   uuid.UUID       `gorm:"column:account_id;type:uuid;not null;index"`
	AccountName string          `gorm:"column:account_name;type:text;not null"`
	Lines       json.RawMessage `gorm:"column:lines;type:jsonb;not null"`
	TotalPoints int             `gorm:"column:total_points;not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (p *PurchaseRequest) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
