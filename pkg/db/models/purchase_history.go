package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PurchaseHistoryRecord is the append-only audit entry for a completed
// purchase. Name and line snapshots are denormalized so the record survives
// later edits or deletion of the account and items it references.
type PurchaseHistoryRecord struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	AccountID   uuid.UUID       `gorm:"column:account_id;type:uuid;not null;index"`
	AccountName string          `gorm:"column:account_name;type:text;not null"`
	Lines       json.RawMessage `gorm:"column:lines;type:jsonb;not null"`
	TotalPoints int             `gorm:"column:total_points;not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (p *PurchaseHistoryRecord) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
