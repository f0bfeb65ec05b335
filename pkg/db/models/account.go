package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/threst22/pinnaclestore/pkg/enums"
)

// Account represents the canonical identity and points-ledger entity.
type Account struct {
	ID                    uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Username              string            `gorm:"column:username;type:text;not null;uniqueIndex"`
	Name                  string            `gorm:"column:name;type:text;not null"`
	PasswordHash          string            `gorm:"column:password_hash;not null"`
	Role                  enums.AccountRole `gorm:"column:role;type:text;not null;default:employee"`
	PointsBalance         int               `gorm:"column:points_balance;not null;default:0"`
	RequirePasswordChange bool              `gorm:"column:require_password_change;not null;default:false"`
	CreatedAt             time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
