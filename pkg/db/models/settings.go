package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/threst22/pinnaclestore/pkg/enums"
)

// SettingsID is the primary key of the singleton settings row.
const SettingsID = 1

// GlobalSettings is the versioned singleton configuration record. Version
// guards concurrent admin updates; every inflation change fans out a full
// catalog reprice in the same transaction.
type GlobalSettings struct {
	ID               int             `gorm:"column:id;primaryKey"`
	Theme            enums.Theme     `gorm:"column:theme;type:text;not null;default:indigo"`
	LogoURL          string          `gorm:"column:logo_url;type:text;not null;default:''"`
	InflationPercent decimal.Decimal `gorm:"column:inflation_percent;type:numeric(8,2);not null;default:0"`
	Version          int             `gorm:"column:version;not null;default:1"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
