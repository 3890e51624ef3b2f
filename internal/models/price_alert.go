package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AlertAbove = "above"
	AlertBelow = "below"
)

type PriceAlert struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	AccountAddress string `gorm:"type:varchar(64);not null;uniqueIndex"`

	TargetPrice decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Direction   string          `gorm:"type:varchar(10);not null"`

	// ExecuteAction promotes a fired alert into an actionable trigger; a bare
	// alert only shows up in the account view.
	ExecuteAction bool `gorm:"not null;default:false"`

	Active          bool          `gorm:"not null;default:true"`
	LastTriggeredAt *time.Time    `gorm:"type:timestamptz"`
	Cooldown        time.Duration `gorm:"not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (PriceAlert) TableName() string {
	return "price_alerts"
}
