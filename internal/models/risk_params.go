package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type RiskParams struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	AccountAddress string `gorm:"type:varchar(64);not null;uniqueIndex"`

	StopLossPrice decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	DailyMaxLoss  decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	// Status fields, written only by the risk gate (and ResumeAutomation).
	DailyLossAccrued   decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	LastResetAt        time.Time       `gorm:"type:timestamptz;not null"`
	AutomationDisabled bool            `gorm:"not null;default:false;index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (RiskParams) TableName() string {
	return "risk_params"
}
