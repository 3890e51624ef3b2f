package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReportConfig struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	AccountAddress string `gorm:"type:varchar(64);not null;uniqueIndex"`

	AlertThreshold decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	ReportInterval time.Duration   `gorm:"not null"`
	LastReportAt   *time.Time      `gorm:"type:timestamptz"`
	Active         bool            `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (ReportConfig) TableName() string {
	return "report_configs"
}
