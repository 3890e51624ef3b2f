package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type FeeLedgerEntry struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	AccountAddress string `gorm:"type:varchar(64);not null;uniqueIndex"`

	Owed         decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	TotalAccrued decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	LastPaidAt   *time.Time      `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (FeeLedgerEntry) TableName() string {
	return "fee_ledger_entries"
}
