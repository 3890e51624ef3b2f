package models

import (
	"time"
)

type Account struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement"`
	Address string `gorm:"type:varchar(64);not null;uniqueIndex"`

	// ScanIndex is the account's stable position in the registry sweep.
	// Assigned once at registration, never reused.
	ScanIndex int64 `gorm:"not null;uniqueIndex"`

	Active   bool   `gorm:"not null;default:true;index"`
	Delegate string `gorm:"type:varchar(64)"`

	// APIKey authenticates the owner on the configuration API.
	APIKey string `gorm:"type:varchar(64);not null;uniqueIndex"`
	// DelegateKey authenticates the delegate, when one is set.
	DelegateKey string `gorm:"type:varchar(64)"`

	RegisteredAt time.Time `gorm:"type:timestamptz;not null"`
	CreatedAt    time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Account) TableName() string {
	return "accounts"
}
