package models

import (
	"time"

	"gorm.io/datatypes"
)

// UpkeepRun is the audit row persisted for every execute-phase call.
type UpkeepRun struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	WorkItemID string `gorm:"type:varchar(40);not null;index"`

	Offset    int64 `gorm:"column:scan_offset;not null"`
	BatchSize int   `gorm:"not null"`
	Succeeded int   `gorm:"not null"`
	Failed    int   `gorm:"not null"`
	Skipped   int   `gorm:"not null"`

	// Outcomes holds the per-account outcome list as JSON.
	Outcomes datatypes.JSON `gorm:"type:jsonb"`

	StartedAt  time.Time `gorm:"type:timestamptz;not null"`
	FinishedAt time.Time `gorm:"type:timestamptz;not null"`
	CreatedAt  time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (UpkeepRun) TableName() string {
	return "upkeep_runs"
}
