package db

import (
	"tradekeeper/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Account{},
		&models.PriceAlert{},
		&models.TradeConfig{},
		&models.RiskParams{},
		&models.ReportConfig{},
		&models.FeeLedgerEntry{},
		&models.TradeRecord{},
		&models.UpkeepRun{},
	)
}
