package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fee tiers accepted by the exchange pool, in hundredths of a bip.
var AllowedFeeTiers = []int{500, 3000, 10000}

// MaxSlippageBps is the hard cap on a user's configured slippage bound.
const MaxSlippageBps = 500

type TradeConfig struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	AccountAddress string `gorm:"type:varchar(64);not null;uniqueIndex"`

	BuyBelowPrice  decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	SellAbovePrice decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	BuyAmount      decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	SellAmount     decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	FeeTier     int  `gorm:"not null;default:3000"`
	SlippageBps int  `gorm:"not null;default:100"`
	Active      bool `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (TradeConfig) TableName() string {
	return "trade_configs"
}

func ValidFeeTier(tier int) bool {
	for _, t := range AllowedFeeTiers {
		if tier == t {
			return true
		}
	}
	return false
}
