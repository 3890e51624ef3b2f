package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TradeKindBuy          = "buy"
	TradeKindSell         = "sell"
	TradeKindStopLossSell = "stop_loss_sell"
)

// TradeRecord is the emitted evidence of a swap: operators inspect records,
// not call success, to confirm work was done.
type TradeRecord struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	RecordID       string `gorm:"type:varchar(40);not null;uniqueIndex"`
	AccountAddress string `gorm:"type:varchar(64);not null;index"`

	Kind string `gorm:"type:varchar(20);not null;index"`

	AmountIn     decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	AmountOut    decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	MinAmountOut decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	OraclePrice  decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	SlippageBps  int             `gorm:"not null"`
	FeeTier      int             `gorm:"not null"`

	ExecutedAt time.Time `gorm:"type:timestamptz;not null;index"`
	CreatedAt  time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (TradeRecord) TableName() string {
	return "trade_records"
}
