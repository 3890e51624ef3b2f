package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tradekeeper/internal/models"
)

// ErrNotRegistered is returned for operations against an unknown account.
var ErrNotRegistered = errors.New("account not registered")

type ListTradeRecordsParams struct {
	Account *string
	Kind    *string
	Since   *time.Time
	Limit   int
	Offset  int
}

// Repository is the persistence boundary for the keeper. The registry is an
// append-only list: accounts are never deleted and scan indexes are never
// reused, so pagination over scan_index is stable across sweeps.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Registry. RegisterAccount assigns the next scan index and inserts the
	// account in one transaction so concurrent registrations never race on
	// the index.
	RegisterAccount(ctx context.Context, item *models.Account) error
	GetAccountByAddress(ctx context.Context, address string) (*models.Account, error)
	GetAccountByAPIKey(ctx context.Context, key string) (*models.Account, error)
	ListAccountsByScanIndex(ctx context.Context, offset int64, limit int) ([]models.Account, error)
	CountAccounts(ctx context.Context) (int64, error)
	SetAccountActive(ctx context.Context, address string, active bool) error
	SetAccountDelegate(ctx context.Context, address, delegate, delegateKey string) error

	// Price alerts.
	UpsertPriceAlert(ctx context.Context, item *models.PriceAlert) error
	GetPriceAlertByAccount(ctx context.Context, address string) (*models.PriceAlert, error)
	DeletePriceAlert(ctx context.Context, address string) error
	SetAlertTriggeredAt(ctx context.Context, address string, at time.Time) error

	// Trade configs.
	UpsertTradeConfig(ctx context.Context, item *models.TradeConfig) error
	GetTradeConfigByAccount(ctx context.Context, address string) (*models.TradeConfig, error)

	// Risk params.
	UpsertRiskParams(ctx context.Context, item *models.RiskParams) error
	GetRiskParamsByAccount(ctx context.Context, address string) (*models.RiskParams, error)
	SaveRiskStatus(ctx context.Context, address string, accrued decimal.Decimal, lastReset time.Time, disabled bool) error

	// Report configs.
	UpsertReportConfig(ctx context.Context, item *models.ReportConfig) error
	GetReportConfigByAccount(ctx context.Context, address string) (*models.ReportConfig, error)
	SetReportLastAt(ctx context.Context, address string, at time.Time) error

	// Fee ledger. RestoreFees re-credits a settled amount after a failed
	// transfer without counting it as newly accrued.
	GetFeeEntryByAccount(ctx context.Context, address string) (*models.FeeLedgerEntry, error)
	AccrueFee(ctx context.Context, address string, amount decimal.Decimal) error
	SettleFees(ctx context.Context, address string, at time.Time) (decimal.Decimal, error)
	RestoreFees(ctx context.Context, address string, amount decimal.Decimal) error

	// Trade records.
	InsertTradeRecord(ctx context.Context, item *models.TradeRecord) error
	ListTradeRecords(ctx context.Context, params ListTradeRecordsParams) ([]models.TradeRecord, error)

	// Upkeep runs.
	InsertUpkeepRun(ctx context.Context, item *models.UpkeepRun) error
	ListUpkeepRuns(ctx context.Context, limit int) ([]models.UpkeepRun, error)
}
