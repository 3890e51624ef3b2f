package risk

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tradekeeper/internal/models"
	"tradekeeper/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// Gate tests only exercise the risk-params methods; everything else is inert.
type stubRepo struct {
	risk map[string]*models.RiskParams
}

func newStubRepo() *stubRepo {
	return &stubRepo{risk: map[string]*models.RiskParams{}}
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func (s *stubRepo) RegisterAccount(ctx context.Context, item *models.Account) error { return nil }
func (s *stubRepo) GetAccountByAddress(ctx context.Context, address string) (*models.Account, error) {
	return nil, nil
}
func (s *stubRepo) GetAccountByAPIKey(ctx context.Context, key string) (*models.Account, error) {
	return nil, nil
}
func (s *stubRepo) ListAccountsByScanIndex(ctx context.Context, offset int64, limit int) ([]models.Account, error) {
	return nil, nil
}
func (s *stubRepo) CountAccounts(ctx context.Context) (int64, error) { return 0, nil }
func (s *stubRepo) SetAccountActive(ctx context.Context, address string, active bool) error {
	return nil
}
func (s *stubRepo) SetAccountDelegate(ctx context.Context, address, delegate, delegateKey string) error {
	return nil
}

func (s *stubRepo) UpsertPriceAlert(ctx context.Context, item *models.PriceAlert) error { return nil }
func (s *stubRepo) GetPriceAlertByAccount(ctx context.Context, address string) (*models.PriceAlert, error) {
	return nil, nil
}
func (s *stubRepo) DeletePriceAlert(ctx context.Context, address string) error { return nil }
func (s *stubRepo) SetAlertTriggeredAt(ctx context.Context, address string, at time.Time) error {
	return nil
}

func (s *stubRepo) UpsertTradeConfig(ctx context.Context, item *models.TradeConfig) error {
	return nil
}
func (s *stubRepo) GetTradeConfigByAccount(ctx context.Context, address string) (*models.TradeConfig, error) {
	return nil, nil
}

func (s *stubRepo) UpsertRiskParams(ctx context.Context, item *models.RiskParams) error {
	cp := *item
	s.risk[item.AccountAddress] = &cp
	return nil
}
func (s *stubRepo) GetRiskParamsByAccount(ctx context.Context, address string) (*models.RiskParams, error) {
	if p, ok := s.risk[address]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}
func (s *stubRepo) SaveRiskStatus(ctx context.Context, address string, accrued decimal.Decimal, lastReset time.Time, disabled bool) error {
	p, ok := s.risk[address]
	if !ok {
		return repository.ErrNotRegistered
	}
	p.DailyLossAccrued = accrued
	p.LastResetAt = lastReset
	p.AutomationDisabled = disabled
	return nil
}

func (s *stubRepo) UpsertReportConfig(ctx context.Context, item *models.ReportConfig) error {
	return nil
}
func (s *stubRepo) GetReportConfigByAccount(ctx context.Context, address string) (*models.ReportConfig, error) {
	return nil, nil
}
func (s *stubRepo) SetReportLastAt(ctx context.Context, address string, at time.Time) error {
	return nil
}

func (s *stubRepo) GetFeeEntryByAccount(ctx context.Context, address string) (*models.FeeLedgerEntry, error) {
	return nil, nil
}
func (s *stubRepo) AccrueFee(ctx context.Context, address string, amount decimal.Decimal) error {
	return nil
}
func (s *stubRepo) SettleFees(ctx context.Context, address string, at time.Time) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (s *stubRepo) RestoreFees(ctx context.Context, address string, amount decimal.Decimal) error {
	return nil
}

func (s *stubRepo) InsertTradeRecord(ctx context.Context, item *models.TradeRecord) error {
	return nil
}
func (s *stubRepo) ListTradeRecords(ctx context.Context, params repository.ListTradeRecordsParams) ([]models.TradeRecord, error) {
	return nil, nil
}

func (s *stubRepo) InsertUpkeepRun(ctx context.Context, item *models.UpkeepRun) error { return nil }
func (s *stubRepo) ListUpkeepRuns(ctx context.Context, limit int) ([]models.UpkeepRun, error) {
	return nil, nil
}
