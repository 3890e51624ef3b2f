package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tradekeeper/internal/models"
	"tradekeeper/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository
// with real registry, snapshot, and status-write behavior so the two-phase
// protocol can be exercised end to end.
type stubRepo struct {
	accounts map[string]*models.Account
	alerts   map[string]*models.PriceAlert
	trade    map[string]*models.TradeConfig
	risk     map[string]*models.RiskParams
	reports  map[string]*models.ReportConfig
	fees     map[string]*models.FeeLedgerEntry
	records  []models.TradeRecord
	runs     []models.UpkeepRun
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		accounts: map[string]*models.Account{},
		alerts:   map[string]*models.PriceAlert{},
		trade:    map[string]*models.TradeConfig{},
		risk:     map[string]*models.RiskParams{},
		reports:  map[string]*models.ReportConfig{},
		fees:     map[string]*models.FeeLedgerEntry{},
	}
}

func (s *stubRepo) addAccount(address string, index int64) {
	s.accounts[address] = &models.Account{Address: address, ScanIndex: index, Active: true}
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func (s *stubRepo) RegisterAccount(ctx context.Context, item *models.Account) error {
	item.ScanIndex = int64(len(s.accounts))
	cp := *item
	s.accounts[item.Address] = &cp
	return nil
}

func (s *stubRepo) GetAccountByAddress(ctx context.Context, address string) (*models.Account, error) {
	if a, ok := s.accounts[address]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (s *stubRepo) GetAccountByAPIKey(ctx context.Context, key string) (*models.Account, error) {
	return nil, nil
}

func (s *stubRepo) ListAccountsByScanIndex(ctx context.Context, offset int64, limit int) ([]models.Account, error) {
	var all []models.Account
	for _, a := range s.accounts {
		if a.ScanIndex >= offset {
			all = append(all, *a)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ScanIndex < all[j].ScanIndex })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *stubRepo) CountAccounts(ctx context.Context) (int64, error) {
	return int64(len(s.accounts)), nil
}

func (s *stubRepo) SetAccountActive(ctx context.Context, address string, active bool) error {
	if a, ok := s.accounts[address]; ok {
		a.Active = active
	}
	return nil
}

func (s *stubRepo) SetAccountDelegate(ctx context.Context, address, delegate, delegateKey string) error {
	return nil
}

func (s *stubRepo) UpsertPriceAlert(ctx context.Context, item *models.PriceAlert) error {
	cp := *item
	s.alerts[item.AccountAddress] = &cp
	return nil
}

func (s *stubRepo) GetPriceAlertByAccount(ctx context.Context, address string) (*models.PriceAlert, error) {
	if a, ok := s.alerts[address]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (s *stubRepo) DeletePriceAlert(ctx context.Context, address string) error {
	delete(s.alerts, address)
	return nil
}

func (s *stubRepo) SetAlertTriggeredAt(ctx context.Context, address string, at time.Time) error {
	if a, ok := s.alerts[address]; ok {
		stamp := at
		a.LastTriggeredAt = &stamp
	}
	return nil
}

func (s *stubRepo) UpsertTradeConfig(ctx context.Context, item *models.TradeConfig) error {
	cp := *item
	s.trade[item.AccountAddress] = &cp
	return nil
}

func (s *stubRepo) GetTradeConfigByAccount(ctx context.Context, address string) (*models.TradeConfig, error) {
	if c, ok := s.trade[address]; ok {
		cp := *c
		return &cp, nil
	}
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
	cp := *item
	s.reports[item.AccountAddress] = &cp
	return nil
}

func (s *stubRepo) GetReportConfigByAccount(ctx context.Context, address string) (*models.ReportConfig, error) {
	if rc, ok := s.reports[address]; ok {
		cp := *rc
		return &cp, nil
	}
	return nil, nil
}

func (s *stubRepo) SetReportLastAt(ctx context.Context, address string, at time.Time) error {
	if rc, ok := s.reports[address]; ok {
		stamp := at
		rc.LastReportAt = &stamp
	}
	return nil
}

func (s *stubRepo) GetFeeEntryByAccount(ctx context.Context, address string) (*models.FeeLedgerEntry, error) {
	if e, ok := s.fees[address]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (s *stubRepo) AccrueFee(ctx context.Context, address string, amount decimal.Decimal) error {
	e, ok := s.fees[address]
	if !ok {
		e = &models.FeeLedgerEntry{AccountAddress: address}
		s.fees[address] = e
	}
	e.Owed = e.Owed.Add(amount)
	e.TotalAccrued = e.TotalAccrued.Add(amount)
	return nil
}

func (s *stubRepo) SettleFees(ctx context.Context, address string, at time.Time) (decimal.Decimal, error) {
	e, ok := s.fees[address]
	if !ok || !e.Owed.IsPositive() {
		return decimal.Zero, nil
	}
	paid := e.Owed
	e.Owed = decimal.Zero
	e.LastPaidAt = &at
	return paid, nil
}

func (s *stubRepo) RestoreFees(ctx context.Context, address string, amount decimal.Decimal) error {
	if e, ok := s.fees[address]; ok {
		e.Owed = e.Owed.Add(amount)
	}
	return nil
}

func (s *stubRepo) InsertTradeRecord(ctx context.Context, item *models.TradeRecord) error {
	s.records = append(s.records, *item)
	return nil
}

func (s *stubRepo) ListTradeRecords(ctx context.Context, params repository.ListTradeRecordsParams) ([]models.TradeRecord, error) {
	return s.records, nil
}

func (s *stubRepo) InsertUpkeepRun(ctx context.Context, item *models.UpkeepRun) error {
	s.runs = append(s.runs, *item)
	return nil
}

func (s *stubRepo) ListUpkeepRuns(ctx context.Context, limit int) ([]models.UpkeepRun, error) {
	return s.runs, nil
}
